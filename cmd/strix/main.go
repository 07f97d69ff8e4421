package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/strixvm/strix-go/engine"
	"github.com/strixvm/strix-go/inspector"
	"github.com/strixvm/strix-go/vm"
)

func main() {
	var (
		enginePath = flag.String("engine", "strix.wasm", "Path to the engine wasm artifact")
		evalExpr   = flag.String("eval", "", "Expression to evaluate instead of a script file")
		asModule   = flag.Bool("module", false, "Run the script as an ES module")
		debug      = flag.Bool("debug", false, "Attach the inspector and open the interactive TUI")
		verbose    = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	scriptPath := flag.Arg(0)
	if scriptPath == "" && *evalExpr == "" {
		fmt.Fprintln(os.Stderr, "Usage: strix -engine <strix.wasm> script.js")
		fmt.Fprintln(os.Stderr, "       strix -engine <strix.wasm> -module script.mjs")
		fmt.Fprintln(os.Stderr, "       strix -engine <strix.wasm> -eval 'expr'")
		fmt.Fprintln(os.Stderr, "       strix -engine <strix.wasm> -debug script.js")
		os.Exit(1)
	}

	log := zap.NewNop()
	if *verbose {
		var err error
		log, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	engine.SetLogger(log)
	vm.SetLogger(log)
	inspector.SetLogger(log)

	if *debug {
		if scriptPath == "" {
			fmt.Fprintln(os.Stderr, "Error: -debug needs a script file")
			os.Exit(1)
		}
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -debug needs an interactive terminal")
			os.Exit(1)
		}
		if err := runDebug(*enginePath, scriptPath, *asModule, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*enginePath, scriptPath, *evalExpr, *asModule, log); err != nil {
		var exc *vm.Exception
		if errors.As(err, &exc) {
			fmt.Fprintf(os.Stderr, "Uncaught %s\n", exc.Error())
			if exc.Stack() != "" {
				fmt.Fprintln(os.Stderr, exc.Stack())
			}
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(enginePath, scriptPath, evalExpr string, asModule bool, log *zap.Logger) error {
	ctx := context.Background()

	eng, err := engine.NewFromFile(ctx, enginePath, &engine.Config{
		Logger: log,
		FS:     os.DirFS("."),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	rt := vm.NewRuntime(eng, vm.WithLogger(log))
	defer rt.Close()

	jsctx, err := rt.NewContext()
	if err != nil {
		return err
	}

	if evalExpr != "" {
		result, err := jsctx.EvaluateScript(evalExpr, vm.WithSourceURL("eval"))
		if err != nil {
			return err
		}
		if !result.IsUndefined() {
			s, err := result.ToString()
			if err != nil {
				return err
			}
			fmt.Println(s)
		}
		return nil
	}

	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	if asModule {
		if err := jsctx.EvaluateModuleSource(string(source), filepath.ToSlash(scriptPath)); err != nil {
			return err
		}
	} else {
		if _, err := jsctx.EvaluateScript(string(source), vm.WithSourceURL(filepath.ToSlash(scriptPath))); err != nil {
			return err
		}
	}

	// Drain pending jobs (promise reactions, queued module work) before
	// exiting.
	for {
		more, err := jsctx.PumpMessageLoop()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}
