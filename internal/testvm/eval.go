package testvm

import (
	"strconv"
	"strings"

	strix "github.com/strixvm/strix-go"
)

// Script evaluation is intentionally not a JavaScript parser. The reference
// engine understands exactly the forms the package tests need: literals,
// global identifiers, and calls of a global function with literal arguments.
// Everything else reports a SyntaxError exception, the way the production
// artifact reports code it cannot parse.

func (e *Engine) EvaluateScript(c strix.ContextRef, script, sourceURL string, startLine int) (strix.ValueRef, strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return 0, 0, err
	}
	return e.evalExpr(c, strings.TrimSpace(script))
}

func (e *Engine) CheckSyntax(c strix.ContextRef, script, sourceURL string, startLine int) (bool, strix.ValueRef, error) {
	if _, err := e.ctx(c); err != nil {
		return false, 0, err
	}
	src := strings.TrimSpace(script)
	if _, ok := e.parseLiteralKind(src); ok {
		return true, 0, nil
	}
	if isIdent(src) {
		return true, 0, nil
	}
	if name, args, ok := splitCall(src); ok && isIdent(name) {
		for _, a := range args {
			if _, ok := e.parseLiteralKind(a); !ok {
				exc, mkErr := e.syntaxError(c, "unsupported argument expression: "+a)
				return false, exc, mkErr
			}
		}
		return true, 0, nil
	}
	exc, mkErr := e.syntaxError(c, "unsupported expression: "+src)
	return false, exc, mkErr
}

func (e *Engine) syntaxError(c strix.ContextRef, msg string) (strix.ValueRef, error) {
	exc, err := e.MakeError(c, strix.GenericError, msg)
	if err != nil {
		return 0, err
	}
	if rec, vErr := e.val(c, exc); vErr == nil {
		e.setProp(rec.obj, "name", e.put(c, &valueRec{kind: strix.KindString, s: "SyntaxError"}))
	}
	return exc, nil
}

func (e *Engine) evalExpr(c strix.ContextRef, src string) (strix.ValueRef, strix.ValueRef, error) {
	if ref, ok, err := e.parseLiteral(c, src); err != nil || ok {
		return ref, 0, err
	}

	if isIdent(src) {
		rec, err := e.ctx(c)
		if err != nil {
			return 0, 0, err
		}
		return e.GetProperty(c, rec.global, src)
	}

	if name, rawArgs, ok := splitCall(src); ok && isIdent(name) {
		rec, err := e.ctx(c)
		if err != nil {
			return 0, 0, err
		}
		fn, exc, err := e.GetProperty(c, rec.global, name)
		if err != nil || !exc.IsNull() {
			return 0, exc, err
		}
		if kind, err := e.Kind(c, fn); err != nil || kind != strix.KindObject {
			excRef, mkErr := e.MakeError(c, strix.TypeError, name+" is not a function")
			return 0, excRef, mkErr
		}

		args := make([]strix.ValueRef, 0, len(rawArgs))
		for _, raw := range rawArgs {
			ref, ok, err := e.parseLiteral(c, raw)
			if err != nil {
				return 0, 0, err
			}
			if !ok {
				excRef, mkErr := e.syntaxError(c, "unsupported argument expression: "+raw)
				return 0, excRef, mkErr
			}
			args = append(args, ref)
		}
		return e.Call(c, fn, 0, args)
	}

	excRef, mkErr := e.syntaxError(c, "unsupported expression: "+src)
	return 0, excRef, mkErr
}

func (e *Engine) parseLiteralKind(src string) (strix.ValueKind, bool) {
	switch src {
	case "undefined":
		return strix.KindUndefined, true
	case "null":
		return strix.KindNull, true
	case "true", "false":
		return strix.KindBoolean, true
	}
	if len(src) >= 2 {
		if (src[0] == '\'' && src[len(src)-1] == '\'') || (src[0] == '"' && src[len(src)-1] == '"') {
			return strix.KindString, true
		}
	}
	if _, err := strconv.ParseFloat(src, 64); err == nil {
		return strix.KindNumber, true
	}
	return 0, false
}

func (e *Engine) parseLiteral(c strix.ContextRef, src string) (strix.ValueRef, bool, error) {
	kind, ok := e.parseLiteralKind(src)
	if !ok {
		return 0, false, nil
	}
	switch kind {
	case strix.KindUndefined:
		ref, err := e.MakeUndefined(c)
		return ref, true, err
	case strix.KindNull:
		ref, err := e.MakeNull(c)
		return ref, true, err
	case strix.KindBoolean:
		ref, err := e.MakeBoolean(c, src == "true")
		return ref, true, err
	case strix.KindString:
		ref, err := e.MakeString(c, src[1:len(src)-1])
		return ref, true, err
	default:
		n, _ := strconv.ParseFloat(src, 64)
		ref, err := e.MakeNumber(c, n)
		return ref, true, err
	}
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		alpha := r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		digit := r >= '0' && r <= '9'
		if !alpha && (i == 0 || !digit) {
			return false
		}
	}
	return true
}

// splitCall breaks "name(a, b)" into its callee and raw argument texts.
// Nesting is limited to quoted strings; good enough for literal arguments.
func splitCall(src string) (string, []string, bool) {
	open := strings.IndexByte(src, '(')
	if open <= 0 || !strings.HasSuffix(src, ")") {
		return "", nil, false
	}
	name := strings.TrimSpace(src[:open])
	inner := src[open+1 : len(src)-1]
	if strings.TrimSpace(inner) == "" {
		return name, nil, true
	}

	var args []string
	var quote byte
	start := 0
	for i := 0; i < len(inner); i++ {
		ch := inner[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == ',':
			args = append(args, strings.TrimSpace(inner[start:i]))
			start = i + 1
		}
	}
	args = append(args, strings.TrimSpace(inner[start:]))
	return name, args, true
}

// Module evaluation drives the context's module hooks in the documented
// order: resolve, then either the virtual-key evaluate hook or fetch, then
// execution line by line. Breakpoint checks run before execution.

func (e *Engine) EvaluateModule(c strix.ContextRef, path string) (strix.ValueRef, error) {
	rec, err := e.ctx(c)
	if err != nil {
		return 0, err
	}

	key := path
	if rec.hooks.ModuleResolve != 0 {
		hook, ok := e.hooks[rec.hooks.ModuleResolve].(strix.ModuleResolveFunc)
		if !ok {
			return e.MakeError(c, strix.TypeError, "module resolve hook is not registered")
		}
		spec, err := e.MakeString(c, path)
		if err != nil {
			return 0, err
		}
		und, err := e.MakeUndefined(c)
		if err != nil {
			return 0, err
		}
		resolved, exc := hook(c, spec, und)
		if !exc.IsNull() {
			return exc, nil
		}
		key = resolved
	}

	if rec.virtual[key] && rec.hooks.ModuleEvaluate != 0 {
		hook, ok := e.hooks[rec.hooks.ModuleEvaluate].(strix.ModuleEvaluateFunc)
		if !ok {
			return e.MakeError(c, strix.TypeError, "module evaluate hook is not registered")
		}
		keyVal, err := e.MakeString(c, key)
		if err != nil {
			return 0, err
		}
		_, exc := hook(c, keyVal)
		return exc, nil
	}

	source, ok := e.modules[key]
	if rec.hooks.ModuleFetch != 0 {
		hook, hookOK := e.hooks[rec.hooks.ModuleFetch].(strix.ModuleFetchFunc)
		if !hookOK {
			return e.MakeError(c, strix.TypeError, "module fetch hook is not registered")
		}
		keyVal, err := e.MakeString(c, key)
		if err != nil {
			return 0, err
		}
		und, err := e.MakeUndefined(c)
		if err != nil {
			return 0, err
		}
		fetched, exc := hook(c, keyVal, und)
		if !exc.IsNull() {
			return exc, nil
		}
		source, ok = fetched, true
	}
	if !ok {
		exc, mkErr := e.MakeError(c, strix.GenericError, "module not found: "+key)
		return exc, mkErr
	}

	return e.runModuleSource(c, rec, key, source)
}

func (e *Engine) EvaluateModuleSource(c strix.ContextRef, source, key string) (strix.ValueRef, error) {
	rec, err := e.ctx(c)
	if err != nil {
		return 0, err
	}
	return e.runModuleSource(c, rec, key, source)
}

func (e *Engine) runModuleSource(c strix.ContextRef, rec *ctxRec, key, source string) (strix.ValueRef, error) {
	e.notifyScriptParsed(c, rec, key)

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		if rec.shouldPause(key, i) {
			if err := e.runPauseLoop(c, rec, key, i); err != nil {
				return 0, err
			}
		}

		stmt := strings.TrimSpace(line)
		if stmt == "" || strings.HasPrefix(stmt, "//") {
			continue
		}
		stmt = strings.TrimSuffix(stmt, ";")
		_, exc, err := e.evalExpr(c, stmt)
		if err != nil {
			return 0, err
		}
		if !exc.IsNull() {
			e.notifyUncaught(c, rec, key, exc)
			return exc, nil
		}
	}
	return 0, nil
}

func (e *Engine) notifyUncaught(c strix.ContextRef, rec *ctxRec, filename string, exc strix.ValueRef) {
	if rec.hooks.Uncaught == 0 {
		return
	}
	if hook, ok := e.hooks[rec.hooks.Uncaught].(strix.UncaughtFunc); ok {
		hook(c, filename, exc)
	}
}
