package vm

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/strixvm/strix-go/errors"
)

// Optional declares a trampoline parameter that may be absent. An omitted
// or undefined argument yields Present == false with no error; a present
// argument that fails conversion still errors.
type Optional[T any] struct {
	Value   T
	Present bool
}

// Some wraps a present optional.
func Some[T any](v T) Optional[T] { return Optional[T]{Value: v, Present: true} }

// converter produces the reflect value for one marshaled argument.
type converter func(*Context, Value) (reflect.Value, error)

// paramSpec is one entry of a marshal plan: the declarative
// (name, optional, converter) triple the shared routine walks.
type paramSpec struct {
	name     string
	optional bool
	elem     reflect.Type
	convert  converter
}

// marshalPlan adapts one typed function's trailing parameters to raw
// argument lists. Plans are built once at registration; calls only walk the
// spec slice.
type marshalPlan struct {
	fnName string
	params []paramSpec

	// raw marks the bypass mode: a single trailing []Value parameter takes
	// the whole argument list unconverted.
	raw bool
}

var (
	valueType  = reflect.TypeOf(Value{})
	objectType = reflect.TypeOf(Object{})
	rawType    = reflect.TypeOf([]Value(nil))
)

// buildPlan classifies the trailing parameters of fnType starting at
// position first. names supplies source names for diagnostics; unnamed
// positions report as arg0, arg1, and so on.
func buildPlan(fnName string, fnType reflect.Type, first int, names []string) (*marshalPlan, error) {
	plan := &marshalPlan{fnName: fnName}

	trailing := fnType.NumIn() - first
	if trailing == 1 && fnType.In(first) == rawType {
		plan.raw = true
		return plan, nil
	}

	for i := 0; i < trailing; i++ {
		pt := fnType.In(first + i)
		name := fmt.Sprintf("arg%d", i)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}

		spec := paramSpec{name: name}
		elem := pt
		if opt, ok := optionalElem(pt); ok {
			spec.optional = true
			spec.elem = pt
			elem = opt
		}

		conv, ok := converterFor(elem)
		if !ok {
			return nil, errors.New(errors.PhaseMarshal, errors.KindUnsupported).
				Path(fnName, name).
				GoType(pt.String()).
				Detail("parameter %d has no conversion", i).
				Build()
		}
		spec.convert = conv
		plan.params = append(plan.params, spec)
	}
	return plan, nil
}

// optionalElem reports whether t is Optional[E], returning E.
func optionalElem(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Struct || t.NumField() != 2 {
		return nil, false
	}
	if t.PkgPath() != valueType.PkgPath() || !strings.HasPrefix(t.Name(), "Optional[") {
		return nil, false
	}
	return t.Field(0).Type, true
}

// converterFor maps a parameter type to its conversion. Conversion failures
// on present arguments carry the engine's own coercion exception.
func converterFor(t reflect.Type) (converter, bool) {
	switch t {
	case valueType:
		return func(_ *Context, v Value) (reflect.Value, error) {
			return reflect.ValueOf(v), nil
		}, true
	case objectType:
		return func(_ *Context, v Value) (reflect.Value, error) {
			obj, err := v.ToObject()
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(obj), nil
		}, true
	}

	switch t.Kind() {
	case reflect.String:
		return func(_ *Context, v Value) (reflect.Value, error) {
			s, err := v.ToString()
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(s).Convert(t), nil
		}, true
	case reflect.Bool:
		return func(_ *Context, v Value) (reflect.Value, error) {
			b, err := v.ToBoolean()
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(b).Convert(t), nil
		}, true
	case reflect.Float64, reflect.Float32,
		reflect.Int, reflect.Int32, reflect.Int64,
		reflect.Uint32, reflect.Uint64:
		return func(_ *Context, v Value) (reflect.Value, error) {
			n, err := v.ToNumber()
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(n).Convert(t), nil
		}, true
	}
	return nil, false
}

// marshal applies the plan to args left to right. A missing required
// argument aborts with the marshaling error naming function and parameter;
// conversion failures on present arguments propagate unchanged.
func (p *marshalPlan) marshal(c *Context, args []Value) ([]reflect.Value, error) {
	if p.raw {
		return []reflect.Value{reflect.ValueOf(args)}, nil
	}

	out := make([]reflect.Value, 0, len(p.params))
	for i, spec := range p.params {
		absent := i >= len(args) || args[i].IsUndefined()

		if absent {
			if !spec.optional {
				return nil, errors.MissingArgument(p.fnName, spec.name)
			}
			out = append(out, reflect.New(spec.elem).Elem())
			continue
		}

		converted, err := spec.convert(c, args[i])
		if err != nil {
			return nil, err
		}
		if spec.optional {
			opt := reflect.New(spec.elem).Elem()
			opt.Field(0).Set(converted)
			opt.Field(1).SetBool(true)
			out = append(out, opt)
			continue
		}
		out = append(out, converted)
	}
	return out, nil
}
