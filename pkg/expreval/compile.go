package expreval

import (
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// compile preprocesses and compiles src, wiring in the runn-compatible
// custom functions, matching the expr.Compile/expr.Env usage already
// established for condition evaluation elsewhere in this codebase.
func compile(src string) (*vm.Program, error) {
	return expr.Compile(preprocess(src),
		expr.Function("compare", func(params ...any) (any, error) {
			return compareFn(params[0], params[1]), nil
		}),
		expr.Function("diff", func(params ...any) (any, error) {
			return diffFn(params[0], params[1]), nil
		}),
		expr.Function("size", func(params ...any) (any, error) {
			if s, ok := params[0].(string); ok {
				return utf8.RuneCountInString(s), nil
			}
			rv := reflect.ValueOf(params[0])
			switch rv.Kind() {
			case reflect.Slice, reflect.Array, reflect.Map:
				return rv.Len(), nil
			}
			return nil, fmt.Errorf("size: unsupported type %T", params[0])
		}),
		expr.Function("type_of", func(params ...any) (any, error) {
			return typeOfFn(params[0]), nil
		}),
		expr.Function("urlencode", func(params ...any) (any, error) {
			s, _ := params[0].(string)
			return urlencodeFn(s), nil
		}),
		expr.AllowUndefinedVariables(),
	)
}

// programRun executes program against ctx, exposing ctx's top-level keys
// directly as expression identifiers (so "vars.token" and "current.status"
// both resolve without an extra wrapper).
func programRun(program *vm.Program, ctx map[string]any) (any, error) {
	return expr.Run(program, ctx)
}
