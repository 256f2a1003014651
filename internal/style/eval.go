package style

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// Evaluator runs style expressions against a feature's properties and its
// feature-state. Expressions are translated to expr-lang programs which are
// cached by source text.
type Evaluator struct {
	mu    sync.Mutex
	cache map[string]*exprvm.Program
}

// NewEvaluator creates an evaluator with an empty program cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*exprvm.Program)}
}

// Eval evaluates v. Scalars evaluate to themselves.
func (e *Evaluator) Eval(v any, props, state map[string]any) (any, error) {
	src, err := Translate(v)
	if err != nil {
		return nil, err
	}
	program, err := e.program(src)
	if err != nil {
		return nil, err
	}
	if props == nil {
		props = map[string]any{}
	}
	if state == nil {
		state = map[string]any{}
	}
	return exprlang.Run(program, map[string]any{"props": props, "state": state})
}

// Match reports whether a filter expression accepts the feature. A nil
// filter accepts everything; evaluation errors reject.
func (e *Evaluator) Match(filter Expression, props, state map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	out, err := e.Eval(filter, props, state)
	if err != nil {
		return false
	}
	b, ok := out.(bool)
	return ok && b
}

// Cached returns the number of compiled programs.
func (e *Evaluator) Cached() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

func (e *Evaluator) program(src string) (*exprvm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.cache[src]; ok {
		return p, nil
	}
	opts := []exprlang.Option{
		exprlang.Env(map[string]any{
			"props": map[string]any{},
			"state": map[string]any{},
		}),
	}
	for name, fn := range functions {
		opts = append(opts, exprlang.Function(name, fn))
	}
	p, err := exprlang.Compile(src, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", src, err)
	}
	e.cache[src] = p
	return p, nil
}

// Translate renders a style expression as expr-lang source.
func Translate(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "nil", nil
	case bool:
		return strconv.FormatBool(t), nil
	case string:
		return strconv.Quote(t), nil
	case float64, float32, int, int64, int32, uint32, uint64:
		f, _ := toFloat(t)
		return "(" + strconv.FormatFloat(f, 'f', -1, 64) + ")", nil
	case []string:
		return translateArray(anySlice(t))
	case []float64:
		return translateArray(anySlice(t))
	case Expression:
		return translateCall([]any(t))
	case []any:
		return translateCall(t)
	}
	return "", fmt.Errorf("unsupported expression value %T", v)
}

func translateArray(items []any) (string, error) {
	parts := make([]string, len(items))
	for i, item := range items {
		var err error
		if arr, ok := asSlice(item); ok {
			parts[i], err = translateArray(arr)
		} else {
			parts[i], err = Translate(item)
		}
		if err != nil {
			return "", err
		}
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

func translateCall(x []any) (string, error) {
	if len(x) == 0 {
		return "", fmt.Errorf("empty expression")
	}
	op, ok := x[0].(string)
	if !ok {
		return translateArray(x)
	}
	args := x[1:]

	switch op {
	case "get", "feature-state", "has":
		if len(args) != 1 {
			return "", fmt.Errorf("%s takes one argument", op)
		}
		key, ok := args[0].(string)
		if !ok {
			return "", fmt.Errorf("%s key must be a string", op)
		}
		switch op {
		case "get":
			return "props[" + strconv.Quote(key) + "]", nil
		case "feature-state":
			return "state[" + strconv.Quote(key) + "]", nil
		}
		return "(" + strconv.Quote(key) + " in props)", nil

	case "literal":
		if len(args) != 1 {
			return "", fmt.Errorf("literal takes one argument")
		}
		if arr, ok := asSlice(args[0]); ok {
			return translateArray(arr)
		}
		return Translate(args[0])

	case "case":
		if len(args) < 3 || len(args)%2 == 0 {
			return "", fmt.Errorf("case needs condition/output pairs and a fallback")
		}
		out, err := Translate(args[len(args)-1])
		if err != nil {
			return "", err
		}
		for i := len(args) - 3; i >= 0; i -= 2 {
			cond, err := Translate(args[i])
			if err != nil {
				return "", err
			}
			then, err := Translate(args[i+1])
			if err != nil {
				return "", err
			}
			out = fmt.Sprintf("(truthy(%s) ? %s : %s)", cond, then, out)
		}
		return out, nil

	case "all", "any":
		if len(args) == 0 {
			return strconv.FormatBool(op == "all"), nil
		}
		join := " && "
		if op == "any" {
			join = " || "
		}
		parts := make([]string, len(args))
		for i, a := range args {
			s, err := Translate(a)
			if err != nil {
				return "", err
			}
			parts[i] = "truthy(" + s + ")"
		}
		return "(" + strings.Join(parts, join) + ")", nil

	case "!":
		if len(args) != 1 {
			return "", fmt.Errorf("! takes one argument")
		}
		s, err := Translate(args[0])
		if err != nil {
			return "", err
		}
		return "(!truthy(" + s + "))", nil

	case "match":
		if len(args) < 4 || len(args)%2 != 0 {
			return "", fmt.Errorf("match needs an input, label/output pairs and a fallback")
		}
		parts := make([]string, len(args))
		for i, a := range args {
			var s string
			var err error
			if arr, ok := asSlice(a); ok && i > 0 && i%2 == 1 {
				s, err = translateArray(arr)
			} else {
				s, err = Translate(a)
			}
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "pick(" + strings.Join(parts, ", ") + ")", nil
	}

	fn, ok := operators[op]
	if !ok {
		return "", fmt.Errorf("unsupported operator %q", op)
	}
	parts := make([]string, 0, len(args)+1)
	if fn.prefix != "" {
		parts = append(parts, strconv.Quote(fn.prefix))
	}
	for _, a := range args {
		s, err := Translate(a)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	call := fn.name + "(" + strings.Join(parts, ", ") + ")"
	if fn.negate {
		call = "(!" + call + ")"
	}
	return call, nil
}

type operator struct {
	name   string
	prefix string
	negate bool
}

var operators = map[string]operator{
	"step":      {name: "step"},
	"in":        {name: "member"},
	"==":        {name: "eq"},
	"!=":        {name: "eq", negate: true},
	"<":         {name: "cmp", prefix: "<"},
	"<=":        {name: "cmp", prefix: "<="},
	">":         {name: "cmp", prefix: ">"},
	">=":        {name: "cmp", prefix: ">="},
	"boolean":   {name: "boolean"},
	"number":    {name: "number"},
	"to-number": {name: "number"},
	"string":    {name: "tostr"},
	"to-string": {name: "tostr"},
	"coalesce":  {name: "coalesce"},
}

var functions = map[string]func(params ...any) (any, error){
	"truthy": func(params ...any) (any, error) {
		b, _ := params[0].(bool)
		return b, nil
	},
	"boolean": func(params ...any) (any, error) {
		for _, p := range params {
			if b, ok := p.(bool); ok {
				return b, nil
			}
		}
		return false, nil
	},
	"number": func(params ...any) (any, error) {
		for _, p := range params {
			if f, ok := toFloat(p); ok {
				return f, nil
			}
			if s, ok := p.(string); ok {
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					return f, nil
				}
			}
		}
		return nil, fmt.Errorf("number: no numeric argument")
	},
	"tostr": func(params ...any) (any, error) {
		if len(params) == 0 {
			return "", nil
		}
		return FormatValue(params[0]), nil
	},
	"coalesce": func(params ...any) (any, error) {
		for _, p := range params {
			if p != nil {
				return p, nil
			}
		}
		return nil, nil
	},
	"eq": func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("== takes two arguments")
		}
		return equal(params[0], params[1]), nil
	},
	"cmp": func(params ...any) (any, error) {
		if len(params) != 3 {
			return nil, fmt.Errorf("comparison takes two arguments")
		}
		op, _ := params[0].(string)
		return compare(op, params[1], params[2]), nil
	},
	"member": func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("in takes two arguments")
		}
		switch haystack := params[1].(type) {
		case string:
			needle, ok := params[0].(string)
			return ok && strings.Contains(haystack, needle), nil
		case []any:
			for _, item := range haystack {
				if equal(params[0], item) {
					return true, nil
				}
			}
			return false, nil
		}
		return nil, fmt.Errorf("in: haystack must be an array or string, got %T", params[1])
	},
	"step": func(params ...any) (any, error) {
		if len(params) < 2 || len(params)%2 != 0 {
			return nil, fmt.Errorf("step needs an input, a base output and stop/output pairs")
		}
		input, ok := toFloat(params[0])
		if !ok {
			return nil, fmt.Errorf("step: input %v is not a number", params[0])
		}
		out := params[1]
		for i := 2; i+1 < len(params); i += 2 {
			stop, ok := toFloat(params[i])
			if !ok {
				return nil, fmt.Errorf("step: stop %v is not a number", params[i])
			}
			if input < stop {
				break
			}
			out = params[i+1]
		}
		return out, nil
	},
	"pick": func(params ...any) (any, error) {
		input := params[0]
		for i := 1; i+1 < len(params); i += 2 {
			if labels, ok := params[i].([]any); ok {
				for _, l := range labels {
					if equal(input, l) {
						return params[i+1], nil
					}
				}
				continue
			}
			if equal(input, params[i]) {
				return params[i+1], nil
			}
		}
		return params[len(params)-1], nil
	},
}

// FormatValue renders a property value the way labels display it: numbers
// without exponent, nil as empty.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func equal(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return fa == fb
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compare(op string, a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		switch op {
		case "<":
			return fa < fb
		case "<=":
			return fa <= fb
		case ">":
			return fa > fb
		case ">=":
			return fa >= fb
		}
		return false
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if !aok || !bok {
		return false
	}
	switch op {
	case "<":
		return sa < sb
	case "<=":
		return sa <= sb
	case ">":
		return sa > sb
	case ">=":
		return sa >= sb
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case Expression:
		return []any(t), true
	case []string:
		return anySlice(t), true
	case []float64:
		return anySlice(t), true
	}
	return nil, false
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
