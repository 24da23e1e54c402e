/*
Copyright The Helm Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package template

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Func is a template-callable function, as registered in a FuncMap.
type Func func(args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// Filter is a template-callable pipe filter, as registered in a FilterMap.
// input is the value to the left of "|".
type Filter func(input interface{}, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// FuncMap and FilterMap hold the functions/filters available to a render.
type FuncMap map[string]Func
type FilterMap map[string]Filter

// Env is one lexical scope of variables during evaluation. Child scopes
// (loop bodies, if/set) chain to a parent for lookups but write locally.
type Env struct {
	vars    map[string]interface{}
	parent  *Env
	funcs   FuncMap
	filters FilterMap
}

// NewEnv creates the root environment for a render.
func NewEnv(vars map[string]interface{}, funcs FuncMap, filters FilterMap) *Env {
	return &Env{vars: vars, funcs: funcs, filters: filters}
}

func (e *Env) child() *Env {
	return &Env{vars: map[string]interface{}{}, parent: e, funcs: e.funcs, filters: e.filters}
}

// Get looks up name, walking up to parent scopes. The bool is false if the
// name is undeclared anywhere in the chain.
func (e *Env) Get(name string) (interface{}, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set declares or overwrites name in this scope (not a parent's).
func (e *Env) Set(name string, val interface{}) {
	e.vars[name] = val
}

// Render walks a parsed node list and produces its text output.
func Render(nodes []Node, env *Env) (string, error) {
	var b strings.Builder
	if err := renderNodes(nodes, env, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func renderNodes(nodes []Node, env *Env, b *strings.Builder) error {
	for _, n := range nodes {
		if err := renderNode(n, env, b); err != nil {
			return err
		}
	}
	return nil
}

func renderNode(n Node, env *Env, b *strings.Builder) error {
	switch node := n.(type) {
	case textNode:
		b.WriteString(node.value)
	case rawNode:
		b.WriteString(node.value)
	case outputNode:
		v, err := evalExpr(node.expr, env)
		if err != nil {
			return err
		}
		b.WriteString(ToDisplayString(v))
	case setNode:
		v, err := evalExpr(node.expr, env)
		if err != nil {
			return err
		}
		env.Set(node.name, v)
	case ifNode:
		for _, branch := range node.branches {
			cond, err := evalExpr(branch.cond, env)
			if err != nil {
				return err
			}
			if Truthy(cond) {
				return renderNodes(branch.body, env.child(), b)
			}
		}
		if node.elseBody != nil {
			return renderNodes(node.elseBody, env.child(), b)
		}
	case forNode:
		return renderFor(node, env, b)
	default:
		return errors.Errorf("template: unsupported node type %T", n)
	}
	return nil
}

func renderFor(node forNode, env *Env, b *strings.Builder) error {
	iterable, err := evalExpr(node.iterable, env)
	if err != nil {
		return err
	}
	pairs, err := iteratePairs(iterable, node.keyVar != "")
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		if node.elseBody != nil {
			return renderNodes(node.elseBody, env.child(), b)
		}
		return nil
	}
	for _, pair := range pairs {
		loop := env.child()
		if node.keyVar != "" {
			loop.Set(node.keyVar, pair.key)
		}
		loop.Set(node.valVar, pair.value)
		if err := renderNodes(node.body, loop, b); err != nil {
			return err
		}
	}
	return nil
}

type kvPair struct{ key, value interface{} }

// iteratePairs normalizes any iterable into an ordered key/value list.
// Slices yield (index, item). Maps yield (key, value) sorted by key for
// deterministic rendering, matching text/template's map-ranging behavior.
// When wantKeys is false and the iterable is a map, only its keys are
// produced as the loop value (Jinja's "for v in dict" convention).
func iteratePairs(v interface{}, wantKeys bool) ([]kvPair, error) {
	switch val := v.(type) {
	case nil, Undefined:
		return nil, nil
	case []interface{}:
		out := make([]kvPair, len(val))
		for i, item := range val {
			out[i] = kvPair{key: i, value: item}
		}
		return out, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]kvPair, len(keys))
		for i, k := range keys {
			if wantKeys {
				out[i] = kvPair{key: k, value: val[k]}
			} else {
				out[i] = kvPair{key: k, value: k}
			}
		}
		return out, nil
	case []string:
		out := make([]kvPair, len(val))
		for i, item := range val {
			out[i] = kvPair{key: i, value: item}
		}
		return out, nil
	default:
		return nil, errors.Errorf("template: cannot iterate over %T", v)
	}
}

func evalExpr(e Expr, env *Env) (interface{}, error) {
	switch expr := e.(type) {
	case literalExpr:
		return expr.value, nil
	case identExpr:
		if v, ok := env.Get(expr.name); ok {
			return v, nil
		}
		return NewUndefined("%q is undefined", expr.name), nil
	case attrExpr:
		base, err := evalExpr(expr.base, env)
		if err != nil {
			return nil, err
		}
		return getAttr(base, expr.name), nil
	case indexExpr:
		base, err := evalExpr(expr.base, env)
		if err != nil {
			return nil, err
		}
		idx, err := evalExpr(expr.index, env)
		if err != nil {
			return nil, err
		}
		return getIndex(base, idx), nil
	case listExpr:
		out := make([]interface{}, len(expr.items))
		for i, item := range expr.items {
			v, err := evalExpr(item, env)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case dictExpr:
		out := map[string]interface{}{}
		for _, pair := range expr.pairs {
			k, err := evalExpr(pair.key, env)
			if err != nil {
				return nil, err
			}
			v, err := evalExpr(pair.value, env)
			if err != nil {
				return nil, err
			}
			out[ToDisplayString(k)] = v
		}
		return out, nil
	case unaryExpr:
		v, err := evalExpr(expr.expr, env)
		if err != nil {
			return nil, err
		}
		switch expr.op {
		case "not":
			return !Truthy(v), nil
		case "-":
			n, isInt, err := toNumber(v)
			if err != nil {
				return nil, err
			}
			if isInt {
				return -int64(n), nil
			}
			return -n, nil
		}
		return nil, errors.Errorf("template: unknown unary operator %q", expr.op)
	case binOpExpr:
		return evalBinOp(expr, env)
	case callExpr:
		return evalCall(expr, env)
	case filterExpr:
		return evalFilter(expr, env)
	default:
		return nil, errors.Errorf("template: unsupported expression type %T", e)
	}
}

func evalCall(expr callExpr, env *Env) (interface{}, error) {
	name, ok := expr.callee.(identExpr)
	if !ok {
		return nil, errors.New("template: call target must be a function name")
	}
	fn, ok := env.funcs[name.name]
	if !ok {
		return nil, errors.Errorf("template: unknown function %q", name.name)
	}
	args, kwargs, err := evalArgs(expr.args, expr.kwargs, env)
	if err != nil {
		return nil, err
	}
	return fn(args, kwargs)
}

func evalFilter(expr filterExpr, env *Env) (interface{}, error) {
	input, err := evalExpr(expr.base, env)
	if err != nil {
		return nil, err
	}
	filter, ok := env.filters[expr.name]
	if !ok {
		return nil, errors.Errorf("template: unknown filter %q", expr.name)
	}
	args, kwargs, err := evalArgs(expr.args, expr.kwargs, env)
	if err != nil {
		return nil, err
	}
	return filter(input, args, kwargs)
}

func evalArgs(argExprs []Expr, kwargExprs map[string]Expr, env *Env) ([]interface{}, map[string]interface{}, error) {
	args := make([]interface{}, len(argExprs))
	for i, a := range argExprs {
		v, err := evalExpr(a, env)
		if err != nil {
			return nil, nil, err
		}
		args[i] = v
	}
	var kwargs map[string]interface{}
	if len(kwargExprs) > 0 {
		kwargs = make(map[string]interface{}, len(kwargExprs))
		for k, a := range kwargExprs {
			v, err := evalExpr(a, env)
			if err != nil {
				return nil, nil, err
			}
			kwargs[k] = v
		}
	}
	return args, kwargs, nil
}

func evalBinOp(expr binOpExpr, env *Env) (interface{}, error) {
	switch expr.op {
	case "and":
		left, err := evalExpr(expr.left, env)
		if err != nil {
			return nil, err
		}
		if !Truthy(left) {
			return left, nil
		}
		return evalExpr(expr.right, env)
	case "or":
		left, err := evalExpr(expr.left, env)
		if err != nil {
			return nil, err
		}
		if Truthy(left) {
			return left, nil
		}
		return evalExpr(expr.right, env)
	}

	left, err := evalExpr(expr.left, env)
	if err != nil {
		return nil, err
	}
	right, err := evalExpr(expr.right, env)
	if err != nil {
		return nil, err
	}

	switch expr.op {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	case "<", "<=", ">", ">=":
		return compareValues(expr.op, left, right)
	case "in":
		return membership(left, right)
	case "~":
		return ToDisplayString(left) + ToDisplayString(right), nil
	case "+":
		return addValues(left, right)
	case "-", "*", "/", "%", "//":
		return arithmetic(expr.op, left, right)
	}
	return nil, errors.Errorf("template: unknown operator %q", expr.op)
}

func addValues(left, right interface{}) (interface{}, error) {
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return ls + rs, nil
	}
	ll, lok := left.([]interface{})
	rl, rok := right.([]interface{})
	if lok && rok {
		out := make([]interface{}, 0, len(ll)+len(rl))
		out = append(out, ll...)
		out = append(out, rl...)
		return out, nil
	}
	return arithmetic("+", left, right)
}

func arithmetic(op string, left, right interface{}) (interface{}, error) {
	ln, lInt, err := toNumber(left)
	if err != nil {
		return nil, err
	}
	rn, rInt, err := toNumber(right)
	if err != nil {
		return nil, err
	}
	bothInt := lInt && rInt
	var result float64
	switch op {
	case "+":
		result = ln + rn
	case "-":
		result = ln - rn
	case "*":
		result = ln * rn
	case "/":
		if rn == 0 {
			return nil, errors.New("template: division by zero")
		}
		result = ln / rn
		bothInt = false
	case "%":
		if rn == 0 {
			return nil, errors.New("template: division by zero")
		}
		result = float64(int64(ln) % int64(rn))
	case "//":
		if rn == 0 {
			return nil, errors.New("template: division by zero")
		}
		result = float64(int64(ln / rn))
	}
	if bothInt {
		return int64(result), nil
	}
	return result, nil
}

func toNumber(v interface{}) (float64, bool, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case float64:
		return n, false, nil
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return float64(i), true, nil
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, false, nil
		}
		return 0, false, errors.Errorf("template: %q is not a number", n)
	default:
		return 0, false, errors.Errorf("template: %T is not a number", v)
	}
}

func valuesEqual(left, right interface{}) bool {
	ln, lInt, lerr := toNumber(left)
	rn, rInt, rerr := toNumber(right)
	if lerr == nil && rerr == nil && (lInt || rInt || true) {
		return ln == rn
	}
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func compareValues(op string, left, right interface{}) (bool, error) {
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	ln, _, err := toNumber(left)
	if err != nil {
		return false, err
	}
	rn, _, err := toNumber(right)
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return ln < rn, nil
	case "<=":
		return ln <= rn, nil
	case ">":
		return ln > rn, nil
	case ">=":
		return ln >= rn, nil
	}
	return false, errors.Errorf("template: unknown comparison %q", op)
}

func membership(needle, haystack interface{}) (bool, error) {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, errors.New("template: 'in' left side must be a string when right side is a string")
		}
		return strings.Contains(h, s), nil
	case []interface{}:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case map[string]interface{}:
		_, ok := h[ToDisplayString(needle)]
		return ok, nil
	default:
		return false, errors.Errorf("template: cannot test membership in %T", haystack)
	}
}

// getAttr implements "{{ x.y }}", resolving y as a map key first (the
// common case for values data) and falling back to Undefined otherwise.
func getAttr(base interface{}, name string) interface{} {
	switch b := base.(type) {
	case Undefined:
		return b.Attr(name)
	case map[string]interface{}:
		if v, ok := b[name]; ok {
			return v
		}
		return NewUndefined("%q has no attribute %q", "object", name)
	case nil:
		return NewUndefined("cannot access %q on a null value", name)
	default:
		return NewUndefined("%T has no attribute %q", base, name)
	}
}

func getIndex(base, idx interface{}) interface{} {
	switch b := base.(type) {
	case Undefined:
		return b.Index(idx)
	case map[string]interface{}:
		if v, ok := b[ToDisplayString(idx)]; ok {
			return v
		}
		return NewUndefined("key %v not found", idx)
	case []interface{}:
		i, _, err := toNumber(idx)
		if err != nil || int(i) < 0 || int(i) >= len(b) {
			return NewUndefined("index %v out of range", idx)
		}
		return b[int(i)]
	case string:
		i, _, err := toNumber(idx)
		r := []rune(b)
		if err != nil || int(i) < 0 || int(i) >= len(r) {
			return NewUndefined("index %v out of range", idx)
		}
		return string(r[int(i)])
	case nil:
		return NewUndefined("cannot index a null value")
	default:
		return NewUndefined("%T is not indexable", base)
	}
}

// Truthy implements Jinja2-style truthiness for if/and/or/not.
func Truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case Undefined:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}

// ToDisplayString renders a value the way "{{ expr }}" stringifies it.
func ToDisplayString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case Undefined:
		return val.String()
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
