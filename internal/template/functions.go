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
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// LookupFunc resolves the "lookup" template function against a live
// cluster. Renders that run outside a cluster context (dry-run, tests,
// lint) pass a nil LookupFunc; lookup then always returns an empty
// result instead of failing the render.
type LookupFunc func(apiVersion, kind, namespace, name string) (map[string]interface{}, error)

// DefaultFuncMap returns the functions available to every render. lookup
// may be nil.
func DefaultFuncMap(lookup LookupFunc) FuncMap {
	return FuncMap{
		"fail":     funcFail,
		"dict":     funcDict,
		"list":     funcList,
		"get":      funcGet,
		"coalesce": funcCoalesce,
		"ternary":  funcTernary,
		"uuidv4":   funcUUIDV4,
		"tostring": funcToString,
		"toint":    funcToInt,
		"tofloat":  funcToFloat,
		"now":      funcNow,
		"printf":   funcPrintf,
		"tpl":      funcTpl,
		"tpl_ctx":  funcTplCtx,
		"lookup":   funcLookup(lookup),
	}
}

func funcFail(args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, errors.New("fail")
	}
	return nil, errors.New(ToDisplayString(args[0]))
}

func funcDict(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	out := map[string]interface{}{}
	if len(args)%2 != 0 {
		return nil, errors.New("dict: requires an even number of positional key/value arguments")
	}
	for i := 0; i < len(args); i += 2 {
		out[ToDisplayString(args[i])] = args[i+1]
	}
	for k, v := range kwargs {
		out[k] = v
	}
	return out, nil
}

func funcList(args []interface{}, _ map[string]interface{}) (interface{}, error) {
	out := make([]interface{}, len(args))
	copy(out, args)
	return out, nil
}

func funcGet(args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, errors.New("get: requires a mapping and a key")
	}
	m, ok := args[0].(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("get: expected a mapping, got %T", args[0])
	}
	v, ok := m[ToDisplayString(args[1])]
	if !ok {
		if len(args) >= 3 {
			return args[2], nil
		}
		return NewUndefined("key %v not found", args[1]), nil
	}
	return v, nil
}

func funcCoalesce(args []interface{}, _ map[string]interface{}) (interface{}, error) {
	for _, a := range args {
		if Truthy(a) {
			return a, nil
		}
	}
	if len(args) > 0 {
		return args[len(args)-1], nil
	}
	return nil, nil
}

func funcTernary(args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) != 3 {
		return nil, errors.New("ternary: requires exactly 3 arguments (trueValue, falseValue, condition)")
	}
	if Truthy(args[2]) {
		return args[0], nil
	}
	return args[1], nil
}

func funcUUIDV4(_ []interface{}, _ map[string]interface{}) (interface{}, error) {
	return uuid.New().String(), nil
}

func funcToString(args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, errors.New("tostring: requires exactly 1 argument")
	}
	return ToDisplayString(args[0]), nil
}

func funcToInt(args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, errors.New("toint: requires exactly 1 argument")
	}
	n, _, err := toNumber(args[0])
	if err != nil {
		return nil, errors.Wrap(err, "toint")
	}
	return int64(n), nil
}

func funcToFloat(args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, errors.New("tofloat: requires exactly 1 argument")
	}
	n, _, err := toNumber(args[0])
	if err != nil {
		return nil, errors.Wrap(err, "tofloat")
	}
	return n, nil
}

// funcNow returns the current time in RFC3339 form. Renders that require
// reproducible output should avoid calling it, same as Helm's .Release.Time.
func funcNow(_ []interface{}, _ map[string]interface{}) (interface{}, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func funcPrintf(args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, errors.New("printf: requires a format string")
	}
	format, ok := args[0].(string)
	if !ok {
		return nil, errors.New("printf: format must be a string")
	}
	rest := make([]interface{}, len(args)-1)
	copy(rest, args[1:])
	return fmt.Sprintf(format, rest...), nil
}

// funcTpl renders a template string against the supplied context map,
// using the default filter/function set; lookup inside the nested render
// always returns an empty result.
func funcTpl(args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) < 1 {
		return nil, errors.New("tpl: requires a template string")
	}
	src, ok := args[0].(string)
	if !ok {
		return nil, errors.New("tpl: first argument must be a string")
	}
	var ctx map[string]interface{}
	if len(args) >= 2 {
		ctx, _ = args[1].(map[string]interface{})
	}
	return renderSubtemplate(src, ctx)
}

// funcTplCtx is like tpl but merges an additional overlay map over the
// base context before rendering, so a caller can inject one or two
// extra values without building a whole new context map.
func funcTplCtx(args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, errors.New("tpl_ctx: requires a template string and a base context")
	}
	src, ok := args[0].(string)
	if !ok {
		return nil, errors.New("tpl_ctx: first argument must be a string")
	}
	base, _ := args[1].(map[string]interface{})
	ctx := deepCopyMap(base)
	if len(args) >= 3 {
		overlay, ok := args[2].(map[string]interface{})
		if !ok {
			return nil, errors.New("tpl_ctx: third argument must be a mapping")
		}
		deepMergeInto(ctx, overlay)
	}
	return renderSubtemplate(src, ctx)
}

func renderSubtemplate(src string, ctx map[string]interface{}) (string, error) {
	nodes, err := Parse(src)
	if err != nil {
		return "", errors.Wrap(err, "tpl")
	}
	env := NewEnv(ctx, DefaultFuncMap(nil), DefaultFilterMap())
	return Render(nodes, env)
}

func funcLookup(lookup LookupFunc) Func {
	return func(args []interface{}, _ map[string]interface{}) (interface{}, error) {
		if lookup == nil {
			return map[string]interface{}{}, nil
		}
		if len(args) != 4 {
			return nil, errors.New("lookup: requires apiVersion, kind, namespace, name")
		}
		return lookup(ToDisplayString(args[0]), ToDisplayString(args[1]), ToDisplayString(args[2]), ToDisplayString(args[3]))
	}
}
