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

// Package chartutil supports working with Pack.yaml, values.yaml, and the
// recursive Values tree Sherpack renders templates against.
package chartutil

import (
	"strings"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// Values is the recursive, string-keyed tree that backs every rendering
// context: null, bool, integer, float, string, sequence, or nested Values.
type Values map[string]interface{}

// YAML encodes the Values back to a YAML string.
func (v Values) YAML() (string, error) {
	b, err := yaml.Marshal(v)
	return string(b), err
}

// ErrNoTable indicates that a dotted path does not resolve to a table.
var ErrNoTable = errors.New("value at path is not a table")

// Table returns the nested Values at a dotted path ("a.b.c").
func (v Values) Table(name string) (Values, error) {
	names := strings.Split(name, ".")
	table := v
	for _, n := range names {
		next, err := tableLookup(table, n)
		if err != nil {
			return nil, err
		}
		table = next
	}
	return table, nil
}

func tableLookup(v Values, key string) (Values, error) {
	raw, ok := v[key]
	if !ok {
		return nil, ErrNoTable
	}
	switch t := raw.(type) {
	case Values:
		return t, nil
	case map[string]interface{}:
		return Values(t), nil
	default:
		return nil, ErrNoTable
	}
}

// PathValue returns the raw value at a dotted path. The second return value
// is false when the path does not resolve (missing path is "falsy", not an
// error).
func (v Values) PathValue(path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur interface{} = map[string]interface{}(v)
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case Values:
		return map[string]interface{}(t), true
	case map[string]interface{}:
		return t, true
	default:
		return nil, false
	}
}

// IsTruthy implements the condition-truthiness rules: booleans direct; null
// is false; numbers are true unless exactly zero; strings are true unless
// empty, "false", or "0"; arrays/objects are true unless empty; a missing
// path (ok == false) is false.
func IsTruthy(value interface{}, ok bool) bool {
	if !ok || value == nil {
		return false
	}
	switch t := value.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	case Values:
		return len(t) > 0
	default:
		return true
	}
}

// ReadValues parses YAML bytes into a Values tree.
func ReadValues(data []byte) (Values, error) {
	out := Values{}
	if len(data) == 0 {
		return out, nil
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "failed to parse values")
	}
	if out == nil {
		out = Values{}
	}
	return out, nil
}

// Merge deep-merges overlay on top of base: overlay's scalars and maps win,
// and overlay's sequences replace (never concatenate) base's. Neither input
// is mutated; the result is a new tree.
func Merge(base, overlay Values) Values {
	return mergeMaps(toGeneric(base), toGeneric(overlay))
}

func toGeneric(v Values) map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}(v)
}

func mergeMaps(base, overlay map[string]interface{}) Values {
	out := make(map[string]interface{}, len(base))
	for k, v := range base {
		out[k] = deepCopyValue(v)
	}
	for k, ov := range overlay {
		if bv, ok := out[k]; ok {
			bm, bIsMap := asMap(bv)
			om, oIsMap := asMap(ov)
			if bIsMap && oIsMap {
				out[k] = mergeMaps(bm, om)
				continue
			}
		}
		out[k] = deepCopyValue(ov)
	}
	return Values(out)
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		cp := make(map[string]interface{}, len(t))
		for k, val := range t {
			cp[k] = deepCopyValue(val)
		}
		return cp
	case Values:
		cp := make(map[string]interface{}, len(t))
		for k, val := range t {
			cp[k] = deepCopyValue(val)
		}
		return Values(cp)
	case []interface{}:
		cp := make([]interface{}, len(t))
		for i, val := range t {
			cp[i] = deepCopyValue(val)
		}
		return cp
	default:
		return t
	}
}
