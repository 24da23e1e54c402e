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
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	sprig "github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// DefaultFilterMap returns the pipe filters available to every render.
// Filters that overlap a sprig function by name and signature (trunc,
// snakecase, kebabcase, b64enc/b64dec) are wired through to
// sprig.FuncMap() via type-asserting adapters rather than reimplemented.
func DefaultFilterMap() FilterMap {
	sf := sprig.FuncMap()
	return FilterMap{
		"toyaml":       filterToYAML,
		"tojson":       filterToJSON(""),
		"tojson_pretty": filterToJSON("  "),
		"b64encode":    sprigFilter1(sf["b64enc"]),
		"b64decode":    sprigFilterErr1(sf["b64dec"]),
		"quote":        filterQuote,
		"squote":       filterSquote,
		"nindent":      filterNindent,
		"indent":       filterIndent,
		"required":     filterRequired,
		"empty":        filterEmpty,
		"haskey":       filterHasKey,
		"keys":         filterKeys,
		"merge":        filterMerge,
		"sha256":       filterSHA256,
		"trunc":        sprigFilterIntString(sf["trunc"]),
		"trimprefix":   filterTrimPrefix,
		"trimsuffix":   filterTrimSuffix,
		"snakecase":    sprigFilter1(sf["snakecase"]),
		"kebabcase":    sprigFilter1(sf["kebabcase"]),
		"tostrings":    filterToStrings,
		"semver_match": filterSemverMatch,
		"int":          filterInt,
		"float":        filterFloat,
	}
}

func filterToYAML(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
	out, err := yaml.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(err, "toyaml")
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

func filterToJSON(indent string) Filter {
	return func(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
		var out []byte
		var err error
		if indent == "" {
			out, err = json.Marshal(input)
		} else {
			out, err = json.MarshalIndent(input, "", indent)
		}
		if err != nil {
			return nil, errors.Wrap(err, "tojson")
		}
		return string(out), nil
	}
}

func filterQuote(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
	return strconvQuote(ToDisplayString(input), '"'), nil
}

func filterSquote(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
	return strconvQuote(ToDisplayString(input), '\''), nil
}

func strconvQuote(s string, quote byte) string {
	var b strings.Builder
	b.WriteByte(quote)
	for _, r := range s {
		if byte(r) == quote || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte(quote)
	return b.String()
}

func filterNindent(input interface{}, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, errors.New("nindent: requires one integer argument")
	}
	n, _, err := toNumber(args[0])
	if err != nil {
		return nil, errors.Wrap(err, "nindent")
	}
	indented, err := indentLines(ToDisplayString(input), int(n))
	if err != nil {
		return nil, err
	}
	return "\n" + indented, nil
}

func filterIndent(input interface{}, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, errors.New("indent: requires one integer argument")
	}
	n, _, err := toNumber(args[0])
	if err != nil {
		return nil, errors.Wrap(err, "indent")
	}
	return indentLines(ToDisplayString(input), int(n))
}

func indentLines(s string, n int) (string, error) {
	if n < 0 {
		return "", errors.New("indent: negative width")
	}
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Join(lines, "\n"), nil
}

func filterRequired(input interface{}, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if IsUndefined(input) || input == nil || input == "" {
		msg := "value is required"
		if len(args) == 1 {
			msg = ToDisplayString(args[0])
		} else if u, ok := input.(Undefined); ok && u.Reason != "" {
			msg += ": " + u.Reason
		}
		return nil, errors.New(msg)
	}
	return input, nil
}

func filterEmpty(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
	return !Truthy(input), nil
}

func filterHasKey(input interface{}, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, errors.New("haskey: requires one key argument")
	}
	m, ok := input.(map[string]interface{})
	if !ok {
		return false, nil
	}
	_, ok = m[ToDisplayString(args[0])]
	return ok, nil
}

func filterKeys(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
	m, ok := input.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("keys: expected a mapping, got %T", input)
	}
	out := make([]interface{}, 0, len(m))
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, n := range names {
		out = append(out, n)
	}
	return out, nil
}

func filterMerge(input interface{}, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	base, ok := input.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("merge: expected a mapping, got %T", input)
	}
	result := deepCopyMap(base)
	for _, a := range args {
		overlay, ok := a.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("merge: expected a mapping argument, got %T", a)
		}
		deepMergeInto(result, overlay)
	}
	return result, nil
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = deepCopyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func deepMergeInto(dst, src map[string]interface{}) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]interface{}); ok {
			if dstMap, ok := dst[k].(map[string]interface{}); ok {
				deepMergeInto(dstMap, srcMap)
				continue
			}
			dst[k] = deepCopyMap(srcMap)
			continue
		}
		dst[k] = v
	}
}

func filterSHA256(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
	sum := sha256.Sum256([]byte(ToDisplayString(input)))
	return fmt.Sprintf("%x", sum), nil
}

func filterTrimPrefix(input interface{}, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, errors.New("trimprefix: requires one argument")
	}
	return strings.TrimPrefix(ToDisplayString(input), ToDisplayString(args[0])), nil
}

func filterTrimSuffix(input interface{}, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, errors.New("trimsuffix: requires one argument")
	}
	return strings.TrimSuffix(ToDisplayString(input), ToDisplayString(args[0])), nil
}

func filterToStrings(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
	list, ok := input.([]interface{})
	if !ok {
		return nil, errors.Errorf("tostrings: expected a list, got %T", input)
	}
	out := make([]interface{}, len(list))
	for i, v := range list {
		out[i] = ToDisplayString(v)
	}
	return out, nil
}

func filterSemverMatch(input interface{}, args []interface{}, _ map[string]interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, errors.New("semver_match: requires one constraint argument")
	}
	constraint, err := semver.NewConstraint(ToDisplayString(args[0]))
	if err != nil {
		return nil, errors.Wrap(err, "semver_match")
	}
	v, err := semver.NewVersion(ToDisplayString(input))
	if err != nil {
		return nil, errors.Wrap(err, "semver_match")
	}
	return constraint.Check(v), nil
}

func filterInt(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
	n, _, err := toNumber(input)
	if err != nil {
		return nil, errors.Wrap(err, "int")
	}
	return int64(n), nil
}

func filterFloat(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
	n, _, err := toNumber(input)
	if err != nil {
		return nil, errors.Wrap(err, "float")
	}
	return n, nil
}
