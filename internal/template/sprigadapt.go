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

	"github.com/pkg/errors"
)

// The sprigFilter* helpers adapt a handful of sprig.FuncMap() entries
// (untyped interface{} values holding concrete func signatures) into the
// Filter shape used by this package, so the template engine's pipe
// filters reuse sprig's string-manipulation implementations instead of
// reimplementing them.

func sprigFilter1(fn interface{}) Filter {
	f, ok := fn.(func(string) string)
	if !ok {
		return func(interface{}, []interface{}, map[string]interface{}) (interface{}, error) {
			return nil, errors.Errorf("template: sprig function has unexpected signature %T", fn)
		}
	}
	return func(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
		return f(ToDisplayString(input)), nil
	}
}

func sprigFilterErr1(fn interface{}) Filter {
	f, ok := fn.(func(string) (string, error))
	if !ok {
		return func(interface{}, []interface{}, map[string]interface{}) (interface{}, error) {
			return nil, errors.Errorf("template: sprig function has unexpected signature %T", fn)
		}
	}
	return func(input interface{}, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
		return f(ToDisplayString(input))
	}
}

func sprigFilterIntString(fn interface{}) Filter {
	f, ok := fn.(func(int, string) string)
	if !ok {
		return func(interface{}, []interface{}, map[string]interface{}) (interface{}, error) {
			return nil, errors.Errorf("template: sprig function has unexpected signature %T", fn)
		}
	}
	return func(input interface{}, args []interface{}, _ map[string]interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, errors.New("trunc: requires one integer argument")
		}
		n, _, err := toNumber(args[0])
		if err != nil {
			return nil, fmt.Errorf("trunc: %w", err)
		}
		return f(int(n), ToDisplayString(input)), nil
	}
}
