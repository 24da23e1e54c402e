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

import "fmt"

// Undefined is returned instead of an error whenever the chainable-undefined
// mode (the default, Helm-compatible mode) encounters a missing name,
// attribute, or index. It is legal on the left of further attribute/index
// access (yielding another Undefined), renders as the empty string, and is
// falsy.
type Undefined struct {
	// Reason is a short, human-readable description of why this value is
	// undefined, surfaced only by the "required" filter/function.
	Reason string
}

// NewUndefined builds an Undefined with the given reason.
func NewUndefined(reason string, args ...interface{}) Undefined {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return Undefined{Reason: reason}
}

func (u Undefined) String() string { return "" }

// Attr implements chained attribute access: undefined.anything is still
// undefined.
func (u Undefined) Attr(name string) interface{} {
	return NewUndefined("%s (via .%s)", u.Reason, name)
}

// Index implements chained index access: undefined[anything] is undefined.
func (u Undefined) Index(_ interface{}) interface{} {
	return NewUndefined(u.Reason)
}

// IsUndefined reports whether v is (or chains from) an Undefined value.
func IsUndefined(v interface{}) bool {
	_, ok := v.(Undefined)
	return ok
}
