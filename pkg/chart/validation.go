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

package chart

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError describes a structural problem with Pack.yaml or its
// dependencies, found before any rendering is attempted.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// ValidationErrorf builds a ValidationError with fmt.Sprintf semantics.
func ValidationErrorf(format string, args ...interface{}) error {
	return ValidationError(fmt.Sprintf(format, args...))
}

// aliasNameFormat matches the characters allowed in a dependency alias:
// ASCII letters, digits, '_' and '-'.
var aliasNameFormat = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// sanitizeString strips leading/trailing whitespace and embedded NUL bytes
// from untrusted Pack.yaml string fields.
func sanitizeString(str string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, strings.TrimSpace(str))
}
