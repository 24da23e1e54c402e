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

// Package gates implements simple environment-variable-backed feature
// flags for functionality that is not yet on by default.
package gates

import (
	"fmt"
	"os"
)

// Gate is the name of an environment variable that toggles an
// experimental feature on when set to any value, including empty.
type Gate string

// IsEnabled reports whether the gate's environment variable is set.
func (g Gate) IsEnabled() bool {
	_, ok := os.LookupEnv(string(g))
	return ok
}

// Error returns a standard message describing how to enable the gate.
func (g Gate) Error() error {
	return fmt.Errorf("this feature has been marked as experimental and is not enabled by default. Please set %s=1 in your environment to use this feature", g)
}

// String returns the gate's environment variable name.
func (g Gate) String() string {
	return string(g)
}
