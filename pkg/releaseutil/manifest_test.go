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

package releaseutil

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitManifestsDropsEmptyAndCommentOnly(t *testing.T) {
	doc := "---\n# just a comment\n---\nkind: ConfigMap\n---\n\n---\nkind: Secret\n"
	out := SplitManifests(doc)
	require.Len(t, out, 2)
}

func TestSplitManifestsOrderRestoresSequence(t *testing.T) {
	doc := "kind: A\n---\nkind: B\n---\nkind: C\n"
	out := SplitManifests(doc)
	var keys []string
	for k := range out {
		keys = append(keys, k)
	}
	sort.Sort(BySplitManifestsOrder(keys))
	require.Len(t, keys, 3)
	assert.Contains(t, out[keys[0]], "kind: A")
	assert.Contains(t, out[keys[1]], "kind: B")
	assert.Contains(t, out[keys[2]], "kind: C")
}

func TestSortedManifestKeysIsDeterministic(t *testing.T) {
	files := map[string]string{"b.yaml": "", "a.yaml": "", "c.yaml": ""}
	assert.Equal(t, []string{"a.yaml", "b.yaml", "c.yaml"}, SortedManifestKeys(files))
}
