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

package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestProvider(t *testing.T) (*Provider, string) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "templates", "deployment.yaml"), "kind: Deployment\n")
	writeFile(t, filepath.Join(root, "templates", "service.yaml"), "kind: Service\n")
	writeFile(t, filepath.Join(root, "values.yaml"), "a: 1\nb: 2\n")
	p, err := New(root)
	require.NoError(t, err)
	return p, root
}

func TestGetAndExists(t *testing.T) {
	p, _ := newTestProvider(t)

	data, err := p.Get("values.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a: 1\nb: 2\n", string(data))

	assert.True(t, p.Exists("values.yaml"))
	assert.False(t, p.Exists("nope.yaml"))
}

func TestRejectsAbsolutePath(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.Get("/etc/passwd")
	assert.ErrorIs(t, err, ErrAbsolutePath)
}

func TestRejectsEscapingPath(t *testing.T) {
	p, root := newTestProvider(t)
	outside := filepath.Join(filepath.Dir(root), "outside.txt")
	writeFile(t, outside, "secret")

	_, err := p.Get("../outside.txt")
	require.Error(t, err)
	assert.False(t, p.Exists("../outside.txt"))
}

func TestGetStringRejectsInvalidUTF8(t *testing.T) {
	p, root := newTestProvider(t)
	writeFile(t, filepath.Join(root, "binary.dat"), "")
	require.NoError(t, os.WriteFile(filepath.Join(root, "binary.dat"), []byte{0xff, 0xfe, 0xfd}, 0644))

	_, err := p.GetString("binary.dat")
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestLines(t *testing.T) {
	p, root := newTestProvider(t)
	writeFile(t, filepath.Join(root, "list.txt"), "one\ntwo\nthree\n")
	lines, err := p.Lines("list.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, lines)

	writeFile(t, filepath.Join(root, "empty.txt"), "")
	lines, err = p.Lines("empty.txt")
	require.NoError(t, err)
	assert.Nil(t, lines)
	_ = root
}

func TestGlobSortedAndFiltered(t *testing.T) {
	p, _ := newTestProvider(t)
	entries, err := p.Glob("templates/*.yaml")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "templates/deployment.yaml", entries[0].Path)
	assert.Equal(t, "templates/service.yaml", entries[1].Path)
}

func TestCacheCoalescesReads(t *testing.T) {
	p, root := newTestProvider(t)
	first, err := p.Get("values.yaml")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "values.yaml"), []byte("changed"), 0644))

	second, err := p.Get("values.yaml")
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeat read within the same provider should be served from cache")
}
