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

func TestLoadDirWithSubchart(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "Pack.yaml"), "apiVersion: sherpack/v1\nname: parent\nversion: 1.0.0\n")
	writeFile(t, filepath.Join(root, "values.yaml"), "replicaCount: 1\n")
	writeFile(t, filepath.Join(root, "values.schema.json"), `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object"}`)
	writeFile(t, filepath.Join(root, "templates", "deployment.yaml"), "kind: Deployment\n")
	writeFile(t, filepath.Join(root, "templates", "_helpers.tpl"), "{{/* ignored ext */}}")
	writeFile(t, filepath.Join(root, "crds", "widgets.yaml"), "kind: CustomResourceDefinition\n")
	writeFile(t, filepath.Join(root, "README.md"), "hello")

	writeFile(t, filepath.Join(root, "charts", "redis", "Pack.yaml"), "apiVersion: sherpack/v1\nname: redis\nversion: 2.0.0\n")
	writeFile(t, filepath.Join(root, "charts", "redis", "values.yaml"), "auth:\n  enabled: true\n")
	writeFile(t, filepath.Join(root, "charts", "_ignored", "Pack.yaml"), "apiVersion: sherpack/v1\nname: ignored\nversion: 1.0.0\n")

	p, err := LoadDir(root)
	require.NoError(t, err)

	assert.Equal(t, "parent", p.Name())
	assert.Equal(t, 1, p.Values["replicaCount"])
	assert.Equal(t, "values.schema.json", p.SchemaName)

	require.Len(t, p.Templates, 1)
	assert.Equal(t, "deployment.yaml", p.Templates[0].Name)

	require.Len(t, p.CRDs, 1)
	assert.Equal(t, "widgets.yaml", p.CRDs[0].Name)

	require.Len(t, p.Files, 1)
	assert.Equal(t, "README.md", p.Files[0].Name)

	require.Len(t, p.Dependencies, 1)
	assert.Equal(t, "redis", p.Dependencies[0].Name())
	assert.False(t, p.Dependencies[0].IsRoot())
}

func TestLoadDirMissingPackYAML(t *testing.T) {
	root := t.TempDir()
	_, err := LoadDir(root)
	assert.Error(t, err)
}
