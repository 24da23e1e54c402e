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

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sherpack.sh/sherpack/pkg/chart"
)

// packWithTemplates builds a Pack whose Templates field looks like what
// chart.LoadDir would have produced: names relative to templates/, no
// "templates/" prefix.
func packWithTemplates(files map[string]string) *chart.Pack {
	p := &chart.Pack{Metadata: &chart.Metadata{Name: "test", Version: "1.0.0"}}
	for name, content := range files {
		p.Templates = append(p.Templates, &chart.File{Name: name, Data: []byte(content)})
	}
	return p
}

func TestRenderDeploymentAndService(t *testing.T) {
	pack := packWithTemplates(map[string]string{
		"deployment.yaml": "kind: Deployment\nname: {{ values.name }}\n",
		"service.yaml":    "kind: Service\nname: {{ values.name }}\n",
	})
	ctx := map[string]interface{}{"values": map[string]interface{}{"name": "redis"}}

	result, err := New().Render(pack, ctx)
	require.NoError(t, err)
	require.Len(t, result.Templates, 2)
	assert.Equal(t, []string{"deployment.yaml", "service.yaml"}, result.Report.SuccessfulTemplates)
	assert.Contains(t, result.Templates[0].Text, "kind: Deployment")
}

func TestRenderSkipsHelperFiles(t *testing.T) {
	pack := packWithTemplates(map[string]string{
		"_helpers.yaml": "{% set x = 1 %}",
		"pod.yaml":      "ok: {{ values.ok }}\n",
	})
	ctx := map[string]interface{}{"values": map[string]interface{}{"ok": true}}

	result, err := New().Render(pack, ctx)
	require.NoError(t, err)
	require.Len(t, result.Templates, 1)
	assert.Equal(t, "pod.yaml", result.Templates[0].Name)
}

func TestRenderDropsEmptyOutput(t *testing.T) {
	pack := packWithTemplates(map[string]string{
		"conditional.yaml": "{% if values.enabled %}kind: Foo{% endif %}",
	})
	ctx := map[string]interface{}{"values": map[string]interface{}{"enabled": false}}

	result, err := New().Render(pack, ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Templates)
	assert.Contains(t, result.Report.SuccessfulTemplates, "conditional.yaml")
}

func TestRenderExtractsNotes(t *testing.T) {
	pack := packWithTemplates(map[string]string{
		"NOTES.txt": "Thanks for installing {{ values.name }}.",
		"pod.yaml":  "kind: Pod\n",
	})
	ctx := map[string]interface{}{"values": map[string]interface{}{"name": "redis"}}

	result, err := New().Render(pack, ctx)
	require.NoError(t, err)
	assert.Equal(t, "Thanks for installing redis.", result.Notes)
	require.Len(t, result.Templates, 1)
	assert.Equal(t, "pod.yaml", result.Templates[0].Name)
}

func TestRenderOneTemplateFailureDoesNotBlockOthers(t *testing.T) {
	pack := packWithTemplates(map[string]string{
		"bad.yaml":  "{{ values.missing | required(\"boom\") }}",
		"good.yaml": "kind: Pod\n",
	})
	ctx := map[string]interface{}{"values": map[string]interface{}{}}

	result, err := New().Render(pack, ctx)
	require.Error(t, err)
	require.Len(t, result.Templates, 1)
	assert.Equal(t, "good.yaml", result.Templates[0].Name)
	assert.Contains(t, result.Report.ErrorsByTemplate["bad.yaml"], "boom")
}

func TestRenderParseErrorIsCollectedNotFatal(t *testing.T) {
	pack := packWithTemplates(map[string]string{
		"broken.yaml": "{% if %}",
		"good.yaml":   "kind: Pod\n",
	})
	ctx := map[string]interface{}{"values": map[string]interface{}{}}

	result, err := New().Render(pack, ctx)
	require.Error(t, err)
	assert.Contains(t, result.Report.ErrorsByTemplate, "broken.yaml")
	require.Len(t, result.Templates, 1)
}
