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

package chartutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sherpack.sh/sherpack/pkg/chart"
)

func boolPtr(b bool) *bool { return &b }

func redisSubchart(name string) *chart.Pack {
	p := &chart.Pack{
		Metadata: &chart.Metadata{Name: name, Version: "1.0.0"},
		Values:   map[string]interface{}{"port": int64(6379)},
	}
	p.Templates = []*chart.File{{Name: "deployment.yaml", Data: []byte("kind: Deployment\nport: {{ values.port }}\n")}}
	return p
}

func TestResolveSubchartsNoEntryEnabled(t *testing.T) {
	parent := &chart.Pack{Metadata: &chart.Metadata{Name: "parent", Version: "1.0.0"}}
	parent.Dependencies = []*chart.Pack{redisSubchart("redis")}

	subs, err := ResolveSubcharts(parent, Values{})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Enabled)
	assert.Equal(t, "redis", subs[0].Name)
}

func TestResolveSubchartsStaticallyDisabled(t *testing.T) {
	parent := &chart.Pack{Metadata: &chart.Metadata{
		Name: "parent", Version: "1.0.0",
		Dependencies: []*chart.Dependency{{Name: "redis", Enabled: boolPtr(false)}},
	}}
	parent.Dependencies = []*chart.Pack{redisSubchart("redis")}

	subs, err := ResolveSubcharts(parent, Values{})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.False(t, subs[0].Enabled)
	assert.Equal(t, "statically disabled", subs[0].DisabledReason)
}

func TestResolveSubchartsCondition(t *testing.T) {
	parent := &chart.Pack{Metadata: &chart.Metadata{
		Name: "parent", Version: "1.0.0",
		Dependencies: []*chart.Dependency{{Name: "redis", Condition: "redis.enabled"}},
	}}
	parent.Dependencies = []*chart.Pack{redisSubchart("redis")}

	subs, err := ResolveSubcharts(parent, Values{"redis": Values{"enabled": false}})
	require.NoError(t, err)
	assert.False(t, subs[0].Enabled)
	assert.Contains(t, subs[0].DisabledReason, "redis.enabled")

	subs, err = ResolveSubcharts(parent, Values{"redis": Values{"enabled": true}})
	require.NoError(t, err)
	assert.True(t, subs[0].Enabled)
}

func TestSubchartValuesScoping(t *testing.T) {
	sub := redisSubchart("redis")
	parentValues := Values{
		"global": Values{"imageRegistry": "example.com"},
		"redis":  Values{"port": int64(7000)},
	}

	child, err := SubchartValues(sub, "redis", parentValues)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), child["port"])
	global, ok := child["global"].(Values)
	require.True(t, ok)
	assert.Equal(t, "example.com", global["imageRegistry"])
}

func TestRenderPackWithEnabledSubchart(t *testing.T) {
	parent := &chart.Pack{Metadata: &chart.Metadata{Name: "parent", Version: "1.0.0"}}
	parent.Templates = []*chart.File{{Name: "configmap.yaml", Data: []byte("kind: ConfigMap\n")}}
	parent.Dependencies = []*chart.Pack{redisSubchart("redis")}

	result, err := RenderPack(parent, Values{"redis": Values{"port": int64(7000)}}, nil, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, result.Templates, "configmap.yaml")
	assert.Contains(t, result.Templates, "redis/deployment.yaml")
	assert.Contains(t, result.Templates["redis/deployment.yaml"], "port: 7000")
}

func TestRenderPackSkipsDisabledSubchart(t *testing.T) {
	parent := &chart.Pack{Metadata: &chart.Metadata{
		Name: "parent", Version: "1.0.0",
		Dependencies: []*chart.Dependency{{Name: "redis", Enabled: boolPtr(false)}},
	}}
	parent.Dependencies = []*chart.Pack{redisSubchart("redis")}

	result, err := RenderPack(parent, Values{}, nil, RenderOptions{})
	require.NoError(t, err)
	for name := range result.Templates {
		assert.NotContains(t, name, "redis/")
	}
	require.Len(t, result.Subcharts, 1)
	assert.False(t, result.Subcharts[0].Enabled)
}
