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

package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sherpack.sh/sherpack/pkg/chart"
	"sherpack.sh/sherpack/pkg/chartutil"
)

func boolPtr(b bool) *bool { return &b }

func pack(name, version string) *chart.Pack {
	return &chart.Pack{Metadata: &chart.Metadata{Name: name, Version: version, APIVersion: chart.APIVersion}}
}

func TestResolveSkipsStaticallyDisabled(t *testing.T) {
	redis := pack("redis", "1.0.0")
	root := pack("root", "1.0.0")
	root.Metadata.Dependencies = []*chart.Dependency{{Name: "redis", Version: "1.x", Enabled: boolPtr(false)}}
	root.Dependencies = []*chart.Pack{redis}

	g, err := Resolve(root, chartutil.Values{})
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)
	require.Len(t, g.Skipped, 1)
	assert.Equal(t, "statically disabled", g.Skipped[0].Reason)
}

func TestResolveNeverSkips(t *testing.T) {
	redis := pack("redis", "1.0.0")
	root := pack("root", "1.0.0")
	root.Metadata.Dependencies = []*chart.Dependency{{Name: "redis", Version: "1.x", Resolve: "never"}}
	root.Dependencies = []*chart.Pack{redis}

	g, err := Resolve(root, chartutil.Values{})
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)
}

func TestResolveConditionFalsySkips(t *testing.T) {
	redis := pack("redis", "1.0.0")
	root := pack("root", "1.0.0")
	root.Metadata.Dependencies = []*chart.Dependency{{Name: "redis", Version: "1.x", Condition: "redis.enabled"}}
	root.Dependencies = []*chart.Pack{redis}

	g, err := Resolve(root, chartutil.Values{"redis": chartutil.Values{"enabled": false}})
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)
}

func TestResolveIncludesAndOrdersDependencyBeforeDependent(t *testing.T) {
	leaf := pack("common", "2.0.0")
	mid := pack("redis", "1.0.0")
	mid.Metadata.Dependencies = []*chart.Dependency{{Name: "common", Version: "2.x"}}
	mid.Dependencies = []*chart.Pack{leaf}
	root := pack("root", "1.0.0")
	root.Metadata.Dependencies = []*chart.Dependency{{Name: "redis", Version: "1.x"}}
	root.Dependencies = []*chart.Pack{mid}

	g, err := Resolve(root, chartutil.Values{})
	require.NoError(t, err)
	require.Len(t, g.Order, 2)
	names := InstallOrderNames(g)
	assert.Equal(t, []string{"common", "redis"}, names)
}

func TestResolveDiamondCompatibleAddsRequirer(t *testing.T) {
	common := pack("common", "2.3.0")
	a := pack("a", "1.0.0")
	a.Metadata.Dependencies = []*chart.Dependency{{Name: "common", Version: "2.x"}}
	a.Dependencies = []*chart.Pack{common}
	b := pack("b", "1.0.0")
	b.Metadata.Dependencies = []*chart.Dependency{{Name: "common", Version: ">=2.0.0"}}
	b.Dependencies = []*chart.Pack{common}
	root := pack("root", "1.0.0")
	root.Metadata.Dependencies = []*chart.Dependency{{Name: "a"}, {Name: "b"}}
	root.Dependencies = []*chart.Pack{a, b}

	g, err := Resolve(root, chartutil.Values{})
	require.NoError(t, err)
	require.Contains(t, g.Nodes, "common")
	assert.Len(t, g.Nodes["common"].Requirements, 2)
}

func TestResolveDiamondConflictFails(t *testing.T) {
	common := pack("common", "1.5.0")
	a := pack("a", "1.0.0")
	a.Metadata.Dependencies = []*chart.Dependency{{Name: "common", Version: "1.x"}}
	a.Dependencies = []*chart.Pack{common}
	b := pack("b", "1.0.0")
	b.Metadata.Dependencies = []*chart.Dependency{{Name: "common", Version: "2.x"}}
	b.Dependencies = []*chart.Pack{common}
	root := pack("root", "1.0.0")
	root.Metadata.Dependencies = []*chart.Dependency{{Name: "a"}, {Name: "b"}}
	root.Dependencies = []*chart.Pack{a, b}

	_, err := Resolve(root, chartutil.Values{})
	require.Error(t, err)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "common", conflict.Name)
}

func TestResolveAliasUsesAliasAsEffectiveName(t *testing.T) {
	redis := pack("redis", "1.0.0")
	root := pack("root", "1.0.0")
	root.Metadata.Dependencies = []*chart.Dependency{{Name: "redis", Version: "1.x", Alias: "cache"}}
	root.Dependencies = []*chart.Pack{redis}

	g, err := Resolve(root, chartutil.Values{})
	require.NoError(t, err)
	assert.Contains(t, g.Nodes, "cache")
}

func TestDigestStableForSameMetadata(t *testing.T) {
	root := pack("root", "1.0.0")
	d1, err := Digest(root.Metadata)
	require.NoError(t, err)
	d2, err := Digest(root.Metadata)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestBuildLockAndStale(t *testing.T) {
	redis := pack("redis", "1.0.0")
	root := pack("root", "1.0.0")
	root.Metadata.Dependencies = []*chart.Dependency{{Name: "redis", Version: "1.x"}}
	root.Dependencies = []*chart.Pack{redis}

	g, err := Resolve(root, chartutil.Values{})
	require.NoError(t, err)

	lock, err := BuildLock(root, g)
	require.NoError(t, err)
	require.Len(t, lock.Dependencies, 1)

	stale, err := Stale(root, lock)
	require.NoError(t, err)
	assert.False(t, stale)

	root.Metadata.Version = "1.0.1"
	stale, err = Stale(root, lock)
	require.NoError(t, err)
	assert.True(t, stale)
}
