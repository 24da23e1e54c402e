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

package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sherpack.sh/sherpack/pkg/releaseutil"
)

func manifestWithAnnotations(name string, annotations map[string]string) releaseutil.Manifest {
	return releaseutil.Manifest{
		Name:    name,
		Content: "kind: Job\nmetadata:\n  name: " + name + "\n",
		Head: &releaseutil.SimpleHead{
			Kind:     "Job",
			Metadata: &releaseutil.SimpleMeta{Name: name, Annotations: annotations},
		},
	}
}

func TestFromManifestsSeparatesHooksFromResources(t *testing.T) {
	hookManifest := manifestWithAnnotations("migrate", map[string]string{
		"sherpack.io/hook": "pre-install,pre-upgrade",
	})
	plainManifest := manifestWithAnnotations("cfg", nil)

	found, resources := FromManifests([]releaseutil.Manifest{hookManifest, plainManifest})
	require.Len(t, found, 1)
	require.Len(t, resources, 1)
	assert.Equal(t, "migrate", found[0].Name)
	assert.True(t, found[0].HasPhase(PhasePreInstall))
	assert.True(t, found[0].HasPhase(PhasePreUpgrade))
	assert.False(t, found[0].HasPhase(PhasePostDelete))
}

func TestFromManifestsHonorsHelmCompatAnnotation(t *testing.T) {
	hookManifest := manifestWithAnnotations("legacy", map[string]string{
		"helm.sh/hook": "post-install",
	})
	found, _ := FromManifests([]releaseutil.Manifest{hookManifest})
	require.Len(t, found, 1)
	assert.True(t, found[0].HasPhase(PhasePostInstall))
}

func TestParseHookDefaultsToZeroWeightAndBeforeNextRunCleanup(t *testing.T) {
	m := manifestWithAnnotations("h", map[string]string{"sherpack.io/hook": "test"})
	found, _ := FromManifests([]releaseutil.Manifest{m})
	require.Len(t, found, 1)
	assert.Equal(t, 0, found[0].Weight)
	assert.Equal(t, CleanupBeforeNextRun, found[0].Cleanup.Kind)
}

func TestParseHookReadsWeightAndCleanupPolicy(t *testing.T) {
	m := manifestWithAnnotations("h", map[string]string{
		"sherpack.io/hook":          "post-install",
		"sherpack.io/hook-weight":   "-5",
		"sherpack.io/hook-delete-policy": "hook-succeeded",
	})
	found, _ := FromManifests([]releaseutil.Manifest{m})
	require.Len(t, found, 1)
	assert.Equal(t, -5, found[0].Weight)
	assert.Equal(t, CleanupOnSuccess, found[0].Cleanup.Kind)
}

func TestParseHookParsesAfterDelayAndKeepLast(t *testing.T) {
	delay := manifestWithAnnotations("d", map[string]string{
		"sherpack.io/hook":               "test",
		"sherpack.io/hook-delete-policy": "after-delay=30s",
	})
	keep := manifestWithAnnotations("k", map[string]string{
		"sherpack.io/hook":               "test",
		"sherpack.io/hook-delete-policy": "keep-last=3",
	})
	found, _ := FromManifests([]releaseutil.Manifest{delay, keep})
	require.Len(t, found, 2)
	byName := map[string]*Hook{}
	for _, h := range found {
		byName[h.Name] = h
	}
	assert.Equal(t, CleanupAfterDelay, byName["d"].Cleanup.Kind)
	assert.Equal(t, CleanupKeepLast, byName["k"].Cleanup.Kind)
	assert.Equal(t, 3, byName["k"].Cleanup.KeepLast)
}

func TestForPhaseOrdersByWeight(t *testing.T) {
	h1 := &Hook{Name: "first", Phases: []Phase{PhasePreInstall}, Weight: 5}
	h2 := &Hook{Name: "second", Phases: []Phase{PhasePreInstall}, Weight: -1}
	h3 := &Hook{Name: "third", Phases: []Phase{PhasePreInstall}, Weight: 0}
	h4 := &Hook{Name: "other-phase", Phases: []Phase{PhasePostInstall}, Weight: -10}

	ordered := ForPhase([]*Hook{h1, h2, h3, h4}, PhasePreInstall)
	require.Len(t, ordered, 3)
	assert.Equal(t, []string{"second", "third", "first"}, []string{ordered[0].Name, ordered[1].Name, ordered[2].Name})
}

func TestUniqueNameFormatsReleaseHookPhaseRevision(t *testing.T) {
	h := &Hook{Name: "migrate"}
	assert.Equal(t, "myrelease-migrate-pre-install-v3", UniqueName("myrelease", h, PhasePreInstall, 3))
}
