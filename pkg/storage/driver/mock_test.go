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

package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sherpack.sh/sherpack/pkg/release"
)

func TestMockCreateGetRoundTrip(t *testing.T) {
	m := NewMock()
	rel := testRelease()
	require.NoError(t, m.Create(context.Background(), rel))

	got, err := m.Get(context.Background(), "default", "my-release", 1)
	require.NoError(t, err)
	assert.Equal(t, rel.Manifest, got.Manifest)
}

func TestMockCreateDuplicateFails(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Create(context.Background(), testRelease()))
	err := m.Create(context.Background(), testRelease())
	assert.ErrorIs(t, err, ErrReleaseExists)
}

func TestMockGetMissingFails(t *testing.T) {
	m := NewMock()
	_, err := m.Get(context.Background(), "default", "nope", 1)
	assert.ErrorIs(t, err, ErrReleaseNotFound)
}

func TestMockGetLatestPicksHighestVersion(t *testing.T) {
	m := NewMock()
	for v := 1; v <= 3; v++ {
		r := testRelease()
		r.Version = v
		require.NoError(t, m.Create(context.Background(), r))
	}
	got, err := m.GetLatest(context.Background(), "default", "my-release")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
}

func TestMockHistoryIsVersionDescending(t *testing.T) {
	m := NewMock()
	for v := 1; v <= 3; v++ {
		r := testRelease()
		r.Version = v
		require.NoError(t, m.Create(context.Background(), r))
	}
	history, err := m.History(context.Background(), "default", "my-release")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{history[0].Version, history[1].Version, history[2].Version})
}

func TestMockListExcludesSupersededByDefault(t *testing.T) {
	m := NewMock()
	deployed := testRelease()
	require.NoError(t, m.Create(context.Background(), deployed))
	superseded := testRelease()
	superseded.Version = 0
	superseded.Info = &release.Info{Status: release.StatusSuperseded}
	require.NoError(t, m.Create(context.Background(), superseded))

	active, err := m.List(context.Background(), "default", "my-release", false)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := m.List(context.Background(), "default", "my-release", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMockUpdateDetectsConcurrentWrite(t *testing.T) {
	m := NewMock()
	rel := testRelease()
	require.NoError(t, m.Create(context.Background(), rel))

	stale := testRelease()
	stale.ResourceVersion = "not-the-current-one"
	err := m.Update(context.Background(), stale)
	assert.ErrorIs(t, err, ErrConcurrentWrite)

	rel.Manifest = "kind: Secret\n"
	require.NoError(t, m.Update(context.Background(), rel))
}

func TestMockDeleteAllRemovesEveryVersion(t *testing.T) {
	m := NewMock()
	for v := 1; v <= 2; v++ {
		r := testRelease()
		r.Version = v
		require.NoError(t, m.Create(context.Background(), r))
	}
	require.NoError(t, m.DeleteAll(context.Background(), "default", "my-release"))
	exists, err := m.Exists(context.Background(), "default", "my-release")
	require.NoError(t, err)
	assert.False(t, exists)
}
