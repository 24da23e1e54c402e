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

package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sherpack.sh/sherpack/pkg/chart"
	"sherpack.sh/sherpack/pkg/chartutil"
	"sherpack.sh/sherpack/pkg/release"
)

func upgradedPack(name string) *chart.Pack {
	return &chart.Pack{
		Metadata: &chart.Metadata{APIVersion: chart.APIVersion, Name: name, Version: "2.0.0", Type: chart.KindApplication},
		Templates: []*chart.File{
			{Name: "templates/configmap.yaml", Data: []byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: cfg\ndata:\n  foo: baz\n")},
		},
	}
}

func TestUpgradeCreatesNewRevisionAndSupersedesPrevious(t *testing.T) {
	cfg := testConfiguration()
	ctx := context.Background()

	_, err := NewInstall(cfg).Run(ctx, "myrelease", simplePack("myapp"), chartutil.Values{}, InstallOptions{})
	require.NoError(t, err)

	rel, err := NewUpgrade(cfg).Run(ctx, "myrelease", upgradedPack("myapp"), chartutil.Values{}, UpgradeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, rel.Version)
	assert.Equal(t, release.StatusDeployed, rel.Info.Status)

	history, err := cfg.Storage.History(ctx, "myns", "myrelease")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, release.StatusDeployed, history[0].Info.Status)
	assert.Equal(t, release.StatusSuperseded, history[1].Info.Status)
}

func TestUpgradeWithInstallFlagDelegatesToInstallWhenMissing(t *testing.T) {
	cfg := testConfiguration()
	ctx := context.Background()

	rel, err := NewUpgrade(cfg).Run(ctx, "myrelease", simplePack("myapp"), chartutil.Values{}, UpgradeOptions{Install: true})
	require.NoError(t, err)
	assert.Equal(t, 1, rel.Version)
	assert.Equal(t, release.StatusDeployed, rel.Info.Status)
}

func TestUpgradeRejectsWhenPendingOperationInFlight(t *testing.T) {
	cfg := testConfiguration()
	ctx := context.Background()

	_, err := NewInstall(cfg).Run(ctx, "myrelease", simplePack("myapp"), chartutil.Values{}, InstallOptions{DryRun: false})
	require.NoError(t, err)

	pending, err := cfg.Storage.GetLatest(ctx, "myns", "myrelease")
	require.NoError(t, err)
	pending.Info.Status = release.StatusPendingUpgrade
	require.NoError(t, cfg.Storage.Update(ctx, pending))

	_, err = NewUpgrade(cfg).Run(ctx, "myrelease", upgradedPack("myapp"), chartutil.Values{}, UpgradeOptions{})
	assert.ErrorIs(t, err, ErrPendingOperationInFlight)
}

func TestRollbackReturnsToPreviousRevision(t *testing.T) {
	cfg := testConfiguration()
	ctx := context.Background()

	_, err := NewInstall(cfg).Run(ctx, "myrelease", simplePack("myapp"), chartutil.Values{}, InstallOptions{})
	require.NoError(t, err)
	_, err = NewUpgrade(cfg).Run(ctx, "myrelease", upgradedPack("myapp"), chartutil.Values{}, UpgradeOptions{})
	require.NoError(t, err)

	rel, err := NewRollback(cfg).Run(ctx, "myrelease", 0, RollbackOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, rel.Version)
	assert.Equal(t, release.StatusDeployed, rel.Info.Status)
	assert.Contains(t, rel.Manifest, "foo: bar")
}

func TestUninstallMarksReleaseUninstalledAndDeletesHistory(t *testing.T) {
	cfg := testConfiguration()
	ctx := context.Background()

	_, err := NewInstall(cfg).Run(ctx, "myrelease", simplePack("myapp"), chartutil.Values{}, InstallOptions{})
	require.NoError(t, err)

	rel, err := NewUninstall(cfg).Run(ctx, "myrelease", UninstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, release.StatusUninstalled, rel.Info.Status)

	exists, err := cfg.Storage.Exists(ctx, "myns", "myrelease")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUninstallKeepsHistoryWhenRequested(t *testing.T) {
	cfg := testConfiguration()
	ctx := context.Background()

	_, err := NewInstall(cfg).Run(ctx, "myrelease", simplePack("myapp"), chartutil.Values{}, InstallOptions{})
	require.NoError(t, err)

	_, err = NewUninstall(cfg).Run(ctx, "myrelease", UninstallOptions{KeepHistory: true})
	require.NoError(t, err)

	exists, err := cfg.Storage.Exists(ctx, "myns", "myrelease")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRecoverClearsStuckPendingRecord(t *testing.T) {
	cfg := testConfiguration()
	ctx := context.Background()

	_, err := NewInstall(cfg).Run(ctx, "myrelease", simplePack("myapp"), chartutil.Values{}, InstallOptions{})
	require.NoError(t, err)

	pending, err := cfg.Storage.GetLatest(ctx, "myns", "myrelease")
	require.NoError(t, err)
	pending.Info.Status = release.StatusPendingUpgrade
	require.NoError(t, cfg.Storage.Update(ctx, pending))

	recovered, err := NewRecover(cfg).Run(ctx, "myrelease")
	require.NoError(t, err)
	assert.Equal(t, release.StatusFailed, recovered.Info.Status)
	assert.False(t, recovered.Info.Recoverable)

	_, err = NewUpgrade(cfg).Run(ctx, "myrelease", upgradedPack("myapp"), chartutil.Values{}, UpgradeOptions{})
	assert.NoError(t, err)
}

func TestQueryListReturnsAllReleasesInNamespace(t *testing.T) {
	cfg := testConfiguration()
	ctx := context.Background()

	_, err := NewInstall(cfg).Run(ctx, "alpha", simplePack("myapp"), chartutil.Values{}, InstallOptions{})
	require.NoError(t, err)
	_, err = NewInstall(cfg).Run(ctx, "beta", simplePack("myapp"), chartutil.Values{}, InstallOptions{})
	require.NoError(t, err)

	releases, err := NewQuery(cfg).List(ctx)
	require.NoError(t, err)
	assert.Len(t, releases, 2)
}

func TestQueryDiffMarksAddedAndRemovedLines(t *testing.T) {
	q := NewQuery(testConfiguration())
	from := &release.Release{Manifest: "a\nb\nc\n"}
	to := &release.Release{Manifest: "a\nx\nc\n"}

	diff := q.Diff(from, to)
	assert.Contains(t, diff, "- b")
	assert.Contains(t, diff, "+ x")
	assert.Contains(t, diff, "  a")
	assert.Contains(t, diff, "  c")
}
