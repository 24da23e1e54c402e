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
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"sherpack.sh/sherpack/pkg/chart"
	"sherpack.sh/sherpack/pkg/chartutil"
	"sherpack.sh/sherpack/pkg/hooks"
	"sherpack.sh/sherpack/pkg/kube"
	"sherpack.sh/sherpack/pkg/release"
	"sherpack.sh/sherpack/pkg/storage"
	"sherpack.sh/sherpack/pkg/storage/driver"
)

func testConfiguration() *Configuration {
	mapper := meta.NewDefaultRESTMapper(nil)
	mapper.AddSpecific(
		schema.GroupVersionKind{Group: "", Version: "v1", Kind: "ConfigMap"},
		schema.GroupVersionResource{Group: "", Version: "v1", Resource: "configmaps"},
		schema.GroupVersionResource{Group: "", Version: "v1", Resource: "configmap"},
		meta.RESTScopeNamespace,
	)
	mapper.AddSpecific(
		schema.GroupVersionKind{Group: "batch", Version: "v1", Kind: "Job"},
		schema.GroupVersionResource{Group: "batch", Version: "v1", Resource: "jobs"},
		schema.GroupVersionResource{Group: "batch", Version: "v1", Resource: "job"},
		meta.RESTScopeNamespace,
	)

	scheme := runtime.NewScheme()
	gvrToListKind := map[schema.GroupVersionResource]string{
		{Group: "", Version: "v1", Resource: "configmaps"}:  "ConfigMapList",
		{Group: "batch", Version: "v1", Resource: "jobs"}:   "JobList",
	}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrToListKind)
	k := kube.New(dyn, mapper)

	return &Configuration{
		Storage:   storage.New(driver.NewMock()),
		Kube:      k,
		HookExec:  hooks.NewExecutor(k),
		Namespace: "myns",
	}
}

func simplePack(name string) *chart.Pack {
	return &chart.Pack{
		Metadata: &chart.Metadata{APIVersion: chart.APIVersion, Name: name, Version: "1.0.0", Type: chart.KindApplication},
		Templates: []*chart.File{
			{Name: "templates/configmap.yaml", Data: []byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: cfg\ndata:\n  foo: bar\n")},
		},
	}
}

func TestInstallCreatesDeployedRelease(t *testing.T) {
	cfg := testConfiguration()
	pack := simplePack("myapp")

	rel, err := NewInstall(cfg).Run(context.Background(), "myrelease", pack, chartutil.Values{}, InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, release.StatusDeployed, rel.Info.Status)
	assert.Equal(t, 1, rel.Version)

	stored, err := cfg.Storage.GetLatest(context.Background(), "myns", "myrelease")
	require.NoError(t, err)
	assert.Equal(t, release.StatusDeployed, stored.Info.Status)
}

func TestInstallRejectsWhenReleaseAlreadyExists(t *testing.T) {
	cfg := testConfiguration()
	pack := simplePack("myapp")

	_, err := NewInstall(cfg).Run(context.Background(), "myrelease", pack, chartutil.Values{}, InstallOptions{})
	require.NoError(t, err)

	_, err = NewInstall(cfg).Run(context.Background(), "myrelease", pack, chartutil.Values{}, InstallOptions{})
	assert.Error(t, err)
}

func TestInstallDryRunDoesNotWriteToStorage(t *testing.T) {
	cfg := testConfiguration()
	pack := simplePack("myapp")

	rel, err := NewInstall(cfg).Run(context.Background(), "myrelease", pack, chartutil.Values{}, InstallOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, release.StatusPendingInstall, rel.Info.Status)

	exists, err := cfg.Storage.Exists(context.Background(), "myns", "myrelease")
	require.NoError(t, err)
	assert.False(t, exists)
}
