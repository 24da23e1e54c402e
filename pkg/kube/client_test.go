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

package kube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
)

func testMapper() meta.RESTMapper {
	mapper := meta.NewDefaultRESTMapper(nil)
	mapper.AddSpecific(
		schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"},
		schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"},
		schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployment"},
		meta.RESTScopeNamespace,
	)
	mapper.AddSpecific(
		schema.GroupVersionKind{Group: "", Version: "v1", Kind: "Namespace"},
		schema.GroupVersionResource{Group: "", Version: "v1", Resource: "namespaces"},
		schema.GroupVersionResource{Group: "", Version: "v1", Resource: "namespace"},
		meta.RESTScopeRoot,
	)
	return mapper
}

func testClient() *Client {
	scheme := runtime.NewScheme()
	gvrToListKind := map[schema.GroupVersionResource]string{
		{Group: "apps", Version: "v1", Resource: "deployments"}: "DeploymentList",
		{Group: "", Version: "v1", Resource: "namespaces"}:      "NamespaceList",
	}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrToListKind)
	return New(dyn, testMapper())
}

const deploymentManifest = `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
`

func TestBuildDefaultsNamespaceForNamespacedScope(t *testing.T) {
	c := testClient()
	resources, err := c.Build(deploymentManifest, "myns")
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "myns", resources[0].Namespace)
	assert.True(t, resources[0].Namespaced)
}

func TestBuildLeavesClusterScopedNamespaceEmpty(t *testing.T) {
	c := testClient()
	resources, err := c.Build("apiVersion: v1\nkind: Namespace\nmetadata:\n  name: team-a\n", "myns")
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.False(t, resources[0].Namespaced)
}

func TestBuildSkipsEmptyDocuments(t *testing.T) {
	c := testClient()
	resources, err := c.Build("---\n\n---\n"+deploymentManifest, "myns")
	require.NoError(t, err)
	assert.Len(t, resources, 1)
}

func TestApplyCreatesResource(t *testing.T) {
	c := testClient()
	resources, err := c.Build(deploymentManifest, "myns")
	require.NoError(t, err)

	summary, err := c.Apply(context.Background(), resources, ApplyOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
}

func TestDeleteSkipsResourceWithKeepPolicy(t *testing.T) {
	c := testClient()
	manifest := `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  annotations:
    sherpack.io/resource-policy: keep
`
	resources, err := c.Build(manifest, "myns")
	require.NoError(t, err)
	_, err = c.Apply(context.Background(), resources, ApplyOptions{Force: true})
	require.NoError(t, err)

	results, err := c.Delete(context.Background(), resources)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
}

func TestDelete404IsNotAnError(t *testing.T) {
	c := testClient()
	resources, err := c.Build(deploymentManifest, "myns")
	require.NoError(t, err)

	results, err := c.Delete(context.Background(), resources)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, "not found", results[0].Reason)
}
