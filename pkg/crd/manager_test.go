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

package crd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"sherpack.sh/sherpack/pkg/chart"
)

func testManager(extraListKinds map[schema.GroupVersionResource]string) (*Manager, *dynamicfake.FakeDynamicClient) {
	scheme := runtime.NewScheme()
	listKinds := map[schema.GroupVersionResource]string{
		crdGVR: "CustomResourceDefinitionList",
	}
	for k, v := range extraListKinds {
		listKinds[k] = v
	}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds)
	return NewManager(dyn), dyn
}

func TestApplyCreatesCRD(t *testing.T) {
	m, _ := testManager(nil)
	crd := mustParse(t, baseCRDManifest)

	err := m.Apply(context.Background(), crd, true, false)
	require.NoError(t, err)

	got, err := m.Get(context.Background(), crd.Name)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "example.io", got.Spec.Group)
}

func TestGetReturnsNilForMissingCRD(t *testing.T) {
	m, _ := testManager(nil)
	got, err := m.Get(context.Background(), "missing.example.io")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWaitEstablishedTimesOutWhenConditionNeverTrue(t *testing.T) {
	m, _ := testManager(nil)
	crd := mustParse(t, baseCRDManifest)
	require.NoError(t, m.Apply(context.Background(), crd, true, false))

	err := m.WaitEstablished(context.Background(), crd.Name, 50*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitEstablishedSucceedsOnceConditionIsTrue(t *testing.T) {
	m, dyn := testManager(nil)
	crd := mustParse(t, baseCRDManifest)
	require.NoError(t, m.Apply(context.Background(), crd, true, false))

	current, err := m.Get(context.Background(), crd.Name)
	require.NoError(t, err)
	current.Status.Conditions = []apiextensionsv1.CustomResourceDefinitionCondition{
		{Type: apiextensionsv1.Established, Status: apiextensionsv1.ConditionTrue},
	}
	raw, err := runtime.DefaultUnstructuredConverter.ToUnstructured(current)
	require.NoError(t, err)
	obj := &unstructured.Unstructured{Object: raw}
	obj.SetAPIVersion("apiextensions.k8s.io/v1")
	obj.SetKind("CustomResourceDefinition")
	_, err = dyn.Resource(crdGVR).Update(context.Background(), obj, metav1.UpdateOptions{})
	require.NoError(t, err)

	err = m.WaitEstablished(context.Background(), crd.Name, time.Second)
	assert.NoError(t, err)
}

func TestAnalyzeDeletionCountsExistingCustomResources(t *testing.T) {
	widgetGVR := schema.GroupVersionResource{Group: "example.io", Version: "v1", Resource: "widgets"}
	m, dyn := testManager(map[schema.GroupVersionResource]string{widgetGVR: "WidgetList"})
	crd := mustParse(t, baseCRDManifest)

	widget := &unstructured.Unstructured{}
	widget.SetAPIVersion("example.io/v1")
	widget.SetKind("Widget")
	widget.SetName("w1")
	widget.SetNamespace("team-a")
	_, err := dyn.Resource(widgetGVR).Namespace("team-a").Create(context.Background(), widget, metav1.CreateOptions{})
	require.NoError(t, err)

	impact, err := m.AnalyzeDeletion(context.Background(), crd, chart.CRDPolicyShared)
	require.NoError(t, err)
	assert.Equal(t, 1, impact.TotalResources)
	assert.Equal(t, 1, impact.ByNamespace["team-a"])
	assert.False(t, impact.DeletionAllowed)
	assert.NotEmpty(t, impact.BlockedReason)
}

func TestAnalyzeDeletionAllowsManagedPolicyRegardlessOfCount(t *testing.T) {
	widgetGVR := schema.GroupVersionResource{Group: "example.io", Version: "v1", Resource: "widgets"}
	m, dyn := testManager(map[schema.GroupVersionResource]string{widgetGVR: "WidgetList"})
	crd := mustParse(t, baseCRDManifest)

	widget := &unstructured.Unstructured{}
	widget.SetAPIVersion("example.io/v1")
	widget.SetKind("Widget")
	widget.SetName("w1")
	widget.SetNamespace("team-a")
	_, err := dyn.Resource(widgetGVR).Namespace("team-a").Create(context.Background(), widget, metav1.CreateOptions{})
	require.NoError(t, err)

	impact, err := m.AnalyzeDeletion(context.Background(), crd, chart.CRDPolicyManaged)
	require.NoError(t, err)
	assert.True(t, impact.DeletionAllowed)
}

func TestDeleteRefusesWhenImpactForbidsIt(t *testing.T) {
	m, _ := testManager(nil)
	crd := mustParse(t, baseCRDManifest)
	require.NoError(t, m.Apply(context.Background(), crd, true, false))
	t.Setenv(string(GateDeleteCRDs), "1")

	impact := &DeletionImpact{DeletionAllowed: false, BlockedReason: "nope"}
	err := m.Delete(context.Background(), crd.Name, impact, true)
	assert.ErrorContains(t, err, "nope")
}

func TestDeleteRefusesWithoutConfirmation(t *testing.T) {
	m, _ := testManager(nil)
	crd := mustParse(t, baseCRDManifest)
	require.NoError(t, m.Apply(context.Background(), crd, true, false))
	t.Setenv(string(GateDeleteCRDs), "1")

	impact := &DeletionImpact{DeletionAllowed: true}
	err := m.Delete(context.Background(), crd.Name, impact, false)
	assert.ErrorContains(t, err, "confirm-crd-deletion")
}

func TestDeleteRefusesWithoutGateEnabled(t *testing.T) {
	m, _ := testManager(nil)
	crd := mustParse(t, baseCRDManifest)
	require.NoError(t, m.Apply(context.Background(), crd, true, false))

	impact := &DeletionImpact{DeletionAllowed: true}
	err := m.Delete(context.Background(), crd.Name, impact, true)
	assert.ErrorContains(t, err, "experimental")
}

func TestDeleteSucceedsWhenAllGuardsPass(t *testing.T) {
	m, _ := testManager(nil)
	crd := mustParse(t, baseCRDManifest)
	require.NoError(t, m.Apply(context.Background(), crd, true, false))
	t.Setenv(string(GateDeleteCRDs), "1")

	impact := &DeletionImpact{DeletionAllowed: true}
	require.NoError(t, m.Delete(context.Background(), crd.Name, impact, true))

	got, err := m.Get(context.Background(), crd.Name)
	require.NoError(t, err)
	assert.Nil(t, got)
}
