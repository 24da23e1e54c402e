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

package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
)

func deployment(generation, observedGeneration, replicas, updated, available int64) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata":   map[string]interface{}{"name": "web", "generation": generation},
		"spec":       map[string]interface{}{"replicas": replicas},
		"status": map[string]interface{}{
			"observedGeneration": observedGeneration,
			"updatedReplicas":    updated,
			"availableReplicas":  available,
		},
	}}
	return obj
}

func TestDeploymentReadyRequiresObservedGenerationCaughtUp(t *testing.T) {
	obj := deployment(2, 1, 3, 3, 3)
	st := CheckObject(obj)
	assert.False(t, st.Healthy)
}

func TestDeploymentReadyRequiresAvailableReplicas(t *testing.T) {
	obj := deployment(1, 1, 3, 3, 2)
	st := CheckObject(obj)
	assert.False(t, st.Healthy)
}

func TestDeploymentReadyWhenFullyRolledOut(t *testing.T) {
	obj := deployment(1, 1, 3, 3, 3)
	st := CheckObject(obj)
	assert.True(t, st.Healthy)
}

func TestJobReadyFailsOnFailedCondition(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"kind": "Job",
		"status": map[string]interface{}{
			"conditions": []interface{}{
				map[string]interface{}{"type": "Failed", "status": "True"},
			},
		},
	}}
	st := CheckObject(obj)
	assert.False(t, st.Healthy)
}

func TestUnknownKindIsHealthyByDefault(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{"kind": "ConfigMap"}}
	assert.True(t, CheckObject(obj).Healthy)
}

func TestPollerWaitHealthyResolvesOnceDeploymentIsReady(t *testing.T) {
	gvr := schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}
	scheme := runtime.NewScheme()
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, map[schema.GroupVersionResource]string{gvr: "DeploymentList"})

	obj := deployment(1, 1, 3, 1, 1)
	obj.SetName("web")
	obj.SetNamespace("myns")
	_, err := dyn.Resource(gvr).Namespace("myns").Create(context.Background(), obj, metav1.CreateOptions{})
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		ready := deployment(1, 1, 3, 3, 3)
		ready.SetName("web")
		ready.SetNamespace("myns")
		_, _ = dyn.Resource(gvr).Namespace("myns").Update(context.Background(), ready, metav1.UpdateOptions{})
	}()

	p := NewPoller(dyn, 10*time.Millisecond)
	results, err := p.WaitHealthy(context.Background(), []Target{{GVR: gvr, Namespace: "myns", Name: "web"}}, time.Second)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Status.Healthy)
}

func TestPollerWaitHealthyTimesOut(t *testing.T) {
	gvr := schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}
	scheme := runtime.NewScheme()
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, map[schema.GroupVersionResource]string{gvr: "DeploymentList"})

	obj := deployment(1, 1, 3, 0, 0)
	obj.SetName("web")
	obj.SetNamespace("myns")
	_, err := dyn.Resource(gvr).Namespace("myns").Create(context.Background(), obj, metav1.CreateOptions{})
	require.NoError(t, err)

	p := NewPoller(dyn, 10*time.Millisecond)
	_, err = p.WaitHealthy(context.Background(), []Target{{GVR: gvr, Namespace: "myns", Name: "web"}}, 50*time.Millisecond)
	assert.Error(t, err)
}
