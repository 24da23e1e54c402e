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

// Package health is the Health Checker: it polls workload resources for
// their kind-specific readiness condition and runs optional HTTP/command
// probes on top, the way a release is confirmed healthy before a
// lifecycle operation reports success. It deliberately does not depend
// on github.com/fluxcd/cli-utils — its status-reader approach doesn't
// fit a pack-relative, dependency-free poll loop here, so the per-kind
// rules below are read directly off each object's status fields instead.
package health

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"
)

// Status is the outcome of one readiness check.
type Status struct {
	Healthy bool
	Reason  string
}

func healthy() Status           { return Status{Healthy: true} }
func unhealthy(reason string) Status { return Status{Reason: reason} }

// ReadinessFunc evaluates a live object's status into a Status.
type ReadinessFunc func(obj *unstructured.Unstructured) Status

// readinessByKind holds the per-kind rule table; a kind absent from it
// is considered healthy as soon as it exists (e.g. ConfigMap, Secret).
var readinessByKind = map[string]ReadinessFunc{
	"Deployment":  deploymentReady,
	"StatefulSet": statefulSetReady,
	"DaemonSet":   daemonSetReady,
	"Job":         jobReady,
}

// CheckObject evaluates obj's kind-specific readiness rule.
func CheckObject(obj *unstructured.Unstructured) Status {
	if fn, ok := readinessByKind[obj.GetKind()]; ok {
		return fn(obj)
	}
	return healthy()
}

func deploymentReady(obj *unstructured.Unstructured) Status {
	wantReplicas, _, _ := unstructured.NestedInt64(obj.Object, "spec", "replicas")
	if wantReplicas == 0 {
		wantReplicas = 1
	}
	updated, _, _ := unstructured.NestedInt64(obj.Object, "status", "updatedReplicas")
	available, _, _ := unstructured.NestedInt64(obj.Object, "status", "availableReplicas")
	observedGen, _, _ := unstructured.NestedInt64(obj.Object, "status", "observedGeneration")
	gen, _, _ := unstructured.NestedInt64(obj.Object, "metadata", "generation")

	if observedGen < gen {
		return unhealthy("waiting for the deployment spec to be observed")
	}
	if updated < wantReplicas {
		return unhealthy("waiting for updated replicas to roll out")
	}
	if available < wantReplicas {
		return unhealthy("waiting for replicas to become available")
	}
	return healthy()
}

func statefulSetReady(obj *unstructured.Unstructured) Status {
	wantReplicas, _, _ := unstructured.NestedInt64(obj.Object, "spec", "replicas")
	if wantReplicas == 0 {
		wantReplicas = 1
	}
	ready, _, _ := unstructured.NestedInt64(obj.Object, "status", "readyReplicas")
	current, _, _ := unstructured.NestedString(obj.Object, "status", "currentRevision")
	update, _, _ := unstructured.NestedString(obj.Object, "status", "updateRevision")

	if ready < wantReplicas {
		return unhealthy("waiting for ready replicas")
	}
	if update != "" && current != update {
		return unhealthy("waiting for the rolling update to finish")
	}
	return healthy()
}

func daemonSetReady(obj *unstructured.Unstructured) Status {
	desired, _, _ := unstructured.NestedInt64(obj.Object, "status", "desiredNumberScheduled")
	ready, _, _ := unstructured.NestedInt64(obj.Object, "status", "numberReady")
	unavailable, _, _ := unstructured.NestedInt64(obj.Object, "status", "numberUnavailable")

	if unavailable > 0 {
		return unhealthy("some daemon pods are unavailable")
	}
	if ready < desired {
		return unhealthy("waiting for daemon pods to become ready")
	}
	return healthy()
}

func jobReady(obj *unstructured.Unstructured) Status {
	conditions, _, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	for _, c := range conditions {
		cm, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if cm["type"] == "Failed" && cm["status"] == "True" {
			return unhealthy("job failed")
		}
	}
	succeeded, _, _ := unstructured.NestedInt64(obj.Object, "status", "succeeded")
	if succeeded < 1 {
		return unhealthy("waiting for job to complete")
	}
	return healthy()
}

// Target is one object the Poller watches.
type Target struct {
	GVR       schema.GroupVersionResource
	Namespace string
	Name      string
}

// Poller polls a set of Targets until every one reports healthy, or a
// deadline elapses.
type Poller struct {
	Dynamic      dynamic.Interface
	PollInterval time.Duration
}

// NewPoller returns a Poller backed by dyn, polling every interval (a
// zero interval defaults to 2s).
func NewPoller(dyn dynamic.Interface, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{Dynamic: dyn, PollInterval: interval}
}

// Result is one target's final poll outcome.
type Result struct {
	Target Target
	Status Status
}

// WaitHealthy polls every target until all are healthy or timeout
// elapses, returning each target's last observed Status either way.
func (p *Poller) WaitHealthy(ctx context.Context, targets []Target, timeout time.Duration) ([]Result, error) {
	results := make([]Result, len(targets))
	err := wait.PollUntilContextTimeout(ctx, p.PollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		allHealthy := true
		for i, t := range targets {
			var ri dynamic.ResourceInterface
			if t.Namespace != "" {
				ri = p.Dynamic.Resource(t.GVR).Namespace(t.Namespace)
			} else {
				ri = p.Dynamic.Resource(t.GVR)
			}
			obj, err := ri.Get(ctx, t.Name, metav1.GetOptions{})
			if err != nil {
				results[i] = Result{Target: t, Status: unhealthy(err.Error())}
				allHealthy = false
				continue
			}
			st := CheckObject(obj)
			results[i] = Result{Target: t, Status: st}
			if !st.Healthy {
				allHealthy = false
			}
		}
		return allHealthy, nil
	})
	return results, err
}
