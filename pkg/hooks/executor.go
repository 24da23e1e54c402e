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
	"context"
	"time"

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/wait"

	"sherpack.sh/sherpack/pkg/kube"
)

// Executor runs hooks against a cluster via the Resource Manager.
type Executor struct {
	Client       *kube.Client
	PollInterval time.Duration
}

// NewExecutor returns an Executor backed by client.
func NewExecutor(client *kube.Client) *Executor {
	return &Executor{Client: client, PollInterval: time.Second}
}

// Outcome records one hook's run.
type Outcome struct {
	Hook      *Hook
	Name      string
	Succeeded bool
	Err       error
}

// Run executes every hook registered for phase, in weight order,
// against namespace, naming each rendered resource uniquely for
// release/phase/revision. It stops at the first failure whose
// FailurePolicy is FailOperation (the default) and returns that error;
// a Continue policy hook failing is recorded in the outcome but does
// not halt the phase.
func (e *Executor) Run(ctx context.Context, release string, phase Phase, allHooks []*Hook, namespace string, revision int, timeout time.Duration) ([]Outcome, error) {
	var outcomes []Outcome
	for _, h := range ForPhase(allHooks, phase) {
		name := UniqueName(release, h, phase, revision)
		outcome, err := e.runOne(ctx, h, name, namespace, timeout)
		outcomes = append(outcomes, outcome)
		if err != nil && h.Failure.Kind == FailureFailOperation {
			return outcomes, err
		}
	}
	return outcomes, nil
}

func (e *Executor) runOne(ctx context.Context, h *Hook, name, namespace string, timeout time.Duration) (Outcome, error) {
	attempts := 1
	if h.Failure.Kind == FailureRetry && h.Failure.MaxAttempts > 0 {
		attempts = h.Failure.MaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && h.Failure.Backoff > 0 {
			select {
			case <-ctx.Done():
				return Outcome{Hook: h, Name: name, Err: ctx.Err()}, ctx.Err()
			case <-time.After(h.Failure.Backoff):
			}
		}

		resources, err := e.Client.Build(h.Manifest, namespace)
		if err != nil {
			lastErr = errors.Wrapf(err, "hooks: failed to build %q", name)
			continue
		}
		for _, r := range resources {
			r.Name = name
			r.Object.SetName(name)
		}

		if h.Cleanup.Kind == CleanupBeforeNextRun || h.Cleanup.Kind == CleanupAlways {
			_, _ = e.Client.Delete(ctx, resources)
		}

		if _, err := e.Client.Apply(ctx, resources, kube.ApplyOptions{Force: true}); err != nil {
			lastErr = errors.Wrapf(err, "hooks: failed to apply %q", name)
			continue
		}

		if err := e.waitComplete(ctx, resources, timeout); err != nil {
			lastErr = err
			e.cleanup(ctx, resources, h, false)
			continue
		}

		e.cleanup(ctx, resources, h, true)
		return Outcome{Hook: h, Name: name, Succeeded: true}, nil
	}

	return Outcome{Hook: h, Name: name, Err: lastErr}, lastErr
}

func (e *Executor) waitComplete(ctx context.Context, resources kube.ResourceList, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, e.PollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		for _, r := range resources {
			if r.GVK.Kind != "Job" {
				continue
			}
			live, err := e.Client.Dynamic.Resource(r.GVR).Namespace(r.Namespace).Get(ctx, r.Name, metav1.GetOptions{})
			if err != nil {
				return false, nil
			}
			succeeded, _, _ := unstructured.NestedInt64(live.Object, "status", "succeeded")
			if succeeded > 0 {
				return true, nil
			}
			failed, _, _ := unstructured.NestedInt64(live.Object, "status", "failed")
			active, _, _ := unstructured.NestedInt64(live.Object, "status", "active")
			if failed > 0 && active == 0 {
				return false, errors.Errorf("hooks: job %q failed", r.Name)
			}
			conditions, _, _ := unstructured.NestedSlice(live.Object, "status", "conditions")
			for _, c := range conditions {
				cm, ok := c.(map[string]interface{})
				if ok && cm["type"] == "Failed" && cm["status"] == "True" {
					return false, errors.Errorf("hooks: job %q failed", r.Name)
				}
			}
			return false, nil
		}
		return true, nil
	})
}

func (e *Executor) cleanup(ctx context.Context, resources kube.ResourceList, h *Hook, succeeded bool) {
	switch h.Cleanup.Kind {
	case CleanupAlways:
	case CleanupOnSuccess:
		if !succeeded {
			return
		}
	case CleanupOnFailure:
		if succeeded {
			return
		}
	case CleanupAfterDelay:
		go func() {
			time.Sleep(h.Cleanup.AfterDelay)
			_, _ = e.Client.Delete(context.Background(), resources)
		}()
		return
	case CleanupBeforeNextRun, CleanupKeepLast, CleanupNever:
		return
	default:
		return
	}
	_, _ = e.Client.Delete(ctx, resources)
}
