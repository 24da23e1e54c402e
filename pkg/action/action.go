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

// Package action is the Lifecycle Orchestrator: it composes the Pack
// Renderer, Dependency Resolver, Hook Executor, Resource Manager, CRD
// Manager, Health Checker, and Release Store under the release state
// machine to drive Install/Upgrade/Rollback/Uninstall/Recover and the
// pure read operations (Status/Diff/History/List). It deliberately
// does not implement registry login, chart signing, chart push/pull, or
// repository add/update — those remain external-collaborator concerns
// per the pack's Non-goals.
package action

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"sherpack.sh/sherpack/pkg/chart"
	"sherpack.sh/sherpack/pkg/chartutil"
	"sherpack.sh/sherpack/pkg/crd"
	"sherpack.sh/sherpack/pkg/health"
	"sherpack.sh/sherpack/pkg/hooks"
	"sherpack.sh/sherpack/pkg/kube"
	"sherpack.sh/sherpack/pkg/release"
	"sherpack.sh/sherpack/pkg/releaseutil"
	"sherpack.sh/sherpack/pkg/storage"
)

// DefaultWaitTimeout is the install/upgrade/rollback --wait deadline
// when a caller doesn't override it.
const DefaultWaitTimeout = 5 * time.Minute

// DefaultHookTimeout bounds a single hook's run when a caller doesn't
// override it.
const DefaultHookTimeout = 5 * time.Minute

// Configuration is the orchestrator's set of collaborators, analogous
// to the teacher's action.Configuration but built on Sherpack's own
// Storage/Kube/Hooks/Health/CRD types instead of Helm's.
type Configuration struct {
	Storage   *storage.Storage
	Kube      *kube.Client
	HookExec  *hooks.Executor
	Health    *health.Poller
	CRD       *crd.Manager
	Namespace string
}

// ErrPendingOperationInFlight is returned when a write operation is
// refused because a Pending record, stuck or not, already exists for the
// name/namespace — the orchestrator's leader-election substitute. Only
// Recover clears a stuck one.
var ErrPendingOperationInFlight = errors.New("action: a release operation is already in flight; wait or call Recover")

// renderedRelease is the common output of the write-operation prelude:
// validate pack -> render -> split hooks from resources -> sort resources
// for apply. Loading the pack and coalescing values happen before it, in
// the caller.
type renderedRelease struct {
	manifest string
	notes    string
	hooks    []*hooks.Hook
	groups   []string
}

// render runs the shared prelude for every write operation. values is
// the already-coalesced (defaults + user overrides) tree; context
// carries the non-values template variables ("release", "capabilities").
func render(pack *chart.Pack, values chartutil.Values, context map[string]interface{}) (*renderedRelease, error) {
	if err := pack.Validate(); err != nil {
		return nil, errors.Wrap(err, "action: pack failed validation")
	}

	result, err := chartutil.RenderPack(pack, values, context, chartutil.RenderOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "action: failed to render pack")
	}

	var manifests []releaseutil.Manifest
	var groups []string
	for _, name := range result.Names {
		content := result.Templates[name]
		if strings.TrimSpace(content) == "" {
			continue
		}
		docs := releaseutil.SplitManifests(content)
		keys := make([]string, 0, len(docs))
		for k := range docs {
			keys = append(keys, k)
		}
		sort.Sort(releaseutil.BySplitManifestsOrder(keys))
		for _, k := range keys {
			doc := docs[k]
			head, group := decodeHead(doc)
			manifests = append(manifests, releaseutil.Manifest{Name: name, Content: doc, Head: head})
			groups = append(groups, group)
		}
	}

	foundHooks, resources := hooks.FromManifests(manifests)
	resourceGroups := make([]string, 0, len(resources))
	for i, m := range manifests {
		for _, r := range resources {
			if r.Name == m.Name && r.Content == m.Content {
				resourceGroups = append(resourceGroups, groups[i])
				break
			}
		}
	}
	sorted := releaseutil.SortManifestsForApply(resources, resourceGroups)

	var b strings.Builder
	for _, m := range sorted {
		b.WriteString("---\n")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}

	return &renderedRelease{manifest: b.String(), notes: result.Notes, hooks: foundHooks, groups: resourceGroups}, nil
}

func decodeHead(doc string) (*releaseutil.SimpleHead, string) {
	// A full YAML decode happens later in kube.Client.Build; here we only
	// need enough to split hooks from resources and to sort by category.
	head := &releaseutil.SimpleHead{Metadata: &releaseutil.SimpleMeta{}}
	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "kind:") {
			head.Kind = strings.TrimSpace(strings.TrimPrefix(trimmed, "kind:"))
		}
		if strings.HasPrefix(trimmed, "apiVersion:") {
			head.Version = strings.TrimSpace(strings.TrimPrefix(trimmed, "apiVersion:"))
		}
	}
	group := ""
	if idx := strings.Index(head.Version, "/"); idx >= 0 {
		group = head.Version[:idx]
	}
	return head, group
}

// checkNoPendingOperation enforces the at-most-one-Pending invariant: a
// write may not begin while a Pending* record exists.
func checkNoPendingOperation(ctx context.Context, s *storage.Storage, namespace, name string) error {
	_, err := s.Pending(ctx, namespace, name)
	if err == nil {
		return ErrPendingOperationInFlight
	}
	return nil
}

// applyResources issues Build+Apply for a rendered manifest against
// namespace, returning the resolved ResourceList so Delete can later
// target the same objects.
func applyResources(ctx context.Context, k *kube.Client, manifest, namespace string, force bool) (kube.ResourceList, error) {
	resources, err := k.Build(manifest, namespace)
	if err != nil {
		return nil, errors.Wrap(err, "action: failed to build manifest")
	}
	if len(resources) == 0 {
		return resources, nil
	}
	if _, err := k.Apply(ctx, resources, kube.ApplyOptions{Force: force}); err != nil {
		return resources, errors.Wrap(err, "action: failed to apply manifest")
	}
	return resources, nil
}

// deleteResources deletes a previously-applied manifest's resources in
// reverse apply order.
func deleteResources(ctx context.Context, k *kube.Client, manifest, namespace string) error {
	resources, err := k.Build(manifest, namespace)
	if err != nil {
		return errors.Wrap(err, "action: failed to build manifest for delete")
	}
	reversed := make(kube.ResourceList, len(resources))
	for i, r := range resources {
		reversed[len(resources)-1-i] = r
	}
	if _, err := k.Delete(ctx, reversed); err != nil {
		return errors.Wrap(err, "action: failed to delete manifest")
	}
	return nil
}

// runHookPhase runs every hook registered for phase and surfaces the
// first failure, honoring each hook's own FailurePolicy.
func runHookPhase(ctx context.Context, cfg *Configuration, releaseName string, phase hooks.Phase, hookList []*hooks.Hook, revision int, timeout time.Duration) error {
	if cfg.HookExec == nil || len(hookList) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	_, err := cfg.HookExec.Run(ctx, releaseName, phase, hookList, cfg.Namespace, revision, timeout)
	return err
}

// waitHealthy polls the applied resources for readiness when wait is
// requested; resources without a kind-specific rule are always healthy.
func waitHealthy(ctx context.Context, cfg *Configuration, resources kube.ResourceList, timeout time.Duration) error {
	if cfg.Health == nil || len(resources) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	targets := make([]health.Target, 0, len(resources))
	for _, r := range resources {
		ns := r.Namespace
		if !r.Namespaced {
			ns = ""
		}
		targets = append(targets, health.Target{GVR: r.GVR, Namespace: ns, Name: r.Name})
	}
	results, err := cfg.Health.WaitHealthy(ctx, targets, timeout)
	if err != nil {
		var reasons []string
		for _, r := range results {
			if !r.Status.Healthy {
				reasons = append(reasons, fmt.Sprintf("%s/%s: %s", r.Target.Namespace, r.Target.Name, r.Status.Reason))
			}
		}
		return errors.Wrapf(err, "action: resources did not become healthy: %s", strings.Join(reasons, "; "))
	}
	return nil
}

// enforceMaxHistory deletes the oldest non-Deployed, non-Pending
// revisions once history exceeds maxHistory (0 disables the limit).
func enforceMaxHistory(ctx context.Context, s *storage.Storage, namespace, name string, maxHistory int) error {
	if maxHistory <= 0 {
		return nil
	}
	history, err := s.History(ctx, namespace, name)
	if err != nil {
		return err
	}
	if len(history) <= maxHistory {
		return nil
	}
	// History is newest first, so the oldest revisions are at the end.
	excess := len(history) - maxHistory
	for i := 0; i < excess; i++ {
		r := history[len(history)-1-i]
		if r.Info != nil && (r.Info.Status == release.StatusDeployed || r.Info.Status.IsPending()) {
			continue
		}
		if err := s.Delete(ctx, namespace, name, r.Version); err != nil {
			return err
		}
	}
	return nil
}
