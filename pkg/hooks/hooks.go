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

// Package hooks is the Hook Executor: it recognizes annotated manifests
// as lifecycle hooks (rather than ordinary applied resources), orders
// them by weight within a phase, runs them to completion, and disposes
// of them per their cleanup policy. The annotation parsing here
// continues what the teacher's manifest sorter used to do before the
// lifecycle types it operated on were replaced with Sherpack's own.
package hooks

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"sherpack.sh/sherpack/pkg/releaseutil"
)

// HookAnnotations, WeightAnnotations and DeletePolicyAnnotations name the
// annotation keys a manifest uses to declare itself a hook; the Sherpack key takes
// precedence and the Helm-compatible key is honored for migrated packs.
var (
	HookAnnotations         = []string{"sherpack.io/hook", "helm.sh/hook"}
	WeightAnnotations       = []string{"sherpack.io/hook-weight", "helm.sh/hook-weight"}
	DeletePolicyAnnotations = []string{"sherpack.io/hook-delete-policy", "helm.sh/hook-delete-policy"}
)

// Phase is one point in a release's lifecycle a hook can run at.
type Phase string

const (
	PhasePreInstall    Phase = "pre-install"
	PhaseDuringInstall Phase = "during-install"
	PhasePostInstall   Phase = "post-install"
	PhasePreUpgrade    Phase = "pre-upgrade"
	PhaseDuringUpgrade Phase = "during-upgrade"
	PhasePostUpgrade   Phase = "post-upgrade"
	PhasePreRollback  Phase = "pre-rollback"
	PhasePostRollback Phase = "post-rollback"
	PhasePreDelete    Phase = "pre-delete"
	PhasePostDelete   Phase = "post-delete"
	PhaseTest         Phase = "test"
)

// CleanupKind names how a completed hook resource is disposed of.
type CleanupKind string

const (
	CleanupNever         CleanupKind = "never"
	CleanupBeforeNextRun CleanupKind = "before-next-run"
	CleanupOnSuccess     CleanupKind = "on-success"
	CleanupOnFailure     CleanupKind = "on-failure"
	CleanupAlways        CleanupKind = "always"
	CleanupAfterDelay    CleanupKind = "after-delay"
	CleanupKeepLast      CleanupKind = "keep-last"
)

// CleanupPolicy is a hook's fully-parsed delete-policy annotation.
type CleanupPolicy struct {
	Kind       CleanupKind
	AfterDelay time.Duration
	KeepLast   int
}

// defaultCleanup matches Helm's historical default: delete before the
// next run of the same hook, keeping the most recent one around for
// inspection.
var defaultCleanup = CleanupPolicy{Kind: CleanupBeforeNextRun}

// FailureKind names how an operation responds to a hook failing.
type FailureKind string

const (
	FailureFailOperation FailureKind = "fail-operation"
	FailureContinue      FailureKind = "continue"
	FailureRollback      FailureKind = "rollback"
	FailureRetry         FailureKind = "retry"
)

// FailurePolicy is a hook's response to its own execution failing.
type FailurePolicy struct {
	Kind        FailureKind
	MaxAttempts int
	Backoff     time.Duration
}

var defaultFailure = FailurePolicy{Kind: FailureFailOperation}

// Hook is one manifest document recognized as a lifecycle hook.
type Hook struct {
	Name     string
	Manifest string
	Kind     string
	Phases   []Phase
	Weight   int
	Cleanup  CleanupPolicy
	Failure  FailurePolicy
}

// HasPhase reports whether h runs during phase.
func (h *Hook) HasPhase(phase Phase) bool {
	for _, p := range h.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// FromManifests splits manifests into hooks and ordinary resources,
// based on the presence of a hook annotation.
func FromManifests(manifests []releaseutil.Manifest) (hooks []*Hook, resources []releaseutil.Manifest) {
	for _, m := range manifests {
		if m.Head == nil || m.Head.Metadata == nil {
			resources = append(resources, m)
			continue
		}
		raw, ok := firstAnnotation(m.Head.Metadata.Annotations, HookAnnotations)
		if !ok {
			resources = append(resources, m)
			continue
		}
		hooks = append(hooks, parseHook(m, raw))
	}
	return hooks, resources
}

func parseHook(m releaseutil.Manifest, rawPhases string) *Hook {
	h := &Hook{
		Name:     m.Head.Metadata.Name,
		Manifest: m.Content,
		Kind:     m.Head.Kind,
		Cleanup:  defaultCleanup,
		Failure:  defaultFailure,
	}
	for _, p := range strings.Split(rawPhases, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			h.Phases = append(h.Phases, Phase(p))
		}
	}

	if raw, ok := firstAnnotation(m.Head.Metadata.Annotations, WeightAnnotations); ok {
		if w, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			h.Weight = w
		}
	}

	if raw, ok := firstAnnotation(m.Head.Metadata.Annotations, DeletePolicyAnnotations); ok {
		h.Cleanup = parseCleanupPolicy(raw)
	}

	return h
}

func parseCleanupPolicy(raw string) CleanupPolicy {
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == string(CleanupNever):
			return CleanupPolicy{Kind: CleanupNever}
		case entry == string(CleanupBeforeNextRun) || entry == "before-hook-creation":
			return CleanupPolicy{Kind: CleanupBeforeNextRun}
		case entry == string(CleanupOnSuccess) || entry == "hook-succeeded":
			return CleanupPolicy{Kind: CleanupOnSuccess}
		case entry == string(CleanupOnFailure) || entry == "hook-failed":
			return CleanupPolicy{Kind: CleanupOnFailure}
		case entry == string(CleanupAlways):
			return CleanupPolicy{Kind: CleanupAlways}
		case strings.HasPrefix(entry, "after-delay="):
			if d, err := time.ParseDuration(strings.TrimPrefix(entry, "after-delay=")); err == nil {
				return CleanupPolicy{Kind: CleanupAfterDelay, AfterDelay: d}
			}
		case strings.HasPrefix(entry, "keep-last="):
			if n, err := strconv.Atoi(strings.TrimPrefix(entry, "keep-last=")); err == nil {
				return CleanupPolicy{Kind: CleanupKeepLast, KeepLast: n}
			}
		}
	}
	return defaultCleanup
}

func firstAnnotation(annotations map[string]string, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := annotations[k]; ok {
			return v, true
		}
	}
	return "", false
}

// UniqueName returns the deterministic name a hook's rendered resource
// is renamed to before being applied, so repeated phase runs across
// revisions never collide.
func UniqueName(release string, hook *Hook, phase Phase, revision int) string {
	return fmt.Sprintf("%s-%s-%s-v%d", release, hook.Name, phase, revision)
}

// SortByWeight stably sorts hooks ascending by weight, the order they
// execute in within one phase.
func SortByWeight(hooks []*Hook) []*Hook {
	out := make([]*Hook, len(hooks))
	copy(out, hooks)
	insertionSortByWeight(out)
	return out
}

func insertionSortByWeight(hooks []*Hook) {
	for i := 1; i < len(hooks); i++ {
		for j := i; j > 0 && hooks[j].Weight < hooks[j-1].Weight; j-- {
			hooks[j], hooks[j-1] = hooks[j-1], hooks[j]
		}
	}
}

// ForPhase filters hooks down to the ones that run during phase, in
// weight order.
func ForPhase(hooks []*Hook, phase Phase) []*Hook {
	var out []*Hook
	for _, h := range hooks {
		if h.HasPhase(phase) {
			out = append(out, h)
		}
	}
	return SortByWeight(out)
}
