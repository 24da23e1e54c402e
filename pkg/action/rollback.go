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
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"sherpack.sh/sherpack/pkg/hooks"
	"sherpack.sh/sherpack/pkg/release"
)

// RollbackOptions configures a Rollback call.
type RollbackOptions struct {
	Wait        bool
	WaitTimeout time.Duration
}

// AddFlags binds RollbackOptions to f, mirroring InstallOptions.AddFlags.
func (o *RollbackOptions) AddFlags(f *pflag.FlagSet) {
	f.BoolVar(&o.Wait, "wait", false, "wait until all applied resources are ready before marking the release deployed")
	f.DurationVar(&o.WaitTimeout, "timeout", DefaultWaitTimeout, "time to wait for any individual Kubernetes operation")
}

// Rollback is the C11 rollback operation.
type Rollback struct {
	Cfg *Configuration
}

// NewRollback returns a Rollback bound to cfg.
func NewRollback(cfg *Configuration) *Rollback {
	return &Rollback{Cfg: cfg}
}

// Run rolls name back to targetVersion (0 meaning the previous
// non-superseded-by-this-rollback revision in history), producing a
// new revision whose manifest and values mirror the target.
func (r *Rollback) Run(ctx context.Context, name string, targetVersion int, opts RollbackOptions) (*release.Release, error) {
	if err := checkNoPendingOperation(ctx, r.Cfg.Storage, r.Cfg.Namespace, name); err != nil {
		return nil, err
	}

	history, err := r.Cfg.Storage.History(ctx, r.Cfg.Namespace, name)
	if err != nil {
		return nil, errors.Wrap(err, "action: failed to load release history")
	}
	if len(history) == 0 {
		return nil, errors.Errorf("action: no history for release %q", name)
	}

	target, current := pickRollbackTarget(history, targetVersion)
	if target == nil {
		return nil, errors.Errorf("action: no revision %d found for release %q", targetVersion, name)
	}

	nextVersion := current.Version + 1
	rel := &release.Release{
		Name:      name,
		Namespace: r.Cfg.Namespace,
		Version:   nextVersion,
		Chart:     target.Chart,
		Values:    target.Values,
		Manifest:  target.Manifest,
		Hooks:     target.Hooks,
		Info:      &release.Info{Status: release.StatusPendingRollback, FirstDeployed: current.Info.FirstDeployed, LastDeployed: time.Now(), Description: "rollback to revision " + strconv.Itoa(target.Version)},
	}
	if err := r.Cfg.Storage.Create(ctx, rel); err != nil {
		return nil, errors.Wrap(err, "action: failed to write pending-rollback record")
	}
	if current.Info != nil && current.Info.Status == release.StatusDeployed {
		if err := r.Cfg.Storage.Supersede(ctx, current); err != nil {
			return rel, errors.Wrap(err, "action: failed to supersede current release")
		}
	}

	if err := r.execute(ctx, rel, opts); err != nil {
		rel.Info.Status = release.StatusFailed
		rel.Info.FailureReason = err.Error()
		_ = r.Cfg.Storage.Update(ctx, rel)
		return rel, err
	}

	rel.Info.Status = release.StatusDeployed
	rel.Info.LastDeployed = time.Now()
	if err := r.Cfg.Storage.Update(ctx, rel); err != nil {
		return rel, errors.Wrap(err, "action: failed to mark release deployed")
	}
	return rel, nil
}

func (r *Rollback) execute(ctx context.Context, rel *release.Release, opts RollbackOptions) error {
	found := toHookList(rel.Hooks)

	if err := runHookPhase(ctx, r.Cfg, rel.Name, hooks.PhasePreRollback, found, rel.Version, opts.WaitTimeout); err != nil {
		return errors.Wrap(err, "action: pre-rollback hooks failed")
	}

	resources, err := applyResources(ctx, r.Cfg.Kube, rel.Manifest, r.Cfg.Namespace, true)
	if err != nil {
		return err
	}

	if opts.Wait {
		if err := waitHealthy(ctx, r.Cfg, resources, opts.WaitTimeout); err != nil {
			return err
		}
	}

	if err := runHookPhase(ctx, r.Cfg, rel.Name, hooks.PhasePostRollback, found, rel.Version, opts.WaitTimeout); err != nil {
		return errors.Wrap(err, "action: post-rollback hooks failed")
	}
	return nil
}

// pickRollbackTarget finds the release record for targetVersion (0
// meaning the Deployed-before-current revision), and returns it
// alongside the current Deployed/latest record the new revision is
// built on top of.
func pickRollbackTarget(history []*release.Release, targetVersion int) (target, current *release.Release) {
	for _, rel := range history {
		if rel.Info != nil && rel.Info.Status == release.StatusDeployed {
			current = rel
		}
	}
	if current == nil {
		// History is newest first.
		current = history[0]
	}

	if targetVersion == 0 {
		best := -1
		for _, rel := range history {
			if rel.Version < current.Version && rel.Version > best {
				best = rel.Version
			}
		}
		if best < 0 {
			return nil, current
		}
		targetVersion = best
	}
	for _, rel := range history {
		if rel.Version == targetVersion {
			return rel, current
		}
	}
	return nil, current
}

func toHookList(persisted []*release.Hook) []*hooks.Hook {
	out := make([]*hooks.Hook, 0, len(persisted))
	for _, h := range persisted {
		out = append(out, &hooks.Hook{
			Name:     h.Name,
			Manifest: h.Manifest,
			Kind:     h.Kind,
			Phases:   []hooks.Phase{hooks.Phase(h.Phase)},
			Weight:   h.Weight,
			Cleanup:  defaultCleanupPolicy,
			Failure:  defaultFailurePolicy,
		})
	}
	return out
}

var defaultCleanupPolicy = hooks.CleanupPolicy{Kind: hooks.CleanupBeforeNextRun}
var defaultFailurePolicy = hooks.FailurePolicy{Kind: hooks.FailureFailOperation}
