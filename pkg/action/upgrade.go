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
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"sherpack.sh/sherpack/pkg/chart"
	"sherpack.sh/sherpack/pkg/chartutil"
	"sherpack.sh/sherpack/pkg/hooks"
	"sherpack.sh/sherpack/pkg/release"
	"sherpack.sh/sherpack/pkg/storage/driver"
)

// UpgradeOptions configures an Upgrade call.
type UpgradeOptions struct {
	Wait        bool
	WaitTimeout time.Duration
	Atomic      bool
	Install     bool
	ReuseValues bool
	MaxHistory  int
}

// AddFlags binds UpgradeOptions to f, mirroring InstallOptions.AddFlags.
func (o *UpgradeOptions) AddFlags(f *pflag.FlagSet) {
	f.BoolVar(&o.Wait, "wait", false, "wait until all applied resources are ready before marking the release deployed")
	f.DurationVar(&o.WaitTimeout, "timeout", DefaultWaitTimeout, "time to wait for any individual Kubernetes operation")
	f.BoolVar(&o.Atomic, "atomic", false, "roll back to the previous release if the upgrade fails")
	f.BoolVar(&o.Install, "install", false, "install the release if it doesn't already exist")
	f.BoolVar(&o.ReuseValues, "reuse-values", false, "reuse the last release's values when no new values are given")
	f.IntVar(&o.MaxHistory, "history-max", 10, "limit the number of revisions saved per release; 0 keeps them all")
}

// Upgrade is the C11 upgrade operation.
type Upgrade struct {
	Cfg *Configuration
}

// NewUpgrade returns an Upgrade bound to cfg.
func NewUpgrade(cfg *Configuration) *Upgrade {
	return &Upgrade{Cfg: cfg}
}

// Run upgrades name to pack/values, or delegates to Install when no
// release exists and opts.Install is set.
func (u *Upgrade) Run(ctx context.Context, name string, pack *chart.Pack, values chartutil.Values, opts UpgradeOptions) (*release.Release, error) {
	if err := checkNoPendingOperation(ctx, u.Cfg.Storage, u.Cfg.Namespace, name); err != nil {
		return nil, err
	}

	// Upgrade builds on the Deployed record, or on the latest terminal
	// (Failed/Uninstalled/Superseded) record when none is Deployed.
	current, err := u.Cfg.Storage.Deployed(ctx, u.Cfg.Namespace, name)
	if errors.Is(err, driver.ErrReleaseNotFound) {
		current, err = u.Cfg.Storage.GetLatest(ctx, u.Cfg.Namespace, name)
	}
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			if opts.Install {
				return NewInstall(u.Cfg).Run(ctx, name, pack, values, InstallOptions{Wait: opts.Wait, WaitTimeout: opts.WaitTimeout, Atomic: opts.Atomic})
			}
			return nil, errors.Errorf("action: no release %q to upgrade", name)
		}
		return nil, err
	}

	if opts.ReuseValues && values == nil {
		values = chartutil.Values(current.Values)
	}

	tplContext := map[string]interface{}{
		"release": map[string]interface{}{"name": name, "namespace": u.Cfg.Namespace, "isUpgrade": true, "revision": current.Version + 1},
	}
	rr, err := render(pack, values, tplContext)
	if err != nil {
		return nil, err
	}

	nextVersion := current.Version + 1
	rel := &release.Release{
		Name:      name,
		Namespace: u.Cfg.Namespace,
		Version:   nextVersion,
		Chart:     chartMetaOf(pack),
		Values:    values,
		Manifest:  rr.manifest,
		Hooks:     persistedHooks(rr.hooks),
		Info:      &release.Info{Status: release.StatusPendingUpgrade, FirstDeployed: current.Info.FirstDeployed, LastDeployed: time.Now()},
	}
	if err := u.Cfg.Storage.Create(ctx, rel); err != nil {
		return nil, errors.Wrap(err, "action: failed to write pending-upgrade record")
	}
	if err := u.Cfg.Storage.Supersede(ctx, current); err != nil {
		return rel, errors.Wrap(err, "action: failed to supersede previous release")
	}

	if err := u.execute(ctx, rel, rr, opts); err != nil {
		// Mark the new revision Failed first: Rollback refuses to start
		// while a Pending record exists.
		rel.Info.Status = release.StatusFailed
		rel.Info.FailureReason = err.Error()
		_ = u.Cfg.Storage.Update(ctx, rel)
		if opts.Atomic {
			rollback, rbErr := NewRollback(u.Cfg).Run(ctx, name, current.Version, RollbackOptions{Wait: opts.Wait, WaitTimeout: opts.WaitTimeout})
			if rbErr == nil {
				return rollback, errors.Wrap(err, "action: upgrade failed, automatically rolled back")
			}
		}
		return rel, err
	}

	rel.Info.Status = release.StatusDeployed
	rel.Info.Notes = rr.notes
	rel.Info.LastDeployed = time.Now()
	if err := u.Cfg.Storage.Update(ctx, rel); err != nil {
		return rel, errors.Wrap(err, "action: failed to mark release deployed")
	}

	if err := enforceMaxHistory(ctx, u.Cfg.Storage, u.Cfg.Namespace, name, opts.MaxHistory); err != nil {
		return rel, errors.Wrap(err, "action: failed to enforce max history")
	}
	return rel, nil
}

func (u *Upgrade) execute(ctx context.Context, rel *release.Release, rr *renderedRelease, opts UpgradeOptions) error {
	if err := runHookPhase(ctx, u.Cfg, rel.Name, hooks.PhasePreUpgrade, rr.hooks, rel.Version, opts.WaitTimeout); err != nil {
		return errors.Wrap(err, "action: pre-upgrade hooks failed")
	}

	resources, err := applyResources(ctx, u.Cfg.Kube, rr.manifest, u.Cfg.Namespace, true)
	if err != nil {
		return err
	}

	if err := runHookPhase(ctx, u.Cfg, rel.Name, hooks.PhaseDuringUpgrade, rr.hooks, rel.Version, opts.WaitTimeout); err != nil {
		return errors.Wrap(err, "action: during-upgrade hooks failed")
	}

	if opts.Wait {
		if err := waitHealthy(ctx, u.Cfg, resources, opts.WaitTimeout); err != nil {
			return err
		}
	}

	if err := runHookPhase(ctx, u.Cfg, rel.Name, hooks.PhasePostUpgrade, rr.hooks, rel.Version, opts.WaitTimeout); err != nil {
		return errors.Wrap(err, "action: post-upgrade hooks failed")
	}
	return nil
}
