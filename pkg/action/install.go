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
)

// InstallOptions configures an Install call.
type InstallOptions struct {
	Wait       bool
	WaitTimeout time.Duration
	Atomic     bool
	DryRun     bool
}

// AddFlags binds InstallOptions to f, for a future cobra command tree to
// register; no such tree is built here (CLI argument surface is out of
// scope), but the bindings are real so f.Parse actually populates o.
func (o *InstallOptions) AddFlags(f *pflag.FlagSet) {
	f.BoolVar(&o.Wait, "wait", false, "wait until all applied resources are ready before marking the release deployed")
	f.DurationVar(&o.WaitTimeout, "timeout", DefaultWaitTimeout, "time to wait for any individual Kubernetes operation")
	f.BoolVar(&o.Atomic, "atomic", false, "roll back by deleting the release's resources if the install fails")
	f.BoolVar(&o.DryRun, "dry-run", false, "render and return the release without installing it")
}

// Install is the C11 install operation.
type Install struct {
	Cfg *Configuration
}

// NewInstall returns an Install bound to cfg.
func NewInstall(cfg *Configuration) *Install {
	return &Install{Cfg: cfg}
}

// Run installs name from pack with values, rejecting if a release of
// that name already exists.
func (i *Install) Run(ctx context.Context, name string, pack *chart.Pack, values chartutil.Values, opts InstallOptions) (*release.Release, error) {
	exists, err := i.Cfg.Storage.Exists(ctx, i.Cfg.Namespace, name)
	if err != nil {
		return nil, errors.Wrap(err, "action: failed to check for existing release")
	}
	if exists {
		return nil, errors.Errorf("action: release %q already exists", name)
	}

	tplContext := map[string]interface{}{
		"release": map[string]interface{}{"name": name, "namespace": i.Cfg.Namespace, "isInstall": true},
	}
	rr, err := render(pack, values, tplContext)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		return &release.Release{
			Name: name, Namespace: i.Cfg.Namespace, Version: 1,
			Chart:  chartMetaOf(pack),
			Values: values,
			Manifest: rr.manifest,
			Info:   &release.Info{Status: release.StatusPendingInstall, Notes: rr.notes},
		}, nil
	}

	rel := &release.Release{
		Name:      name,
		Namespace: i.Cfg.Namespace,
		Version:   1,
		Chart:     chartMetaOf(pack),
		Values:    values,
		Manifest:  rr.manifest,
		Hooks:     persistedHooks(rr.hooks),
		Info:      &release.Info{Status: release.StatusPendingInstall, FirstDeployed: time.Now(), LastDeployed: time.Now()},
	}
	if err := i.Cfg.Storage.Create(ctx, rel); err != nil {
		return nil, errors.Wrap(err, "action: failed to write pending-install record")
	}

	if err := i.execute(ctx, rel, rr, opts); err != nil {
		if opts.Atomic {
			_ = deleteResources(ctx, i.Cfg.Kube, rr.manifest, i.Cfg.Namespace)
		}
		rel.Info.Status = release.StatusFailed
		rel.Info.FailureReason = err.Error()
		_ = i.Cfg.Storage.Update(ctx, rel)
		return rel, err
	}

	rel.Info.Status = release.StatusDeployed
	rel.Info.Notes = rr.notes
	rel.Info.LastDeployed = time.Now()
	if err := i.Cfg.Storage.Update(ctx, rel); err != nil {
		return rel, errors.Wrap(err, "action: failed to mark release deployed")
	}
	return rel, nil
}

func (i *Install) execute(ctx context.Context, rel *release.Release, rr *renderedRelease, opts InstallOptions) error {
	if err := runHookPhase(ctx, i.Cfg, rel.Name, hooks.PhasePreInstall, rr.hooks, rel.Version, opts.WaitTimeout); err != nil {
		return errors.Wrap(err, "action: pre-install hooks failed")
	}

	resources, err := applyResources(ctx, i.Cfg.Kube, rr.manifest, i.Cfg.Namespace, true)
	if err != nil {
		return err
	}

	if err := runHookPhase(ctx, i.Cfg, rel.Name, hooks.PhaseDuringInstall, rr.hooks, rel.Version, opts.WaitTimeout); err != nil {
		return errors.Wrap(err, "action: during-install hooks failed")
	}

	if opts.Wait {
		if err := waitHealthy(ctx, i.Cfg, resources, opts.WaitTimeout); err != nil {
			return err
		}
	}

	if err := runHookPhase(ctx, i.Cfg, rel.Name, hooks.PhasePostInstall, rr.hooks, rel.Version, opts.WaitTimeout); err != nil {
		return errors.Wrap(err, "action: post-install hooks failed")
	}
	return nil
}

func chartMetaOf(pack *chart.Pack) *release.ChartMeta {
	if pack.Metadata == nil {
		return nil
	}
	return &release.ChartMeta{Name: pack.Metadata.Name, Version: pack.Metadata.Version, AppVersion: pack.Metadata.AppVersion}
}

func persistedHooks(found []*hooks.Hook) []*release.Hook {
	out := make([]*release.Hook, 0, len(found))
	for _, h := range found {
		phase := ""
		if len(h.Phases) > 0 {
			phase = string(h.Phases[0])
		}
		out = append(out, &release.Hook{Name: h.Name, Kind: h.Kind, Manifest: h.Manifest, Phase: phase, Weight: h.Weight})
	}
	return out
}
