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

	"sherpack.sh/sherpack/pkg/hooks"
	"sherpack.sh/sherpack/pkg/release"
)

// UninstallOptions configures an Uninstall call.
type UninstallOptions struct {
	KeepHistory bool
	Timeout     time.Duration
}

// AddFlags binds UninstallOptions to f, mirroring InstallOptions.AddFlags.
func (o *UninstallOptions) AddFlags(f *pflag.FlagSet) {
	f.BoolVar(&o.KeepHistory, "keep-history", false, "retain release history after uninstall")
	f.DurationVar(&o.Timeout, "timeout", DefaultWaitTimeout, "time to wait for any individual Kubernetes operation")
}

// Uninstall is the C11 uninstall operation. CRD deletion is never
// implicit here: a caller that also wants CRDs removed must do so
// explicitly via pkg/crd, after its own DeletionImpact analysis.
type Uninstall struct {
	Cfg *Configuration
}

// NewUninstall returns an Uninstall bound to cfg.
func NewUninstall(cfg *Configuration) *Uninstall {
	return &Uninstall{Cfg: cfg}
}

// Run uninstalls name.
func (u *Uninstall) Run(ctx context.Context, name string, opts UninstallOptions) (*release.Release, error) {
	if err := checkNoPendingOperation(ctx, u.Cfg.Storage, u.Cfg.Namespace, name); err != nil {
		return nil, err
	}

	current, err := u.Cfg.Storage.Deployed(ctx, u.Cfg.Namespace, name)
	if err != nil {
		return nil, errors.Wrapf(err, "action: no deployed release %q to uninstall", name)
	}

	current.Info.Status = release.StatusPendingUninstall
	if err := u.Cfg.Storage.Update(ctx, current); err != nil {
		return nil, errors.Wrap(err, "action: failed to write pending-uninstall record")
	}

	found := toHookList(current.Hooks)
	if err := runHookPhase(ctx, u.Cfg, name, hooks.PhasePreDelete, found, current.Version, opts.Timeout); err != nil {
		current.Info.Status = release.StatusFailed
		current.Info.FailureReason = err.Error()
		_ = u.Cfg.Storage.Update(ctx, current)
		return current, errors.Wrap(err, "action: pre-delete hooks failed")
	}

	if err := deleteResources(ctx, u.Cfg.Kube, current.Manifest, u.Cfg.Namespace); err != nil {
		current.Info.Status = release.StatusFailed
		current.Info.FailureReason = err.Error()
		_ = u.Cfg.Storage.Update(ctx, current)
		return current, err
	}

	if err := runHookPhase(ctx, u.Cfg, name, hooks.PhasePostDelete, found, current.Version, opts.Timeout); err != nil {
		current.Info.Status = release.StatusFailed
		current.Info.FailureReason = err.Error()
		_ = u.Cfg.Storage.Update(ctx, current)
		return current, errors.Wrap(err, "action: post-delete hooks failed")
	}

	current.Info.Status = release.StatusUninstalled
	current.Info.Deleted = time.Now()
	if err := u.Cfg.Storage.Update(ctx, current); err != nil {
		return current, errors.Wrap(err, "action: failed to mark release uninstalled")
	}

	if !opts.KeepHistory {
		if err := u.Cfg.Storage.DeleteAll(ctx, u.Cfg.Namespace, name); err != nil {
			return current, errors.Wrap(err, "action: failed to delete release history")
		}
	}
	return current, nil
}
