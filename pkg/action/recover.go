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

	"sherpack.sh/sherpack/pkg/release"
)

// Recover is the C11 recover operation: it is the only way to clear a
// stuck Pending record and let subsequent operations proceed.
type Recover struct {
	Cfg *Configuration
}

// NewRecover returns a Recover bound to cfg.
func NewRecover(cfg *Configuration) *Recover {
	return &Recover{Cfg: cfg}
}

// Run marks name's current Pending record Failed with a
// "manually recovered" reason. It is only valid when the current
// record is actually Pending.
func (r *Recover) Run(ctx context.Context, name string) (*release.Release, error) {
	pending, err := r.Cfg.Storage.Pending(ctx, r.Cfg.Namespace, name)
	if err != nil {
		return nil, errors.Wrapf(err, "action: no pending release %q to recover", name)
	}

	pending.Info.Status = release.StatusFailed
	pending.Info.FailureReason = "manually recovered"
	pending.Info.Recoverable = false
	pending.Info.LastDeployed = time.Now()
	if err := r.Cfg.Storage.Update(ctx, pending); err != nil {
		return nil, errors.Wrap(err, "action: failed to write recovered record")
	}
	return pending, nil
}
