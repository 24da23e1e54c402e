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
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"sherpack.sh/sherpack/pkg/health"
	"sherpack.sh/sherpack/pkg/release"
)

// Query groups the orchestrator's pure-read operations: list, history,
// status, diff, and health.
type Query struct {
	Cfg *Configuration
}

// NewQuery returns a Query bound to cfg.
func NewQuery(cfg *Configuration) *Query {
	return &Query{Cfg: cfg}
}

// List returns every release name's current (non-superseded) record
// under the configured namespace.
func (q *Query) List(ctx context.Context) ([]*release.Release, error) {
	return q.Cfg.Storage.List(ctx, q.Cfg.Namespace, "", false)
}

// History returns every recorded revision of name, newest first.
func (q *Query) History(ctx context.Context, name string) ([]*release.Release, error) {
	return q.Cfg.Storage.History(ctx, q.Cfg.Namespace, name)
}

// Status returns name's latest revision record, whatever its status.
func (q *Query) Status(ctx context.Context, name string) (*release.Release, error) {
	return q.Cfg.Storage.GetLatest(ctx, q.Cfg.Namespace, name)
}

// Diff returns a unified, line-based diff between two releases'
// manifests (typically the Deployed revision and a candidate render).
func (q *Query) Diff(from, to *release.Release) string {
	fromLines := strings.Split(from.Manifest, "\n")
	toLines := strings.Split(to.Manifest, "\n")
	return unifiedDiff(fromLines, toLines)
}

// unifiedDiff is a minimal line-based diff (no hunk context
// collapsing): every line present only on one side is marked -/+,
// shared lines are marked unchanged. It favors readability for
// release manifests, which are usually small, over a full LCS diff.
func unifiedDiff(from, to []string) string {
	var b strings.Builder
	fromSet := map[string]int{}
	for _, l := range from {
		fromSet[l]++
	}
	toSet := map[string]int{}
	for _, l := range to {
		toSet[l]++
	}

	i, j := 0, 0
	for i < len(from) && j < len(to) {
		switch {
		case from[i] == to[j]:
			fmt.Fprintf(&b, "  %s\n", from[i])
			i++
			j++
		case toSet[from[i]] == 0:
			fmt.Fprintf(&b, "- %s\n", from[i])
			i++
		default:
			fmt.Fprintf(&b, "+ %s\n", to[j])
			j++
		}
	}
	for ; i < len(from); i++ {
		fmt.Fprintf(&b, "- %s\n", from[i])
	}
	for ; j < len(to); j++ {
		fmt.Fprintf(&b, "+ %s\n", to[j])
	}
	return b.String()
}

// Health checks rel's currently-applied resources for readiness.
func (q *Query) Health(ctx context.Context, rel *release.Release, timeout time.Duration) ([]health.Result, error) {
	if q.Cfg.Health == nil {
		return nil, errors.New("action: no health checker configured")
	}
	resources, err := q.Cfg.Kube.Build(rel.Manifest, rel.Namespace)
	if err != nil {
		return nil, errors.Wrap(err, "action: failed to parse release manifest")
	}
	targets := make([]health.Target, 0, len(resources))
	for _, r := range resources {
		ns := r.Namespace
		if !r.Namespaced {
			ns = ""
		}
		targets = append(targets, health.Target{GVR: r.GVR, Namespace: ns, Name: r.Name})
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	return q.Cfg.Health.WaitHealthy(ctx, targets, timeout)
}
