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

package driver

import (
	"context"
	"errors"

	"sherpack.sh/sherpack/pkg/release"
)

// ErrReleaseNotFound is returned by Get/GetLatest when no record matches.
var ErrReleaseNotFound = errors.New("storage: release not found")

// ErrReleaseExists is returned by Create when a record already exists at
// the target key.
var ErrReleaseExists = errors.New("storage: release already exists")

// ErrConcurrentWrite is returned by Update when the caller's
// ResourceVersion no longer matches the stored record (an optimistic
// concurrency conflict).
var ErrConcurrentWrite = errors.New("storage: concurrent write detected, reload and retry")

// Driver is the Release Store's backend contract. ns is always the
// release's namespace; name is the release name, never the storage key.
type Driver interface {
	Get(ctx context.Context, namespace, name string, version int) (*release.Release, error)
	GetLatest(ctx context.Context, namespace, name string) (*release.Release, error)
	List(ctx context.Context, namespace, name string, includeSuperseded bool) ([]*release.Release, error)
	History(ctx context.Context, namespace, name string) ([]*release.Release, error)
	Create(ctx context.Context, rel *release.Release) error
	Update(ctx context.Context, rel *release.Release) error
	Delete(ctx context.Context, namespace, name string, version int) error
	DeleteAll(ctx context.Context, namespace, name string) error
	Exists(ctx context.Context, namespace, name string) (bool, error)
}

// latest picks the highest-Version release from a list, or nil.
func latest(releases []*release.Release) *release.Release {
	var best *release.Release
	for _, r := range releases {
		if best == nil || r.Version > best.Version {
			best = r
		}
	}
	return best
}

// sortByVersionDesc returns releases newest-version-first, matching the
// history() contract's most-recent-first convention.
func sortByVersionDesc(releases []*release.Release) []*release.Release {
	out := make([]*release.Release, len(releases))
	copy(out, releases)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Version < out[j].Version; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
