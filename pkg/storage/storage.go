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

// Package storage is the Release Store's caller-facing surface: a thin
// wrapper around a driver.Driver that adds the state-machine helpers the
// Lifecycle Orchestrator needs (next version, marking a deployed release
// superseded) on top of the driver's raw CRUD.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"sherpack.sh/sherpack/pkg/release"
	"sherpack.sh/sherpack/pkg/storage/driver"
)

// Storage is the Release Store.
type Storage struct {
	Driver driver.Driver
}

// New wraps d as a Storage.
func New(d driver.Driver) *Storage {
	return &Storage{Driver: d}
}

func (s *Storage) Get(ctx context.Context, namespace, name string, version int) (*release.Release, error) {
	return s.Driver.Get(ctx, namespace, name, version)
}

func (s *Storage) GetLatest(ctx context.Context, namespace, name string) (*release.Release, error) {
	return s.Driver.GetLatest(ctx, namespace, name)
}

func (s *Storage) List(ctx context.Context, namespace, name string, includeSuperseded bool) ([]*release.Release, error) {
	return s.Driver.List(ctx, namespace, name, includeSuperseded)
}

func (s *Storage) History(ctx context.Context, namespace, name string) ([]*release.Release, error) {
	return s.Driver.History(ctx, namespace, name)
}

func (s *Storage) Create(ctx context.Context, rel *release.Release) error {
	return s.Driver.Create(ctx, rel)
}

func (s *Storage) Update(ctx context.Context, rel *release.Release) error {
	return s.Driver.Update(ctx, rel)
}

func (s *Storage) Delete(ctx context.Context, namespace, name string, version int) error {
	return s.Driver.Delete(ctx, namespace, name, version)
}

func (s *Storage) DeleteAll(ctx context.Context, namespace, name string) error {
	return s.Driver.DeleteAll(ctx, namespace, name)
}

func (s *Storage) Exists(ctx context.Context, namespace, name string) (bool, error) {
	return s.Driver.Exists(ctx, namespace, name)
}

// NextVersion returns one past the highest version on record for
// namespace/name, or 1 when there is no history yet.
func (s *Storage) NextVersion(ctx context.Context, namespace, name string) (int, error) {
	latest, err := s.Driver.GetLatest(ctx, namespace, name)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return 1, nil
		}
		return 0, err
	}
	return latest.Version + 1, nil
}

// Deployed returns the current Deployed record for namespace/name, if
// any; the at-most-one-non-superseded invariant means at most one
// history entry can be in this state at a time.
func (s *Storage) Deployed(ctx context.Context, namespace, name string) (*release.Release, error) {
	history, err := s.Driver.History(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	for _, r := range history {
		if r.Info != nil && r.Info.Status == release.StatusDeployed {
			return r, nil
		}
	}
	return nil, driver.ErrReleaseNotFound
}

// Pending returns the current in-flight (Pending*) record for
// namespace/name, if any.
func (s *Storage) Pending(ctx context.Context, namespace, name string) (*release.Release, error) {
	history, err := s.Driver.History(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	for _, r := range history {
		if r.Info != nil && r.Info.Status.IsPending() {
			return r, nil
		}
	}
	return nil, driver.ErrReleaseNotFound
}

// Supersede marks rel Superseded and persists it; callers invoke this on
// the previously Deployed record when a new operation's Pending record
// is created, keeping the at-most-one-non-superseded invariant intact.
func (s *Storage) Supersede(ctx context.Context, rel *release.Release) error {
	rel.Info.Status = release.StatusSuperseded
	return s.Driver.Update(ctx, rel)
}
