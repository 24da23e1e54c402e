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
	"fmt"
	"sync"

	"sherpack.sh/sherpack/pkg/release"
)

// Mock is an in-memory Driver for unit tests; it skips compression and
// chunking entirely (there is no wire format to round-trip) but enforces
// the same key, existence, and concurrency semantics as the real drivers.
type Mock struct {
	mu   sync.Mutex
	data map[string]*release.Release
	rv   int
}

// NewMock returns an empty Mock driver.
func NewMock() *Mock {
	return &Mock{data: map[string]*release.Release{}}
}

func mockKey(namespace, name string, version int) string {
	return fmt.Sprintf("%s/%s", namespace, release.StorageKey(name, version))
}

func (m *Mock) Get(_ context.Context, namespace, name string, version int) (*release.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[mockKey(namespace, name, version)]
	if !ok {
		return nil, ErrReleaseNotFound
	}
	return r, nil
}

func (m *Mock) GetLatest(ctx context.Context, namespace, name string) (*release.Release, error) {
	releases, err := m.History(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	if r := latest(releases); r != nil {
		return r, nil
	}
	return nil, ErrReleaseNotFound
}

func (m *Mock) List(_ context.Context, namespace, name string, includeSuperseded bool) ([]*release.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*release.Release
	for _, r := range m.data {
		if namespace != "" && r.Namespace != namespace {
			continue
		}
		if name != "" && r.Name != name {
			continue
		}
		if !includeSuperseded && r.Info != nil && r.Info.Status == release.StatusSuperseded {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Mock) History(ctx context.Context, namespace, name string) ([]*release.Release, error) {
	releases, err := m.List(ctx, namespace, name, true)
	if err != nil {
		return nil, err
	}
	return sortByVersionDesc(releases), nil
}

func (m *Mock) Create(_ context.Context, rel *release.Release) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mockKey(rel.Namespace, rel.Name, rel.Version)
	if _, ok := m.data[k]; ok {
		return ErrReleaseExists
	}
	m.rv++
	rel.ResourceVersion = fmt.Sprintf("%d", m.rv)
	m.data[k] = rel
	return nil
}

func (m *Mock) Update(_ context.Context, rel *release.Release) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mockKey(rel.Namespace, rel.Name, rel.Version)
	cur, ok := m.data[k]
	if !ok {
		return ErrReleaseNotFound
	}
	if rel.ResourceVersion != "" && cur.ResourceVersion != rel.ResourceVersion {
		return ErrConcurrentWrite
	}
	m.rv++
	rel.ResourceVersion = fmt.Sprintf("%d", m.rv)
	m.data[k] = rel
	return nil
}

func (m *Mock) Delete(_ context.Context, namespace, name string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mockKey(namespace, name, version)
	if _, ok := m.data[k]; !ok {
		return ErrReleaseNotFound
	}
	delete(m.data, k)
	return nil
}

func (m *Mock) DeleteAll(ctx context.Context, namespace, name string) error {
	releases, err := m.List(ctx, namespace, name, true)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range releases {
		delete(m.data, mockKey(r.Namespace, r.Name, r.Version))
	}
	return nil
}

func (m *Mock) Exists(ctx context.Context, namespace, name string) (bool, error) {
	releases, err := m.List(ctx, namespace, name, true)
	if err != nil {
		return false, err
	}
	return len(releases) > 0, nil
}
