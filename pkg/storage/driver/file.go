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
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"sherpack.sh/sherpack/pkg/release"
)

// File is a local on-disk driver, useful for dry-run or single-node
// workflows where a cluster round trip for every write is unwanted. Each
// record is gzip-compressed JSON (the cluster drivers default to zstd),
// with no base64 or chunking: disk files have no ~1 MiB object size
// ceiling to work around. Update does not compare ResourceVersion, so
// this driver never returns ErrConcurrentWrite.
type File struct {
	// BaseDir roots the layout: {BaseDir}/{namespace}/{name}.v{version}.json.gz
	BaseDir string
}

// NewFile returns a File driver rooted at baseDir.
func NewFile(baseDir string) *File {
	return &File{BaseDir: baseDir}
}

var _ Driver = (*File)(nil)

func (d *File) path(namespace, name string, version int) string {
	return filepath.Join(d.BaseDir, namespace, fmt.Sprintf("%s.v%d.json.gz", name, version))
}

func (d *File) Get(_ context.Context, namespace, name string, version int) (*release.Release, error) {
	b, err := os.ReadFile(d.path(namespace, name, version))
	if os.IsNotExist(err) {
		return nil, ErrReleaseNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "storage: failed to read release file")
	}
	return decodeFileRecord(b)
}

func (d *File) GetLatest(ctx context.Context, namespace, name string) (*release.Release, error) {
	releases, err := d.History(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	if r := latest(releases); r != nil {
		return r, nil
	}
	return nil, ErrReleaseNotFound
}

func (d *File) List(_ context.Context, namespace, name string, includeSuperseded bool) ([]*release.Release, error) {
	var out []*release.Release
	namespaces := []string{namespace}
	if namespace == "" {
		entries, err := os.ReadDir(d.BaseDir)
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "storage: failed to list release directory")
		}
		namespaces = nil
		for _, e := range entries {
			if e.IsDir() {
				namespaces = append(namespaces, e.Name())
			}
		}
	}

	for _, ns := range namespaces {
		nsDir := filepath.Join(d.BaseDir, ns)
		entries, err := os.ReadDir(nsDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "storage: failed to list release directory")
		}
		for _, e := range entries {
			relName, _, ok := parseFileName(e.Name())
			if !ok {
				continue
			}
			if name != "" && relName != name {
				continue
			}
			b, err := os.ReadFile(filepath.Join(nsDir, e.Name()))
			if err != nil {
				return nil, errors.Wrap(err, "storage: failed to read release file")
			}
			rel, err := decodeFileRecord(b)
			if err != nil {
				return nil, err
			}
			if !includeSuperseded && rel.Info != nil && rel.Info.Status == release.StatusSuperseded {
				continue
			}
			out = append(out, rel)
		}
	}
	return out, nil
}

func (d *File) History(ctx context.Context, namespace, name string) ([]*release.Release, error) {
	releases, err := d.List(ctx, namespace, name, true)
	if err != nil {
		return nil, err
	}
	return sortByVersionDesc(releases), nil
}

func (d *File) Create(_ context.Context, rel *release.Release) error {
	p := d.path(rel.Namespace, rel.Name, rel.Version)
	if _, err := os.Stat(p); err == nil {
		return ErrReleaseExists
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "storage: failed to create release directory")
	}
	b, err := encodeFileRecord(rel)
	if err != nil {
		return err
	}
	rel.ResourceVersion = "1"
	return os.WriteFile(p, b, 0o644)
}

func (d *File) Update(_ context.Context, rel *release.Release) error {
	p := d.path(rel.Namespace, rel.Name, rel.Version)
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return ErrReleaseNotFound
	}
	b, err := encodeFileRecord(rel)
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o644)
}

func (d *File) Delete(_ context.Context, namespace, name string, version int) error {
	p := d.path(namespace, name, version)
	if err := os.Remove(p); os.IsNotExist(err) {
		return ErrReleaseNotFound
	} else if err != nil {
		return errors.Wrap(err, "storage: failed to delete release file")
	}
	return nil
}

func (d *File) DeleteAll(ctx context.Context, namespace, name string) error {
	releases, err := d.List(ctx, namespace, name, true)
	if err != nil {
		return err
	}
	for _, r := range releases {
		if err := d.Delete(ctx, r.Namespace, r.Name, r.Version); err != nil {
			return err
		}
	}
	return nil
}

func (d *File) Exists(ctx context.Context, namespace, name string) (bool, error) {
	releases, err := d.List(ctx, namespace, name, true)
	if err != nil {
		return false, err
	}
	return len(releases) > 0, nil
}

func parseFileName(base string) (name string, version int, ok bool) {
	if !strings.HasSuffix(base, ".json.gz") {
		return "", 0, false
	}
	trimmed := strings.TrimSuffix(base, ".json.gz")
	idx := strings.LastIndex(trimmed, ".v")
	if idx < 0 {
		return "", 0, false
	}
	v, err := strconv.Atoi(trimmed[idx+2:])
	if err != nil {
		return "", 0, false
	}
	return trimmed[:idx], v, true
}

func encodeFileRecord(rel *release.Release) ([]byte, error) {
	record := toRecord(rel)
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Wrap(err, "storage: failed to marshal release record")
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, errors.Wrap(err, "storage: gzip compression failed")
	}
	if err := gw.Close(); err != nil {
		return nil, errors.Wrap(err, "storage: gzip compression failed")
	}
	return buf.Bytes(), nil
}

func decodeFileRecord(b []byte) (*release.Release, error) {
	gr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "storage: gzip decompression failed")
	}
	defer gr.Close()
	raw, err := io.ReadAll(gr)
	if err != nil {
		return nil, errors.Wrap(err, "storage: gzip decompression failed")
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errors.Wrap(err, "storage: failed to unmarshal release record")
	}
	return fromRecord(&record), nil
}
