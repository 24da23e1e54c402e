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

// Package sandbox provides read-only, path-contained access to the files of
// a pack directory. Every read is resolved against the pack root with
// symlink-safe containment, so a malicious template or subchart path cannot
// read anything outside its own pack.
package sandbox

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"sherpack.sh/sherpack/internal/sympath"
	"sherpack.sh/sherpack/pkg/cache"
)

// ErrAbsolutePath is returned when a caller passes an absolute path where a
// pack-relative one is required.
var ErrAbsolutePath = errors.New("sandbox: path must be relative to the pack root")

// ErrOutsideRoot is returned when a resolved path (after following symlinks)
// would escape the pack root.
var ErrOutsideRoot = errors.New("sandbox: resolved path escapes the pack root")

// ErrInvalidUTF8 is returned by GetString when the file's bytes are not
// valid UTF-8.
var ErrInvalidUTF8 = errors.New("sandbox: file is not valid UTF-8")

// FileEntry describes one file returned by Glob.
type FileEntry struct {
	Path    string // relative to the pack root, slash-separated
	Name    string // base name
	Content []byte
	Size    int
}

// Provider is a sandboxed, read-only view of one pack directory.
type Provider struct {
	root  string
	cache cache.Cache[[]byte]
}

// New builds a Provider rooted at dir. dir must already be a canonical,
// trusted path (e.g. the result of chart.LoadDir's own directory
// resolution); Provider itself only guards paths requested *within* root.
func New(dir string) (*Provider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "sandbox: %s is not a valid path", dir)
	}
	return &Provider{root: abs, cache: cache.NewConcurrentMapCache[[]byte]()}, nil
}

// resolve validates relative and returns its canonical, contained absolute
// path. It rejects absolute input and any resolution (including through
// symlinks) that lands outside the root.
func (p *Provider) resolve(relative string) (string, error) {
	if filepath.IsAbs(relative) || strings.HasPrefix(relative, "/") {
		return "", ErrAbsolutePath
	}
	joined, err := securejoin.SecureJoin(p.root, relative)
	if err != nil {
		return "", errors.Wrap(ErrOutsideRoot, err.Error())
	}
	rootWithSep := p.root + string(filepath.Separator)
	if joined != p.root && !strings.HasPrefix(joined, rootWithSep) {
		return "", ErrOutsideRoot
	}
	return joined, nil
}

// Get reads a file's raw bytes, relative to the pack root.
func (p *Provider) Get(relative string) ([]byte, error) {
	if cached, ok := p.cache.Get(relative); ok {
		return cached, nil
	}
	abs, err := p.resolve(relative)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	p.cache.Set(relative, data)
	return data, nil
}

// GetString reads a file and requires it to be valid UTF-8.
func (p *Provider) GetString(relative string) (string, error) {
	data, err := p.Get(relative)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}
	return string(data), nil
}

// Exists reports whether relative names a readable file within the pack
// root. Any error resolving or stat-ing the path is treated as not-exists.
func (p *Provider) Exists(relative string) bool {
	abs, err := p.resolve(relative)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Lines reads a file and splits it into lines, dropping a single trailing
// empty line caused by a final newline.
func (p *Provider) Lines(relative string) ([]string, error) {
	content, err := p.GetString(relative)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, nil
	}
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines, nil
}

// Glob returns every file under the pack root whose path matches pattern
// (a gobwas/glob pattern, "/"-separated, matched against the path relative
// to the root). Results are sorted by path for deterministic rendering.
func (p *Provider) Glob(pattern string) ([]FileEntry, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, errors.Wrapf(err, "sandbox: invalid glob %q", pattern)
	}

	var entries []FileEntry
	walkErr := sympath.Walk(p.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info == nil || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !g.Match(rel) {
			return nil
		}
		data, err := p.Get(rel)
		if err != nil {
			return err
		}
		entries = append(entries, FileEntry{
			Path:    rel,
			Name:    filepath.Base(rel),
			Content: data,
			Size:    len(data),
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
