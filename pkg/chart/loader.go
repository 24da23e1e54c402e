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

package chart

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// templateExtensions are the file extensions recognized under templates/.
var templateExtensions = map[string]bool{
	".yaml": true, ".yml": true, ".j2": true, ".jinja2": true, ".txt": true, ".json": true,
}

// schemaFileNames are the recognized schema file names, probed in order.
var schemaFileNames = []string{"values.schema.json", "values.schema.yaml", "schema.json", "schema.yaml"}

// LoadDir loads a pack rooted at dir from the local filesystem, recursively
// loading every subchart found under charts/. This is the trusted-local-path
// entry point; loading from an extracted archive or OCI blob goes through
// the sandboxed provider instead so path traversal inside the pack can't
// escape the extraction root.
func LoadDir(dir string) (*Pack, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "%s is not a valid path", dir)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("%s is not a directory", abs)
	}
	return loadDir(abs)
}

func loadDir(dir string) (*Pack, error) {
	metaPath := filepath.Join(dir, "Pack.yaml")
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, errors.Wrap(err, "Pack.yaml file is missing")
	}
	md := new(Metadata)
	if err := yaml.Unmarshal(metaBytes, md); err != nil {
		return nil, errors.Wrap(err, "cannot load Pack.yaml")
	}

	p := &Pack{Metadata: md, Values: map[string]interface{}{}}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(filepath.Join(dir, "values.yaml")); err == nil {
		values := map[string]interface{}{}
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, errors.Wrap(err, "cannot load values.yaml")
		}
		p.Values = values
	}

	if data, err := os.ReadFile(filepath.Join(dir, "Pack.lock")); err == nil {
		lock := new(Lock)
		if err := yaml.Unmarshal(data, lock); err != nil {
			return nil, errors.Wrap(err, "cannot load Pack.lock")
		}
		p.Lock = lock
	}

	for _, name := range schemaFileNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		p.Schema = data
		p.SchemaName = name
		break
	}

	p.Templates, err = loadFlatDir(filepath.Join(dir, "templates"), templateExtensions)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load templates")
	}
	p.CRDs, err = loadFlatDir(filepath.Join(dir, "crds"), nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load crds")
	}
	p.Files, err = loadRootFiles(dir)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load pack files")
	}

	deps, err := loadSubcharts(dir)
	if err != nil {
		return nil, err
	}
	for _, d := range deps {
		d.parent = p
	}
	p.Dependencies = deps

	return p, nil
}

// loadFlatDir recursively collects files under root, relative to root. When
// allowed is non-nil, only extensions present in it are kept; files and
// directories starting with "." are always skipped.
func loadFlatDir(root string, allowed map[string]bool) ([]*File, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, nil
	}
	var files []*File
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if allowed != nil && !allowed[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, &File{Name: filepath.ToSlash(rel), Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// loadRootFiles collects the files directly at the pack root that aren't
// one of the recognized structural names.
func loadRootFiles(dir string) ([]*File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	skip := map[string]bool{
		"pack.yaml": true, "pack.lock": true, "values.yaml": true,
		"templates": true, "crds": true, "charts": true,
	}
	for _, n := range schemaFileNames {
		skip[n] = true
	}
	var files []*File
	for _, e := range entries {
		if e.IsDir() || skip[strings.ToLower(e.Name())] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, &File{Name: e.Name(), Data: data})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// loadSubcharts loads every directory under charts/ as a nested Pack.
// Entries starting with "_" or "." are ignored, matching the helper-file
// convention used for templates.
func loadSubcharts(dir string) ([]*Pack, error) {
	chartsDir := filepath.Join(dir, "charts")
	entries, err := os.ReadDir(chartsDir)
	if err != nil {
		return nil, nil
	}
	var subs []*Pack
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), "_") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		sub, err := loadDir(filepath.Join(chartsDir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "error loading subchart %s", e.Name())
		}
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Name() < subs[j].Name() })
	return subs, nil
}
