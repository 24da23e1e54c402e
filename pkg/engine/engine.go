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

// Package engine renders a pack's templates against a values/release
// context, using the Jinja2-like engine in internal/template.
package engine

import (
	"path"
	"sort"
	"strings"

	multierror "github.com/hashicorp/go-multierror"

	"sherpack.sh/sherpack/internal/template"
	"sherpack.sh/sherpack/pkg/chart"
)

// RenderedTemplate is one successfully rendered, non-empty output document.
type RenderedTemplate struct {
	Name string
	Text string
}

// RenderReport summarizes what happened across every template in a render,
// independent of whether the overall render is considered a failure.
type RenderReport struct {
	ErrorsByTemplate    map[string]string
	Warnings            []string
	SuccessfulTemplates []string
}

// Result is the outcome of rendering a whole pack tree.
type Result struct {
	Templates []RenderedTemplate
	Notes     string
	Report    RenderReport
}

// Engine renders packs. The zero value is ready to use; Lookup may be set
// to wire the "lookup" template function to a live cluster.
type Engine struct {
	Lookup template.LookupFunc
}

// New returns an Engine with no cluster connectivity wired in; its
// "lookup" calls always return an empty result.
func New() *Engine {
	return &Engine{}
}

// Render implements the render_pack_collect_errors contract for a single
// pack (no subchart recursion; that is pkg/engine's caller's job, see
// pkg/chartutil's pack renderer). context supplies the top-level template
// variables (typically "values", "release", "capabilities", "pack").
func (e *Engine) Render(pack *chart.Pack, context map[string]interface{}) (*Result, error) {
	type loaded struct {
		name  string
		nodes []template.Node
	}

	report := RenderReport{ErrorsByTemplate: map[string]string{}}
	var parsed []loaded
	var errs *multierror.Error

	names := templateNames(pack)
	for _, name := range names {
		if strings.HasPrefix(path.Base(name), "_") {
			continue
		}
		file := findFile(pack.Templates, name)
		nodes, err := template.Parse(string(file.Data))
		if err != nil {
			report.ErrorsByTemplate[name] = err.Error()
			errs = multierror.Append(errs, err)
			continue
		}
		parsed = append(parsed, loaded{name: name, nodes: nodes})
	}

	result := &Result{Report: report}
	for _, tpl := range parsed {
		env := template.NewEnv(context, template.DefaultFuncMap(e.Lookup), template.DefaultFilterMap())
		out, err := template.Render(tpl.nodes, env)
		if err != nil {
			result.Report.ErrorsByTemplate[tpl.name] = err.Error()
			errs = multierror.Append(errs, err)
			continue
		}
		result.Report.SuccessfulTemplates = append(result.Report.SuccessfulTemplates, tpl.name)

		if isEmptyManifest(out) {
			continue
		}
		if strings.Contains(strings.ToLower(path.Base(tpl.name)), "notes") {
			if result.Notes == "" {
				result.Notes = strings.TrimSpace(out)
			}
			continue
		}
		result.Templates = append(result.Templates, RenderedTemplate{Name: tpl.name, Text: out})
	}

	if errs != nil {
		return result, errs.ErrorOrNil()
	}
	return result, nil
}

// isEmptyManifest matches the "empty or single '---' output" drop rule.
func isEmptyManifest(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return true
	}
	for _, doc := range strings.Split(trimmed, "---") {
		if strings.TrimSpace(doc) != "" {
			return false
		}
	}
	return true
}

// templateNames returns the pack's template file names, deterministically
// sorted; pack.Templates is already sorted by the loader, but Render does
// not depend on that invariant holding for every caller.
func templateNames(pack *chart.Pack) []string {
	names := make([]string, 0, len(pack.Templates))
	for _, f := range pack.Templates {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func findFile(files []*chart.File, name string) *chart.File {
	for _, f := range files {
		if f.Name == name {
			return f
		}
	}
	return &chart.File{Name: name}
}
