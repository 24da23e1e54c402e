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

package chartutil

import (
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"sherpack.sh/sherpack/internal/template"
	"sherpack.sh/sherpack/pkg/chart"
	"sherpack.sh/sherpack/pkg/engine"
)

// DefaultMaxDepth bounds subchart recursion when a RenderOptions doesn't
// specify one.
const DefaultMaxDepth = 10

// SubchartInfo describes one subchart under a parent's charts/ directory,
// after the enablement rules in RenderPack have been applied.
type SubchartInfo struct {
	Name           string
	Pack           *chart.Pack
	Enabled        bool
	Dependency     *chart.Dependency
	DisabledReason string
}

// RenderOptions configures a RenderPack call.
type RenderOptions struct {
	// MaxDepth bounds subchart recursion; zero means DefaultMaxDepth.
	MaxDepth int
	// Lookup wires the "lookup" template function to a live cluster;
	// nil means lookup always returns an empty result.
	Lookup template.LookupFunc
}

// RenderResult is the flattened output of rendering a pack and every
// enabled subchart beneath it.
type RenderResult struct {
	// Templates maps a manifest name (subchart-prefixed for non-root
	// packs, e.g. "redis/templates/deployment.yaml") to its rendered text.
	Templates map[string]string
	// Names preserves the deterministic encounter order of Templates' keys.
	Names []string
	// Notes is the root pack's extracted NOTES text; subchart notes are
	// discarded.
	Notes string
	Report engine.RenderReport
	// Subcharts records, per recursion level, the SubchartInfo computed
	// for every directory under charts/ — including disabled ones, so a
	// caller can report why a subchart was skipped.
	Subcharts []SubchartInfo
}

// RenderPack renders pack and every enabled subchart beneath it, per the
// spec's subchart value-scoping and recursion rules. values is the final,
// already-coalesced (defaults + user overrides) Values tree for the root
// pack; context carries the non-values template variables ("release",
// "capabilities") forwarded unchanged to every subchart.
func RenderPack(pack *chart.Pack, values Values, context map[string]interface{}, opts RenderOptions) (*RenderResult, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	eng := &engine.Engine{Lookup: opts.Lookup}

	result := &RenderResult{Templates: map[string]string{}}
	var errs *multierror.Error

	if err := renderRecursive(eng, pack, values, context, "", 0, maxDepth, result, &errs); err != nil {
		return result, err
	}
	return result, errs.ErrorOrNil()
}

func renderRecursive(eng *engine.Engine, pack *chart.Pack, values Values, context map[string]interface{}, prefix string, depth, maxDepth int, result *RenderResult, errs **multierror.Error) error {
	if depth > maxDepth {
		return errors.Errorf("chartutil: subchart recursion exceeded max depth %d at %q", maxDepth, pack.Name())
	}

	ctx := map[string]interface{}{}
	for k, v := range context {
		ctx[k] = v
	}
	ctx["values"] = map[string]interface{}(values)
	ctx["pack"] = packContext(pack)

	rendered, err := eng.Render(pack, ctx)
	if err != nil {
		*errs = multierror.Append(*errs, err)
	}
	if rendered == nil {
		return nil
	}
	for _, tpl := range rendered.Templates {
		name := tpl.Name
		if prefix != "" {
			name = prefix + "/" + name
		}
		result.Names = append(result.Names, name)
		result.Templates[name] = tpl.Text
	}
	for k, v := range rendered.Report.ErrorsByTemplate {
		if result.Report.ErrorsByTemplate == nil {
			result.Report.ErrorsByTemplate = map[string]string{}
		}
		key := k
		if prefix != "" {
			key = prefix + "/" + k
		}
		result.Report.ErrorsByTemplate[key] = v
	}
	result.Report.Warnings = append(result.Report.Warnings, rendered.Report.Warnings...)
	for _, ok := range rendered.Report.SuccessfulTemplates {
		if prefix != "" {
			ok = prefix + "/" + ok
		}
		result.Report.SuccessfulTemplates = append(result.Report.SuccessfulTemplates, ok)
	}
	if depth == 0 {
		result.Notes = rendered.Notes
	}

	subcharts, err := ResolveSubcharts(pack, values)
	if err != nil {
		return err
	}
	result.Subcharts = append(result.Subcharts, subcharts...)

	for _, sub := range subcharts {
		if !sub.Enabled {
			continue
		}
		childValues, err := SubchartValues(sub.Pack, sub.Name, values)
		if err != nil {
			return err
		}
		childPrefix := sub.Name
		if prefix != "" {
			childPrefix = prefix + "/" + sub.Name
		}
		if err := renderRecursive(eng, sub.Pack, childValues, context, childPrefix, depth+1, maxDepth, result, errs); err != nil {
			return err
		}
	}
	return nil
}

func packContext(pack *chart.Pack) map[string]interface{} {
	if pack.Metadata == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"Name":       pack.Metadata.Name,
		"Version":    pack.Metadata.Version,
		"AppVersion": pack.Metadata.AppVersion,
	}
}

// ResolveSubcharts builds a SubchartInfo for every directory under the
// pack's charts/, applying the enablement rules in order: no dependency
// entry -> enabled; dependency.enabled == false -> disabled; a set
// dependency.condition evaluating false against values -> disabled;
// otherwise enabled.
func ResolveSubcharts(pack *chart.Pack, values Values) ([]SubchartInfo, error) {
	deps := pack.Dependencies
	out := make([]SubchartInfo, 0, len(deps))
	for _, sub := range deps {
		name := sub.Name()
		dep := findDependency(pack, name)

		info := SubchartInfo{Name: name, Pack: sub, Dependency: dep, Enabled: true}
		if dep != nil && dep.Alias != "" {
			info.Name = dep.Alias
		}

		switch {
		case dep == nil:
			// rule 1: no dependency entry -> enabled.
		case dep.Enabled != nil && !*dep.Enabled:
			info.Enabled = false
			info.DisabledReason = "statically disabled"
		case dep.Condition != "":
			v, ok := values.PathValue(dep.Condition)
			if !IsTruthy(v, ok) {
				info.Enabled = false
				info.DisabledReason = fmt.Sprintf("condition %q evaluated to false", dep.Condition)
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func findDependency(pack *chart.Pack, name string) *chart.Dependency {
	if pack.Metadata == nil {
		return nil
	}
	for _, d := range pack.Metadata.Dependencies {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// SubchartValues computes a subchart's scoped values tree: S.values.yaml,
// deep-merged under parent.values.global (itself merged under "global"),
// deep-merged with parent.values[name] at the root. name is the effective
// name (alias, if the parent's dependency entry set one; otherwise the
// subchart's own name) — the key a parent's values.yaml addresses it by.
func SubchartValues(sub *chart.Pack, name string, parentValues Values) (Values, error) {
	child := Values(sub.Values)
	if child == nil {
		child = Values{}
	}

	if global, ok := parentValues["global"]; ok {
		if globalMap, ok := asMap(global); ok {
			child = Merge(child, Values{"global": globalMap})
		}
	}

	if scoped, ok := parentValues[name]; ok {
		if scopedMap, ok := asMap(scoped); ok {
			child = Merge(child, Values(scopedMap))
		}
	}

	return child, nil
}
