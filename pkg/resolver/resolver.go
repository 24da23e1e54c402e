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

// Package resolver walks a pack's dependency tree, filters entries per
// their enabled/resolve/condition rules, and detects diamond version
// conflicts across the resulting graph. Fetching a dependency's candidate
// versions from a remote repository index is outside this package's
// scope (see spec Non-goals); resolution works over packs already loaded
// into memory by pkg/chart's loader.
package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"sherpack.sh/sherpack/pkg/chart"
	"sherpack.sh/sherpack/pkg/chartutil"
)

// Requirement records one edge in the dependency graph: requirer depends
// on a node under constraint.
type Requirement struct {
	Requirer   string
	Constraint string
}

// Node is one resolved dependency: an effective name (alias, if set),
// the concrete pack backing it, and every requirer that pulled it in.
type Node struct {
	Name         string
	Pack         *chart.Pack
	Version      string
	Requirements []Requirement
}

// Graph is the result of a full resolve: the node set plus install order
// (dependencies before dependents).
type Graph struct {
	Nodes   map[string]*Node
	Order   []*Node
	Skipped []Skip
}

// Skip records a dependency excluded by Stage A's filter rules.
type Skip struct {
	Name   string
	Reason string
}

// ConflictError reports a diamond dependency: two requirers of the same
// effective name disagree on a satisfiable version.
type ConflictError struct {
	Name         string
	Version      string
	Requirements []Requirement
	NewConstraint string
	NewRequirer   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resolver: diamond conflict on %q: version %s (required by %v) does not satisfy constraint %q from %q",
		e.Name, e.Version, e.Requirements, e.NewConstraint, e.NewRequirer)
}

// Resolve filters root's dependency tree per Stage A's enabled/resolve/
// condition rules, then walks the survivors breadth-first, flattening the
// whole subchart tree into a single graph and failing on the first
// diamond conflict it finds. values is the already-coalesced root Values
// tree the condition paths are evaluated against.
func Resolve(root *chart.Pack, values chartutil.Values) (*Graph, error) {
	g := &Graph{Nodes: map[string]*Node{}}

	type queued struct {
		parent   *chart.Pack
		sub      *chart.Pack
		values   chartutil.Values
		requirer string
	}

	queue := []queued{}
	for _, sub := range root.Dependencies {
		queue = append(queue, queued{parent: root, sub: sub, values: values, requirer: root.Name()})
	}

	var order []string
	visiting := map[string]bool{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		dep := findDependency(cur.parent, cur.sub.Name())
		name := cur.sub.Name()
		if dep != nil && dep.Alias != "" {
			name = dep.Alias
		}

		skip, reason := filterDependency(dep, cur.values, name)
		if skip {
			g.Skipped = append(g.Skipped, Skip{Name: name, Reason: reason})
			continue
		}

		constraint := "*"
		if dep != nil && dep.Version != "" {
			constraint = dep.Version
		}

		if existing, ok := g.Nodes[name]; ok {
			ok, err := satisfies(existing.Version, constraint)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &ConflictError{
					Name:          name,
					Version:       existing.Version,
					Requirements:  existing.Requirements,
					NewConstraint: constraint,
					NewRequirer:   cur.requirer,
				}
			}
			existing.Requirements = append(existing.Requirements, Requirement{Requirer: cur.requirer, Constraint: constraint})
			continue
		}

		if visiting[name] {
			// cycle: break by skipping on revisit, and record it.
			g.Skipped = append(g.Skipped, Skip{Name: name, Reason: "dependency cycle detected"})
			continue
		}
		visiting[name] = true

		node := &Node{
			Name:    name,
			Pack:    cur.sub,
			Version: cur.sub.Metadata.Version,
			Requirements: []Requirement{
				{Requirer: cur.requirer, Constraint: constraint},
			},
		}
		g.Nodes[name] = node
		order = append(order, name)

		childValues, _ := chartutil.SubchartValues(cur.sub, name, cur.values)
		for _, grandchild := range cur.sub.Dependencies {
			queue = append(queue, queued{parent: cur.sub, sub: grandchild, values: childValues, requirer: name})
		}
	}

	// order currently lists parents before children (BFS discovery order);
	// install order needs dependencies before dependents, so children
	// resolved later in the walk must sort before their requirers. A
	// stable reverse of discovery order satisfies this for a tree.
	for i := len(order) - 1; i >= 0; i-- {
		g.Order = append(g.Order, g.Nodes[order[i]])
	}
	return g, nil
}

func filterDependency(dep *chart.Dependency, values chartutil.Values, name string) (skip bool, reason string) {
	if dep == nil {
		return false, ""
	}
	if dep.Enabled != nil && !*dep.Enabled {
		return true, "statically disabled"
	}
	switch dep.Resolve {
	case "never":
		return true, "resolve policy is never"
	case "always":
		return false, ""
	default:
		if dep.Condition == "" {
			return false, ""
		}
		v, ok := values.PathValue(dep.Condition)
		if !chartutil.IsTruthy(v, ok) {
			return true, fmt.Sprintf("condition %q evaluated to false", dep.Condition)
		}
		return false, ""
	}
}

func satisfies(version, constraint string) (bool, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, errors.Wrapf(err, "resolver: invalid version %q", version)
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, errors.Wrapf(err, "resolver: invalid constraint %q", constraint)
	}
	return c.Check(v), nil
}

func findDependency(pack *chart.Pack, name string) *chart.Dependency {
	if pack == nil || pack.Metadata == nil {
		return nil
	}
	for _, d := range pack.Metadata.Dependencies {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Digest hashes a pack's Metadata the same way a lock file verifies
// staleness against the current Pack.yaml: marshal to YAML, SHA-256, hex.
func Digest(meta *chart.Metadata) (string, error) {
	b, err := yaml.Marshal(meta)
	if err != nil {
		return "", errors.Wrap(err, "resolver: failed to marshal metadata for digest")
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// BuildLock serializes a resolved graph into a chart.Lock, ready to be
// written as Pack.lock. Dependencies are recorded in install order.
func BuildLock(root *chart.Pack, g *Graph) (*chart.Lock, error) {
	digest, err := Digest(root.Metadata)
	if err != nil {
		return nil, err
	}
	lock := &chart.Lock{
		Generated: time.Now().UTC(),
		Digest:    digest,
	}
	for _, n := range g.Order {
		var version, repository string
		if n.Pack != nil && n.Pack.Metadata != nil {
			version = n.Pack.Metadata.Version
		}
		lock.Dependencies = append(lock.Dependencies, &chart.Dependency{
			Name:       n.Name,
			Version:    version,
			Repository: repository,
		})
	}
	return lock, nil
}

// Stale reports whether a previously written lock no longer matches the
// pack's current Pack.yaml.
func Stale(root *chart.Pack, lock *chart.Lock) (bool, error) {
	digest, err := Digest(root.Metadata)
	if err != nil {
		return false, err
	}
	return digest != lock.Digest, nil
}

// InstallOrderNames returns a graph's node names in install order
// (dependencies before dependents), for callers that only need ordering
// rather than the full node records.
func InstallOrderNames(g *Graph) []string {
	names := make([]string, 0, len(g.Order))
	for _, n := range g.Order {
		names = append(names, n.Name)
	}
	return names
}
