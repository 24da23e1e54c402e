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

// Package chart models Pack.yaml and the in-memory tree it roots: metadata,
// dependencies, default values, the optional schema, and the pack's own
// template/CRD/subchart files.
package chart

import "strings"

// APIVersion is the only accepted Pack.yaml apiVersion.
const APIVersion = "sherpack/v1"

const (
	// KindApplication packs are installable on their own.
	KindApplication = "application"
	// KindLibrary packs provide reusable templates/helpers only; they are
	// never installed directly, only depended upon.
	KindLibrary = "library"
)

// CRDPolicy controls whether CRDs owned by a pack may be deleted on
// uninstall or downgrade.
type CRDPolicy string

const (
	// CRDPolicyManaged CRDs may always be deleted with this pack.
	CRDPolicyManaged CRDPolicy = "Managed"
	// CRDPolicyShared CRDs may only be deleted when no custom resources of
	// that kind remain anywhere in the cluster.
	CRDPolicyShared CRDPolicy = "Shared"
	// CRDPolicyUnmanaged CRDs are never deleted by Sherpack.
	CRDPolicyUnmanaged CRDPolicy = "Unmanaged"
)

// AllowsDelete implements the firm rule from the CRD policy: Managed always
// permits deletion, Unmanaged never does, and Shared defers to the caller's
// impact analysis (an empty total_resources count).
func (p CRDPolicy) AllowsDelete(totalResources int) bool {
	switch p {
	case CRDPolicyManaged:
		return true
	case CRDPolicyShared:
		return totalResources == 0
	default:
		return false
	}
}

// File is a single raw file belonging to a pack: a template, a CRD
// manifest, or a miscellaneous pack-root file.
type File struct {
	Name string
	Data []byte
}

// Pack is the fully loaded, in-memory record of a Pack.yaml directory tree.
// It never mutates once loaded: rendering, resolution, and dependency
// enablement all derive new values rather than editing the Pack in place.
type Pack struct {
	// Metadata is the parsed Pack.yaml.
	Metadata *Metadata
	// Lock is the parsed Pack.lock, if present.
	Lock *Lock
	// Values are the pack's own default values (values.yaml), before any
	// parent overlay is applied.
	Values map[string]interface{}
	// Schema is the raw content of the detected schema file, if any.
	Schema []byte
	// SchemaName is the on-disk file name the schema was loaded from, used
	// for format auto-detection.
	SchemaName string
	// Templates are the renderable files under templates/.
	Templates []*File
	// CRDs are the raw CRD manifests under crds/, applied before templates
	// and never run back through the template engine unless they match one
	// of the renderable extensions themselves.
	CRDs []*File
	// Files are everything else under the pack root (README, NOTES.txt,
	// LICENSE, and the like) that isn't Pack.yaml/values.yaml/schema/
	// templates/crds/charts.
	Files []*File
	// Dependencies are the loaded subcharts discovered under charts/.
	Dependencies []*Pack

	// parent is set on subcharts once they're attached to a parent pack;
	// root packs leave it nil.
	parent *Pack
}

// Name returns the pack's declared name.
func (p *Pack) Name() string {
	if p.Metadata == nil {
		return ""
	}
	return p.Metadata.Name
}

// IsRoot reports whether this pack has no parent, i.e. it is the
// installation's top-level pack rather than a subchart.
func (p *Pack) IsRoot() bool {
	return p.parent == nil
}

// IsLibrary reports whether this pack is kind: library. Rendering and
// Install do not check it.
func (p *Pack) IsLibrary() bool {
	return p.Metadata != nil && strings.EqualFold(p.Metadata.Type, KindLibrary)
}

// CRDPolicyFor resolves the effective CRD policy for this pack: its own
// Metadata.CRDPolicy if set, else CRDPolicyManaged.
func (p *Pack) CRDPolicyFor() CRDPolicy {
	if p.Metadata != nil && p.Metadata.CRDPolicy != "" {
		return p.Metadata.CRDPolicy
	}
	return CRDPolicyManaged
}

// Validate checks the pack's own Pack.yaml; it does not recurse into
// dependencies (the resolver and subchart discovery do that separately).
func (p *Pack) Validate() error {
	if p.Metadata == nil {
		return ErrMissingMetadata
	}
	if p.Metadata.APIVersion == "" {
		return ErrMissingAPIVersion
	}
	if p.Metadata.APIVersion != APIVersion {
		return ValidationErrorf("pack.yaml apiVersion must be %q, got %q", APIVersion, p.Metadata.APIVersion)
	}
	return p.Metadata.Validate()
}
