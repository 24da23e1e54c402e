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

// Package crd is the CRD Manager: it parses CRD manifests using the
// upstream apiextensions-apiserver types (rather than a hand-rolled
// schema model, since the pack's dependency set already carries the
// real ones), classifies the difference between two CRD revisions into
// severity-tagged changes, and applies/waits-for-Established the way
// the Resource Manager applies ordinary resources.
package crd

import (
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"sigs.k8s.io/yaml"
)

// Parse decodes a single CRD manifest document.
func Parse(manifest []byte) (*apiextensionsv1.CustomResourceDefinition, error) {
	var out apiextensionsv1.CustomResourceDefinition
	if err := yaml.Unmarshal(manifest, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Severity ranks a Change's impact, from safe to cluster-breaking.
type Severity int

const (
	SeveritySafe Severity = iota
	SeverityWarning
	SeverityDangerous
)

func (s Severity) String() string {
	switch s {
	case SeveritySafe:
		return "Safe"
	case SeverityWarning:
		return "Warning"
	case SeverityDangerous:
		return "Dangerous"
	default:
		return "Unknown"
	}
}

// ChangeKind names the specific kind of edit a Change represents.
type ChangeKind string

const (
	ChangeAddOptionalField   ChangeKind = "add-optional-field"
	ChangeAddVersion         ChangeKind = "add-version"
	ChangeAddPrinterColumn   ChangeKind = "add-printer-column"
	ChangeAddShortName       ChangeKind = "add-short-name"
	ChangeAddCategory        ChangeKind = "add-category"
	ChangeAddSubresource     ChangeKind = "add-subresource"
	ChangeRelaxValidation    ChangeKind = "relax-validation"
	ChangeUpdateDescription  ChangeKind = "update-description"
	ChangeAddDefault         ChangeKind = "add-default"
	ChangeTightenValidation  ChangeKind = "tighten-validation"
	ChangeChangeDefault      ChangeKind = "change-default"
	ChangeAddRequiredField   ChangeKind = "add-required-field"
	ChangeMakeFieldRequired  ChangeKind = "make-field-required"
	ChangeDeprecateVersion   ChangeKind = "deprecate-version"
	ChangeAddEnumValues      ChangeKind = "add-enum-values"
	ChangeRemoveVersion      ChangeKind = "remove-version"
	ChangeRemoveField        ChangeKind = "remove-field"
	ChangeRemoveRequiredField ChangeKind = "remove-required-field"
	ChangeChangeFieldType    ChangeKind = "change-field-type"
	ChangeChangeScope        ChangeKind = "change-scope"
	ChangeRemoveSubresource  ChangeKind = "remove-subresource"
	ChangeChangeGroup        ChangeKind = "change-group"
	ChangeChangeKindName     ChangeKind = "change-kind-name"
	ChangeRemoveEnumValue    ChangeKind = "remove-enum-value"
	ChangeChangeStorageVersion ChangeKind = "change-storage-version"
)

var severityByKind = map[ChangeKind]Severity{
	ChangeAddOptionalField:  SeveritySafe,
	ChangeAddVersion:        SeveritySafe,
	ChangeAddPrinterColumn:  SeveritySafe,
	ChangeAddShortName:      SeveritySafe,
	ChangeAddCategory:       SeveritySafe,
	ChangeAddSubresource:    SeveritySafe,
	ChangeRelaxValidation:   SeveritySafe,
	ChangeUpdateDescription: SeveritySafe,
	ChangeAddDefault:        SeveritySafe,

	ChangeTightenValidation: SeverityWarning,
	ChangeChangeDefault:     SeverityWarning,
	ChangeAddRequiredField:  SeverityWarning,
	ChangeMakeFieldRequired: SeverityWarning,
	ChangeDeprecateVersion:  SeverityWarning,
	ChangeAddEnumValues:     SeverityWarning,

	ChangeRemoveVersion:        SeverityDangerous,
	ChangeRemoveField:          SeverityDangerous,
	ChangeRemoveRequiredField:  SeverityDangerous,
	ChangeChangeFieldType:      SeverityDangerous,
	ChangeChangeScope:          SeverityDangerous,
	ChangeRemoveSubresource:    SeverityDangerous,
	ChangeChangeGroup:          SeverityDangerous,
	ChangeChangeKindName:       SeverityDangerous,
	ChangeRemoveEnumValue:      SeverityDangerous,
	ChangeChangeStorageVersion: SeverityDangerous,
}

// Change is one classified edit between two CRD revisions.
type Change struct {
	Kind     ChangeKind
	Severity Severity
	Version  string
	Field    string
	Message  string
}

func newChange(kind ChangeKind, version, field, message string) Change {
	return Change{Kind: kind, Severity: severityByKind[kind], Version: version, Field: field, Message: message}
}

// Analysis summarizes a Classify call's output.
type Analysis struct {
	Changes          []Change
	CountBySeverity  map[Severity]int
	MaxSeverity      Severity
}

// Dangerous filters Analysis.Changes down to Dangerous-severity entries.
func (a *Analysis) Dangerous() []Change {
	var out []Change
	for _, c := range a.Changes {
		if c.Severity == SeverityDangerous {
			out = append(out, c)
		}
	}
	return out
}

// Classify diffs old against new, returning every detected change. A
// nil old means "new CRD" — no changes.
func Classify(old, new *apiextensionsv1.CustomResourceDefinition) *Analysis {
	a := &Analysis{CountBySeverity: map[Severity]int{}}
	if old == nil {
		return a
	}

	add := func(c Change) {
		a.Changes = append(a.Changes, c)
		a.CountBySeverity[c.Severity]++
		if c.Severity > a.MaxSeverity {
			a.MaxSeverity = c.Severity
		}
	}

	if old.Spec.Group != new.Spec.Group {
		add(newChange(ChangeChangeGroup, "", "spec.group", "CRD group changed"))
	}
	if old.Spec.Scope != new.Spec.Scope {
		add(newChange(ChangeChangeScope, "", "spec.scope", "CRD scope changed"))
	}
	if old.Spec.Names.Kind != new.Spec.Names.Kind {
		add(newChange(ChangeChangeKindName, "", "spec.names.kind", "CRD kind name changed"))
	}

	for _, sn := range new.Spec.Names.ShortNames {
		if !containsString(old.Spec.Names.ShortNames, sn) {
			add(newChange(ChangeAddShortName, "", "spec.names.shortNames", "added short name "+sn))
		}
	}
	for _, cat := range new.Spec.Names.Categories {
		if !containsString(old.Spec.Names.Categories, cat) {
			add(newChange(ChangeAddCategory, "", "spec.names.categories", "added category "+cat))
		}
	}

	oldVersions := map[string]apiextensionsv1.CustomResourceDefinitionVersion{}
	for _, v := range old.Spec.Versions {
		oldVersions[v.Name] = v
	}
	newVersions := map[string]apiextensionsv1.CustomResourceDefinitionVersion{}
	for _, v := range new.Spec.Versions {
		newVersions[v.Name] = v
	}

	for name, nv := range newVersions {
		ov, existed := oldVersions[name]
		if !existed {
			add(newChange(ChangeAddVersion, name, "spec.versions", "added version "+name))
			continue
		}
		if nv.Deprecated && !ov.Deprecated {
			add(newChange(ChangeDeprecateVersion, name, "spec.versions[].deprecated", "version "+name+" deprecated"))
		}
		if nv.Storage && !ov.Storage {
			add(newChange(ChangeChangeStorageVersion, name, "spec.versions[].storage", "storage version changed to "+name))
		}
		diffPrinterColumns(add, name, ov.AdditionalPrinterColumns, nv.AdditionalPrinterColumns)
		diffSubresources(add, name, ov.Subresources, nv.Subresources)
		if ov.Schema != nil && nv.Schema != nil {
			diffSchema(add, name, "", ov.Schema.OpenAPIV3Schema, nv.Schema.OpenAPIV3Schema, false)
		}
	}
	for name := range oldVersions {
		if _, stillPresent := newVersions[name]; !stillPresent {
			add(newChange(ChangeRemoveVersion, name, "spec.versions", "removed version "+name))
		}
	}

	return a
}

func diffPrinterColumns(add func(Change), version string, old, new []apiextensionsv1.CustomResourceColumnDefinition) {
	oldNames := map[string]bool{}
	for _, c := range old {
		oldNames[c.Name] = true
	}
	for _, c := range new {
		if !oldNames[c.Name] {
			add(newChange(ChangeAddPrinterColumn, version, "additionalPrinterColumns", "added printer column "+c.Name))
		}
	}
}

func diffSubresources(add func(Change), version string, old, new *apiextensionsv1.CustomResourceSubresources) {
	oldStatus := old != nil && old.Status != nil
	newStatus := new != nil && new.Status != nil
	if newStatus && !oldStatus {
		add(newChange(ChangeAddSubresource, version, "subresources.status", "added status subresource"))
	}
	if oldStatus && !newStatus {
		add(newChange(ChangeRemoveSubresource, version, "subresources.status", "removed status subresource"))
	}
	oldScale := old != nil && old.Scale != nil
	newScale := new != nil && new.Scale != nil
	if newScale && !oldScale {
		add(newChange(ChangeAddSubresource, version, "subresources.scale", "added scale subresource"))
	}
	if oldScale && !newScale {
		add(newChange(ChangeRemoveSubresource, version, "subresources.scale", "removed scale subresource"))
	}
}

func diffSchema(add func(Change), version, path string, old, new *apiextensionsv1.JSONSchemaProps, required bool) {
	if old == nil || new == nil {
		return
	}
	if old.Type != new.Type && old.Type != "" && new.Type != "" {
		add(newChange(ChangeChangeFieldType, version, path, "field type changed from "+old.Type+" to "+new.Type))
	}
	if old.Description != new.Description && new.Description != "" {
		add(newChange(ChangeUpdateDescription, version, path, "description updated"))
	}

	diffMaxLength(add, version, path, old.MaxLength, new.MaxLength)
	diffPattern(add, version, path, old.Pattern, new.Pattern)
	diffEnum(add, version, path, old.Enum, new.Enum)
	diffDefault(add, version, path, old.Default, new.Default)

	oldRequired := toSet(old.Required)
	newRequired := toSet(new.Required)
	for field := range newRequired {
		if !oldRequired[field] {
			if _, wasOptional := old.Properties[field]; wasOptional {
				add(newChange(ChangeMakeFieldRequired, version, joinPath(path, field), "optional field "+field+" made required"))
			} else {
				add(newChange(ChangeAddRequiredField, version, joinPath(path, field), "added required field "+field))
			}
		}
	}
	for field := range old.Properties {
		if _, stillPresent := new.Properties[field]; !stillPresent {
			if oldRequired[field] {
				add(newChange(ChangeRemoveRequiredField, version, joinPath(path, field), "removed required field "+field))
			} else {
				add(newChange(ChangeRemoveField, version, joinPath(path, field), "removed field "+field))
			}
			continue
		}
	}
	for field, np := range new.Properties {
		op, existed := old.Properties[field]
		childPath := joinPath(path, field)
		if !existed {
			if newRequired[field] {
				add(newChange(ChangeAddRequiredField, version, childPath, "added required field "+field))
			} else {
				add(newChange(ChangeAddOptionalField, version, childPath, "added optional field "+field))
			}
			continue
		}
		npCopy := np
		diffSchema(add, version, childPath, &op, &npCopy, newRequired[field])
	}
}

func diffMaxLength(add func(Change), version, path string, old, new *int64) {
	switch {
	case old != nil && new == nil:
		add(newChange(ChangeRelaxValidation, version, path, "maxLength constraint dropped"))
	case old == nil && new != nil:
		add(newChange(ChangeTightenValidation, version, path, "maxLength constraint added"))
	case old != nil && new != nil && *new > *old:
		add(newChange(ChangeRelaxValidation, version, path, "maxLength widened"))
	case old != nil && new != nil && *new < *old:
		add(newChange(ChangeTightenValidation, version, path, "maxLength narrowed"))
	}
}

func diffPattern(add func(Change), version, path, old, new string) {
	switch {
	case old != "" && new == "":
		add(newChange(ChangeRelaxValidation, version, path, "pattern constraint dropped"))
	case old == "" && new != "":
		add(newChange(ChangeTightenValidation, version, path, "pattern constraint added"))
	case old != "" && new != "" && old != new:
		add(newChange(ChangeTightenValidation, version, path, "pattern constraint changed"))
	}
}

func diffEnum(add func(Change), version, path string, old, new []apiextensionsv1.JSON) {
	if len(old) == 0 && len(new) == 0 {
		return
	}
	if len(old) > 0 && len(new) == 0 {
		add(newChange(ChangeRelaxValidation, version, path, "enum constraint dropped"))
		return
	}
	oldSet := map[string]bool{}
	for _, v := range old {
		oldSet[string(v.Raw)] = true
	}
	newSet := map[string]bool{}
	for _, v := range new {
		newSet[string(v.Raw)] = true
	}
	for v := range oldSet {
		if !newSet[v] {
			add(newChange(ChangeRemoveEnumValue, version, path, "enum value removed"))
		}
	}
	added := false
	for v := range newSet {
		if !oldSet[v] {
			added = true
		}
	}
	if added {
		add(newChange(ChangeAddEnumValues, version, path, "enum values added"))
	}
}

func diffDefault(add func(Change), version, path string, old, new *apiextensionsv1.JSON) {
	switch {
	case old == nil && new != nil:
		add(newChange(ChangeAddDefault, version, path, "default value added"))
	case old != nil && new != nil && string(old.Raw) != string(new.Raw):
		add(newChange(ChangeChangeDefault, version, path, "default value changed"))
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func toSet(list []string) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, v := range list {
		out[v] = true
	}
	return out
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
