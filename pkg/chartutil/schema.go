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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	"sigs.k8s.io/yaml"
)

// Format identifies which of the two supported schema dialects a Schema was
// parsed from.
type Format int

const (
	// FormatSimplified is Sherpack's compact schema dialect.
	FormatSimplified Format = iota
	// FormatJSONSchema is a standard JSON Schema document.
	FormatJSONSchema
)

// SchemaFileNames are the recognized on-disk schema file names, in the
// order they are probed for.
var SchemaFileNames = []string{
	"values.schema.json",
	"values.schema.yaml",
	"schema.json",
	"schema.yaml",
}

// ValidationError names one constraint violation.
type ValidationError struct {
	// Path is the slash-separated path from the values root, e.g. "redis/auth/password".
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// node is the internal JSON-Schema-shaped constraint tree both supported
// formats collapse into.
type node struct {
	Type       interface{}        `json:"type,omitempty"`
	Required   []string           `json:"required,omitempty"`
	Enum       []interface{}      `json:"enum,omitempty"`
	Pattern    string             `json:"pattern,omitempty"`
	Minimum    *float64           `json:"minimum,omitempty"`
	Maximum    *float64           `json:"maximum,omitempty"`
	MinLength  *int               `json:"minLength,omitempty"`
	MaxLength  *int               `json:"maxLength,omitempty"`
	MinItems   *int               `json:"minItems,omitempty"`
	MaxItems   *int               `json:"maxItems,omitempty"`
	Properties map[string]*node   `json:"properties,omitempty"`
	Items      *node              `json:"items,omitempty"`
	Default    interface{}        `json:"default,omitempty"`
}

// Schema validates Values against a loaded pack schema and extracts its
// defaults.
type Schema struct {
	format Format
	raw    []byte
	root   *node
}

// DetectFormat inspects a schema file's name and content to decide which
// dialect it is written in. Content carrying a "$schema" key is standard
// JSON Schema, whatever the file name; everything else, including a
// "*schema.json" file without "$schema" and any "schemaVersion" document,
// is the simplified dialect.
func DetectFormat(name string, content []byte) Format {
	base := strings.ToLower(filepath.Base(name))
	if strings.Contains(base, "schema.json") {
		var probe map[string]interface{}
		if json.Unmarshal(content, &probe) == nil {
			if _, ok := probe["$schema"]; ok {
				return FormatJSONSchema
			}
		}
	}
	if strings.Contains(string(content), `"$schema"`) || strings.Contains(string(content), "$schema:") {
		return FormatJSONSchema
	}
	return FormatSimplified
}

// Load reads and parses a schema file from disk, auto-detecting its format.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read schema %s", path)
	}
	return LoadBytes(path, data)
}

// LoadBytes parses in-memory schema content, auto-detecting format from the
// given name (used for file-name-based detection) and the content itself.
func LoadBytes(name string, data []byte) (*Schema, error) {
	format := DetectFormat(name, data)
	var n node
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, &n); err != nil {
			return nil, errors.Wrapf(err, "failed to parse schema %s", name)
		}
	}
	return &Schema{format: format, raw: data, root: &n}, nil
}

// Defaults extracts every "default" value in the schema tree into a Values
// tree shaped like the values document it constrains.
func (s *Schema) Defaults() Values {
	out := Values{}
	collectDefaults(s.root, out)
	return out
}

func collectDefaults(n *node, into Values) {
	if n == nil {
		return
	}
	for name, child := range n.Properties {
		if child == nil {
			continue
		}
		if child.Default != nil {
			into[name] = deepCopyValue(child.Default)
		}
		if len(child.Properties) > 0 {
			nested, ok := into[name].(Values)
			if !ok {
				if m, isMap := into[name].(map[string]interface{}); isMap {
					nested = Values(m)
				} else {
					nested = Values{}
				}
			}
			collectDefaults(child, nested)
			if len(nested) > 0 {
				into[name] = nested
			}
		}
	}
}

// Validate checks values against the schema, returning every violation
// found (not just the first).
func (s *Schema) Validate(values Values) []ValidationError {
	if s.format == FormatJSONSchema {
		return s.validateJSONSchema(values)
	}
	var errs []ValidationError
	validateNode(s.root, map[string]interface{}(values), "", &errs)
	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
	return errs
}

func (s *Schema) validateJSONSchema(values Values) []ValidationError {
	schemaLoader := gojsonschema.NewBytesLoader(s.raw)
	docLoader := gojsonschema.NewGoLoader(map[string]interface{}(values))
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return []ValidationError{{Message: err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, ValidationError{
			Path:    strings.ReplaceAll(re.Field(), ".", "/"),
			Message: re.Description(),
		})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
	return errs
}

func validateNode(n *node, value interface{}, path string, errs *[]ValidationError) {
	if n == nil {
		return
	}
	m, isMap := value.(map[string]interface{})
	if !isMap {
		if vv, ok := value.(Values); ok {
			m = map[string]interface{}(vv)
			isMap = true
		}
	}

	if isMap {
		for _, req := range n.Required {
			if _, ok := m[req]; !ok {
				*errs = append(*errs, ValidationError{Path: joinPath(path, req), Message: "is required"})
			}
		}
		for name, child := range n.Properties {
			if childValue, ok := m[name]; ok {
				validateNode(child, childValue, joinPath(path, name), errs)
			}
		}
	}

	if n.Type != nil && value != nil {
		if !matchesType(n.Type, value) {
			*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf("must be of type %v", n.Type)})
		}
	}

	if len(n.Enum) > 0 {
		if !inEnum(n.Enum, value) {
			*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf("must be one of %v", n.Enum)})
		}
	}

	switch v := value.(type) {
	case string:
		if n.Pattern != "" {
			re, err := regexp.Compile(n.Pattern)
			if err == nil && !re.MatchString(v) {
				*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf("does not match pattern %q", n.Pattern)})
			}
		}
		if n.MinLength != nil && len(v) < *n.MinLength {
			*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf("length must be >= %d", *n.MinLength)})
		}
		if n.MaxLength != nil && len(v) > *n.MaxLength {
			*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf("length must be <= %d", *n.MaxLength)})
		}
	case float64, int, int64:
		f := toFloat(v)
		if n.Minimum != nil && f < *n.Minimum {
			*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf("must be >= %v", *n.Minimum)})
		}
		if n.Maximum != nil && f > *n.Maximum {
			*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf("must be <= %v", *n.Maximum)})
		}
	case []interface{}:
		if n.MinItems != nil && len(v) < *n.MinItems {
			*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf("must have >= %d items", *n.MinItems)})
		}
		if n.MaxItems != nil && len(v) > *n.MaxItems {
			*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf("must have <= %d items", *n.MaxItems)})
		}
		if n.Items != nil {
			for i, item := range v {
				validateNode(n.Items, item, fmt.Sprintf("%s[%d]", path, i), errs)
			}
		}
	}
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func joinPath(base, elem string) string {
	if base == "" {
		return elem
	}
	return base + "/" + elem
}

func matchesType(declared interface{}, value interface{}) bool {
	types := []string{}
	switch t := declared.(type) {
	case string:
		types = append(types, t)
	case []interface{}:
		for _, x := range t {
			if s, ok := x.(string); ok {
				types = append(types, s)
			}
		}
	}
	for _, t := range types {
		if valueMatchesType(t, value) {
			return true
		}
	}
	return len(types) == 0
}

func valueMatchesType(t string, value interface{}) bool {
	switch t {
	case "null":
		return value == nil
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch n := value.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		switch value.(type) {
		case map[string]interface{}, Values:
			return true
		}
		return false
	default:
		return true
	}
}

func inEnum(enum []interface{}, value interface{}) bool {
	for _, e := range enum {
		if fmt.Sprint(e) == fmt.Sprint(value) {
			return true
		}
	}
	return false
}
