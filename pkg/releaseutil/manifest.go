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

// Package releaseutil splits a rendered manifest into individual
// documents and orders them by Kubernetes resource category, the same
// two concerns the Resource Manager needs before it can apply or delete
// anything.
package releaseutil

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Manifest is one YAML document split out of a larger rendered manifest
// text, tagged with its source template name.
type Manifest struct {
	Name    string
	Content string
	Head    *SimpleHead
}

// SimpleHead is the minimal subset of a Kubernetes object's shape this
// package needs to sort and classify it, without a full typed decode.
type SimpleHead struct {
	Version  string       `json:"apiVersion"`
	Kind     string       `json:"kind"`
	Metadata *SimpleMeta  `json:"metadata"`
}

// SimpleMeta is SimpleHead's metadata subset.
type SimpleMeta struct {
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace"`
	Annotations map[string]string `json:"annotations"`
}

var sep = regexp.MustCompile(`(?:^|\s*\n)---\s*`)

// SplitManifests splits bigFile on YAML document separators, dropping
// empty and comment-only entries, and returns a map keyed by an
// integer-sortable string so BySplitManifestsOrder can restore the
// original document order within one file.
func SplitManifests(bigFile string) map[string]string {
	tpl := "manifest-%d"
	out := map[string]string{}
	docs := sep.Split(bigFile, -1)
	count := 0
	for _, doc := range docs {
		if strings.TrimSpace(stripComments(doc)) == "" {
			continue
		}
		out[fmt.Sprintf(tpl, count)] = doc
		count++
	}
	return out
}

func stripComments(doc string) string {
	var b strings.Builder
	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// BySplitManifestsOrder restores the numeric order SplitManifests'
// "manifest-%d" keys were produced in.
type BySplitManifestsOrder []string

func (b BySplitManifestsOrder) Len() int      { return len(b) }
func (b BySplitManifestsOrder) Swap(i, j int) { b[i], b[j] = b[j], b[i] }
func (b BySplitManifestsOrder) Less(i, j int) bool {
	return splitManifestIndex(b[i]) < splitManifestIndex(b[j])
}

func splitManifestIndex(key string) int {
	idx := strings.LastIndex(key, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(key[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

// SortedManifestKeys returns files' keys in deterministic (lexical)
// order, matching the engine's own sorted template discovery.
func SortedManifestKeys(files map[string]string) []string {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
