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

package releaseutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryForKnownKinds(t *testing.T) {
	assert.Equal(t, CategoryCRD, CategoryFor("apiextensions.k8s.io", "CustomResourceDefinition"))
	assert.Equal(t, CategoryNamespace, CategoryFor("", "Namespace"))
	assert.Equal(t, CategoryWorkload, CategoryFor("apps", "Deployment"))
	assert.Equal(t, CategoryBatch, CategoryFor("batch", "Job"))
}

func TestCategoryForCustomResource(t *testing.T) {
	assert.Equal(t, CategoryCustomResource, CategoryFor("cert-manager.io", "Certificate"))
}

func TestCategoryForUnknownCoreKindFallsBackToOther(t *testing.T) {
	assert.Equal(t, CategoryOther, CategoryFor("", "SomeFutureCoreKind"))
}

func manifest(kind, name string) Manifest {
	return Manifest{Name: name, Head: &SimpleHead{Kind: kind, Metadata: &SimpleMeta{Name: name}}}
}

func TestSortManifestsForApplyOrdersByCategory(t *testing.T) {
	manifests := []Manifest{
		manifest("Deployment", "app"),
		manifest("Namespace", "ns"),
		manifest("ConfigMap", "cfg"),
		manifest("CustomResourceDefinition", "crd"),
	}
	groups := []string{"apps", "", "", "apiextensions.k8s.io"}

	sorted := SortManifestsForApply(manifests, groups)
	var kinds []string
	for _, m := range sorted {
		kinds = append(kinds, m.Head.Kind)
	}
	assert.Equal(t, []string{"CustomResourceDefinition", "Namespace", "ConfigMap", "Deployment"}, kinds)
}

func TestReverseManifestsReversesOrder(t *testing.T) {
	manifests := []Manifest{manifest("A", "1"), manifest("B", "2"), manifest("C", "3")}
	reversed := ReverseManifests(manifests)
	assert.Equal(t, []string{"C", "B", "A"}, []string{reversed[0].Name, reversed[1].Name, reversed[2].Name})
}
