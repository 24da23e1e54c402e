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

import "sort"

// Category is a resource-ordering bucket: apply goes smallest-first,
// delete goes largest-first.
type Category int

const (
	CategoryCRD              Category = 0
	CategoryNamespace        Category = 1
	CategoryNamespaceConfig  Category = 2
	CategoryClusterRBAC      Category = 10
	CategoryNamespacedRBAC   Category = 11
	CategoryConfig           Category = 20
	CategoryStorage          Category = 21
	CategoryNetwork          Category = 30
	CategoryWorkload         Category = 40
	CategoryBatch            Category = 50
	CategoryAutoscaling      Category = 60
	CategoryCustomResource   Category = 70
	CategoryOther            Category = 100
)

var kindCategory = map[string]Category{
	"CustomResourceDefinition": CategoryCRD,

	"Namespace": CategoryNamespace,

	"ResourceQuota": CategoryNamespaceConfig,
	"LimitRange":    CategoryNamespaceConfig,

	"ClusterRole":        CategoryClusterRBAC,
	"ClusterRoleBinding": CategoryClusterRBAC,

	"Role":               CategoryNamespacedRBAC,
	"RoleBinding":        CategoryNamespacedRBAC,
	"ServiceAccount":     CategoryNamespacedRBAC,

	"ConfigMap": CategoryConfig,
	"Secret":    CategoryConfig,

	"PersistentVolume":      CategoryStorage,
	"PersistentVolumeClaim": CategoryStorage,
	"StorageClass":          CategoryStorage,

	"Service":         CategoryNetwork,
	"Endpoints":       CategoryNetwork,
	"Ingress":         CategoryNetwork,
	"NetworkPolicy":   CategoryNetwork,

	"Deployment":  CategoryWorkload,
	"StatefulSet": CategoryWorkload,
	"DaemonSet":   CategoryWorkload,
	"ReplicaSet":  CategoryWorkload,
	"Pod":         CategoryWorkload,

	"Job":     CategoryBatch,
	"CronJob": CategoryBatch,

	"HorizontalPodAutoscaler": CategoryAutoscaling,
	"VerticalPodAutoscaler":   CategoryAutoscaling,
	"PodDisruptionBudget":     CategoryAutoscaling,
}

// coreGroups lists every API group the spec treats as "built in". A kind
// listed in kindCategory keeps that category whatever its group; any
// other kind whose apiVersion's group is outside this set is a custom
// resource.
var coreGroups = map[string]bool{
	"":                                  true, // core/v1
	"apps":                              true,
	"batch":                             true,
	"autoscaling":                       true,
	"policy":                            true,
	"networking.k8s.io":                 true,
	"rbac.authorization.k8s.io":         true,
	"storage.k8s.io":                    true,
	"admissionregistration.k8s.io":      true,
	"apiextensions.k8s.io":              true,
	"certificates.k8s.io":               true,
	"coordination.k8s.io":               true,
	"discovery.k8s.io":                  true,
	"events.k8s.io":                     true,
	"flowcontrol.apiserver.k8s.io":      true,
	"node.k8s.io":                       true,
	"scheduling.k8s.io":                 true,
}

// CategoryFor classifies a (group, kind) pair into its resource
// category, falling back to CategoryCustomResource for any
// non-core-group apiVersion and CategoryOther for everything else.
func CategoryFor(group, kind string) Category {
	if c, ok := kindCategory[kind]; ok {
		return c
	}
	if !coreGroups[group] {
		return CategoryCustomResource
	}
	return CategoryOther
}

// KindSortOrder determines apply order: ascending category, stable on
// ties so documents within the same category keep their manifest order.
type KindSortOrder struct {
	Manifests []Manifest
	Groups    []string // parallel to Manifests; each entry's apiVersion group
}

func (k KindSortOrder) Len() int      { return len(k.Manifests) }
func (k KindSortOrder) Swap(i, j int) {
	k.Manifests[i], k.Manifests[j] = k.Manifests[j], k.Manifests[i]
	k.Groups[i], k.Groups[j] = k.Groups[j], k.Groups[i]
}
func (k KindSortOrder) Less(i, j int) bool {
	ci := CategoryFor(k.Groups[i], k.Manifests[i].Head.Kind)
	cj := CategoryFor(k.Groups[j], k.Manifests[j].Head.Kind)
	return ci < cj
}

// SortManifestsForApply sorts manifests into apply order (category
// ascending); callers reverse the result for delete order.
func SortManifestsForApply(manifests []Manifest, groups []string) []Manifest {
	out := make([]Manifest, len(manifests))
	copy(out, manifests)
	outGroups := make([]string, len(groups))
	copy(outGroups, groups)
	sort.Stable(KindSortOrder{Manifests: out, Groups: outGroups})
	return out
}

// ReverseManifests returns manifests in reverse order, for delete.
func ReverseManifests(manifests []Manifest) []Manifest {
	out := make([]Manifest, len(manifests))
	for i, m := range manifests {
		out[len(manifests)-1-i] = m
	}
	return out
}
