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

// Package kube is the Resource Manager: it decodes a rendered manifest
// into dynamic-client resources, resolves each one's GVR and scope via
// discovery, and applies or deletes them against a cluster in
// resource-category order via Server-Side Apply.
package kube

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/yaml"

	"sherpack.sh/sherpack/pkg/releaseutil"
)

// FieldManager is the fixed field manager name every Server-Side Apply
// call is issued under.
const FieldManager = "sherpack"

// ResourcePolicyAnnotations are the annotation keys a resource may carry
// to be skipped on delete; the apiVersion-agnostic Sherpack key takes
// precedence and the Helm-compatible one is honored for migrated packs.
var ResourcePolicyAnnotations = []string{"sherpack.io/resource-policy", "helm.sh/resource-policy"}

// Resource is one manifest document resolved against cluster discovery.
type Resource struct {
	Name       string
	Namespace  string
	GVK        schema.GroupVersionKind
	GVR        schema.GroupVersionResource
	Namespaced bool
	Object     *unstructured.Unstructured
}

// ResourceList is an ordered set of resources, typically produced by
// Build in the document order of a manifest already sorted by
// releaseutil.SortManifestsForApply.
type ResourceList []*Resource

// Client is the Resource Manager.
type Client struct {
	Dynamic          dynamic.Interface
	Mapper           meta.RESTMapper
	DefaultNamespace string
}

// New returns a Client backed by dyn for object operations and mapper
// for GVK->GVR/scope resolution.
func New(dyn dynamic.Interface, mapper meta.RESTMapper) *Client {
	return &Client{Dynamic: dyn, Mapper: mapper, DefaultNamespace: "default"}
}

// Build parses a multi-document rendered manifest into a ResourceList,
// resolving each document's GVR and namespace scope via discovery and
// defaulting its namespace when the scope is Namespaced and the document
// didn't set one.
func (c *Client) Build(manifest string, namespace string) (ResourceList, error) {
	if namespace == "" {
		namespace = c.DefaultNamespace
	}

	docs := releaseutil.SplitManifests(manifest)
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Sort(releaseutil.BySplitManifestsOrder(keys))

	var out ResourceList
	for _, k := range keys {
		doc := docs[k]
		obj := &unstructured.Unstructured{}
		jsonBytes, err := yaml.YAMLToJSON([]byte(doc))
		if err != nil {
			return nil, errors.Wrapf(err, "kube: failed to parse manifest %q", k)
		}
		if err := obj.UnmarshalJSON(jsonBytes); err != nil {
			return nil, errors.Wrapf(err, "kube: failed to decode manifest %q", k)
		}
		if obj.Object == nil || obj.GetKind() == "" {
			continue
		}

		gvk := obj.GroupVersionKind()
		mapping, err := c.Mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "kube: no resource mapping for %s", gvk)
		}
		namespaced := mapping.Scope.Name() == meta.RESTScopeNameNamespace
		if namespaced && obj.GetNamespace() == "" {
			obj.SetNamespace(namespace)
		}

		out = append(out, &Resource{
			Name:       obj.GetName(),
			Namespace:  obj.GetNamespace(),
			GVK:        gvk,
			GVR:        mapping.Resource,
			Namespaced: namespaced,
			Object:     obj,
		})
	}
	return out, nil
}

// ApplyOptions configures an Apply call.
type ApplyOptions struct {
	Force  bool
	DryRun bool
}

// ApplyResult records what happened to one resource.
type ApplyResult struct {
	Kind      string
	Name      string
	Namespace string
	Created   bool
}

// ApplySummary aggregates an Apply call's per-resource results.
type ApplySummary struct {
	Results   []ApplyResult
	Succeeded int
	Failed    int
}

// Apply issues a Server-Side Apply for every resource in resources, in
// the order given (callers are expected to have already sorted it via
// releaseutil.SortManifestsForApply).
func (c *Client) Apply(ctx context.Context, resources ResourceList, opts ApplyOptions) (*ApplySummary, error) {
	summary := &ApplySummary{}
	var applyOpts metav1.ApplyOptions
	applyOpts.FieldManager = FieldManager
	applyOpts.Force = opts.Force
	if opts.DryRun {
		applyOpts.DryRun = []string{metav1.DryRunAll}
	}

	var firstErr error
	for _, res := range resources {
		_, getErr := c.resourceInterface(res).Get(ctx, res.Name, metav1.GetOptions{})
		created := apierrors.IsNotFound(getErr)

		_, err := c.resourceInterface(res).Apply(ctx, res.Name, res.Object, applyOpts)
		if err != nil {
			summary.Failed++
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "kube: failed to apply %s %q", res.GVK.Kind, res.Name)
			}
			continue
		}
		summary.Succeeded++
		summary.Results = append(summary.Results, ApplyResult{
			Kind: res.GVK.Kind, Name: res.Name, Namespace: res.Namespace, Created: created,
		})
	}
	return summary, firstErr
}

// DeleteResult records what happened to one resource on delete.
type DeleteResult struct {
	Kind      string
	Name      string
	Namespace string
	Skipped   bool
	Reason    string
}

// Delete issues deletes for every resource in resources, in the order
// given (callers pass the apply-order ResourceList reversed, so delete
// order is the reverse of apply order). A resource annotated with a
// "keep" resource-policy is skipped rather than deleted; a 404 is
// treated as already-deleted, not an error.
func (c *Client) Delete(ctx context.Context, resources ResourceList) ([]DeleteResult, error) {
	var out []DeleteResult
	var firstErr error
	for _, res := range resources {
		if reason, keep := keepPolicy(res.Object); keep {
			out = append(out, DeleteResult{Kind: res.GVK.Kind, Name: res.Name, Namespace: res.Namespace, Skipped: true, Reason: reason})
			continue
		}

		err := c.resourceInterface(res).Delete(ctx, res.Name, metav1.DeleteOptions{})
		if apierrors.IsNotFound(err) {
			out = append(out, DeleteResult{Kind: res.GVK.Kind, Name: res.Name, Namespace: res.Namespace, Skipped: true, Reason: "not found"})
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "kube: failed to delete %s %q", res.GVK.Kind, res.Name)
			}
			continue
		}
		out = append(out, DeleteResult{Kind: res.GVK.Kind, Name: res.Name, Namespace: res.Namespace})
	}
	return out, firstErr
}

func keepPolicy(obj *unstructured.Unstructured) (string, bool) {
	annotations := obj.GetAnnotations()
	for _, key := range ResourcePolicyAnnotations {
		if annotations[key] == "keep" {
			return fmt.Sprintf("%s=keep", key), true
		}
	}
	return "", false
}

func (c *Client) resourceInterface(res *Resource) dynamic.ResourceInterface {
	if res.Namespaced {
		return c.Dynamic.Resource(res.GVR).Namespace(res.Namespace)
	}
	return c.Dynamic.Resource(res.GVR)
}
