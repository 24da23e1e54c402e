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

package crd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"

	"sherpack.sh/sherpack/pkg/chart"
	"sherpack.sh/sherpack/pkg/gates"
)

// GateDeleteCRDs must be set in the environment before Delete will even
// consider removing a CRD, on top of the caller's explicit confirmed
// argument — CRD deletion is deliberately a two-key operation.
const GateDeleteCRDs gates.Gate = "SHERPACK_DELETE_CRDS"

// FieldManager is the dedicated field manager CRD applies are issued
// under, distinct from the ordinary Resource Manager's.
const FieldManager = "sherpack-crd"

var crdGVR = schema.GroupVersionResource{Group: "apiextensions.k8s.io", Version: "v1", Resource: "customresourcedefinitions"}

// Manager applies CRDs and analyzes the blast radius of deleting one.
type Manager struct {
	Dynamic dynamic.Interface
}

// NewManager returns a Manager backed by dyn.
func NewManager(dyn dynamic.Interface) *Manager {
	return &Manager{Dynamic: dyn}
}

// Get fetches the cluster's current copy of a CRD by name, returning
// (nil, nil) if it does not exist yet.
func (m *Manager) Get(ctx context.Context, name string) (*apiextensionsv1.CustomResourceDefinition, error) {
	obj, err := m.Dynamic.Resource(crdGVR).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "crd: failed to get %q", name)
	}
	var out apiextensionsv1.CustomResourceDefinition
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &out); err != nil {
		return nil, errors.Wrapf(err, "crd: failed to convert %q", name)
	}
	return &out, nil
}

// Apply issues a Server-Side Apply for crd and, unless waitEstablished
// is false, polls until the Established condition is True, the context
// is done, or 60 seconds have passed.
func (m *Manager) Apply(ctx context.Context, crd *apiextensionsv1.CustomResourceDefinition, force, waitEstablished bool) error {
	raw, err := runtime.DefaultUnstructuredConverter.ToUnstructured(crd)
	if err != nil {
		return errors.Wrap(err, "crd: failed to convert to unstructured")
	}
	obj := &unstructured.Unstructured{Object: raw}
	obj.SetAPIVersion("apiextensions.k8s.io/v1")
	obj.SetKind("CustomResourceDefinition")

	applyOpts := metav1.ApplyOptions{FieldManager: FieldManager, Force: force}
	if _, err := m.Dynamic.Resource(crdGVR).Apply(ctx, crd.Name, obj, applyOpts); err != nil {
		return errors.Wrapf(err, "crd: failed to apply %q", crd.Name)
	}
	if !waitEstablished {
		return nil
	}
	return m.WaitEstablished(ctx, crd.Name, 60*time.Second)
}

// WaitEstablished polls the named CRD until its Established condition
// is True or timeout elapses.
func (m *Manager) WaitEstablished(ctx context.Context, name string, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, 500*time.Millisecond, timeout, true, func(ctx context.Context) (bool, error) {
		current, err := m.Get(ctx, name)
		if err != nil {
			return false, err
		}
		if current == nil {
			return false, nil
		}
		for _, cond := range current.Status.Conditions {
			if cond.Type == apiextensionsv1.Established && cond.Status == apiextensionsv1.ConditionTrue {
				return true, nil
			}
		}
		return false, nil
	})
}

// DeletionImpact is the result of analyzing how many custom resources
// of a CRD's kind exist, and whether its CRDPolicy allows deleting it.
type DeletionImpact struct {
	TotalResources  int
	ByNamespace     map[string]int
	DeletionAllowed bool
	BlockedReason   string
}

// AnalyzeDeletion lists every custom resource of crd's served versions
// and applies policy.AllowsDelete to decide whether deletion may
// proceed.
func (m *Manager) AnalyzeDeletion(ctx context.Context, crd *apiextensionsv1.CustomResourceDefinition, policy chart.CRDPolicy) (*DeletionImpact, error) {
	impact := &DeletionImpact{ByNamespace: map[string]int{}}

	var servedVersion string
	for _, v := range crd.Spec.Versions {
		if v.Served {
			servedVersion = v.Name
			break
		}
	}
	if servedVersion == "" {
		impact.DeletionAllowed = policy.AllowsDelete(0)
		return impact, nil
	}

	plural := crd.Spec.Names.Plural
	gvr := schema.GroupVersionResource{Group: crd.Spec.Group, Version: servedVersion, Resource: plural}

	var list *unstructured.UnstructuredList
	var err error
	if crd.Spec.Scope == apiextensionsv1.NamespaceScoped {
		list, err = m.Dynamic.Resource(gvr).Namespace("").List(ctx, metav1.ListOptions{})
	} else {
		list, err = m.Dynamic.Resource(gvr).List(ctx, metav1.ListOptions{})
	}
	if err != nil {
		return nil, errors.Wrapf(err, "crd: failed to list %s", gvr)
	}

	for _, item := range list.Items {
		impact.TotalResources++
		impact.ByNamespace[item.GetNamespace()]++
	}

	impact.DeletionAllowed = policy.AllowsDelete(impact.TotalResources)
	if !impact.DeletionAllowed {
		impact.BlockedReason = "CRD policy forbids deleting a CRD with existing custom resources"
	}
	return impact, nil
}

// Delete removes a CRD from the cluster, but only when every guard
// passes: the policy-derived impact must allow it, the caller must
// pass confirmed=true (the --confirm-crd-deletion intent), and
// GateDeleteCRDs must be enabled in the environment (the --delete-crds
// experimental opt-in). Any one of the three missing is an error, not
// a silent no-op, so a caller can't mistake a skipped delete for one
// that happened.
func (m *Manager) Delete(ctx context.Context, name string, impact *DeletionImpact, confirmed bool) error {
	if !impact.DeletionAllowed {
		return errors.Errorf("crd: refusing to delete %q: %s", name, impact.BlockedReason)
	}
	if !confirmed {
		return errors.Errorf("crd: refusing to delete %q without --confirm-crd-deletion", name)
	}
	if !GateDeleteCRDs.IsEnabled() {
		return GateDeleteCRDs.Error()
	}
	if err := m.Dynamic.Resource(crdGVR).Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
		return errors.Wrapf(err, "crd: failed to delete %q", name)
	}
	return nil
}
