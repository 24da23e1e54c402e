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

package driver

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// secretType marks every Secret this driver owns, so an operator can
// tell a release record apart from unrelated Secrets at a glance.
const secretType corev1.SecretType = "sherpack.io/release.v1"

// Secrets is the default Release Store driver: one Kubernetes Secret per
// release revision (or per chunk), scoped to the release's namespace.
// Its Driver methods are promoted from the embedded core, which holds
// the encode/chunk/decode logic shared with ConfigMaps.
type Secrets struct {
	*core
}

// NewSecrets returns a Secrets driver backed by clientset.
func NewSecrets(clientset kubernetes.Interface) *Secrets {
	return &Secrets{core: newCore(&secretsClient{clientset: clientset})}
}

var _ Driver = (*Secrets)(nil)

type secretsClient struct {
	clientset kubernetes.Interface
}

func (c *secretsClient) get(ctx context.Context, namespace, name string) (*object, error) {
	sec, err := c.clientset.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, ErrReleaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return secretToObject(sec), nil
}

func (c *secretsClient) list(ctx context.Context, namespace string, labelSelector map[string]string) ([]*object, error) {
	sel := metav1.LabelSelector{MatchLabels: labelSelector}
	list, err := c.clientset.CoreV1().Secrets(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: metav1.FormatLabelSelector(&sel),
	})
	if err != nil {
		return nil, err
	}
	out := make([]*object, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, secretToObject(&list.Items[i]))
	}
	return out, nil
}

func (c *secretsClient) create(ctx context.Context, namespace string, obj *object) error {
	sec := objectToSecret(namespace, obj)
	_, err := c.clientset.CoreV1().Secrets(namespace).Create(ctx, sec, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return ErrReleaseExists
	}
	return err
}

func (c *secretsClient) update(ctx context.Context, namespace string, obj *object) error {
	sec := objectToSecret(namespace, obj)
	sec.ResourceVersion = obj.ResourceVersion
	_, err := c.clientset.CoreV1().Secrets(namespace).Update(ctx, sec, metav1.UpdateOptions{})
	if apierrors.IsConflict(err) {
		return ErrConcurrentWrite
	}
	if apierrors.IsNotFound(err) {
		return ErrReleaseNotFound
	}
	return err
}

func (c *secretsClient) delete(ctx context.Context, namespace, name string) error {
	err := c.clientset.CoreV1().Secrets(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return ErrReleaseNotFound
	}
	return err
}

func secretToObject(sec *corev1.Secret) *object {
	data := make(map[string]string, len(sec.Data))
	for k, v := range sec.Data {
		data[k] = string(v)
	}
	return &object{Name: sec.Name, Data: data, Labels: sec.Labels, ResourceVersion: sec.ResourceVersion}
}

func objectToSecret(namespace string, obj *object) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      obj.Name,
			Namespace: namespace,
			Labels:    obj.Labels,
		},
		Type:       secretType,
		StringData: obj.Data,
	}
}
