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

// ConfigMaps is an alternate Release Store driver for clusters where
// storing release data as Secrets is undesirable (e.g. no encryption at
// rest configured, or a policy reserving Secrets for actual credentials).
type ConfigMaps struct {
	*core
}

// NewConfigMaps returns a ConfigMaps driver backed by clientset.
func NewConfigMaps(clientset kubernetes.Interface) *ConfigMaps {
	return &ConfigMaps{core: newCore(&configMapsClient{clientset: clientset})}
}

var _ Driver = (*ConfigMaps)(nil)

type configMapsClient struct {
	clientset kubernetes.Interface
}

func (c *configMapsClient) get(ctx context.Context, namespace, name string) (*object, error) {
	cm, err := c.clientset.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, ErrReleaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return configMapToObject(cm), nil
}

func (c *configMapsClient) list(ctx context.Context, namespace string, labelSelector map[string]string) ([]*object, error) {
	sel := metav1.LabelSelector{MatchLabels: labelSelector}
	list, err := c.clientset.CoreV1().ConfigMaps(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: metav1.FormatLabelSelector(&sel),
	})
	if err != nil {
		return nil, err
	}
	out := make([]*object, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, configMapToObject(&list.Items[i]))
	}
	return out, nil
}

func (c *configMapsClient) create(ctx context.Context, namespace string, obj *object) error {
	cm := objectToConfigMap(namespace, obj)
	_, err := c.clientset.CoreV1().ConfigMaps(namespace).Create(ctx, cm, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return ErrReleaseExists
	}
	return err
}

func (c *configMapsClient) update(ctx context.Context, namespace string, obj *object) error {
	cm := objectToConfigMap(namespace, obj)
	cm.ResourceVersion = obj.ResourceVersion
	_, err := c.clientset.CoreV1().ConfigMaps(namespace).Update(ctx, cm, metav1.UpdateOptions{})
	if apierrors.IsConflict(err) {
		return ErrConcurrentWrite
	}
	if apierrors.IsNotFound(err) {
		return ErrReleaseNotFound
	}
	return err
}

func (c *configMapsClient) delete(ctx context.Context, namespace, name string) error {
	err := c.clientset.CoreV1().ConfigMaps(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return ErrReleaseNotFound
	}
	return err
}

func configMapToObject(cm *corev1.ConfigMap) *object {
	data := make(map[string]string, len(cm.Data))
	for k, v := range cm.Data {
		data[k] = v
	}
	return &object{Name: cm.Name, Data: data, Labels: cm.Labels, ResourceVersion: cm.ResourceVersion}
}

func objectToConfigMap(namespace string, obj *object) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      obj.Name,
			Namespace: namespace,
			Labels:    obj.Labels,
		},
		Data: obj.Data,
	}
}
