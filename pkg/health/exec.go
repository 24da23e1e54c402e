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

package health

import (
	"bytes"
	"context"
	"net/http"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	kubectlscheme "k8s.io/kubectl/pkg/scheme"
)

// RemoteCommandExecutor is the real PodExecutor: it runs a command inside
// a pod's container over the same SPDY-upgraded exec subresource
// "kubectl exec" uses, via client-go's remotecommand executor. The exec
// request is encoded through k8s.io/kubectl's ParameterCodec, the same
// codec kubectl itself uses to serialize PodExecOptions.
type RemoteCommandExecutor struct {
	Clientset  kubernetes.Interface
	RestConfig *rest.Config
}

// NewRemoteCommandExecutor returns a RemoteCommandExecutor backed by
// clientset/config.
func NewRemoteCommandExecutor(clientset kubernetes.Interface, config *rest.Config) *RemoteCommandExecutor {
	return &RemoteCommandExecutor{Clientset: clientset, RestConfig: config}
}

var _ PodExecutor = (*RemoteCommandExecutor)(nil)

// Exec implements PodExecutor against a live cluster.
func (e *RemoteCommandExecutor) Exec(ctx context.Context, namespace, pod, container string, command []string) (string, string, error) {
	req := e.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec")
	req.VersionedParams(&corev1.PodExecOptions{
		Container: container,
		Command:   command,
		Stdout:    true,
		Stderr:    true,
	}, kubectlscheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(e.RestConfig, http.MethodPost, req.URL())
	if err != nil {
		return "", "", errors.Wrap(err, "health: failed to build exec executor")
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	return stdout.String(), stderr.String(), err
}
