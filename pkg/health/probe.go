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
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// HTTPCheck is a readiness probe expressed as an HTTP request.
type HTTPCheck struct {
	URL            string
	Headers        map[string]string
	Timeout        time.Duration
	ExpectedStatus int
}

// Run issues the HTTP request and reports Status based on
// ExpectedStatus (a zero value accepts any 2xx).
func (c HTTPCheck) Run(ctx context.Context) Status {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.URL, nil)
	if err != nil {
		return unhealthy(err.Error())
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return unhealthy(err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if c.ExpectedStatus != 0 {
		if resp.StatusCode != c.ExpectedStatus {
			return unhealthy(errors.Errorf("expected status %d, got %d", c.ExpectedStatus, resp.StatusCode).Error())
		}
		return healthy()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unhealthy(errors.Errorf("unexpected status %d", resp.StatusCode).Error())
	}
	return healthy()
}

// PodExecutor abstracts running a command inside a pod's container,
// the same contract kubectl exec/remotecommand presents, so tests can
// fake it without a real cluster connection.
type PodExecutor interface {
	Exec(ctx context.Context, namespace, pod, container string, command []string) (stdout string, stderr string, err error)
}

// CommandCheck is a readiness probe run as a command inside a pod.
type CommandCheck struct {
	Namespace string
	Pod       string
	Container string
	Command   []string
	Timeout   time.Duration
}

// Run executes the command via executor; a non-nil error (including a
// non-zero exit reported through err) is unhealthy.
func (c CommandCheck) Run(ctx context.Context, executor PodExecutor) Status {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, stderr, err := executor.Exec(execCtx, c.Namespace, c.Pod, c.Container, c.Command)
	if err != nil {
		if stderr != "" {
			return unhealthy(err.Error() + ": " + stderr)
		}
		return unhealthy(err.Error())
	}
	return healthy()
}
