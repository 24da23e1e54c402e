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

// Package release models one installed revision of a pack: the manifest
// it rendered to, the values it rendered with, and the state-machine
// status the Release Store tracks it under.
package release

import (
	"fmt"
	"time"
)

// Status is a node in the release state machine described by the
// Release Store: creation moves a name/namespace pair through Pending,
// to Deployed or Failed, and eventually to Superseded or Uninstalled.
type Status string

const (
	StatusUnknown          Status = "unknown"
	StatusPendingInstall   Status = "pending-install"
	StatusPendingUpgrade   Status = "pending-upgrade"
	StatusPendingRollback  Status = "pending-rollback"
	StatusPendingUninstall Status = "pending-uninstall"
	StatusDeployed         Status = "deployed"
	StatusFailed           Status = "failed"
	StatusSuperseded       Status = "superseded"
	StatusUninstalled      Status = "uninstalled"
)

// IsPending reports whether a status is one of the four in-flight states.
func (s Status) IsPending() bool {
	switch s {
	case StatusPendingInstall, StatusPendingUpgrade, StatusPendingRollback, StatusPendingUninstall:
		return true
	}
	return false
}

// ChartMeta is the subset of a pack's Pack.yaml a release record keeps,
// so history/status reads don't need the full chart.Pack in memory.
type ChartMeta struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	AppVersion string `json:"appVersion,omitempty"`
}

// Info carries a release's timestamps, human description, and the
// pack's rendered notes.
type Info struct {
	Status         Status    `json:"status"`
	FirstDeployed  time.Time `json:"firstDeployed,omitempty"`
	LastDeployed   time.Time `json:"lastDeployed,omitempty"`
	Deleted        time.Time `json:"deleted,omitempty"`
	Description    string    `json:"description,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	FailureReason  string    `json:"failureReason,omitempty"`
	Recoverable    bool      `json:"recoverable,omitempty"`
}

// Release is one revision of an installed pack.
type Release struct {
	Name      string                 `json:"name"`
	Namespace string                 `json:"namespace"`
	Version   int                    `json:"version"`
	Chart     *ChartMeta             `json:"chart,omitempty"`
	Values    map[string]interface{} `json:"values,omitempty"`
	Manifest  string                 `json:"manifest"`
	Hooks     []*Hook                `json:"hooks,omitempty"`
	Info      *Info                  `json:"info,omitempty"`

	// ResourceVersion is the driver-assigned optimistic-concurrency token;
	// Update fails with ErrConcurrentWrite when it's stale.
	ResourceVersion string `json:"-"`
}

// Hook is the persisted form of a rendered hook resource, recorded on the
// release so history/status reads can report what ran without
// re-rendering the manifest.
type Hook struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Path     string `json:"path"`
	Manifest string `json:"manifest"`
	Phase    string `json:"phase"`
	Weight   int    `json:"weight"`
}

// StorageKey is the canonical key this revision is (or will be) stored
// under: "sh.sherpack.release.v1.{name}.v{version}".
func (r *Release) StorageKey() string {
	return StorageKey(r.Name, r.Version)
}

// StorageKey builds the canonical key for a given name/version pair.
func StorageKey(name string, version int) string {
	return fmt.Sprintf("sh.sherpack.release.v1.%s.v%d", name, version)
}
