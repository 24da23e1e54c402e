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

package action

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallOptionsAddFlagsBindsWaitAndAtomic(t *testing.T) {
	var o InstallOptions
	fs := pflag.NewFlagSet("install", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--wait", "--atomic", "--timeout=30s"}))
	assert.True(t, o.Wait)
	assert.True(t, o.Atomic)
	assert.Equal(t, 30e9, float64(o.WaitTimeout))
}

func TestUpgradeOptionsAddFlagsBindsHistoryMax(t *testing.T) {
	var o UpgradeOptions
	fs := pflag.NewFlagSet("upgrade", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--install", "--history-max=5"}))
	assert.True(t, o.Install)
	assert.Equal(t, 5, o.MaxHistory)
}

func TestUninstallOptionsAddFlagsBindsKeepHistory(t *testing.T) {
	var o UninstallOptions
	fs := pflag.NewFlagSet("uninstall", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--keep-history"}))
	assert.True(t, o.KeepHistory)
}
