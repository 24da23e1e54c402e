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

package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetadata() *Metadata {
	return &Metadata{
		APIVersion: APIVersion,
		Name:       "demo",
		Version:    "1.0.0",
	}
}

func TestPackValidate(t *testing.T) {
	p := &Pack{Metadata: validMetadata()}
	require.NoError(t, p.Validate())
}

func TestPackValidateMissingMetadata(t *testing.T) {
	p := &Pack{}
	assert.Equal(t, ErrMissingMetadata, p.Validate())
}

func TestPackValidateWrongAPIVersion(t *testing.T) {
	md := validMetadata()
	md.APIVersion = "v1"
	p := &Pack{Metadata: md}
	assert.Error(t, p.Validate())
}

func TestPackValidateBadType(t *testing.T) {
	md := validMetadata()
	md.Type = "daemon"
	p := &Pack{Metadata: md}
	assert.Equal(t, ErrInvalidType, p.Validate())
}

func TestPackIsLibraryAndIsRoot(t *testing.T) {
	md := validMetadata()
	md.Type = KindLibrary
	p := &Pack{Metadata: md}
	assert.True(t, p.IsLibrary())
	assert.True(t, p.IsRoot())

	child := &Pack{Metadata: validMetadata(), parent: p}
	assert.False(t, child.IsRoot())
}

func TestCRDPolicyAllowsDelete(t *testing.T) {
	assert.True(t, CRDPolicyManaged.AllowsDelete(5))
	assert.False(t, CRDPolicyUnmanaged.AllowsDelete(0))
	assert.True(t, CRDPolicyShared.AllowsDelete(0))
	assert.False(t, CRDPolicyShared.AllowsDelete(1))
}

func TestPackCRDPolicyForDefaultsManaged(t *testing.T) {
	p := &Pack{Metadata: validMetadata()}
	assert.Equal(t, CRDPolicyManaged, p.CRDPolicyFor())

	md := validMetadata()
	md.CRDPolicy = CRDPolicyShared
	p2 := &Pack{Metadata: md}
	assert.Equal(t, CRDPolicyShared, p2.CRDPolicyFor())
}
