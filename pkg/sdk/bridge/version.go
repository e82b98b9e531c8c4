// SPDX-License-Identifier: Apache-2.0
/*
Copyright (C) 2024 The Falco Authors.

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

package bridge

import (
	"github.com/coreos/go-semver/semver"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
)

// checkABI returns an error if a host requiring the ABI version required
// cannot load a library implementing the ABI version provided. The
// versions are compatible when the major numbers match and the required
// version is not newer than the provided one.
func checkABI(required, provided string) error {
	req, err := semver.NewVersion(required)
	if err != nil {
		return sdk.Errorf(sdk.ABIMismatch, "invalid required ABI version %q", required).WithCause(err)
	}
	prov, err := semver.NewVersion(provided)
	if err != nil {
		return sdk.Errorf(sdk.ABIMismatch, "invalid ABI version %q", provided).WithCause(err)
	}
	if req.Major != prov.Major {
		return sdk.Errorf(sdk.ABIMismatch, "ABI major version mismatch: required %s, provided %s", req, prov)
	}
	if prov.LessThan(*req) {
		return sdk.Errorf(sdk.ABIMismatch, "ABI version too old: required %s, provided %s", req, prov)
	}
	return nil
}
