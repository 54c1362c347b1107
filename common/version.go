// Copyright 2021-2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
)

// set through ldflags by the magefile
var (
	commitHash string
	buildDate  string
	vendorInfo string
)

// Version is a SemVer 2.0.0 build version
type Version struct {
	Major int
	Minor int
	Patch int

	// Suffix marks pre-release builds; blank for releases
	Suffix string
}

// BuildInfo describes the running binary
type BuildInfo struct {
	Program      string   `json:"program" toml:"program"`
	Version      string   `json:"version" toml:"version"`
	Platform     string   `json:"platform" toml:"platform"`
	GoVersion    string   `json:"goVersion" toml:"go_version"`
	BuildDate    string   `json:"buildDate" toml:"build_date"`
	Commit       string   `json:"commit" toml:"commit"`
	Vendor       string   `json:"vendor,omitempty" toml:"vendor,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" toml:"dependencies,omitempty"`
}

func (v Version) String() string {
	res := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Suffix == "" {
		return res
	}

	res += "-" + v.Suffix
	if commitHash != "" {
		res += "+" + strings.ToLower(commitHash)
	}
	return res
}

// DependencyList returns the module dependencies compiled into the binary as
// sorted path="version" pairs
func DependencyList() []string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}

	deps := make([]string, 0, len(bi.Deps))
	for _, dep := range bi.Deps {
		deps = append(deps, fmt.Sprintf("%s=%q", dep.Path, dep.Version))
	}
	sort.Strings(deps)

	return deps
}

func CurrentBuildInfo() *BuildInfo {
	info := &BuildInfo{
		Program:      "pvledger",
		Version:      "v" + CurrentVersion.String(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion:    runtime.Version(),
		BuildDate:    buildDate,
		Commit:       commitHash,
		Vendor:       vendorInfo,
		Dependencies: DependencyList(),
	}

	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}

	return info
}

// String is the text printed by "pvledger version"
func (info *BuildInfo) String() string {
	res := fmt.Sprintf("%s %s %s\n\nBuild Date: %s\nCommit: %s\nBuilt with: %s",
		info.Program, info.Version, info.Platform, info.BuildDate, info.Commit, info.GoVersion)

	if info.Vendor != "" {
		res += "\nVendor Info: " + info.Vendor
	}

	if len(info.Dependencies) > 0 {
		res += "\n\nDependencies:\n\n" + strings.Join(info.Dependencies, "\n")
	}

	return res
}
