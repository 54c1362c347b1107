//go:build mage

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

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "pvledger"
	modulePath = "github.com/penny-vault/pv-ledger"
)

var ldflags = "-X " + modulePath + "/common.commitHash=$COMMIT_HASH -X " + modulePath + "/common.buildDate=$BUILD_DATE"

// allow user to override go executable by running as GOEXE=xxx mage ...
var goexe = "go"

func init() {
	if exe := os.Getenv("GOEXE"); exe != "" {
		goexe = exe
	}
}

// Build the pvledger binary with the commit hash and build date stamped in
func Build() error {
	fmt.Println("Building...")
	return sh.RunWith(flagEnv(), goexe, withBuildFlags("build", "-o", binaryName, "-ldflags", ldflags, ".")...)
}

func Install() error {
	return sh.RunWith(flagEnv(), goexe, withBuildFlags("install", "-ldflags", ldflags, ".")...)
}

// Clean removes build artifacts
func Clean() {
	fmt.Println("Cleaning...")
	os.RemoveAll(binaryName)
	os.Remove("coverage.out")
}

// Check runs formatting, vet and the race enabled test suite
func Check() {
	mg.Deps(Fmt, Vet)
	mg.Deps(TestRace)
}

// Run tests
func Test() error {
	fmt.Println("Go Test")
	return runQuiet(goexe, "test", "./...")
}

// Run tests with race detector
func TestRace() error {
	fmt.Println("Go Test Race")
	return runQuiet(goexe, "test", "-race", "./...")
}

// Cover writes coverage.out for all packages and opens the HTML report
func Cover() error {
	if err := sh.Run(goexe, "test", "-coverprofile=coverage.out", "-covermode=count", "./..."); err != nil {
		return err
	}
	return sh.Run(goexe, "tool", "cover", "-html=coverage.out")
}

// Fmt fails when any package file is not gofmt'ed
func Fmt() error {
	fmt.Println("Go Format")

	dirs, err := packageDirs()
	if err != nil {
		return err
	}

	unformatted := make([]string, 0)
	for _, dir := range dirs {
		files, err := filepath.Glob(filepath.Join(dir, "*.go"))
		if err != nil {
			return err
		}
		for _, f := range files {
			// gofmt exits 0 even when it finds unformatted code
			s, err := sh.Output("gofmt", "-l", f)
			if err != nil {
				return fmt.Errorf("running gofmt on %q: %w", f, err)
			}
			if s != "" {
				unformatted = append(unformatted, s)
			}
		}
	}

	if len(unformatted) > 0 {
		fmt.Println("The following files are not gofmt'ed:")
		fmt.Println(strings.Join(unformatted, "\n"))
		return errors.New("improperly formatted go files")
	}
	return nil
}

// Vet runs go vet over all packages
func Vet() error {
	fmt.Println("Go Vet")
	if err := sh.Run(goexe, "vet", "./..."); err != nil {
		return fmt.Errorf("error running go vet: %w", err)
	}
	return nil
}

// Helpers

func withBuildFlags(args ...string) []string {
	if runtime.GOOS == "windows" {
		return append([]string{args[0], "-buildmode", "exe"}, args[1:]...)
	}
	return args
}

func flagEnv() map[string]string {
	hash, _ := sh.Output("git", "rev-parse", "--short", "HEAD")
	return map[string]string{
		"COMMIT_HASH": hash,
		"BUILD_DATE":  time.Now().Format("2006-01-02T15:04:05Z0700"),
	}
}

func runQuiet(cmd string, args ...string) error {
	if mg.Verbose() {
		return sh.RunV(cmd, args...)
	}
	output, err := sh.Output(cmd, args...)
	if err != nil {
		fmt.Fprint(os.Stderr, output)
	}
	return err
}

// packageDirs lists the directories of all packages in the module
func packageDirs() ([]string, error) {
	s, err := sh.Output(goexe, "list", "-f", "{{.Dir}}", "./...")
	if err != nil {
		return nil, err
	}
	return strings.Split(s, "\n"), nil
}
