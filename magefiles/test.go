// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const coverProfile = "coverage.out"

// Test groups test targets.
type Test mg.Namespace

// All runs every test.
func (Test) All() error {
	return sh.RunV(binGo, "test", "./...")
}

// Unit runs the tests in -short mode, skipping those that create
// repositories on the OS filesystem.
func (Test) Unit() error {
	return sh.RunV(binGo, "test", "-short", "./...")
}

// Race runs every test with the race detector.
func (Test) Race() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Cover runs every test and prints the coverage per function.
func (Test) Cover() error {
	if err := sh.RunV(binGo, "test", "-coverprofile="+coverProfile, "./..."); err != nil {
		return err
	}
	out, err := sh.Output(binGo, "tool", "cover", "-func="+coverProfile)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
