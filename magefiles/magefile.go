//go:build mage

// Package main provides build targets for churro using Mage.
//
// Usage:
//
//	mage build       Compile the churro tool to bin/
//	mage install     Install churro to GOPATH/bin
//	mage clean       Remove build artifacts
//	mage test:all    Run all tests
//	mage test:unit   Run tests without the on-disk repository tests
//	mage test:cover  Run all tests with a coverage profile
//	mage lint        Run golangci-lint
//	mage stats       Print Go line counts per package
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "churro"
	binaryDir  = "bin"
	cmdDir     = "./cmd/churro"
)

// Default runs when mage is called without a target.
var Default = Build

// Build compiles the churro binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	if err := os.RemoveAll(coverProfile); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}
