// Package main provides build targets for pdfrev using Mage.
//
// Usage:
//
//	mage build     Compile pdfrev to bin/
//	mage test      Run all tests
//	mage vet       Run go vet
//	mage check     Vet, then test
//	mage install   Install pdfrev to GOPATH/bin
//	mage clean     Remove build artifacts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "pdfrev"
	binaryDir  = "bin"
	cmdDir     = "./cmd/pdfrev"
)

// Build compiles the pdfrev binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests.
func Test() error {
	return sh.RunV(binGo, "test", "./...")
}

// Vet runs go vet on every package.
func Vet() error {
	return sh.RunV(binGo, "vet", "./...")
}

// Check runs vet and the tests.
func Check() {
	mg.SerialDeps(Vet, Test)
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
	return os.RemoveAll(binaryDir)
}
