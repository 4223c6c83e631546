//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

// Build compiles every executable into ./bin
func Build() error {
	mg.Deps(BuildConverter)
	mg.Deps(BuildCalibration)
	fmt.Println("Compilation finished")
	return nil
}

func BuildConverter() error {
	fmt.Println("Building converter executable...")
	return goCommand("build", "-o", "./bin/converter", "./converter")
}

func BuildCalibration() error {
	fmt.Println("Building calibration executable...")
	return goCommand("build", "-o", "./bin/calibration", "./calibration")
}

// Test runs the unit tests of every package
func Test() error {
	fmt.Println("Running tests...")
	return goCommand("test", "./...")
}

// HDF5 needs cgo, flags are taken from the environment
func goCommand(args ...string) error {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
