//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed in a window.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	_, err := executeCmd("go", withArgs("run", ".", "-assets", "assets"), withStream())
	return err
}

// Runs the testbed on the in-memory backend for a few hundred frames.
func (Run) Headless() error {
	_, err := executeCmd("go", withArgs("run", ".", "-headless", "-frames", "300"), withStream())
	return err
}

// Runs the unit tests.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}
