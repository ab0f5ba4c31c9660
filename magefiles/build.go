//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Vkrunner runs go mod tidy then builds the vkrunner binary.
func (Build) Vkrunner() error {
	if err := goModTidy(); err != nil {
		return err
	}
	fmt.Println("Build vkrunner...")
	_, err := executeCmd("go", withArgs("build", "-o", "bin/vkrunner", "./cmd/vkrunner"), withStream())
	return err
}

// Vet runs go vet across the module.
func (Build) Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}
