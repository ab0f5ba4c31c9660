//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Script builds vkrunner and runs it against the given script path,
// looked up relative to testdataDir.
func (Run) Script(path string) error {
	if err := (Build{}).Vkrunner(); err != nil {
		return err
	}
	fmt.Println("Run vkrunner...")
	_, err := executeCmd("../bin/vkrunner", withArgs(path), withDir(testdataDir), withStream())
	return err
}
