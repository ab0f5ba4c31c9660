package compiler

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/vkrunner-go/internal/shaderstage"
)

// ErrMissingStageShaders is returned by BuildStage when the script has
// no shader at all for the requested stage.
type ErrMissingStageShaders struct {
	Stage shaderstage.Stage
}

func (e *ErrMissingStageShaders) Error() string {
	return fmt.Sprintf("no shaders for stage %s", e.Stage.Name())
}

// ErrCreateShaderModuleFailed is returned when vkCreateShaderModule
// itself reports failure.
var ErrCreateShaderModuleFailed = errors.New("vkCreateShaderModule failed")

// ErrCommandFailed is returned when glslangValidator, spirv-as or
// spirv-dis exits with a non-zero status.
var ErrCommandFailed = errors.New("a subprocess failed with a non-zero exit status")

// ErrInvalidShaderBinary is returned when a compiled module's bytes
// don't start with a valid SPIR-V magic number, or aren't a multiple
// of 4 bytes long.
var ErrInvalidShaderBinary = errors.New("the compiler or assembler generated an invalid SPIR-V binary")
