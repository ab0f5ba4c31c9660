// Package compiler turns a script's per-stage shader sources into
// Vulkan shader modules: GLSL sources are handed to glslangValidator,
// disassembly-style SPIR-V text is handed to spirv-as, and a raw
// binary section is loaded as-is. §4.6.
//
// Grounded on vkrunner's compiler.rs.
package compiler

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrunner-go/internal/rconfig"
	"github.com/spaghettifunk/vkrunner-go/internal/requirements"
	"github.com/spaghettifunk/vkrunner-go/internal/script"
	"github.com/spaghettifunk/vkrunner-go/internal/shaderstage"
)

// Context is the subset of internal/vkgpu.Context the compiler needs:
// the logical device shader modules get created against.
type Context interface {
	Device() vk.Device
	Allocator() *vk.AllocationCallbacks
}

var spirvMagicLE = [4]byte{0x03, 0x02, 0x23, 0x07}
var spirvMagicBE = [4]byte{0x07, 0x23, 0x02, 0x03}

// BuildStage compiles or loads every shader script attaches to stage
// and returns the resulting shader module. cfg supplies the compiler
// binary overrides; logger receives every line of subprocess output.
func BuildStage(
	logger *log.Logger,
	ctx Context,
	cfg *rconfig.Config,
	scr *script.Script,
	stage shaderstage.Stage,
	showDisassembly bool,
) (vk.ShaderModule, error) {
	shaders := scr.Shaders(stage)
	if len(shaders) == 0 {
		return nil, &ErrMissingStageShaders{Stage: stage}
	}

	switch shaders[0].Kind {
	case script.ShaderGlsl:
		return compileGlsl(logger, ctx, cfg, scr, stage, showDisassembly)
	case script.ShaderSpirv:
		// The script loader only allows one shader once any of them
		// is already-compiled source.
		return assembleSpirv(logger, ctx, cfg, scr, shaders[0].Text, showDisassembly)
	case script.ShaderBinary:
		return loadBinaryStage(logger, ctx, cfg, shaders[0].Words, showDisassembly)
	default:
		return nil, fmt.Errorf("unknown shader kind %v", shaders[0].Kind)
	}
}

func versionString(version uint32) string {
	major, minor, _ := requirements.ExtractVersion(version)
	return fmt.Sprintf("vulkan%d.%d", major, minor)
}

func handleCommandOutput(logger *log.Logger, out []byte, errOut []byte, err error) error {
	if len(out) > 0 {
		logger.Debugf("%s", out)
	}
	if len(errOut) > 0 {
		logger.Debugf("%s", errOut)
	}
	if err != nil {
		return ErrCommandFailed
	}
	return nil
}

func runCommand(logger *log.Logger, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return handleCommandOutput(logger, stdout.Bytes(), stderr.Bytes(), err)
}

func showDisassemblyFromFile(logger *log.Logger, cfg *rconfig.Config, filename string) error {
	return runCommand(logger, cfg.SpirvDisBinary, filename)
}

func createShaderFromBinary(ctx Context, data []uint32) (vk.ShaderModule, error) {
	if len(data) == 0 {
		return nil, ErrInvalidShaderBinary
	}

	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(data) * 4),
		PCode:    &data[0],
	}

	var module vk.ShaderModule
	if res := vk.CreateShaderModule(ctx.Device(), &info, ctx.Allocator(), &module); res != vk.Success {
		return nil, ErrCreateShaderModuleFailed
	}
	return module, nil
}

// decodeShaderBinaryFile reads a compiled module written to disk by
// glslangValidator/spirv-as and reinterprets its bytes as a []uint32,
// detecting endianness off the leading SPIR-V magic number the way
// vkrunner's create_shader_from_binary_file does.
func decodeShaderBinaryFile(filename string) ([]uint32, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 || len(data) < 4 {
		return nil, ErrInvalidShaderBinary
	}

	var order binary.ByteOrder
	switch {
	case bytes.Equal(data[:4], spirvMagicLE[:]):
		order = binary.LittleEndian
	case bytes.Equal(data[:4], spirvMagicBE[:]):
		order = binary.BigEndian
	default:
		return nil, ErrInvalidShaderBinary
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = order.Uint32(data[i*4 : i*4+4])
	}
	return words, nil
}

func createShaderFromBinaryFile(ctx Context, filename string) (vk.ShaderModule, error) {
	words, err := decodeShaderBinaryFile(filename)
	if err != nil {
		return nil, err
	}
	return createShaderFromBinary(ctx, words)
}

func createTempFileForSource(source string) (string, error) {
	f, err := os.CreateTemp("", "vkrunner-*.glsl")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(source); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func compileGlsl(
	logger *log.Logger,
	ctx Context,
	cfg *rconfig.Config,
	scr *script.Script,
	stage shaderstage.Stage,
	showDisassembly bool,
) (vk.ShaderModule, error) {
	var shaderFiles []string
	defer func() {
		for _, f := range shaderFiles {
			os.Remove(f)
		}
	}()

	for _, sh := range scr.Shaders(stage) {
		name, err := createTempFileForSource(sh.Text)
		if err != nil {
			return nil, err
		}
		shaderFiles = append(shaderFiles, name)
	}

	moduleFile, err := os.CreateTemp("", "vkrunner-*.spv")
	if err != nil {
		return nil, err
	}
	moduleFile.Close()
	defer os.Remove(moduleFile.Name())

	args := []string{
		"-V",
		"--target-env", versionString(scr.Req.Version()),
		"-S", stage.Name(),
		"-o", moduleFile.Name(),
	}
	args = append(args, shaderFiles...)

	if err := runCommand(logger, cfg.GlslangValidatorBinary, args...); err != nil {
		return nil, err
	}

	if showDisassembly {
		if err := showDisassemblyFromFile(logger, cfg, moduleFile.Name()); err != nil {
			return nil, err
		}
	}

	return createShaderFromBinaryFile(ctx, moduleFile.Name())
}

func assembleSpirv(
	logger *log.Logger,
	ctx Context,
	cfg *rconfig.Config,
	scr *script.Script,
	source string,
	showDisassembly bool,
) (vk.ShaderModule, error) {
	moduleFile, err := os.CreateTemp("", "vkrunner-*.spv")
	if err != nil {
		return nil, err
	}
	moduleFile.Close()
	defer os.Remove(moduleFile.Name())

	sourceFile, err := createTempFileForSource(source)
	if err != nil {
		return nil, err
	}
	defer os.Remove(sourceFile)

	err = runCommand(
		logger, cfg.SpirvAsBinary,
		"--target-env", versionString(scr.Req.Version()),
		"-o", moduleFile.Name(),
		sourceFile,
	)
	if err != nil {
		return nil, err
	}

	if showDisassembly {
		if err := showDisassemblyFromFile(logger, cfg, moduleFile.Name()); err != nil {
			return nil, err
		}
	}

	return createShaderFromBinaryFile(ctx, moduleFile.Name())
}

func loadBinaryStage(
	logger *log.Logger,
	ctx Context,
	cfg *rconfig.Config,
	data []uint32,
	showDisassembly bool,
) (vk.ShaderModule, error) {
	if showDisassembly {
		f, err := os.CreateTemp("", "vkrunner-*.spv")
		if err != nil {
			return nil, err
		}
		defer os.Remove(f.Name())

		buf := make([]byte, len(data)*4)
		for i, v := range data {
			binary.NativeEndian.PutUint32(buf[i*4:], v)
		}
		if _, err := f.Write(buf); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}

		if err := showDisassemblyFromFile(logger, cfg, f.Name()); err != nil {
			return nil, err
		}
	}

	return createShaderFromBinary(ctx, data)
}
