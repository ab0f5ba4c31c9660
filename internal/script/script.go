// Package script parses a test-script source document into an
// immutable Script: the shader sources, pipeline keys, ordered test
// commands, declared buffers, device requirements and window format
// a runner needs to execute it.
//
// Grounded on vkrunner's script.rs.
package script

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrunner-go/internal/format"
	"github.com/spaghettifunk/vkrunner-go/internal/pipelinekey"
	"github.com/spaghettifunk/vkrunner-go/internal/requirements"
	"github.com/spaghettifunk/vkrunner-go/internal/shaderstage"
	"github.com/spaghettifunk/vkrunner-go/internal/slot"
	"github.com/spaghettifunk/vkrunner-go/internal/vbo"
)

// ShaderKind distinguishes the three ways a shader stage's source can
// be supplied.
type ShaderKind int

const (
	ShaderGlsl ShaderKind = iota
	ShaderSpirv
	ShaderBinary
)

// Shader is one shader source attached to a stage. Exactly one of
// Text (Glsl/Spirv) or Words (Binary) is meaningful, selected by Kind.
type Shader struct {
	Kind  ShaderKind
	Text  string
	Words []uint32
}

// IsSpirv reports whether s is already compiled (Spirv or Binary), in
// which case it cannot be linked with any other shader in the stage.
func (s Shader) IsSpirv() bool {
	return s.Kind == ShaderSpirv || s.Kind == ShaderBinary
}

// BufferType distinguishes a uniform buffer from a storage buffer.
type BufferType int

const (
	Ubo BufferType = iota
	Ssbo
)

// Buffer is one declared descriptor-backed buffer, keyed by
// (DescSet, Binding); Size grows to the maximum extent any subdata
// command writes or any bare size command declares ("probe ssbo"
// reads do not grow it).
type Buffer struct {
	DescSet uint32
	Binding uint32
	Type    BufferType
	Size    int
}

// OperationKind tags which fields of an Operation are meaningful.
type OperationKind int

const (
	OpDrawRect OperationKind = iota
	OpDrawArrays
	OpDispatchCompute
	OpProbeRect
	OpProbeSsbo
	OpSetPushCommand
	OpSetBufferData
	OpClear
)

// Operation is one parsed test-section command. Only the fields
// relevant to Kind are populated.
type Operation struct {
	Kind OperationKind

	// DrawRect
	X, Y, W, H  float32
	Ortho       bool
	Patch       bool
	PipelineKey int

	// DrawArrays
	Topology      vk.PrimitiveTopology
	Indexed       bool
	Instanced     bool
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32

	// DispatchCompute
	GroupsX, GroupsY, GroupsZ uint32

	// ProbeRect
	NComponents    int
	PX, PY, PW, PH int
	Color          [4]float64
	Tolerance      slot.Tolerance

	// ProbeSsbo
	DescSet    uint32
	Binding    uint32
	Comparison slot.Comparison
	Offset     int
	SlotType   slot.Type
	Layout     slot.Layout
	Values     []byte

	// SetPushCommand / SetBufferData share Offset/Data
	Data []byte

	// Clear
	ClearColor   [4]float32
	ClearDepth   float32
	ClearStencil uint32
}

// Command is one line of the [test] section together with the source
// line it came from, for error reporting.
type Command struct {
	LineNum int
	Op      Operation
}

// WindowFormat is the target framebuffer shape a script requires.
type WindowFormat struct {
	ColorFormat        *format.Format
	DepthStencilFormat *format.Format
	Width, Height      int
}

// DefaultWindowFormat returns the format a script gets when its
// [require] section never mentions framebuffer/depthstencil/fbsize.
func DefaultWindowFormat() WindowFormat {
	colorFormat, _ := format.LookupByName("VK_FORMAT_B8G8R8A8_UNORM")
	return WindowFormat{
		ColorFormat: colorFormat,
		Width:       250,
		Height:      250,
	}
}

// Script is the immutable result of loading a test script: everything
// a pipeline set and tester need to execute it.
type Script struct {
	Filename     string
	stages       [shaderstage.NStages][]Shader
	Commands     []Command
	PipelineKeys []*pipelinekey.Key
	Req          *requirements.Requirements
	Window       WindowFormat
	VertexData   *vbo.Vbo
	Indices      []uint16
	Buffers      []Buffer
}

// Shaders returns the ordered shader sources attached to stage.
func (s *Script) Shaders(stage shaderstage.Stage) []Shader {
	return s.stages[stage]
}

// LoadError reports a failure at a specific source line.
type LoadError struct {
	LineNum int
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("line %d: %s", e.LineNum, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
