// Package shaderstage defines the fixed set of shader pipeline stages
// a test script section can target, grounded on vkrunner's
// shader_stage module (referenced throughout compiler.rs and
// pipeline_key.rs).
package shaderstage

import vk "github.com/goki/vulkan"

// Stage is one of the six pipeline stages a [<stage> shader] section
// can populate.
type Stage int

const (
	Vertex Stage = iota
	TessCtrl
	TessEval
	Geometry
	Fragment
	Compute
	NStages
)

// Name returns the short file-extension / glslangValidator -S spelling of s
// ("vert", "tesc", "tese", "geom", "frag", "comp").
func (s Stage) Name() string {
	switch s {
	case Vertex:
		return "vert"
	case TessCtrl:
		return "tesc"
	case TessEval:
		return "tese"
	case Geometry:
		return "geom"
	case Fragment:
		return "frag"
	case Compute:
		return "comp"
	default:
		return "unknown"
	}
}

// VkStage returns the VkShaderStageFlagBits value for s.
func (s Stage) VkStage() vk.ShaderStageFlagBits {
	switch s {
	case Vertex:
		return vk.ShaderStageVertexBit
	case TessCtrl:
		return vk.ShaderStageTessellationControlBit
	case TessEval:
		return vk.ShaderStageTessellationEvaluationBit
	case Geometry:
		return vk.ShaderStageGeometryBit
	case Fragment:
		return vk.ShaderStageFragmentBit
	case Compute:
		return vk.ShaderStageComputeBit
	default:
		return 0
	}
}
