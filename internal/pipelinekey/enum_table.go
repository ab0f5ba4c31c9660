package pipelinekey

import vk "github.com/goki/vulkan"

// vkEnumTable resolves the Vulkan enum/bitmask token spellings a
// "[test]" section property value is allowed to use. Real vkrunner
// generates this table from the Vulkan headers themselves
// (enum_table.rs, not present in the retrieval pack); this port keeps
// the entries exercised by the property subset in pipelinekey.go's
// properties table.
var vkEnumTable = map[string]int32{
	"VK_PRIMITIVE_TOPOLOGY_POINT_LIST":     int32(vk.PrimitiveTopologyPointList),
	"VK_PRIMITIVE_TOPOLOGY_LINE_LIST":      int32(vk.PrimitiveTopologyLineList),
	"VK_PRIMITIVE_TOPOLOGY_LINE_STRIP":     int32(vk.PrimitiveTopologyLineStrip),
	"VK_PRIMITIVE_TOPOLOGY_TRIANGLE_LIST":  int32(vk.PrimitiveTopologyTriangleList),
	"VK_PRIMITIVE_TOPOLOGY_TRIANGLE_STRIP": int32(vk.PrimitiveTopologyTriangleStrip),
	"VK_PRIMITIVE_TOPOLOGY_TRIANGLE_FAN":   int32(vk.PrimitiveTopologyTriangleFan),
	"VK_PRIMITIVE_TOPOLOGY_PATCH_LIST":     int32(vk.PrimitiveTopologyPatchList),

	"VK_POLYGON_MODE_FILL":  int32(vk.PolygonModeFill),
	"VK_POLYGON_MODE_LINE":  int32(vk.PolygonModeLine),
	"VK_POLYGON_MODE_POINT": int32(vk.PolygonModePoint),

	"VK_CULL_MODE_NONE":           int32(vk.CullModeNone),
	"VK_CULL_MODE_FRONT_BIT":      int32(vk.CullModeFrontBit),
	"VK_CULL_MODE_BACK_BIT":       int32(vk.CullModeBackBit),
	"VK_CULL_MODE_FRONT_AND_BACK": int32(vk.CullModeFrontAndBack),

	"VK_FRONT_FACE_COUNTER_CLOCKWISE": int32(vk.FrontFaceCounterClockwise),
	"VK_FRONT_FACE_CLOCKWISE":         int32(vk.FrontFaceClockwise),

	"VK_COMPARE_OP_NEVER":            int32(vk.CompareOpNever),
	"VK_COMPARE_OP_LESS":             int32(vk.CompareOpLess),
	"VK_COMPARE_OP_EQUAL":            int32(vk.CompareOpEqual),
	"VK_COMPARE_OP_LESS_OR_EQUAL":    int32(vk.CompareOpLessOrEqual),
	"VK_COMPARE_OP_GREATER":          int32(vk.CompareOpGreater),
	"VK_COMPARE_OP_NOT_EQUAL":        int32(vk.CompareOpNotEqual),
	"VK_COMPARE_OP_GREATER_OR_EQUAL": int32(vk.CompareOpGreaterOrEqual),
	"VK_COMPARE_OP_ALWAYS":           int32(vk.CompareOpAlways),

	"VK_BLEND_FACTOR_ZERO":                int32(vk.BlendFactorZero),
	"VK_BLEND_FACTOR_ONE":                 int32(vk.BlendFactorOne),
	"VK_BLEND_FACTOR_SRC_COLOR":           int32(vk.BlendFactorSrcColor),
	"VK_BLEND_FACTOR_ONE_MINUS_SRC_COLOR": int32(vk.BlendFactorOneMinusSrcColor),
	"VK_BLEND_FACTOR_SRC_ALPHA":           int32(vk.BlendFactorSrcAlpha),
	"VK_BLEND_FACTOR_ONE_MINUS_SRC_ALPHA": int32(vk.BlendFactorOneMinusSrcAlpha),
	"VK_BLEND_FACTOR_DST_COLOR":           int32(vk.BlendFactorDstColor),
	"VK_BLEND_FACTOR_ONE_MINUS_DST_COLOR": int32(vk.BlendFactorOneMinusDstColor),
	"VK_BLEND_FACTOR_DST_ALPHA":           int32(vk.BlendFactorDstAlpha),
	"VK_BLEND_FACTOR_ONE_MINUS_DST_ALPHA": int32(vk.BlendFactorOneMinusDstAlpha),

	"VK_BLEND_OP_ADD":              int32(vk.BlendOpAdd),
	"VK_BLEND_OP_SUBTRACT":         int32(vk.BlendOpSubtract),
	"VK_BLEND_OP_REVERSE_SUBTRACT": int32(vk.BlendOpReverseSubtract),
	"VK_BLEND_OP_MIN":              int32(vk.BlendOpMin),
	"VK_BLEND_OP_MAX":              int32(vk.BlendOpMax),

	"VK_COLOR_COMPONENT_R_BIT": int32(vk.ColorComponentRBit),
	"VK_COLOR_COMPONENT_G_BIT": int32(vk.ColorComponentGBit),
	"VK_COLOR_COMPONENT_B_BIT": int32(vk.ColorComponentBBit),
	"VK_COLOR_COMPONENT_A_BIT": int32(vk.ColorComponentABit),
}
