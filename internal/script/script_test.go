package script

import (
	"strings"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrunner-go/internal/shaderstage"
	"github.com/spaghettifunk/vkrunner-go/internal/slot"
	"github.com/spaghettifunk/vkrunner-go/internal/stream"
)

func TestLoadRequireSection(t *testing.T) {
	src := `[require]
framebuffer R32G32B32A32_SFLOAT
depthstencil D24_UNORM_S8_UINT
fbsize 16 32
vulkan 1.1
samplerAnisotropy
VK_KHR_swapchain
`
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Window.ColorFormat == nil || s.Window.ColorFormat.Name != "VK_FORMAT_R32G32B32A32_SFLOAT" {
		t.Errorf("ColorFormat = %v", s.Window.ColorFormat)
	}
	if s.Window.DepthStencilFormat == nil {
		t.Error("expected depthstencil format to be set")
	}
	if s.Window.Width != 16 || s.Window.Height != 32 {
		t.Errorf("fbsize = %dx%d, want 16x32", s.Window.Width, s.Window.Height)
	}
	exts := s.Req.Extensions()
	found := false
	for _, e := range exts {
		if e == "VK_KHR_swapchain" {
			found = true
		}
	}
	if !found {
		t.Errorf("Extensions() = %v, want VK_KHR_swapchain present", exts)
	}
}

func TestLoadRequireMustBeFirst(t *testing.T) {
	src := `[test]
clear
[require]
fbsize 4 4
`
	if _, err := Load("test.shader_test", src); err == nil {
		t.Fatal("expected error for [require] appearing after another section")
	}
}

func TestLoadDefaultWindowFormat(t *testing.T) {
	s, err := Load("test.shader_test", "[test]\nclear\n")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Window.Width != 250 || s.Window.Height != 250 {
		t.Errorf("default window size = %dx%d, want 250x250", s.Window.Width, s.Window.Height)
	}
}

func TestLoadShaderSections(t *testing.T) {
	src := `[vertex shader passthrough]

[fragment shader]
#version 450
void main() {
}
`
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	vs := s.Shaders(shaderstage.Vertex)
	if len(vs) != 1 || vs[0].Kind != ShaderBinary {
		t.Fatalf("vertex shaders = %#v, want one binary passthrough shader", vs)
	}
	fs := s.Shaders(shaderstage.Fragment)
	if len(fs) != 1 || fs[0].Kind != ShaderGlsl {
		t.Fatalf("fragment shaders = %#v, want one GLSL shader", fs)
	}
	if !strings.Contains(fs[0].Text, "void main()") {
		t.Errorf("fragment shader text = %q", fs[0].Text)
	}
}

func TestLoadShaderSpirvCannotMixWithGlsl(t *testing.T) {
	src := `[fragment shader]
void main() {}

[fragment shader spirv]
OpCapability Shader
`
	if _, err := Load("test.shader_test", src); err == nil {
		t.Fatal("expected error mixing GLSL and SPIR-V in the same stage")
	}
}

func TestLoadVertexDataAndIndices(t *testing.T) {
	src := `[vertex data]
0/R32G32_SFLOAT 1/R32G32B32_SFLOAT
-1.0 -1.0   1.0 0.0 0.0
 1.0 -1.0   0.0 1.0 0.0
 0.0  1.0   0.0 0.0 1.0

[indices]
0 1 2
`
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.VertexData == nil {
		t.Fatal("expected vertex data to be parsed")
	}
	if s.VertexData.NumRows != 3 {
		t.Errorf("NumRows = %d, want 3", s.VertexData.NumRows)
	}
	if len(s.Indices) != 3 || s.Indices[2] != 2 {
		t.Errorf("Indices = %v, want [0 1 2]", s.Indices)
	}
}

func TestLoadDuplicateVertexDataRejected(t *testing.T) {
	src := `[vertex data]
0/R32_SFLOAT
1.0

[vertex data]
0/R32_SFLOAT
2.0
`
	if _, err := Load("test.shader_test", src); err == nil {
		t.Fatal("expected error for duplicate [vertex data] section")
	}
}

func TestLoadDrawRect(t *testing.T) {
	src := "[test]\ndraw rect 10 20 30 40\n"
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Commands) != 1 {
		t.Fatalf("Commands = %#v, want 1", s.Commands)
	}
	op := s.Commands[0].Op
	if op.Kind != OpDrawRect {
		t.Fatalf("Kind = %v, want OpDrawRect", op.Kind)
	}
	if op.X != 10 || op.Y != 20 || op.W != 30 || op.H != 40 {
		t.Errorf("rect = %v,%v,%v,%v, want 10,20,30,40", op.X, op.Y, op.W, op.H)
	}
	if len(s.PipelineKeys) != 1 {
		t.Fatalf("PipelineKeys = %#v, want 1", s.PipelineKeys)
	}
	if s.PipelineKeys[op.PipelineKey].Topology != vk.PrimitiveTopologyTriangleStrip {
		t.Errorf("Topology = %v, want TriangleStrip", s.PipelineKeys[op.PipelineKey].Topology)
	}
}

func TestLoadDrawRectOrthoUsesWidthForBothAxes(t *testing.T) {
	// fbsize is deliberately non-square to expose the quirk: ortho
	// remap must use window width for both axes, not height.
	src := `[require]
fbsize 200 100

[test]
draw rect ortho 0 0 200 100
`
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	op := s.Commands[0].Op
	if op.X != -1 || op.Y != -1 {
		t.Errorf("x,y = %v,%v, want -1,-1", op.X, op.Y)
	}
	if op.W != 2.0 {
		t.Errorf("w = %v, want 2.0 (200 * 2/200)", op.W)
	}
	// Height used window width (200), not window height (100):
	// 100 * 2/200 = 1.0, not 100 * 2/100 = 2.0.
	if op.H != 1.0 {
		t.Errorf("h = %v, want 1.0 (quirk: normalized against width, not height)", op.H)
	}
}

func TestLoadDrawArraysTopologyNames(t *testing.T) {
	src := "[test]\ndraw arrays GL_TRIANGLES 0 3\n"
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	op := s.Commands[0].Op
	if op.Kind != OpDrawArrays {
		t.Fatalf("Kind = %v, want OpDrawArrays", op.Kind)
	}
	if op.Topology != vk.PrimitiveTopologyTriangleList {
		t.Errorf("Topology = %v, want TriangleList", op.Topology)
	}
	if op.FirstVertex != 0 || op.VertexCount != 3 || op.InstanceCount != 1 {
		t.Errorf("first=%d count=%d instances=%d, want 0,3,1", op.FirstVertex, op.VertexCount, op.InstanceCount)
	}
}

func TestLoadPushConstant(t *testing.T) {
	src := "[test]\npush vec4 0 1.0 2.0 3.0 4.0\n"
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	op := s.Commands[0].Op
	if op.Kind != OpSetPushCommand {
		t.Fatalf("Kind = %v, want OpSetPushCommand", op.Kind)
	}
	if len(op.Data) != 16 {
		t.Errorf("len(Data) = %d, want 16", len(op.Data))
	}
}

func TestLoadUboBufferGrowsSize(t *testing.T) {
	src := `[test]
uniform ubo 0:1 float 0 1.0
ubo 0:1 subdata vec4 16 1.0 2.0 3.0 4.0
`
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Buffers) != 1 {
		t.Fatalf("Buffers = %#v, want 1", s.Buffers)
	}
	b := s.Buffers[0]
	if b.DescSet != 0 || b.Binding != 1 || b.Type != Ubo {
		t.Errorf("buffer = %+v, want descSet=0 binding=1 type=Ubo", b)
	}
	if b.Size < 32 {
		t.Errorf("Size = %d, want >= 32 (offset 16 + vec4)", b.Size)
	}
}

func TestLoadSsboBareSize(t *testing.T) {
	src := "[test]\nssbo 2 128\n"
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Buffers) != 1 || s.Buffers[0].Size != 128 || s.Buffers[0].Type != Ssbo {
		t.Fatalf("Buffers = %#v, want one ssbo of size 128", s.Buffers)
	}
}

func TestLoadBuffersSortedByDescSetBinding(t *testing.T) {
	src := `[test]
ssbo 1:0 4
ssbo 0:2 4
ssbo 0:1 4
`
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Buffers) != 3 {
		t.Fatalf("Buffers = %#v, want 3", s.Buffers)
	}
	want := [][2]uint32{{0, 1}, {0, 2}, {1, 0}}
	for i, w := range want {
		if s.Buffers[i].DescSet != w[0] || s.Buffers[i].Binding != w[1] {
			t.Errorf("Buffers[%d] = (%d,%d), want (%d,%d)", i, s.Buffers[i].DescSet, s.Buffers[i].Binding, w[0], w[1])
		}
	}
}

func TestLoadProbeSsbo(t *testing.T) {
	src := "[test]\nprobe ssbo int 0:0 8 == 42\n"
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	op := s.Commands[0].Op
	if op.Kind != OpProbeSsbo {
		t.Fatalf("Kind = %v, want OpProbeSsbo", op.Kind)
	}
	if op.DescSet != 0 || op.Binding != 0 || op.Offset != 8 {
		t.Errorf("descSet=%d binding=%d offset=%d, want 0,0,8", op.DescSet, op.Binding, op.Offset)
	}
	if op.Comparison != slot.CmpEqual {
		t.Errorf("Comparison = %v, want CmpEqual", op.Comparison)
	}
}

func TestLoadToleranceSingleValueBroadcasts(t *testing.T) {
	src := "[test]\ntolerance 2\n"
	if _, err := Load("test.shader_test", src); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadToleranceRejectsMixedPercent(t *testing.T) {
	src := "[test]\ntolerance 1 2% 3 4\n"
	if _, err := Load("test.shader_test", src); err == nil {
		t.Fatal("expected error mixing percentage and absolute tolerance values")
	}
}

func TestLoadToleranceRejectsWrongCount(t *testing.T) {
	src := "[test]\ntolerance 1 2 3\n"
	if _, err := Load("test.shader_test", src); err == nil {
		t.Fatal("expected error for 3 tolerance values (must be 1 or 4)")
	}
}

func TestLoadDescSetBindingColonSyntax(t *testing.T) {
	src := "[test]\nssbo 3:7 64\n"
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Buffers) != 1 || s.Buffers[0].DescSet != 3 || s.Buffers[0].Binding != 7 {
		t.Fatalf("Buffers = %#v, want descSet=3 binding=7", s.Buffers)
	}
}

func TestLoadBareBindingDefaultsDescSetZero(t *testing.T) {
	src := "[test]\nssbo 5 64\n"
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Buffers) != 1 || s.Buffers[0].DescSet != 0 || s.Buffers[0].Binding != 5 {
		t.Fatalf("Buffers = %#v, want descSet=0 binding=5", s.Buffers)
	}
}

func TestLoadEntrypoint(t *testing.T) {
	src := "[test]\nfragment entrypoint main_fs\ndraw rect 0 0 1 1\n"
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.PipelineKeys) != 1 {
		t.Fatalf("PipelineKeys = %#v, want 1", s.PipelineKeys)
	}
	if got := s.PipelineKeys[0].Entrypoint(shaderstage.Fragment); got != "main_fs" {
		t.Errorf("Entrypoint(Fragment) = %q, want main_fs", got)
	}
}

func TestLoadPatchParameterVertices(t *testing.T) {
	src := "[test]\npatch parameter vertices 6\ndraw arrays PATCH_LIST 0 6\n"
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.PipelineKeys) != 1 || s.PipelineKeys[0].PatchControlPoints != 6 {
		t.Fatalf("PipelineKeys = %#v, want PatchControlPoints=6", s.PipelineKeys)
	}
}

func TestLoadPipelineKeyDeduplication(t *testing.T) {
	src := "[test]\ndraw rect 0 0 1 1\ndraw rect 1 1 2 2\n"
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.PipelineKeys) != 1 {
		t.Fatalf("PipelineKeys = %#v, want 1 (both draws share the same key)", s.PipelineKeys)
	}
	if s.Commands[0].Op.PipelineKey != s.Commands[1].Op.PipelineKey {
		t.Error("expected both draw rect commands to reference the same pipeline key")
	}
}

func TestLoadClear(t *testing.T) {
	src := `[test]
clear color 0.1 0.2 0.3 1.0
clear depth 0.5
clear
`
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Commands) != 1 {
		t.Fatalf("Commands = %#v, want 1 (clear color/depth set defaults, only bare clear pushes)", s.Commands)
	}
	op := s.Commands[0].Op
	if op.Kind != OpClear {
		t.Fatalf("Kind = %v, want OpClear", op.Kind)
	}
	if op.ClearColor != [4]float32{0.1, 0.2, 0.3, 1.0} {
		t.Errorf("ClearColor = %v", op.ClearColor)
	}
	if op.ClearDepth != 0.5 {
		t.Errorf("ClearDepth = %v, want 0.5", op.ClearDepth)
	}
}

func TestLoadLayoutDirective(t *testing.T) {
	src := `[test]
ubo layout std430 row_major
uniform ubo 0 float 0 1.0
`
	if _, err := Load("test.shader_test", src); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadUnknownTestCommandFails(t *testing.T) {
	src := "[test]\nnot a real command\n"
	if _, err := Load("test.shader_test", src); err == nil {
		t.Fatal("expected error for unrecognised test command")
	}
}

func TestLoadComment(t *testing.T) {
	src := `[comment]
anything at all goes here, even 1 2 3 ] [
[test]
clear
`
	s, err := Load("test.shader_test", src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Commands) != 1 {
		t.Fatalf("Commands = %#v, want 1", s.Commands)
	}
}

func TestLoadWithReplacementsSubstitutesTokens(t *testing.T) {
	src := "[test]\nclear color $RED$ 0.0 0.0 1.0\nclear\n"
	repl := []stream.TokenReplacement{{Token: "$RED$", Replacement: "1.0"}}
	s, err := LoadWithReplacements("test.shader_test", src, repl)
	if err != nil {
		t.Fatalf("LoadWithReplacements: %v", err)
	}
	if len(s.Commands) != 1 {
		t.Fatalf("Commands = %#v, want 1", s.Commands)
	}
	if got := s.Commands[0].Op.ClearColor[0]; got != 1.0 {
		t.Errorf("ClearColor[0] = %v, want 1.0", got)
	}
}
