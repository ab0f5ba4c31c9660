package script

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrunner-go/internal/format"
	"github.com/spaghettifunk/vkrunner-go/internal/numeric"
	"github.com/spaghettifunk/vkrunner-go/internal/pipelinekey"
	"github.com/spaghettifunk/vkrunner-go/internal/requirements"
	"github.com/spaghettifunk/vkrunner-go/internal/shaderstage"
	"github.com/spaghettifunk/vkrunner-go/internal/slot"
	"github.com/spaghettifunk/vkrunner-go/internal/stream"
	"github.com/spaghettifunk/vkrunner-go/internal/vbo"
)

type section int

const (
	secNone section = iota
	secComment
	secRequire
	secShader
	secVertexData
	secIndices
	secTest
)

var stageNames = [shaderstage.NStages]string{
	shaderstage.Vertex:   "vertex",
	shaderstage.TessCtrl: "tessellation control",
	shaderstage.TessEval: "tessellation evaluation",
	shaderstage.Geometry: "geometry",
	shaderstage.Fragment: "fragment",
	shaderstage.Compute:  "compute",
}

var topologyNames = map[string]vk.PrimitiveTopology{
	"GL_LINES":                      vk.PrimitiveTopologyLineList,
	"GL_LINES_ADJACENCY":            vk.PrimitiveTopologyLineListWithAdjacency,
	"GL_LINE_STRIP":                 vk.PrimitiveTopologyLineStrip,
	"GL_LINE_STRIP_ADJACENCY":       vk.PrimitiveTopologyLineStripWithAdjacency,
	"GL_PATCHES":                    vk.PrimitiveTopologyPatchList,
	"GL_POINTS":                     vk.PrimitiveTopologyPointList,
	"GL_TRIANGLES":                  vk.PrimitiveTopologyTriangleList,
	"GL_TRIANGLES_ADJACENCY":        vk.PrimitiveTopologyTriangleListWithAdjacency,
	"GL_TRIANGLE_FAN":               vk.PrimitiveTopologyTriangleFan,
	"GL_TRIANGLE_STRIP":             vk.PrimitiveTopologyTriangleStrip,
	"GL_TRIANGLE_STRIP_ADJACENCY":   vk.PrimitiveTopologyTriangleStripWithAdjacency,
	"LINE_LIST":                     vk.PrimitiveTopologyLineList,
	"LINE_LIST_WITH_ADJACENCY":      vk.PrimitiveTopologyLineListWithAdjacency,
	"LINE_STRIP":                    vk.PrimitiveTopologyLineStrip,
	"LINE_STRIP_WITH_ADJACENCY":     vk.PrimitiveTopologyLineStripWithAdjacency,
	"PATCH_LIST":                    vk.PrimitiveTopologyPatchList,
	"POINT_LIST":                    vk.PrimitiveTopologyPointList,
	"TRIANGLE_FAN":                  vk.PrimitiveTopologyTriangleFan,
	"TRIANGLE_LIST":                 vk.PrimitiveTopologyTriangleList,
	"TRIANGLE_LIST_WITH_ADJACENCY":  vk.PrimitiveTopologyTriangleListWithAdjacency,
	"TRIANGLE_STRIP":                vk.PrimitiveTopologyTriangleStrip,
	"TRIANGLE_STRIP_WITH_ADJACENCY": vk.PrimitiveTopologyTriangleStripWithAdjacency,
}

var defaultPushLayout = slot.Layout{Std: slot.Std430, Major: slot.Column}
var defaultUboLayout = slot.Layout{Std: slot.Std140, Major: slot.Column}
var defaultSsboLayout = slot.Layout{Std: slot.Std430, Major: slot.Column}

// loader holds the mutable state accumulated while walking a script's
// lines, mirroring vkrunner's Loader (script.rs).
type loader struct {
	st      *stream.Stream
	section section
	had     uint32

	currentShader *Shader
	currentStage  shaderstage.Stage
	stages        [shaderstage.NStages][]Shader

	tolerance    slot.Tolerance
	clearColor   [4]float32
	clearDepth   float32
	clearStencil uint32

	commands     []Command
	pipelineKeys []*pipelinekey.Key
	currentKey   *pipelinekey.Key

	pushLayout slot.Layout
	uboLayout  slot.Layout
	ssboLayout slot.Layout

	vertexData *vbo.Vbo
	vboParser  *vbo.Parser

	indices []uint16
	req     *requirements.Requirements
	window  WindowFormat
	buffers []Buffer
}

// Load parses source (the full text of a test script) into a Script.
// filename is only used for error reporting and Script.Filename.
func Load(filename, source string) (*Script, error) {
	return LoadWithReplacements(filename, source, nil)
}

// LoadWithReplacements is Load plus the -D/--replace token
// substitutions the CLI pre-registers; they are applied to every
// logical line (after `\` continuations are joined) before section
// dispatch, per stream.Stream.
func LoadWithReplacements(filename, source string, tokenReplacements []stream.TokenReplacement) (*Script, error) {
	l := &loader{
		st:         stream.NewFromString(source, tokenReplacements),
		tolerance:  slot.DefaultTolerance(),
		clearDepth: 1.0,
		currentKey: pipelinekey.New(),
		pushLayout: defaultPushLayout,
		uboLayout:  defaultUboLayout,
		ssboLayout: defaultSsboLayout,
		req:        requirements.New(),
		window:     DefaultWindowFormat(),
	}

	var b strings.Builder
	for {
		b.Reset()
		n, err := l.st.ReadLine(&b)
		if err != nil {
			return nil, &LoadError{LineNum: l.st.LineNum(), Err: err}
		}
		if n == 0 {
			break
		}
		if err := l.processLine(b.String()); err != nil {
			return nil, err
		}
	}

	if err := l.endSection(); err != nil {
		return nil, err
	}

	sort.SliceStable(l.buffers, func(i, j int) bool {
		if l.buffers[i].DescSet != l.buffers[j].DescSet {
			return l.buffers[i].DescSet < l.buffers[j].DescSet
		}
		return l.buffers[i].Binding < l.buffers[j].Binding
	})

	return &Script{
		Filename:     filename,
		stages:       l.stages,
		Commands:     l.commands,
		PipelineKeys: l.pipelineKeys,
		Req:          l.req,
		Window:       l.window,
		VertexData:   l.vertexData,
		Indices:      l.indices,
		Buffers:      l.buffers,
	}, nil
}

func (l *loader) errf(msg string, args ...any) error {
	return &LoadError{LineNum: l.st.LineNum(), Err: fmt.Errorf(msg, args...)}
}

func (l *loader) processLine(line string) error {
	matched, err := l.processSectionHeader(line)
	if err != nil {
		return err
	}
	if matched {
		return nil
	}

	switch l.section {
	case secNone:
		return l.processNoneLine(line)
	case secComment:
		return nil
	case secRequire:
		return l.processRequireLine(line)
	case secShader:
		return l.processShaderLine(line)
	case secVertexData:
		return l.processVertexDataLine(line)
	case secIndices:
		return l.processIndicesLine(line)
	case secTest:
		return l.processTestLine(line)
	}
	return nil
}

func (l *loader) processNoneLine(line string) error {
	if strings.TrimSpace(stripComment(line)) != "" {
		return l.errf("expected empty line")
	}
	return nil
}

func (l *loader) endSection() error {
	switch l.section {
	case secShader:
		l.stages[l.currentStage] = append(l.stages[l.currentStage], *l.currentShader)
		l.currentShader = nil
	case secVertexData:
		vbo, err := l.vboParser.IntoVbo()
		if err != nil {
			return &LoadError{LineNum: l.st.LineNum(), Err: err}
		}
		l.vertexData = vbo
		l.vboParser = nil
	}
	l.section = secNone
	return nil
}

func (l *loader) setSection(s section) {
	l.had |= 1 << uint(s)
	l.section = s
}

func (l *loader) processSectionHeader(line string) (bool, error) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "[") {
		return false, nil
	}

	if err := l.endSection(); err != nil {
		return false, err
	}

	end := strings.Index(trimmed, "]")
	if end < 0 {
		return false, l.errf("missing ']'")
	}
	name := trimmed[1:end]
	if strings.TrimRight(trimmed[end+1:], " \t\r\n") != "" {
		return false, l.errf("trailing data after ']'")
	}

	return true, l.processSectionName(name)
}

func (l *loader) processSectionName(name string) error {
	if strings.TrimSpace(name) == "vertex shader passthrough" {
		return l.addPassthroughVertexShader()
	}

	if stage, tail, ok := stageHeader(name); ok {
		kind, ok2 := shaderKindSuffix(tail)
		if !ok2 {
			return l.errf("unknown shader section %q", name)
		}
		sh := Shader{Kind: kind}
		if err := l.checkAddShader(stage, sh); err != nil {
			return err
		}
		l.currentShader = &sh
		l.currentStage = stage
		l.setSection(secShader)
		return nil
	}

	name = strings.TrimSpace(name)

	switch name {
	case "comment":
		l.setSection(secComment)
		return nil
	case "require":
		if l.had & ^uint32(1<<secComment) != 0 {
			return l.errf("[require] must be the first section")
		}
		l.setSection(secRequire)
		return nil
	case "test":
		l.setSection(secTest)
		return nil
	case "indices":
		l.setSection(secIndices)
		return nil
	case "vertex data":
		if l.vertexData != nil {
			return l.errf("duplicate vertex data section")
		}
		l.setSection(secVertexData)
		l.vboParser = vbo.NewParser()
		return nil
	}

	return l.errf("unknown section %q", name)
}

func stageHeader(name string) (shaderstage.Stage, string, bool) {
	for stage := shaderstage.Vertex; stage < shaderstage.NStages; stage++ {
		if tail, ok := stripWordPrefix(name, stageNames[stage]); ok {
			if tail2, ok2 := stripWordPrefix(tail, "shader"); ok2 {
				return stage, tail2, true
			}
		}
	}
	return 0, "", false
}

func shaderKindSuffix(tail string) (ShaderKind, bool) {
	if rest, ok := stripWordPrefix(tail, "spirv"); ok && strings.TrimSpace(rest) == "" {
		return ShaderSpirv, true
	}
	if rest, ok := stripWordPrefix(tail, "binary"); ok && strings.TrimSpace(rest) == "" {
		return ShaderBinary, true
	}
	if strings.TrimSpace(tail) == "" {
		return ShaderGlsl, true
	}
	return 0, false
}

func (l *loader) checkAddShader(stage shaderstage.Stage, sh Shader) error {
	existing := l.stages[stage]
	if len(existing) > 0 {
		last := existing[len(existing)-1]
		if last.IsSpirv() || sh.IsSpirv() {
			return l.errf("SPIR-V source can not be linked with other shaders in the same stage")
		}
	}
	return nil
}

// passthroughVertexShader is the fixed SPIR-V binary vkrunner supplies
// for "[vertex shader passthrough]": a module that forwards
// gl_Position straight from the one vertex attribute.
var passthroughVertexShader = []uint32{
	0x07230203, 0x00010000, 0x00070000, 0x0000000c, 0x00000000, 0x00020011,
	0x00000001, 0x0003000e, 0x00000000, 0x00000001, 0x0007000f, 0x00000000,
	0x00000001, 0x6e69616d, 0x00000000, 0x00000002, 0x00000003, 0x00040047,
	0x00000002, 0x0000001e, 0x00000000, 0x00040047, 0x00000003, 0x0000000b,
	0x00000000, 0x00020013, 0x00000004, 0x00030021, 0x00000005, 0x00000004,
	0x00030016, 0x00000006, 0x00000020, 0x00040017, 0x00000007, 0x00000006,
	0x00000004, 0x00040020, 0x00000008, 0x00000001, 0x00000007, 0x00040020,
	0x00000009, 0x00000003, 0x00000007, 0x0004003b, 0x00000008, 0x00000002,
	0x00000001, 0x0004003b, 0x00000009, 0x00000003, 0x00000003, 0x00050036,
	0x00000004, 0x00000001, 0x00000000, 0x00000005, 0x000200f8, 0x0000000a,
	0x0004003d, 0x00000007, 0x0000000b, 0x00000002, 0x0003003e, 0x00000003,
	0x0000000b, 0x000100fd, 0x00010038,
}

func (l *loader) addPassthroughVertexShader() error {
	sh := Shader{Kind: ShaderBinary, Words: passthroughVertexShader}
	if err := l.checkAddShader(shaderstage.Vertex, sh); err != nil {
		return err
	}
	l.section = secNone
	l.stages[shaderstage.Vertex] = append(l.stages[shaderstage.Vertex], sh)
	return nil
}

func (l *loader) processShaderLine(line string) error {
	switch l.currentShader.Kind {
	case ShaderGlsl, ShaderSpirv:
		l.currentShader.Text += line
	case ShaderBinary:
		trimmed := strings.TrimSpace(stripComment(line))
		if trimmed == "" {
			return nil
		}
		for _, part := range strings.Fields(trimmed) {
			v, err := strconv.ParseUint(part, 16, 32)
			if err != nil {
				return l.errf("invalid hex value: %s", part)
			}
			l.currentShader.Words = append(l.currentShader.Words, uint32(v))
		}
	}
	return nil
}

func (l *loader) processVertexDataLine(line string) error {
	if err := l.vboParser.ParseLine(line); err != nil {
		return &LoadError{LineNum: l.st.LineNum(), Err: err}
	}
	return nil
}

func (l *loader) processIndicesLine(line string) error {
	trimmed := strings.TrimSpace(stripComment(line))
	if trimmed == "" {
		return nil
	}
	for _, part := range strings.Fields(trimmed) {
		v, _, err := numeric.ParseInteger(part)
		if err != nil {
			return l.errf("invalid index: %s", part)
		}
		l.indices = append(l.indices, uint16(v))
	}
	return nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return strings.TrimRight(line, "\r\n")
}

// stripWordPrefix trims leading whitespace then word from s, requiring
// that word end at a word boundary (end of string or whitespace). It
// mirrors vkrunner's strip_word_prefix.
func stripWordPrefix(s, word string) (string, bool) {
	s = strings.TrimLeft(s, " \t")
	if !strings.HasPrefix(s, word) {
		return "", false
	}
	rest := s[len(word):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return rest, true
}
