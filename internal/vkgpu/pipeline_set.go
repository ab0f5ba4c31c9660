// PipelineSet compiles a script's shaders and builds every
// VkPipeline/VkPipelineLayout/VkDescriptorSetLayout/VkDescriptorPool a
// test needs to run its [test] section commands. §4.9 of the
// specification.
//
// Grounded on vkrunner's pipeline_set.rs, generalized using the
// teacher's own engine/renderer/vulkan/pipeline.go for the graphics
// pipeline create-info field wiring this port doesn't share with the
// compute-pipeline path.
package vkgpu

import (
	"errors"
	"unsafe"

	"github.com/charmbracelet/log"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrunner-go/internal/compiler"
	"github.com/spaghettifunk/vkrunner-go/internal/pipelinekey"
	"github.com/spaghettifunk/vkrunner-go/internal/rconfig"
	"github.com/spaghettifunk/vkrunner-go/internal/script"
	"github.com/spaghettifunk/vkrunner-go/internal/shaderstage"
)

var (
	ErrCreatePipelineCacheFailed       = errors.New("vkCreatePipelineCache failed")
	ErrCreateDescriptorPoolFailed      = errors.New("vkCreateDescriptorPool failed")
	ErrCreateDescriptorSetLayoutFailed = errors.New("vkCreateDescriptorSetLayout failed")
	ErrCreatePipelineLayoutFailed      = errors.New("vkCreatePipelineLayout failed")
	ErrCreatePipelineFailed            = errors.New("pipeline creation function failed")
)

// RectangleVertex is the vertex layout used to draw a "draw rect"
// command: a full-window rectangle with no script-supplied vertex data.
type RectangleVertex struct {
	X, Y, Z float32
}

// PipelineSet owns every shader module, descriptor and pipeline object
// a script needs, compiled and created once up front and reused for
// every command that references a matching pipeline key.
type PipelineSet struct {
	window *Window

	modules [shaderstage.NStages]vk.ShaderModule
	stages  vk.ShaderStageFlags

	pipelineCache vk.PipelineCache

	descriptorPool       vk.DescriptorPool
	descriptorSetLayouts []vk.DescriptorSetLayout

	pipelineLayout vk.PipelineLayout
	pipelines      []vk.Pipeline
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func nDescSets(buffers []script.Buffer) int {
	if len(buffers) == 0 {
		return 0
	}
	// Buffers are ordered by descriptor set, so the number of sets is
	// the highest used index + 1.
	return int(buffers[len(buffers)-1].DescSet) + 1
}

func stageFlags(scr *script.Script) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	for stage := shaderstage.Stage(0); stage < shaderstage.NStages; stage++ {
		if len(scr.Shaders(stage)) > 0 {
			flags |= vk.ShaderStageFlags(stage.VkStage())
		}
	}
	return flags
}

func pushConstantSize(scr *script.Script) int {
	size := 0
	for _, cmd := range scr.Commands {
		if cmd.Op.Kind != script.OpSetPushCommand {
			continue
		}
		if end := cmd.Op.Offset + len(cmd.Op.Data); end > size {
			size = end
		}
	}
	return size
}

func compileShaders(
	logger *log.Logger,
	ctx *Context,
	cfg *rconfig.Config,
	scr *script.Script,
	showDisassembly bool,
) ([shaderstage.NStages]vk.ShaderModule, error) {
	var modules [shaderstage.NStages]vk.ShaderModule

	for stage := shaderstage.Stage(0); stage < shaderstage.NStages; stage++ {
		if len(scr.Shaders(stage)) == 0 {
			continue
		}

		module, err := compiler.BuildStage(logger, ctx, cfg, scr, stage, showDisassembly)
		if err != nil {
			for s, m := range modules {
				if m != nil {
					vk.DestroyShaderModule(ctx.Device(), m, ctx.Allocator())
					modules[s] = nil
				}
			}
			return modules, err
		}
		modules[stage] = module
	}

	return modules, nil
}

func createPipelineCache(ctx *Context) (vk.PipelineCache, error) {
	createInfo := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}

	var cache vk.PipelineCache
	if res := vk.CreatePipelineCache(ctx.Device(), &createInfo, ctx.Allocator(), &cache); res != vk.Success {
		return nil, ErrCreatePipelineCacheFailed
	}
	return cache, nil
}

func createDescriptorPool(ctx *Context, buffers []script.Buffer) (vk.DescriptorPool, error) {
	var nUbos, nSsbos uint32
	for _, b := range buffers {
		if b.Type == script.Ubo {
			nUbos++
		} else {
			nSsbos++
		}
	}

	var poolSizes []vk.DescriptorPoolSize
	if nUbos > 0 {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: nUbos,
		})
	}
	if nSsbos > 0 {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            vk.DescriptorTypeStorageBuffer,
			DescriptorCount: nSsbos,
		})
	}

	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       uint32(nDescSets(buffers)),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(ctx.Device(), &createInfo, ctx.Allocator(), &pool); res != vk.Success {
		return nil, ErrCreateDescriptorPoolFailed
	}
	return pool, nil
}

func createDescriptorSetLayouts(
	ctx *Context,
	buffers []script.Buffer,
	stages vk.ShaderStageFlags,
) ([]vk.DescriptorSetLayout, error) {
	nSets := nDescSets(buffers)
	layouts := make([]vk.DescriptorSetLayout, 0, nSets)

	bufferNum := 0
	for descSet := 0; descSet < nSets; descSet++ {
		var bindings []vk.DescriptorSetLayoutBinding

		for bufferNum < len(buffers) && int(buffers[bufferNum].DescSet) == descSet {
			b := buffers[bufferNum]
			descType := vk.DescriptorTypeUniformBuffer
			if b.Type == script.Ssbo {
				descType = vk.DescriptorTypeStorageBuffer
			}
			bindings = append(bindings, vk.DescriptorSetLayoutBinding{
				Binding:         b.Binding,
				DescriptorType:  descType,
				DescriptorCount: 1,
				StageFlags:      stages,
			})
			bufferNum++
		}

		createInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}

		var layout vk.DescriptorSetLayout
		if res := vk.CreateDescriptorSetLayout(ctx.Device(), &createInfo, ctx.Allocator(), &layout); res != vk.Success {
			for _, l := range layouts {
				vk.DestroyDescriptorSetLayout(ctx.Device(), l, ctx.Allocator())
			}
			return nil, ErrCreateDescriptorSetLayoutFailed
		}
		layouts = append(layouts, layout)
	}

	return layouts, nil
}

func createPipelineLayout(
	ctx *Context,
	scr *script.Script,
	stages vk.ShaderStageFlags,
	descriptorSetLayouts []vk.DescriptorSetLayout,
) (vk.PipelineLayout, error) {
	createInfo := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}

	if len(descriptorSetLayouts) > 0 {
		createInfo.SetLayoutCount = uint32(len(descriptorSetLayouts))
		createInfo.PSetLayouts = descriptorSetLayouts
	}

	pushConstantRange := vk.PushConstantRange{
		StageFlags: stages,
		Offset:     0,
		Size:       uint32(pushConstantSize(scr)),
	}
	if pushConstantRange.Size > 0 {
		createInfo.PushConstantRangeCount = 1
		createInfo.PPushConstantRanges = []vk.PushConstantRange{pushConstantRange}
	}

	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(ctx.Device(), &createInfo, ctx.Allocator(), &layout); res != vk.Success {
		return nil, ErrCreatePipelineLayoutFailed
	}
	return layout, nil
}

// vertexInputState builds the binding/attribute descriptions for key:
// a single interleaved RectangleVertex binding for a "draw rect"
// pipeline, or the script's [vertex data] layout otherwise.
func vertexInputState(scr *script.Script, key *pipelinekey.Key) (
	vk.PipelineVertexInputStateCreateInfo, []vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription,
) {
	var bindings []vk.VertexInputBindingDescription
	var attribs []vk.VertexInputAttributeDescription

	switch key.PipelineSource {
	case pipelinekey.Rectangle:
		bindings = append(bindings, vk.VertexInputBindingDescription{
			Binding:   0,
			Stride:    uint32(unsafe.Sizeof(RectangleVertex{})),
			InputRate: vk.VertexInputRateVertex,
		})
		attribs = append(attribs, vk.VertexInputAttributeDescription{
			Location: 0,
			Binding:  0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   0,
		})
	case pipelinekey.VertexData:
		if vbo := scr.VertexData; vbo != nil {
			bindings = append(bindings, vk.VertexInputBindingDescription{
				Binding:   0,
				Stride:    uint32(vbo.Stride),
				InputRate: vk.VertexInputRateVertex,
			})
			for _, a := range vbo.Attribs {
				attribs = append(attribs, vk.VertexInputAttributeDescription{
					Location: a.Location,
					Binding:  0,
					Format:   a.Format.VkFormat,
					Offset:   uint32(a.Offset),
				})
			}
		}
	}

	createInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attribs)),
		PVertexAttributeDescriptions:    attribs,
	}
	return createInfo, bindings, attribs
}

func nullTerminatedEntrypoint(key *pipelinekey.Key, stage shaderstage.Stage) string {
	return key.Entrypoint(stage) + "\x00"
}

func createShaderStages(
	modules [shaderstage.NStages]vk.ShaderModule,
	key *pipelinekey.Key,
) []vk.PipelineShaderStageCreateInfo {
	var stages []vk.PipelineShaderStageCreateInfo

	for stage := shaderstage.Stage(0); stage < shaderstage.NStages; stage++ {
		if stage == shaderstage.Compute {
			continue
		}
		module := modules[stage]
		if module == nil {
			continue
		}

		entrypoint := nullTerminatedEntrypoint(key, stage)
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage.VkStage(),
			Module: module,
			PName:  entrypoint,
		})
	}

	return stages
}

func createGraphicsPipeline(
	window *Window,
	scr *script.Script,
	key *pipelinekey.Key,
	cache vk.PipelineCache,
	layout vk.PipelineLayout,
	modules [shaderstage.NStages]vk.ShaderModule,
	allowDerivatives bool,
	parentPipeline vk.Pipeline,
) (vk.Pipeline, error) {
	ctx := window.Context()
	wf := window.Format()

	stages := createShaderStages(modules, key)

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               key.Topology,
		PrimitiveRestartEnable: vk.False,
	}

	tessellation := vk.PipelineTessellationStateCreateInfo{
		SType:              vk.StructureTypePipelineTessellationStateCreateInfo,
		PatchControlPoints: key.PatchControlPoints,
	}

	viewport := vk.Viewport{
		X: 0, Y: 0,
		Width: float32(wf.Width), Height: float32(wf.Height),
		MinDepth: 0, MaxDepth: 1,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: uint32(wf.Width), Height: uint32(wf.Height)},
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{scissor},
	}

	rasterization := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vkBool(key.DepthClampEnable),
		RasterizerDiscardEnable: vkBool(key.RasterizerDiscard),
		PolygonMode:             key.PolygonMode,
		CullMode:                key.CullMode,
		FrontFace:               key.FrontFace,
		LineWidth:               key.LineWidth,
		DepthBiasEnable:         vkBool(key.DepthBiasEnable),
		DepthBiasConstantFactor: key.DepthBiasConstant,
		DepthBiasClamp:          key.DepthBiasClamp,
		DepthBiasSlopeFactor:    key.DepthBiasSlope,
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vkBool(key.DepthTestEnable),
		DepthWriteEnable: vkBool(key.DepthWriteEnable),
		DepthCompareOp:   key.DepthCompareOp,
	}

	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vkBool(key.BlendEnable),
		SrcColorBlendFactor: key.SrcColorBlendFactor,
		DstColorBlendFactor: key.DstColorBlendFactor,
		ColorBlendOp:        key.ColorBlendOp,
		SrcAlphaBlendFactor: key.SrcAlphaBlendFactor,
		DstAlphaBlendFactor: key.DstAlphaBlendFactor,
		AlphaBlendOp:        key.AlphaBlendOp,
		ColorWriteMask:      key.ColorWriteMask,
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}

	vertexInput, _, _ := vertexInputState(scr, key)

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterization,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		Layout:              layout,
		RenderPass:          window.RenderPasses()[0],
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	if modules[shaderstage.TessCtrl] != nil || modules[shaderstage.TessEval] != nil {
		createInfo.PTessellationState = &tessellation
	}

	if allowDerivatives {
		createInfo.Flags |= vk.PipelineCreateFlags(vk.PipelineCreateAllowDerivativesBit)
	}
	if parentPipeline != nil {
		createInfo.Flags |= vk.PipelineCreateFlags(vk.PipelineCreateDerivativeBit)
		createInfo.BasePipelineHandle = parentPipeline
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(
		ctx.Device(), cache, 1, []vk.GraphicsPipelineCreateInfo{createInfo}, ctx.Allocator(), pipelines)
	if res != vk.Success {
		return nil, ErrCreatePipelineFailed
	}
	return pipelines[0], nil
}

func createComputePipeline(
	ctx *Context,
	key *pipelinekey.Key,
	cache vk.PipelineCache,
	layout vk.PipelineLayout,
	module vk.ShaderModule,
) (vk.Pipeline, error) {
	entrypoint := nullTerminatedEntrypoint(key, shaderstage.Compute)

	createInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  entrypoint,
		},
		Layout:             layout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateComputePipelines(
		ctx.Device(), cache, 1, []vk.ComputePipelineCreateInfo{createInfo}, ctx.Allocator(), pipelines)
	if res != vk.Success {
		return nil, ErrCreatePipelineFailed
	}
	return pipelines[0], nil
}

func createPipelines(
	window *Window,
	scr *script.Script,
	cache vk.PipelineCache,
	layout vk.PipelineLayout,
	modules [shaderstage.NStages]vk.ShaderModule,
) ([]vk.Pipeline, error) {
	var pipelines []vk.Pipeline
	var firstGraphicsPipeline vk.Pipeline

	destroyAll := func() {
		for _, p := range pipelines {
			vk.DestroyPipeline(window.Context().Device(), p, window.Context().Allocator())
		}
	}

	for _, key := range scr.PipelineKeys {
		var pipeline vk.Pipeline
		var err error

		switch key.PipelineType {
		case pipelinekey.Graphics:
			allowDerivatives := firstGraphicsPipeline == nil && len(scr.PipelineKeys) > 1
			pipeline, err = createGraphicsPipeline(
				window, scr, key, cache, layout, modules, allowDerivatives, firstGraphicsPipeline)
			if err == nil && firstGraphicsPipeline == nil {
				firstGraphicsPipeline = pipeline
			}
		case pipelinekey.Compute:
			pipeline, err = createComputePipeline(
				window.Context(), key, cache, layout, modules[shaderstage.Compute])
		}

		if err != nil {
			destroyAll()
			return nil, err
		}
		pipelines = append(pipelines, pipeline)
	}

	return pipelines, nil
}

// NewPipelineSet compiles every shader scr attaches to a stage and
// builds the descriptor/pipeline objects needed to run scr's [test]
// section commands against window.
func NewPipelineSet(
	logger *log.Logger,
	window *Window,
	cfg *rconfig.Config,
	scr *script.Script,
	showDisassembly bool,
) (*PipelineSet, error) {
	ctx := window.Context()

	modules, err := compileShaders(logger, ctx, cfg, scr, showDisassembly)
	if err != nil {
		return nil, err
	}

	ps := &PipelineSet{window: window, modules: modules}

	cleanup := func() {
		ps.Close()
	}

	ps.pipelineCache, err = createPipelineCache(ctx)
	if err != nil {
		cleanup()
		return nil, err
	}

	ps.stages = stageFlags(scr)

	if len(scr.Buffers) > 0 {
		ps.descriptorPool, err = createDescriptorPool(ctx, scr.Buffers)
		if err != nil {
			cleanup()
			return nil, err
		}

		ps.descriptorSetLayouts, err = createDescriptorSetLayouts(ctx, scr.Buffers, ps.stages)
		if err != nil {
			cleanup()
			return nil, err
		}
	}

	ps.pipelineLayout, err = createPipelineLayout(ctx, scr, ps.stages, ps.descriptorSetLayouts)
	if err != nil {
		cleanup()
		return nil, err
	}

	ps.pipelines, err = createPipelines(window, scr, ps.pipelineCache, ps.pipelineLayout, modules)
	if err != nil {
		cleanup()
		return nil, err
	}

	return ps, nil
}

// DescriptorSetLayouts returns the per-[desc-set] layouts this set
// built, empty if scr declared no buffers.
func (ps *PipelineSet) DescriptorSetLayouts() []vk.DescriptorSetLayout { return ps.descriptorSetLayouts }

// Stages returns the OR of every shader stage the script populated.
func (ps *PipelineSet) Stages() vk.ShaderStageFlags { return ps.stages }

// Layout returns the pipeline layout shared by every pipeline in the set.
func (ps *PipelineSet) Layout() vk.PipelineLayout { return ps.pipelineLayout }

// Pipelines returns the pipelines built, one per entry in the script's
// pipeline keys, in the same order.
func (ps *PipelineSet) Pipelines() []vk.Pipeline { return ps.pipelines }

// DescriptorPool returns the pool descriptor sets are allocated from,
// or nil if the script declared no buffers.
func (ps *PipelineSet) DescriptorPool() vk.DescriptorPool { return ps.descriptorPool }

// Close destroys every Vulkan object the set owns.
func (ps *PipelineSet) Close() {
	dev := ps.window.Context().Device()
	alloc := ps.window.Context().Allocator()

	for _, p := range ps.pipelines {
		if p != nil {
			vk.DestroyPipeline(dev, p, alloc)
		}
	}
	if ps.pipelineLayout != nil {
		vk.DestroyPipelineLayout(dev, ps.pipelineLayout, alloc)
	}
	for _, l := range ps.descriptorSetLayouts {
		if l != nil {
			vk.DestroyDescriptorSetLayout(dev, l, alloc)
		}
	}
	if ps.descriptorPool != nil {
		vk.DestroyDescriptorPool(dev, ps.descriptorPool, alloc)
	}
	if ps.pipelineCache != nil {
		vk.DestroyPipelineCache(dev, ps.pipelineCache, alloc)
	}
	for _, m := range ps.modules {
		if m != nil {
			vk.DestroyShaderModule(dev, m, alloc)
		}
	}
}
