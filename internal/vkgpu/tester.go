// Tester runs a script's [test] section against a window and
// pipeline set: it allocates the backing buffers and descriptor sets
// once up front, then steps a small state machine (idle → command
// buffer → render pass) forward or backward as each operation demands
// before recording it.
//
// Grounded on vkrunner's tester.rs, built on buffer.go's testBuffer
// for every vertex/index/uniform/storage buffer a test needs and
// window.go's render passes/linear buffer for the render and readback
// lifecycle.
package vkgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrunner-go/internal/format"
	"github.com/spaghettifunk/vkrunner-go/internal/numeric"
	"github.com/spaghettifunk/vkrunner-go/internal/pipelinekey"
	"github.com/spaghettifunk/vkrunner-go/internal/script"
	"github.com/spaghettifunk/vkrunner-go/internal/slot"
)

var (
	ErrAllocateDescriptorSetsFailed = errors.New("vkAllocateDescriptorSets failed")
	ErrBeginCommandBufferFailed     = errors.New("vkBeginCommandBuffer failed")
	ErrEndCommandBufferFailed       = errors.New("vkEndCommandBuffer failed")
	ErrResetFencesFailed            = errors.New("vkResetFences failed")
	ErrQueueSubmitFailed            = errors.New("vkQueueSubmit failed")
	ErrWaitForFencesFailed          = errors.New("vkWaitForFences failed")
	ErrInvalidateMappedMemoryFailed = errors.New("vkInvalidateMappedMemoryRanges failed")
	ErrInvalidBufferOffset          = errors.New("invalid buffer offset")
)

// InvalidBufferBindingError reports a command referencing a
// (desc set, binding) pair the script never declared a buffer for.
type InvalidBufferBindingError struct {
	DescSet, Binding uint32
}

func (e *InvalidBufferBindingError) Error() string {
	return fmt.Sprintf("invalid buffer binding: %d:%d", e.DescSet, e.Binding)
}

// ProbeFailedError reports a "probe rect" mismatch at one pixel.
type ProbeFailedError struct {
	X, Y        int
	Expected    [4]float64
	Observed    [4]float64
	NComponents int
}

func formatPixel(pixel []float64) string {
	s := ""
	for _, c := range pixel {
		s += fmt.Sprintf(" %v", c)
	}
	return s
}

func (e *ProbeFailedError) Error() string {
	return fmt.Sprintf("Probe color at (%d,%d)\n Expected:%s\n Observed:%s",
		e.X, e.Y, formatPixel(e.Expected[:e.NComponents]), formatPixel(e.Observed[:e.NComponents]))
}

// SsboProbeFailedError reports a "probe ssbo" mismatch at one value.
type SsboProbeFailedError struct {
	SlotType slot.Type
	Layout   slot.Layout
	Expected []byte
	Observed []byte
}

func formatSlot(t slot.Type, layout slot.Layout, values []byte) string {
	compSize := t.BaseType().Size()
	s := ""
	for _, off := range componentOffsets(t, layout) {
		s += fmt.Sprintf(" %v", decodeComponent(t.BaseType(), values[off:off+compSize]))
	}
	return s
}

func (e *SsboProbeFailedError) Error() string {
	return fmt.Sprintf("SSBO probe failed\n Reference:%s\n Observed:%s",
		formatSlot(e.SlotType, e.Layout, e.Expected), formatSlot(e.SlotType, e.Layout, e.Observed))
}

// CommandError attributes a failure to the script source line that
// caused it.
type CommandError struct {
	LineNum int
	Err     error
}

func (e *CommandError) Error() string { return fmt.Sprintf("line %d: %s", e.LineNum, e.Err) }
func (e *CommandError) Unwrap() error { return e.Err }

// CommandErrors aggregates every CommandError a script run produced;
// a script keeps executing past a failing command so later commands
// still get a chance to run.
type CommandErrors []*CommandError

func (es CommandErrors) Error() string {
	s := ""
	for i, e := range es {
		if i > 0 {
			s += "\n"
		}
		s += e.Error()
	}
	return s
}

// testerState tracks how much of the command buffer/render pass has
// been opened, mirroring tester.rs's State enum.
type testerState int

const (
	stateIdle testerState = iota
	stateCommandBuffer
	stateRenderPass
)

// componentOffsets returns the byte offset of every scalar component
// of t laid out under layout, in the same column-major order
// slot.Type.Offsets uses for matrices. Non-matrix types are handled
// locally since slot.Type.Offsets/MatrixStride only support matrices;
// for a vector the components are simply compSize apart.
func componentOffsets(t slot.Type, layout slot.Layout) []int {
	if t.IsMatrix() {
		offs := t.Offsets(layout)
		result := make([]int, len(offs))
		for i, o := range offs {
			result[i] = o.Offset
		}
		return result
	}

	compSize := t.BaseType().Size()
	rows := t.Rows()
	result := make([]int, rows)
	for i := 0; i < rows; i++ {
		result[i] = i * compSize
	}
	return result
}

// decodeComponent reads one scalar component of base out of bytes as
// a float64, native-endian, for use by probe_ssbo's comparison and
// error formatting.
func decodeComponent(base slot.BaseType, bytes []byte) float64 {
	switch base {
	case slot.BaseInt:
		return float64(int32(binary.LittleEndian.Uint32(bytes)))
	case slot.BaseUInt:
		return float64(binary.LittleEndian.Uint32(bytes))
	case slot.BaseInt8:
		return float64(int8(bytes[0]))
	case slot.BaseUInt8:
		return float64(bytes[0])
	case slot.BaseInt16:
		return float64(int16(binary.LittleEndian.Uint16(bytes)))
	case slot.BaseUInt16:
		return float64(binary.LittleEndian.Uint16(bytes))
	case slot.BaseInt64:
		return float64(int64(binary.LittleEndian.Uint64(bytes)))
	case slot.BaseUInt64:
		return float64(binary.LittleEndian.Uint64(bytes))
	case slot.BaseFloat16:
		return float64(numeric.ToFloat32(binary.LittleEndian.Uint16(bytes)))
	case slot.BaseFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(bytes)))
	case slot.BaseDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(bytes))
	default:
		return 0
	}
}

// compareSlotValues reports whether the scalar components of a and b,
// interpreted as slotType under layout, satisfy cmp using tolerance
// for fuzzy equality. Grounded on vkrunner's Comparison::compare.
func compareSlotValues(
	cmp slot.Comparison,
	tolerance slot.Tolerance,
	slotType slot.Type,
	layout slot.Layout,
	a, b []byte,
) bool {
	base := slotType.BaseType()
	compSize := base.Size()
	rows := slotType.Rows()

	for i, off := range componentOffsets(slotType, layout) {
		av := decodeComponent(base, a[off:off+compSize])
		bv := decodeComponent(base, b[off:off+compSize])
		if !tolerance.Compare(cmp, i%rows, av, bv) {
			return false
		}
	}
	return true
}

func comparePixel(observed, expected [4]float64, nComponents int, tolerance slot.Tolerance) bool {
	for i := 0; i < nComponents; i++ {
		if !tolerance.Equal(i, observed[i], expected[i]) {
			return false
		}
	}
	return true
}

// Tester owns every Vulkan resource a script's [test] section needs
// to execute its commands against window/pipelineSet: the buffer
// objects backing declared UBOs/SSBOs, the descriptor sets bound to
// them, and the lazily-created vertex/index buffers draw commands
// consume.
type Tester struct {
	window       *Window
	pipelineSet  *PipelineSet
	script       *script.Script

	bufferObjects []*testBuffer
	testBuffers   []*testBuffer

	descriptorSets []vk.DescriptorSet

	boundPipeline        int
	havePipelineBound    bool
	boDescriptorSetBound bool
	firstRender          bool
	state                testerState

	vboBuffer   *testBuffer
	indexBuffer *testBuffer
}

func allocateBufferObjects(ctx *Context, scr *script.Script) ([]*testBuffer, error) {
	buffers := make([]*testBuffer, 0, len(scr.Buffers))
	for _, b := range scr.Buffers {
		usage := vk.BufferUsageUniformBufferBit
		if b.Type == script.Ssbo {
			usage = vk.BufferUsageStorageBufferBit
		}

		tb, err := newTestBuffer(ctx, b.Size, usage)
		if err != nil {
			for _, done := range buffers {
				done.close()
			}
			return nil, err
		}
		buffers = append(buffers, tb)
	}
	return buffers, nil
}

func allocateDescriptorSets(window *Window, ps *PipelineSet) ([]vk.DescriptorSet, error) {
	layouts := ps.DescriptorSetLayouts()
	if len(layouts) == 0 {
		return nil, nil
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     ps.DescriptorPool(),
		DescriptorSetCount: uint32(len(layouts)),
		PSetLayouts:        layouts,
	}

	sets := make([]vk.DescriptorSet, len(layouts))
	if res := vk.AllocateDescriptorSets(window.Context().Device(), &allocInfo, sets); res != vk.Success {
		return nil, ErrAllocateDescriptorSetsFailed
	}
	return sets, nil
}

func freeDescriptorSets(window *Window, ps *PipelineSet, sets []vk.DescriptorSet) {
	if len(sets) == 0 {
		return
	}
	vk.FreeDescriptorSets(window.Context().Device(), ps.DescriptorPool(), uint32(len(sets)), sets)
}

// writeDescriptorSets points every script-declared buffer's binding
// at the buffer object allocated for it, one vkUpdateDescriptorSets
// call covering every descriptor set at once.
func writeDescriptorSets(window *Window, scr *script.Script, buffers []*testBuffer, sets []vk.DescriptorSet) {
	if len(scr.Buffers) == 0 {
		return
	}

	bufferInfos := make([]vk.DescriptorBufferInfo, len(buffers))
	for i, b := range buffers {
		bufferInfos[i] = vk.DescriptorBufferInfo{
			Buffer: b.buffer,
			Offset: 0,
			Range:  vk.DeviceSize(vk.WholeSize),
		}
	}

	writes := make([]vk.WriteDescriptorSet, len(scr.Buffers))
	for i, b := range scr.Buffers {
		descType := vk.DescriptorTypeUniformBuffer
		if b.Type == script.Ssbo {
			descType = vk.DescriptorTypeStorageBuffer
		}
		writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          sets[b.DescSet],
			DstBinding:      b.Binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  descType,
			PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfos[i]},
		}
	}

	vk.UpdateDescriptorSets(window.Context().Device(), uint32(len(writes)), writes, 0, nil)
}

// NewTester allocates every buffer and descriptor set scr needs and
// returns a Tester ready to run its commands.
func NewTester(window *Window, pipelineSet *PipelineSet, scr *script.Script) (*Tester, error) {
	bufferObjects, err := allocateBufferObjects(window.Context(), scr)
	if err != nil {
		return nil, err
	}

	descriptorSets, err := allocateDescriptorSets(window, pipelineSet)
	if err != nil {
		for _, b := range bufferObjects {
			b.close()
		}
		return nil, err
	}

	writeDescriptorSets(window, scr, bufferObjects, descriptorSets)

	return &Tester{
		window:         window,
		pipelineSet:    pipelineSet,
		script:         scr,
		bufferObjects:  bufferObjects,
		descriptorSets: descriptorSets,
		firstRender:    true,
		state:          stateIdle,
	}, nil
}

// Close releases every buffer and descriptor set the Tester owns.
func (t *Tester) Close() {
	freeDescriptorSets(t.window, t.pipelineSet, t.descriptorSets)
	for _, b := range t.testBuffers {
		b.close()
	}
	if t.vboBuffer != nil {
		t.vboBuffer.close()
	}
	if t.indexBuffer != nil {
		t.indexBuffer.close()
	}
	for _, b := range t.bufferObjects {
		b.close()
	}
}

func (t *Tester) addSsboBarriers() {
	var barriers []vk.BufferMemoryBarrier
	for i, b := range t.bufferObjects {
		if t.script.Buffers[i].Type != script.Ssbo {
			continue
		}
		barriers = append(barriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(vk.AccessShaderWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessHostReadBit),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              b.buffer,
			Offset:              0,
			Size:                vk.DeviceSize(vk.WholeSize),
		})
	}
	if len(barriers) == 0 {
		return
	}

	vk.CmdPipelineBarrier(
		t.window.Context().CommandBuffer(),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageHostBit),
		0,
		0, nil,
		uint32(len(barriers)), barriers,
		0, nil,
	)
}

func (t *Tester) flushBuffers() error {
	for _, b := range t.bufferObjects {
		if !b.pendingWrite {
			continue
		}
		b.pendingWrite = false
		if err := b.flush(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tester) beginCommandBuffer() error {
	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if res := vk.BeginCommandBuffer(t.window.Context().CommandBuffer(), &beginInfo); res != vk.Success {
		return ErrBeginCommandBufferFailed
	}
	t.havePipelineBound = false
	t.boDescriptorSetBound = false
	return nil
}

func (t *Tester) resetFence() error {
	fences := []vk.Fence{t.window.Context().Fence()}
	if res := vk.ResetFences(t.window.Context().Device(), 1, fences); res != vk.Success {
		return ErrResetFencesFailed
	}
	return nil
}

func (t *Tester) queueSubmit() error {
	ctx := t.window.Context()
	commandBuffers := []vk.CommandBuffer{ctx.CommandBuffer()}
	waitDstStageMask := []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		PWaitDstStageMask:  waitDstStageMask,
		CommandBufferCount: 1,
		PCommandBuffers:    commandBuffers,
	}

	if res := vk.QueueSubmit(ctx.Queue(), 1, []vk.SubmitInfo{submitInfo}, ctx.Fence()); res != vk.Success {
		return ErrQueueSubmitFailed
	}
	return nil
}

func (t *Tester) waitForFence() error {
	ctx := t.window.Context()
	fences := []vk.Fence{ctx.Fence()}
	if res := vk.WaitForFences(ctx.Device(), 1, fences, vk.True, math.MaxUint64); res != vk.Success {
		return ErrWaitForFencesFailed
	}
	return nil
}

func (t *Tester) invalidateWindowLinearMemory() error {
	if !t.window.NeedLinearMemoryInvalidate() {
		return nil
	}

	ranges := []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: t.linearMemory(),
		Offset: 0,
		Size:   vk.DeviceSize(vk.WholeSize),
	}}
	if res := vk.InvalidateMappedMemoryRanges(t.window.Context().Device(), 1, ranges); res != vk.Success {
		return ErrInvalidateMappedMemoryFailed
	}
	return nil
}

func (t *Tester) invalidateSsbos() error {
	var ranges []vk.MappedMemoryRange
	for i, b := range t.bufferObjects {
		if t.script.Buffers[i].Type != script.Ssbo {
			continue
		}
		if r, ok := b.invalidateRange(); ok {
			ranges = append(ranges, r)
		}
	}
	if len(ranges) == 0 {
		return nil
	}
	if res := vk.InvalidateMappedMemoryRanges(t.window.Context().Device(), uint32(len(ranges)), ranges); res != vk.Success {
		return ErrInvalidateMappedMemoryFailed
	}
	return nil
}

func (t *Tester) endCommandBuffer() error {
	if err := t.flushBuffers(); err != nil {
		return err
	}
	t.addSsboBarriers()

	if res := vk.EndCommandBuffer(t.window.Context().CommandBuffer()); res != vk.Success {
		return ErrEndCommandBufferFailed
	}

	if err := t.resetFence(); err != nil {
		return err
	}
	if err := t.queueSubmit(); err != nil {
		return err
	}
	if err := t.waitForFence(); err != nil {
		return err
	}
	if err := t.invalidateWindowLinearMemory(); err != nil {
		return err
	}
	return t.invalidateSsbos()
}

func (t *Tester) beginRenderPass() {
	renderPassIndex := 0
	if !t.firstRender {
		renderPassIndex = 1
	}
	wf := t.window.Format()

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  t.window.RenderPasses()[renderPassIndex],
		Framebuffer: t.window.Framebuffer(),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: uint32(wf.Width), Height: uint32(wf.Height)},
		},
	}

	vk.CmdBeginRenderPass(t.window.Context().CommandBuffer(), &beginInfo, vk.SubpassContentsInline)

	t.firstRender = false
}

func (t *Tester) addRenderFinishBarrier() {
	barrier := vk.ImageMemoryBarrier{
		SType:         vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit | vk.AccessColorAttachmentWriteBit | vk.AccessColorAttachmentReadBit),
		OldLayout:     vk.ImageLayoutColorAttachmentOptimal,
		NewLayout:     vk.ImageLayoutTransferSrcOptimal,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:         t.window.ColorImage(),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	vk.CmdPipelineBarrier(
		t.window.Context().CommandBuffer(),
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit|vk.PipelineStageColorAttachmentOutputBit),
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier},
	)
}

func (t *Tester) addCopyToLinearBuffer() {
	wf := t.window.Format()

	region := vk.BufferImageCopy{
		BufferOffset:     0,
		BufferRowLength:  uint32(wf.Width),
		BufferImageHeight: uint32(wf.Height),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: vk.Extent3D{Width: uint32(wf.Width), Height: uint32(wf.Height), Depth: 1},
	}

	vk.CmdCopyImageToBuffer(
		t.window.Context().CommandBuffer(),
		t.window.ColorImage(),
		vk.ImageLayoutTransferSrcOptimal,
		t.window.LinearBuffer(),
		1,
		[]vk.BufferImageCopy{region},
	)
}

func (t *Tester) addCopyFinishBarrier() {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vk.ImageLayoutTransferSrcOptimal,
		NewLayout:           vk.ImageLayoutColorAttachmentOptimal,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               t.window.ColorImage(),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	vk.CmdPipelineBarrier(
		t.window.Context().CommandBuffer(),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier},
	)
}

func (t *Tester) addWriteFinishBufferMemoryBarrier() {
	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessTransferWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessHostReadBit),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              t.window.LinearBuffer(),
		Offset:              0,
		Size:                vk.DeviceSize(vk.WholeSize),
	}

	vk.CmdPipelineBarrier(
		t.window.Context().CommandBuffer(),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageHostBit),
		0,
		0, nil,
		1, []vk.BufferMemoryBarrier{barrier},
		0, nil,
	)
}

func (t *Tester) endRenderPass() {
	vk.CmdEndRenderPass(t.window.Context().CommandBuffer())

	t.addRenderFinishBarrier()
	t.addCopyToLinearBuffer()
	t.addCopyFinishBarrier()
	t.addWriteFinishBufferMemoryBarrier()
}

func (t *Tester) forwardState() error {
	switch t.state {
	case stateIdle:
		if err := t.beginCommandBuffer(); err != nil {
			return err
		}
		t.state = stateCommandBuffer
	case stateCommandBuffer:
		t.beginRenderPass()
		t.state = stateRenderPass
	}
	return nil
}

func (t *Tester) backwardState() error {
	switch t.state {
	case stateCommandBuffer:
		if err := t.endCommandBuffer(); err != nil {
			return err
		}
		t.state = stateIdle
	case stateRenderPass:
		t.endRenderPass()
		t.state = stateCommandBuffer
	}
	return nil
}

func (t *Tester) gotoState(state testerState) error {
	for t.state < state {
		if err := t.forwardState(); err != nil {
			return err
		}
	}
	for t.state > state {
		if err := t.backwardState(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tester) bindBoDescriptorSetAtBindingPoint(bindPoint vk.PipelineBindPoint) {
	vk.CmdBindDescriptorSets(
		t.window.Context().CommandBuffer(),
		bindPoint,
		t.pipelineSet.Layout(),
		0,
		uint32(len(t.descriptorSets)),
		t.descriptorSets,
		0,
		nil,
	)
}

func (t *Tester) bindBoDescriptorSet() {
	if t.boDescriptorSetBound || len(t.descriptorSets) == 0 {
		return
	}

	stages := t.pipelineSet.Stages()
	if uint32(stages)&^uint32(vk.ShaderStageComputeBit) != 0 {
		t.bindBoDescriptorSetAtBindingPoint(vk.PipelineBindPointGraphics)
	}
	if uint32(stages)&uint32(vk.ShaderStageComputeBit) != 0 {
		t.bindBoDescriptorSetAtBindingPoint(vk.PipelineBindPointCompute)
	}

	t.boDescriptorSetBound = true
}

func (t *Tester) bindPipeline(pipelineNum int) {
	if t.havePipelineBound && t.boundPipeline == pipelineNum {
		return
	}

	key := t.script.PipelineKeys[pipelineNum]
	bindPoint := vk.PipelineBindPointGraphics
	if key.PipelineType == pipelinekey.Compute {
		bindPoint = vk.PipelineBindPointCompute
	}

	vk.CmdBindPipeline(t.window.Context().CommandBuffer(), bindPoint, t.pipelineSet.Pipelines()[pipelineNum])

	t.boundPipeline = pipelineNum
	t.havePipelineBound = true
}

// getBufferObject finds the buffer object backing (descSet, binding),
// relying on script.Buffers being sorted by (DescSet, Binding).
func (t *Tester) getBufferObject(descSet, binding uint32) (*testBuffer, error) {
	buffers := t.script.Buffers
	lo, hi := 0, len(buffers)
	for lo < hi {
		mid := (lo + hi) / 2
		b := buffers[mid]
		switch {
		case b.DescSet < descSet || (b.DescSet == descSet && b.Binding < binding):
			lo = mid + 1
		case b.DescSet > descSet || (b.DescSet == descSet && b.Binding > binding):
			hi = mid
		default:
			return t.bufferObjects[mid], nil
		}
	}
	return nil, &InvalidBufferBindingError{DescSet: descSet, Binding: binding}
}

func (t *Tester) getVboBuffer() (*testBuffer, error) {
	if t.vboBuffer != nil {
		return t.vboBuffer, nil
	}
	vbo := t.script.VertexData
	if vbo == nil {
		return nil, nil
	}

	buf, err := newTestBuffer(t.window.Context(), len(vbo.RawData), vk.BufferUsageVertexBufferBit)
	if err != nil {
		return nil, err
	}
	copy(buf.mapped, vbo.RawData)
	if err := buf.flush(); err != nil {
		buf.close()
		return nil, err
	}

	t.vboBuffer = buf
	return buf, nil
}

func (t *Tester) getIndexBuffer() (*testBuffer, error) {
	if t.indexBuffer != nil {
		return t.indexBuffer, nil
	}

	indices := t.script.Indices
	buf, err := newTestBuffer(t.window.Context(), len(indices)*2, vk.BufferUsageIndexBufferBit)
	if err != nil {
		return nil, err
	}
	dst := unsafe.Slice((*uint16)(unsafe.Pointer(&buf.mapped[0])), len(indices))
	copy(dst, indices)
	if err := buf.flush(); err != nil {
		buf.close()
		return nil, err
	}

	t.indexBuffer = buf
	return buf, nil
}

func (t *Tester) drawRect(op *script.Operation) error {
	buf, err := newTestBuffer(t.window.Context(), int(unsafe.Sizeof(RectangleVertex{}))*4, vk.BufferUsageVertexBufferBit)
	if err != nil {
		return err
	}

	if err := t.gotoState(stateRenderPass); err != nil {
		buf.close()
		return err
	}

	vertices := unsafe.Slice((*RectangleVertex)(unsafe.Pointer(&buf.mapped[0])), 4)
	vertices[0] = RectangleVertex{X: op.X, Y: op.Y, Z: 0}
	vertices[1] = RectangleVertex{X: op.X + op.W, Y: op.Y, Z: 0}
	vertices[2] = RectangleVertex{X: op.X, Y: op.Y + op.H, Z: 0}
	vertices[3] = RectangleVertex{X: op.X + op.W, Y: op.Y + op.H, Z: 0}

	if err := buf.flush(); err != nil {
		return err
	}

	t.bindBoDescriptorSet()
	t.bindPipeline(op.PipelineKey)

	commandBuffer := t.window.Context().CommandBuffer()
	vk.CmdBindVertexBuffers(commandBuffer, 0, 1, []vk.Buffer{buf.buffer}, []vk.DeviceSize{0})
	vk.CmdDraw(commandBuffer, 4, 1, 0, 0)

	t.testBuffers = append(t.testBuffers, buf)

	return nil
}

func (t *Tester) drawArrays(op *script.Operation) error {
	if err := t.gotoState(stateRenderPass); err != nil {
		return err
	}

	commandBuffer := t.window.Context().CommandBuffer()

	vboBuffer, err := t.getVboBuffer()
	if err != nil {
		return err
	}
	if vboBuffer != nil {
		vk.CmdBindVertexBuffers(commandBuffer, 0, 1, []vk.Buffer{vboBuffer.buffer}, []vk.DeviceSize{0})
	}

	t.bindBoDescriptorSet()
	t.bindPipeline(op.PipelineKey)

	if op.Indexed {
		indexBuffer, err := t.getIndexBuffer()
		if err != nil {
			return err
		}
		vk.CmdBindIndexBuffer(commandBuffer, indexBuffer.buffer, 0, vk.IndexTypeUint16)
		vk.CmdDrawIndexed(commandBuffer, op.VertexCount, op.InstanceCount, 0, int32(op.FirstVertex), op.FirstInstance)
	} else {
		vk.CmdDraw(commandBuffer, op.VertexCount, op.InstanceCount, op.FirstVertex, op.FirstInstance)
	}

	return nil
}

func (t *Tester) dispatchCompute(op *script.Operation) error {
	if err := t.gotoState(stateCommandBuffer); err != nil {
		return err
	}

	t.bindBoDescriptorSet()
	t.bindPipeline(op.PipelineKey)

	vk.CmdDispatch(t.window.Context().CommandBuffer(), op.GroupsX, op.GroupsY, op.GroupsZ)

	return nil
}

func (t *Tester) probeRect(op *script.Operation) error {
	if err := t.gotoState(stateIdle); err != nil {
		return err
	}

	linearMemory := t.window.LinearMemoryMap()
	stride := t.window.LinearMemoryStride()
	colorFormat := t.window.Format().ColorFormat
	formatSize := colorFormat.Size()

	for yOffset := 0; yOffset < op.PH; yOffset++ {
		rowStart := (yOffset+op.PY)*stride + op.PX*formatSize
		for xOffset := 0; xOffset < op.PW; xOffset++ {
			start := rowStart + xOffset*formatSize
			pixel := colorFormat.LoadPixel(linearMemory[start : start+formatSize])

			if !comparePixel(pixel, op.Color, op.NComponents, op.Tolerance) {
				return &ProbeFailedError{
					X:           op.PX + xOffset,
					Y:           op.PY + yOffset,
					Expected:    op.Color,
					Observed:    pixel,
					NComponents: op.NComponents,
				}
			}
		}
	}

	return nil
}

func (t *Tester) probeSsbo(op *script.Operation) error {
	if err := t.gotoState(stateIdle); err != nil {
		return err
	}

	buf, err := t.getBufferObject(op.DescSet, op.Binding)
	if err != nil {
		return err
	}

	typeSize := op.SlotType.Size(op.Layout)
	observedStride := op.SlotType.ArrayStride(op.Layout)
	nValues := len(op.Values) / typeSize

	if nValues == 0 {
		return nil
	}
	if op.Offset+(nValues-1)*observedStride+typeSize > buf.size() {
		return ErrInvalidBufferOffset
	}

	bufferSlice := buf.mapped[op.Offset:]

	for i := 0; i < nValues; i++ {
		observed := bufferSlice[i*observedStride : i*observedStride+typeSize]
		expected := op.Values[i*typeSize : (i+1)*typeSize]

		if !compareSlotValues(op.Comparison, op.Tolerance, op.SlotType, op.Layout, observed, expected) {
			return &SsboProbeFailedError{
				SlotType: op.SlotType,
				Layout:   op.Layout,
				Expected: append([]byte(nil), expected...),
				Observed: append([]byte(nil), observed...),
			}
		}
	}

	return nil
}

func (t *Tester) setPushCommand(op *script.Operation) error {
	if t.state < stateCommandBuffer {
		if err := t.gotoState(stateCommandBuffer); err != nil {
			return err
		}
	}

	var dataPtr unsafe.Pointer
	if len(op.Data) > 0 {
		dataPtr = unsafe.Pointer(&op.Data[0])
	}

	vk.CmdPushConstants(
		t.window.Context().CommandBuffer(),
		t.pipelineSet.Layout(),
		t.pipelineSet.Stages(),
		uint32(op.Offset),
		uint32(len(op.Data)),
		dataPtr,
	)

	return nil
}

func (t *Tester) setBufferData(op *script.Operation) error {
	buf, err := t.getBufferObject(op.DescSet, op.Binding)
	if err != nil {
		return err
	}

	copy(buf.mapped[op.Offset:op.Offset+len(op.Data)], op.Data)
	buf.pendingWrite = true

	return nil
}

func depthStencilAspectFlags(wf script.WindowFormat) vk.ImageAspectFlagBits {
	var flags vk.ImageAspectFlagBits
	if wf.DepthStencilFormat == nil {
		return 0
	}
	for _, p := range wf.DepthStencilFormat.Parts {
		switch p.Component {
		case format.ComponentD:
			flags |= vk.ImageAspectDepthBit
		case format.ComponentS:
			flags |= vk.ImageAspectStencilBit
		}
	}
	return flags
}

func (t *Tester) clear(op *script.Operation) error {
	wf := t.window.Format()
	depthStencilFlags := depthStencilAspectFlags(wf)

	if err := t.gotoState(stateRenderPass); err != nil {
		return err
	}

	attachments := []vk.ClearAttachment{{
		AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ColorAttachment: 0,
		ClearValue:      vk.NewClearValue(op.ClearColor[:]),
	}}

	nAttachments := uint32(1)
	if depthStencilFlags != 0 {
		attachments = append(attachments, vk.ClearAttachment{
			AspectMask:      vk.ImageAspectFlags(depthStencilFlags),
			ColorAttachment: 0,
			ClearValue:      vk.NewClearDepthStencil(op.ClearDepth, op.ClearStencil),
		})
		nAttachments = 2
	}

	clearRect := vk.ClearRect{
		Rect: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: uint32(wf.Width), Height: uint32(wf.Height)},
		},
		BaseArrayLayer: 0,
		LayerCount:     1,
	}

	vk.CmdClearAttachments(
		t.window.Context().CommandBuffer(),
		nAttachments,
		attachments,
		1,
		[]vk.ClearRect{clearRect},
	)

	return nil
}

// runOperation dispatches op to the method matching its Kind.
func (t *Tester) runOperation(op *script.Operation) error {
	switch op.Kind {
	case script.OpDrawRect:
		return t.drawRect(op)
	case script.OpDrawArrays:
		return t.drawArrays(op)
	case script.OpDispatchCompute:
		return t.dispatchCompute(op)
	case script.OpProbeRect:
		return t.probeRect(op)
	case script.OpProbeSsbo:
		return t.probeSsbo(op)
	case script.OpSetPushCommand:
		return t.setPushCommand(op)
	case script.OpSetBufferData:
		return t.setBufferData(op)
	case script.OpClear:
		return t.clear(op)
	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
}

// Run executes every command in scr against window/pipelineSet,
// collecting one CommandError per failing line rather than stopping
// at the first failure, and returns the aggregate as a CommandErrors
// if any command failed.
func Run(window *Window, pipelineSet *PipelineSet, scr *script.Script) error {
	return RunAndDump(window, pipelineSet, scr, nil)
}

// BufferDump names the descSet:binding buffer object the -b/--buffer
// CLI flag wants read back after the script runs, and where to copy
// its bytes.
type BufferDump struct {
	DescSet uint32
	Binding uint32
	Dest    io.Writer
}

// RunAndDump behaves like Run, additionally copying the named buffer
// object's bytes to dump.Dest right before the tester tears down, so
// the caller sees them post-run rather than having to reopen the
// descriptor set itself.
func RunAndDump(window *Window, pipelineSet *PipelineSet, scr *script.Script, dump *BufferDump) error {
	tester, err := NewTester(window, pipelineSet, scr)
	if err != nil {
		return err
	}
	defer tester.Close()

	var errs CommandErrors
	for i := range scr.Commands {
		cmd := &scr.Commands[i]
		if err := tester.runOperation(&cmd.Op); err != nil {
			errs = append(errs, &CommandError{LineNum: cmd.LineNum, Err: err})
		}
	}

	if err := tester.gotoState(stateIdle); err != nil {
		lineNum := 1
		if n := len(scr.Commands); n > 0 {
			lineNum = scr.Commands[n-1].LineNum
		}
		errs = append(errs, &CommandError{LineNum: lineNum, Err: err})
	}

	if dump != nil {
		lineNum := 1
		if n := len(scr.Commands); n > 0 {
			lineNum = scr.Commands[n-1].LineNum
		}
		bo, err := tester.getBufferObject(dump.DescSet, dump.Binding)
		if err != nil {
			errs = append(errs, &CommandError{LineNum: lineNum, Err: err})
		} else if _, err := dump.Dest.Write(bo.mapped); err != nil {
			errs = append(errs, &CommandError{LineNum: lineNum, Err: err})
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
