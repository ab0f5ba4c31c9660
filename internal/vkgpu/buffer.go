// testBuffer is the host-visible, persistently-mapped buffer every
// vertex/index/uniform/storage buffer a Tester needs is built from.
// Grounded on vkrunner's buffer.rs/flush_memory.rs shape (TestBuffer:
// map + memory + buffer + pending_write), generalized from the same
// buffer/memory/map sequence window.go already uses for its linear
// readback buffer.
package vkgpu

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

type testBuffer struct {
	ctx             *Context
	buffer          vk.Buffer
	memory          vk.DeviceMemory
	mapped          []byte
	memoryTypeIndex uint32

	// pendingWrite marks a buffer the host has written to since the
	// last command buffer submission, so end_command_buffer knows to
	// flush it before the device reads it.
	pendingWrite bool
}

func newTestBuffer(ctx *Context, size int, usage vk.BufferUsageFlagBits) (*testBuffer, error) {
	allocSize := size
	if allocSize == 0 {
		allocSize = 1
	}

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(allocSize),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if res := vk.CreateBuffer(ctx.Device(), &createInfo, nil, &buffer); res != vk.Success {
		return nil, failuref("vkCreateBuffer failed")
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.Device(), buffer, &reqs)
	reqs.Deref()

	typeIndex := ctx.FindMemoryIndex(reqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit))
	if typeIndex == -1 {
		vk.DestroyBuffer(ctx.Device(), buffer, nil)
		return nil, failuref("no host-visible memory type for a test buffer")
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(typeIndex),
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(ctx.Device(), &allocInfo, nil, &memory); res != vk.Success {
		vk.DestroyBuffer(ctx.Device(), buffer, nil)
		return nil, failuref("vkAllocateMemory failed for a test buffer")
	}
	if res := vk.BindBufferMemory(ctx.Device(), buffer, memory, 0); res != vk.Success {
		vk.FreeMemory(ctx.Device(), memory, nil)
		vk.DestroyBuffer(ctx.Device(), buffer, nil)
		return nil, failuref("vkBindBufferMemory failed")
	}

	var mapped unsafe.Pointer
	if res := vk.MapMemory(ctx.Device(), memory, 0, vk.DeviceSize(allocSize), 0, &mapped); res != vk.Success {
		vk.FreeMemory(ctx.Device(), memory, nil)
		vk.DestroyBuffer(ctx.Device(), buffer, nil)
		return nil, failuref("vkMapMemory failed for a test buffer")
	}

	return &testBuffer{
		ctx:             ctx,
		buffer:          buffer,
		memory:          memory,
		mapped:          unsafe.Slice((*byte)(mapped), allocSize),
		memoryTypeIndex: uint32(typeIndex),
	}, nil
}

func (b *testBuffer) size() int { return len(b.mapped) }

// flush makes the buffer's mapped writes visible to the device. It is
// a no-op when the backing memory type is already host-coherent, unless
// the context was built with alwaysFlushMemory.
func (b *testBuffer) flush() error {
	if !b.ctx.AlwaysFlushMemory() && !memoryTypeNeedsInvalidate(b.ctx, b.memoryTypeIndex) {
		return nil
	}

	ranges := []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: b.memory,
		Offset: 0,
		Size:   vk.DeviceSize(vk.WholeSize),
	}}
	if res := vk.FlushMappedMemoryRanges(b.ctx.Device(), 1, ranges); res != vk.Success {
		return failuref("vkFlushMappedMemoryRanges failed")
	}
	return nil
}

// invalidateRange returns a VkMappedMemoryRange for this buffer if its
// memory type is not host-coherent and so needs to be invalidated
// before the host reads device writes back out of it; ok is false when
// no invalidation is required.
func (b *testBuffer) invalidateRange() (r vk.MappedMemoryRange, ok bool) {
	if !memoryTypeNeedsInvalidate(b.ctx, b.memoryTypeIndex) {
		return vk.MappedMemoryRange{}, false
	}
	return vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: b.memory,
		Offset: 0,
		Size:   vk.DeviceSize(vk.WholeSize),
	}, true
}

func (b *testBuffer) close() {
	if b.mapped != nil {
		vk.UnmapMemory(b.ctx.Device(), b.memory)
	}
	if b.memory != nil {
		vk.FreeMemory(b.ctx.Device(), b.memory, nil)
	}
	if b.buffer != nil {
		vk.DestroyBuffer(b.ctx.Device(), b.buffer, nil)
	}
}
