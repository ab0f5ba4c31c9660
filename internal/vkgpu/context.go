// Package vkgpu owns the single VkInstance/VkDevice pair a script runs
// against: picking a physical device that satisfies a script's
// [require] section, and the command pool, command buffer, fence and
// queue every other vkgpu type submits work through. §4.7 of the
// specification.
//
// Grounded on vkrunner's context.rs, generalized from the teacher's
// own instance/device setup in engine/renderer/vulkan/backend.go and
// device.go. Unlike the teacher, this engine never creates a
// VkSurface/VkSwapchain: conformance scripts render into an offscreen
// framebuffer and are read back with vkCmdCopyImageToBuffer, so there
// is no windowing system to hand the instance a surface extension for.
package vkgpu

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrunner-go/internal/requirements"
)

// Error is returned by New. Incompatible means the requested
// [require] section could not be satisfied by any available device
// and the caller should skip the test; otherwise something failed
// unexpectedly and the caller should fail it.
type Error struct {
	Incompatible bool
	msg          string
}

func (e *Error) Error() string { return e.msg }

func failuref(format string, args ...interface{}) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

func incompatiblef(format string, args ...interface{}) error {
	return &Error{Incompatible: true, msg: fmt.Sprintf(format, args...)}
}

// Context owns the VkInstance, the physical device selected against a
// script's requirements, the VkDevice created from it, and the single
// shared command buffer/fence/queue every command in a script runs
// through sequentially.
type Context struct {
	instance       vk.Instance
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	allocator      *vk.AllocationCallbacks

	memoryProperties vk.PhysicalDeviceMemoryProperties

	commandPool   vk.CommandPool
	commandBuffer vk.CommandBuffer
	fence         vk.Fence
	queue         vk.Queue

	alwaysFlushMemory bool

	external bool
}

// New creates a Context against the first physical device (or, if
// deviceID is non-nil, the exact device at that index in
// vkEnumeratePhysicalDevices) that satisfies reqs. alwaysFlushMemory
// forces every buffer/image flush regardless of whether the chosen
// memory type is host-coherent; it corresponds to the
// VKRUNNER_ALWAYS_FLUSH_MEMORY knob in internal/rconfig.
func New(reqs *requirements.Requirements, deviceID *int, alwaysFlushMemory bool) (*Context, error) {
	if err := vk.Init(); err != nil {
		return nil, failuref("failed to load the Vulkan loader: %s", err)
	}

	instance, err := createInstance(reqs)
	if err != nil {
		return nil, err
	}

	physicalDevice, queueFamily, err := findPhysicalDevice(instance, reqs, deviceID)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	device, err := createDevice(physicalDevice, queueFamily)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	ctx, err := newFromDevice(instance, physicalDevice, device, queueFamily, false, alwaysFlushMemory)
	if err != nil {
		vk.DestroyDevice(device, nil)
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	return ctx, nil
}

// NewWithDevice wraps an already-created VkInstance/VkDevice pair
// rather than creating its own. The caller keeps ownership: Close
// won't destroy the device or instance, matching vkrunner's
// Context::new_with_device for embedding vkrunner-style script
// execution inside a larger Vulkan application.
func NewWithDevice(
	instance vk.Instance,
	physicalDevice vk.PhysicalDevice,
	device vk.Device,
	queueFamily uint32,
	alwaysFlushMemory bool,
) (*Context, error) {
	return newFromDevice(instance, physicalDevice, device, queueFamily, true, alwaysFlushMemory)
}

func createInstance(reqs *requirements.Requirements) (vk.Instance, error) {
	appName := safeString("vkrunner")

	appInfo := vk.ApplicationInfo{
		SType:            vk.StructureTypeApplicationInfo,
		PApplicationName: appName,
		ApiVersion:       reqs.Version(),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}

	var instance vk.Instance
	res := vk.CreateInstance(&createInfo, nil, &instance)
	switch res {
	case vk.Success:
		if err := vk.InitInstance(instance); err != nil {
			vk.DestroyInstance(instance, nil)
			return nil, failuref("vkInitInstance failed: %s", err)
		}
		return instance, nil
	case vk.ErrorIncompatibleDriver:
		return nil, incompatiblef("vkCreateInstance reported VK_ERROR_INCOMPATIBLE_DRIVER")
	default:
		return nil, failuref("vkCreateInstance failed")
	}
}

func findQueueFamily(physicalDevice vk.PhysicalDevice) (uint32, error) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &count, nil)

	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &count, families)

	for i := uint32(0); i < count; i++ {
		families[i].Deref()
		if uint32(families[i].QueueFlags)&uint32(vk.QueueGraphicsBit) != 0 && families[i].QueueCount >= 1 {
			return i, nil
		}
	}

	return 0, incompatiblef("Device has no graphics queue family")
}

func checkPhysicalDevice(
	instance vk.Instance,
	reqs *requirements.Requirements,
	physicalDevice vk.PhysicalDevice,
) (uint32, error) {
	if err := reqs.Check(instance, physicalDevice); err != nil {
		return 0, &Error{Incompatible: true, msg: err.Error()}
	}
	return findQueueFamily(physicalDevice)
}

// combineDeviceErrors mirrors vkrunner's combine_device_errors: if
// every rejected device failed for an "incompatible" reason the
// overall result is incompatible, but a single unexpected failure
// anywhere makes the whole enumeration a failure.
func combineDeviceErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return incompatiblef("The Vulkan instance reported zero drivers")
	case 1:
		return errs[0]
	default:
		allIncompatible := true
		msg := ""
		for i, e := range errs {
			if i > 0 {
				msg += "\n"
			}
			msg += fmt.Sprintf("%d: %s", i, e)
			if ce, ok := e.(*Error); !ok || !ce.Incompatible {
				allIncompatible = false
			}
		}
		if allIncompatible {
			return incompatiblef("%s", msg)
		}
		return failuref("%s", msg)
	}
}

func findPhysicalDevice(
	instance vk.Instance,
	reqs *requirements.Requirements,
	deviceID *int,
) (vk.PhysicalDevice, uint32, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(instance, &count, nil); res != vk.Success {
		return nil, 0, failuref("vkEnumeratePhysicalDevices failed")
	}

	devices := make([]vk.PhysicalDevice, count)
	if count > 0 {
		if res := vk.EnumeratePhysicalDevices(instance, &count, devices); res != vk.Success {
			return nil, 0, failuref("vkEnumeratePhysicalDevices failed")
		}
	}

	if deviceID != nil {
		if *deviceID >= int(count) {
			plural := "s"
			if count == 1 {
				plural = ""
			}
			return nil, 0, failuref(
				"Device %d was selected but the Vulkan instance only reported %d device%s.",
				*deviceID, count, plural)
		}
		queueFamily, err := checkPhysicalDevice(instance, reqs, devices[*deviceID])
		if err != nil {
			return nil, 0, err
		}
		return devices[*deviceID], queueFamily, nil
	}

	var errs []error
	for _, d := range devices {
		queueFamily, err := checkPhysicalDevice(instance, reqs, d)
		if err == nil {
			return d, queueFamily, nil
		}
		errs = append(errs, err)
	}

	return nil, 0, combineDeviceErrors(errs)
}

func createDevice(physicalDevice vk.PhysicalDevice, queueFamily uint32) (vk.Device, error) {
	queuePriorities := []float32{1.0}

	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueFamily,
		QueueCount:       1,
		PQueuePriorities: queuePriorities,
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueCreateInfo},
	}

	var device vk.Device
	if res := vk.CreateDevice(physicalDevice, &deviceCreateInfo, nil, &device); res != vk.Success {
		return nil, failuref("vkCreateDevice failed")
	}
	return device, nil
}

func newFromDevice(
	instance vk.Instance,
	physicalDevice vk.PhysicalDevice,
	device vk.Device,
	queueFamily uint32,
	external bool,
	alwaysFlushMemory bool,
) (*Context, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memoryProperties)
	memoryProperties.Deref()

	var queue vk.Queue
	vk.GetDeviceQueue(device, queueFamily, 0, &queue)

	commandPool, commandBuffer, fence, err := createDeviceResources(device, queueFamily)
	if err != nil {
		return nil, err
	}

	return &Context{
		instance:          instance,
		physicalDevice:    physicalDevice,
		device:            device,
		memoryProperties:  memoryProperties,
		commandPool:       commandPool,
		commandBuffer:     commandBuffer,
		fence:             fence,
		queue:             queue,
		alwaysFlushMemory: alwaysFlushMemory,
		external:          external,
	}, nil
}

func createDeviceResources(device vk.Device, queueFamily uint32) (vk.CommandPool, vk.CommandBuffer, vk.Fence, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: queueFamily,
	}

	var commandPool vk.CommandPool
	if res := vk.CreateCommandPool(device, &poolCreateInfo, nil, &commandPool); res != vk.Success {
		return nil, nil, nil, failuref("vkCreateCommandPool failed")
	}

	bufferAllocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(device, &bufferAllocateInfo, commandBuffers); res != vk.Success {
		vk.DestroyCommandPool(device, commandPool, nil)
		return nil, nil, nil, failuref("vkAllocateCommandBuffers failed")
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}

	var fence vk.Fence
	if res := vk.CreateFence(device, &fenceCreateInfo, nil, &fence); res != vk.Success {
		vk.FreeCommandBuffers(device, commandPool, 1, commandBuffers)
		vk.DestroyCommandPool(device, commandPool, nil)
		return nil, nil, nil, failuref("vkCreateFence failed")
	}

	return commandPool, commandBuffers[0], fence, nil
}

func safeString(s string) string {
	return s + "\x00"
}

// Instance returns the VkInstance this context was created with.
func (c *Context) Instance() vk.Instance { return c.instance }

// PhysicalDevice returns the VkPhysicalDevice chosen for this context.
func (c *Context) PhysicalDevice() vk.PhysicalDevice { return c.physicalDevice }

// Device returns the VkDevice. Satisfies internal/compiler.Context.
func (c *Context) Device() vk.Device { return c.device }

// Allocator is always nil: this engine never installs a custom host
// allocator. Satisfies internal/compiler.Context.
func (c *Context) Allocator() *vk.AllocationCallbacks { return c.allocator }

// MemoryProperties returns the memory properties queried from the
// physical device when the context was created.
func (c *Context) MemoryProperties() *vk.PhysicalDeviceMemoryProperties { return &c.memoryProperties }

// CommandPool returns the shared command pool.
func (c *Context) CommandPool() vk.CommandPool { return c.commandPool }

// CommandBuffer returns the single shared command buffer every script
// command is recorded into.
func (c *Context) CommandBuffer() vk.CommandBuffer { return c.commandBuffer }

// Fence returns the shared fence used to wait for the command buffer
// to finish executing.
func (c *Context) Fence() vk.Fence { return c.fence }

// Queue returns the graphics queue chosen for this context.
func (c *Context) Queue() vk.Queue { return c.queue }

// AlwaysFlushMemory reports whether every mapped-memory write should
// be flushed regardless of whether the memory type is host-coherent.
func (c *Context) AlwaysFlushMemory() bool { return c.alwaysFlushMemory }

// IsExternal reports whether the context wraps a device created
// outside this package (via NewWithDevice).
func (c *Context) IsExternal() bool { return c.external }

// FindMemoryIndex returns the index of a memory type in
// MemoryProperties whose bits intersect typeFilter and that has every
// bit set in propertyFlags, or -1 if none matches.
func (c *Context) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int {
	for i := uint32(0); i < c.memoryProperties.MemoryTypeCount; i++ {
		c.memoryProperties.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) == 0 {
			continue
		}
		if uint32(c.memoryProperties.MemoryTypes[i].PropertyFlags)&uint32(propertyFlags) == uint32(propertyFlags) {
			return int(i)
		}
	}
	return -1
}

// Close releases the command pool, command buffer, fence and, unless
// the context was built with NewWithDevice, the device and instance
// too.
func (c *Context) Close() {
	if c.fence != nil {
		vk.DestroyFence(c.device, c.fence, nil)
	}
	if c.commandBuffer != nil {
		buffers := []vk.CommandBuffer{c.commandBuffer}
		vk.FreeCommandBuffers(c.device, c.commandPool, 1, buffers)
	}
	if c.commandPool != nil {
		vk.DestroyCommandPool(c.device, c.commandPool, nil)
	}

	if !c.external {
		vk.DestroyDevice(c.device, nil)
		vk.DestroyInstance(c.instance, nil)
	}
}
