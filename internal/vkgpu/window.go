// Window builds the offscreen framebuffer a script draws into: a
// color image (plus an optional depth/stencil image), two render
// passes that only differ in their attachment load ops, and a host-
// visible linear buffer a test reads the rendered pixels back
// through with vkCmdCopyImageToBuffer. §4.8.
//
// Grounded on vkrunner's window.rs, generalized from the teacher's
// engine/renderer/vulkan/image.go for image/memory creation.
package vkgpu

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrunner-go/internal/format"
	"github.com/spaghettifunk/vkrunner-go/internal/script"
)

// Window owns the framebuffer and every Vulkan resource built on top
// of a Context to back it: the color (and optional depth/stencil)
// image, the pair of render passes, the framebuffer itself, and the
// linear readback buffer a test inspects results through.
type Window struct {
	ctx    *Context
	format script.WindowFormat

	colorImage     vk.Image
	colorMemory    vk.DeviceMemory
	colorImageView vk.ImageView

	hasDepthStencil    bool
	depthStencilImage  vk.Image
	depthStencilMemory vk.DeviceMemory
	depthStencilView   vk.ImageView

	// renderPasses[0] is used for the first render (loadOp DONT_CARE);
	// renderPasses[1] is used for every subsequent render (loadOp
	// LOAD), so earlier draws in the same script remain visible.
	renderPasses [2]vk.RenderPass

	framebuffer vk.Framebuffer

	linearBuffer           vk.Buffer
	linearMemory           vk.DeviceMemory
	linearMemoryMap        []byte
	linearMemoryStride     int
	needLinearMemInvalidate bool
}

func checkFormatFeature(ctx *Context, f *format.Format, flags vk.FormatFeatureFlagBits) bool {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(ctx.PhysicalDevice(), f.VkFormat, &props)
	props.Deref()
	return uint32(props.OptimalTilingFeatures)&uint32(flags) == uint32(flags)
}

func checkWindowFormat(ctx *Context, wf *script.WindowFormat) error {
	if !checkFormatFeature(ctx, wf.ColorFormat, vk.FormatFeatureColorAttachmentBit|vk.FormatFeatureBlitSrcBit) {
		return &Error{Incompatible: true, msg: fmt.Sprintf(
			"Format %s is not supported as a color attachment and blit source", wf.ColorFormat.Name)}
	}

	if wf.DepthStencilFormat != nil {
		if !checkFormatFeature(ctx, wf.DepthStencilFormat, vk.FormatFeatureDepthStencilAttachmentBit) {
			return &Error{Incompatible: true, msg: fmt.Sprintf(
				"Format %s is not supported as a depth/stencil attachment", wf.DepthStencilFormat.Name)}
		}
	}

	return nil
}

func hasStencilComponent(f *format.Format) bool {
	for _, p := range f.Parts {
		if p.Component == format.ComponentS {
			return true
		}
	}
	return false
}

func createRenderPass(ctx *Context, wf *script.WindowFormat, firstRender bool) (vk.RenderPass, error) {
	loadOp := vk.AttachmentLoadOpLoad
	colorInitialLayout := vk.ImageLayoutColorAttachmentOptimal
	depthInitialLayout := vk.ImageLayoutDepthStencilAttachmentOptimal
	if firstRender {
		loadOp = vk.AttachmentLoadOpDontCare
		colorInitialLayout = vk.ImageLayoutUndefined
		depthInitialLayout = vk.ImageLayoutUndefined
	}

	colorAttachment := vk.AttachmentDescription{
		Format:         wf.ColorFormat.VkFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  colorInitialLayout,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}

	attachments := []vk.AttachmentDescription{colorAttachment}

	colorRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorRef},
	}

	if wf.DepthStencilFormat != nil {
		hasStencil := hasStencilComponent(wf.DepthStencilFormat)
		stencilLoadOp := vk.AttachmentLoadOpDontCare
		stencilStoreOp := vk.AttachmentStoreOpDontCare
		if hasStencil {
			stencilStoreOp = vk.AttachmentStoreOpStore
			if !firstRender {
				stencilLoadOp = vk.AttachmentLoadOpLoad
			}
		}

		depthAttachment := vk.AttachmentDescription{
			Format:         wf.DepthStencilFormat.VkFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  stencilLoadOp,
			StencilStoreOp: stencilStoreOp,
			InitialLayout:  depthInitialLayout,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		attachments = append(attachments, depthAttachment)

		depthRef := vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		subpass.PDepthStencilAttachment = &depthRef
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var renderPass vk.RenderPass
	if res := vk.CreateRenderPass(ctx.Device(), &createInfo, nil, &renderPass); res != vk.Success {
		return nil, failuref("Error creating render pass")
	}
	return renderPass, nil
}

func createImage(
	ctx *Context,
	f *format.Format,
	width, height int,
	usage vk.ImageUsageFlagBits,
) (vk.Image, error) {
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    f.VkFormat,
		Extent: vk.Extent3D{
			Width:  uint32(width),
			Height: uint32(height),
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if res := vk.CreateImage(ctx.Device(), &createInfo, nil, &image); res != vk.Success {
		return nil, failuref("Error creating vkImage")
	}
	return image, nil
}

func allocateImageMemory(ctx *Context, image vk.Image) (vk.DeviceMemory, error) {
	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(ctx.Device(), image, &requirements)
	requirements.Deref()

	typeIndex := ctx.FindMemoryIndex(requirements.MemoryTypeBits, 0)
	if typeIndex == -1 {
		return nil, failuref("no suitable memory type for image")
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(typeIndex),
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(ctx.Device(), &allocInfo, nil, &memory); res != vk.Success {
		return nil, failuref("vkAllocateMemory failed for image")
	}
	if res := vk.BindImageMemory(ctx.Device(), image, memory, 0); res != vk.Success {
		vk.FreeMemory(ctx.Device(), memory, nil)
		return nil, failuref("vkBindImageMemory failed")
	}
	return memory, nil
}

func createImageView(ctx *Context, f *format.Format, image vk.Image, aspect vk.ImageAspectFlagBits) (vk.ImageView, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   f.VkFormat,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if res := vk.CreateImageView(ctx.Device(), &createInfo, nil, &view); res != vk.Success {
		return nil, failuref("Error creating vkImageView")
	}
	return view, nil
}

func createLinearBuffer(ctx *Context, size int) (vk.Buffer, vk.DeviceMemory, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if res := vk.CreateBuffer(ctx.Device(), &createInfo, nil, &buffer); res != vk.Success {
		return nil, nil, failuref("vkCreateBuffer failed")
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.Device(), buffer, &requirements)
	requirements.Deref()

	typeIndex := ctx.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit))
	if typeIndex == -1 {
		vk.DestroyBuffer(ctx.Device(), buffer, nil)
		return nil, nil, failuref("no host-visible memory type for the readback buffer")
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(typeIndex),
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(ctx.Device(), &allocInfo, nil, &memory); res != vk.Success {
		vk.DestroyBuffer(ctx.Device(), buffer, nil)
		return nil, nil, failuref("vkAllocateMemory failed for the readback buffer")
	}
	if res := vk.BindBufferMemory(ctx.Device(), buffer, memory, 0); res != vk.Success {
		vk.FreeMemory(ctx.Device(), memory, nil)
		vk.DestroyBuffer(ctx.Device(), buffer, nil)
		return nil, nil, failuref("vkBindBufferMemory failed")
	}

	return buffer, memory, nil
}

func memoryTypeNeedsInvalidate(ctx *Context, typeIndex uint32) bool {
	props := ctx.MemoryProperties()
	props.MemoryTypes[typeIndex].Deref()
	return uint32(props.MemoryTypes[typeIndex].PropertyFlags)&uint32(vk.MemoryPropertyHostCoherentBit) == 0
}

// NewWindow builds the framebuffer and supporting resources for wf
// against ctx.
func NewWindow(ctx *Context, wf script.WindowFormat) (*Window, error) {
	if err := checkWindowFormat(ctx, &wf); err != nil {
		return nil, err
	}

	w := &Window{ctx: ctx, format: wf}

	var err error
	if w.renderPasses[0], err = createRenderPass(ctx, &wf, true); err != nil {
		w.Close()
		return nil, err
	}
	if w.renderPasses[1], err = createRenderPass(ctx, &wf, false); err != nil {
		w.Close()
		return nil, err
	}

	if w.colorImage, err = createImage(ctx, wf.ColorFormat, wf.Width, wf.Height,
		vk.ImageUsageTransferSrcBit|vk.ImageUsageColorAttachmentBit); err != nil {
		w.Close()
		return nil, err
	}
	if w.colorMemory, err = allocateImageMemory(ctx, w.colorImage); err != nil {
		w.Close()
		return nil, err
	}
	if w.colorImageView, err = createImageView(ctx, wf.ColorFormat, w.colorImage, vk.ImageAspectColorBit); err != nil {
		w.Close()
		return nil, err
	}

	attachmentViews := []vk.ImageView{w.colorImageView}

	if wf.DepthStencilFormat != nil {
		w.hasDepthStencil = true
		if w.depthStencilImage, err = createImage(ctx, wf.DepthStencilFormat, wf.Width, wf.Height,
			vk.ImageUsageDepthStencilAttachmentBit); err != nil {
			w.Close()
			return nil, err
		}
		if w.depthStencilMemory, err = allocateImageMemory(ctx, w.depthStencilImage); err != nil {
			w.Close()
			return nil, err
		}
		aspect := vk.ImageAspectDepthBit
		if hasStencilComponent(wf.DepthStencilFormat) {
			aspect |= vk.ImageAspectStencilBit
		}
		if w.depthStencilView, err = createImageView(ctx, wf.DepthStencilFormat, w.depthStencilImage, aspect); err != nil {
			w.Close()
			return nil, err
		}
		attachmentViews = append(attachmentViews, w.depthStencilView)
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      w.renderPasses[0],
		AttachmentCount: uint32(len(attachmentViews)),
		PAttachments:    attachmentViews,
		Width:           uint32(wf.Width),
		Height:          uint32(wf.Height),
		Layers:          1,
	}
	if res := vk.CreateFramebuffer(ctx.Device(), &framebufferCreateInfo, nil, &w.framebuffer); res != vk.Success {
		w.Close()
		return nil, failuref("Error creating vkFramebuffer")
	}

	w.linearMemoryStride = wf.ColorFormat.Size() * wf.Width
	bufferSize := w.linearMemoryStride * wf.Height

	if w.linearBuffer, w.linearMemory, err = createLinearBuffer(ctx, bufferSize); err != nil {
		w.Close()
		return nil, err
	}

	var mapped unsafe.Pointer
	if res := vk.MapMemory(ctx.Device(), w.linearMemory, 0, vk.DeviceSize(bufferSize), 0, &mapped); res != vk.Success {
		w.Close()
		return nil, failuref("vkMapMemory failed for the readback buffer")
	}
	w.linearMemoryMap = unsafe.Slice((*byte)(mapped), bufferSize)

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.Device(), w.linearBuffer, &requirements)
	requirements.Deref()
	typeIndex := ctx.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit))
	w.needLinearMemInvalidate = memoryTypeNeedsInvalidate(ctx, uint32(typeIndex))

	return w, nil
}

// Context returns the Context this window was built from.
func (w *Window) Context() *Context { return w.ctx }

// Format returns the WindowFormat this window was built for.
func (w *Window) Format() script.WindowFormat { return w.format }

// RenderPasses returns the [firstRender, subsequentRender] render pass
// pair.
func (w *Window) RenderPasses() [2]vk.RenderPass { return w.renderPasses }

// Framebuffer returns the framebuffer every draw command targets.
func (w *Window) Framebuffer() vk.Framebuffer { return w.framebuffer }

// ColorImage returns the color attachment image.
func (w *Window) ColorImage() vk.Image { return w.colorImage }

// LinearBuffer returns the host-visible buffer commands copy the color
// image into for readback.
func (w *Window) LinearBuffer() vk.Buffer { return w.linearBuffer }

// LinearMemoryMap returns the persistently-mapped bytes backing
// LinearBuffer.
func (w *Window) LinearMemoryMap() []byte { return w.linearMemoryMap }

// LinearMemoryStride returns the byte stride of one row of pixels in
// the linear buffer.
func (w *Window) LinearMemoryStride() int { return w.linearMemoryStride }

// NeedLinearMemoryInvalidate reports whether the linear buffer's
// memory type lacks VK_MEMORY_PROPERTY_HOST_COHERENT_BIT and so needs
// vkInvalidateMappedMemoryRanges before every read.
func (w *Window) NeedLinearMemoryInvalidate() bool { return w.needLinearMemInvalidate }

// Close destroys every resource the window owns, in reverse creation
// order.
func (w *Window) Close() {
	dev := w.ctx.Device()

	if w.linearMemory != nil {
		vk.UnmapMemory(dev, w.linearMemory)
		vk.FreeMemory(dev, w.linearMemory, nil)
	}
	if w.linearBuffer != nil {
		vk.DestroyBuffer(dev, w.linearBuffer, nil)
	}
	if w.framebuffer != nil {
		vk.DestroyFramebuffer(dev, w.framebuffer, nil)
	}
	if w.depthStencilView != nil {
		vk.DestroyImageView(dev, w.depthStencilView, nil)
	}
	if w.depthStencilMemory != nil {
		vk.FreeMemory(dev, w.depthStencilMemory, nil)
	}
	if w.depthStencilImage != nil {
		vk.DestroyImage(dev, w.depthStencilImage, nil)
	}
	if w.colorImageView != nil {
		vk.DestroyImageView(dev, w.colorImageView, nil)
	}
	if w.colorMemory != nil {
		vk.FreeMemory(dev, w.colorMemory, nil)
	}
	if w.colorImage != nil {
		vk.DestroyImage(dev, w.colorImage, nil)
	}
	for _, rp := range w.renderPasses {
		if rp != nil {
			vk.DestroyRenderPass(dev, rp, nil)
		}
	}
}
