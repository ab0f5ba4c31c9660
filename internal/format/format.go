// Package format is the static catalogue of pixel formats used to
// pack, unpack and compare framebuffer and buffer contents (§4.1).
//
// Grounded on vkrunner's format.rs / format_table.rs: each entry
// names its Vulkan format enumerator, an optional packed word size,
// and up to four typed Parts describing how the bits decompose into
// colour/depth/stencil components.
package format

import (
	"fmt"
	"sort"

	vk "github.com/goki/vulkan"
)

// Component identifies which pixel channel a Part feeds.
type Component int

const (
	ComponentR Component = iota
	ComponentG
	ComponentB
	ComponentA
	ComponentD
	ComponentS
	ComponentX
)

// Mode is the numeric encoding of one Part's bits.
type Mode int

const (
	ModeUNORM Mode = iota
	ModeSNORM
	ModeUSCALED
	ModeSSCALED
	ModeUINT
	ModeSINT
	ModeUFLOAT
	ModeSFLOAT
	ModeSRGB
)

// Part describes one packed or sequential field of a Format.
type Part struct {
	Bits      int
	Component Component
	Mode      Mode
}

// Format is one catalogue entry: a Vulkan format enumerator plus its
// name and layout.
type Format struct {
	VkFormat   vk.Format
	Name       string
	PackedSize int // 0 means "not packed"
	Parts      []Part
}

// Size returns the total byte size of one pixel in this format.
func (f *Format) Size() int {
	if f.PackedSize != 0 {
		return f.PackedSize / 8
	}
	total := 0
	for _, p := range f.Parts {
		total += p.Bits
	}
	return total / 8
}

// Alignment returns the natural alignment of this format: the widest
// part (or the packed word) in bytes.
func (f *Format) Alignment() int {
	if f.PackedSize != 0 {
		return f.PackedSize / 8
	}
	widest := 0
	for _, p := range f.Parts {
		if p.Bits > widest {
			widest = p.Bits
		}
	}
	return widest / 8
}

var compOrder = [4]Component{ComponentR, ComponentG, ComponentB, ComponentA}

var formats []*Format
var byName []*Format // kept sorted by Name for binary search

func register(f *Format) {
	formats = append(formats, f)
}

func init() {
	register(&Format{VkFormat: vk.FormatB8g8r8a8Unorm, Name: "VK_FORMAT_B8G8R8A8_UNORM", Parts: []Part{
		{8, ComponentB, ModeUNORM}, {8, ComponentG, ModeUNORM}, {8, ComponentR, ModeUNORM}, {8, ComponentA, ModeUNORM},
	}})
	register(&Format{VkFormat: vk.FormatB8g8r8a8Srgb, Name: "VK_FORMAT_B8G8R8A8_SRGB", Parts: []Part{
		{8, ComponentB, ModeSRGB}, {8, ComponentG, ModeSRGB}, {8, ComponentR, ModeSRGB}, {8, ComponentA, ModeSRGB},
	}})
	register(&Format{VkFormat: vk.FormatR8g8b8a8Unorm, Name: "VK_FORMAT_R8G8B8A8_UNORM", Parts: []Part{
		{8, ComponentR, ModeUNORM}, {8, ComponentG, ModeUNORM}, {8, ComponentB, ModeUNORM}, {8, ComponentA, ModeUNORM},
	}})
	register(&Format{VkFormat: vk.FormatR8g8b8a8Snorm, Name: "VK_FORMAT_R8G8B8A8_SNORM", Parts: []Part{
		{8, ComponentR, ModeSNORM}, {8, ComponentG, ModeSNORM}, {8, ComponentB, ModeSNORM}, {8, ComponentA, ModeSNORM},
	}})
	register(&Format{VkFormat: vk.FormatR8g8b8a8Uint, Name: "VK_FORMAT_R8G8B8A8_UINT", Parts: []Part{
		{8, ComponentR, ModeUINT}, {8, ComponentG, ModeUINT}, {8, ComponentB, ModeUINT}, {8, ComponentA, ModeUINT},
	}})
	register(&Format{VkFormat: vk.FormatR8g8b8a8Sint, Name: "VK_FORMAT_R8G8B8A8_SINT", Parts: []Part{
		{8, ComponentR, ModeSINT}, {8, ComponentG, ModeSINT}, {8, ComponentB, ModeSINT}, {8, ComponentA, ModeSINT},
	}})
	register(&Format{VkFormat: vk.FormatR8Unorm, Name: "VK_FORMAT_R8_UNORM", Parts: []Part{
		{8, ComponentR, ModeUNORM},
	}})
	register(&Format{VkFormat: vk.FormatR8g8Unorm, Name: "VK_FORMAT_R8G8_UNORM", Parts: []Part{
		{8, ComponentR, ModeUNORM}, {8, ComponentG, ModeUNORM},
	}})
	register(&Format{VkFormat: vk.FormatR8g8b8Unorm, Name: "VK_FORMAT_R8G8B8_UNORM", Parts: []Part{
		{8, ComponentR, ModeUNORM}, {8, ComponentG, ModeUNORM}, {8, ComponentB, ModeUNORM},
	}})
	register(&Format{VkFormat: vk.FormatR16g16b16a16Sfloat, Name: "VK_FORMAT_R16G16B16A16_SFLOAT", Parts: []Part{
		{16, ComponentR, ModeSFLOAT}, {16, ComponentG, ModeSFLOAT}, {16, ComponentB, ModeSFLOAT}, {16, ComponentA, ModeSFLOAT},
	}})
	register(&Format{VkFormat: vk.FormatR16g16b16a16Unorm, Name: "VK_FORMAT_R16G16B16A16_UNORM", Parts: []Part{
		{16, ComponentR, ModeUNORM}, {16, ComponentG, ModeUNORM}, {16, ComponentB, ModeUNORM}, {16, ComponentA, ModeUNORM},
	}})
	register(&Format{VkFormat: vk.FormatR16g16b16a16Uint, Name: "VK_FORMAT_R16G16B16A16_UINT", Parts: []Part{
		{16, ComponentR, ModeUINT}, {16, ComponentG, ModeUINT}, {16, ComponentB, ModeUINT}, {16, ComponentA, ModeUINT},
	}})
	register(&Format{VkFormat: vk.FormatR32g32b32a32Sfloat, Name: "VK_FORMAT_R32G32B32A32_SFLOAT", Parts: []Part{
		{32, ComponentR, ModeSFLOAT}, {32, ComponentG, ModeSFLOAT}, {32, ComponentB, ModeSFLOAT}, {32, ComponentA, ModeSFLOAT},
	}})
	register(&Format{VkFormat: vk.FormatR32g32b32Sfloat, Name: "VK_FORMAT_R32G32B32_SFLOAT", Parts: []Part{
		{32, ComponentR, ModeSFLOAT}, {32, ComponentG, ModeSFLOAT}, {32, ComponentB, ModeSFLOAT},
	}})
	register(&Format{VkFormat: vk.FormatR32g32Sfloat, Name: "VK_FORMAT_R32G32_SFLOAT", Parts: []Part{
		{32, ComponentR, ModeSFLOAT}, {32, ComponentG, ModeSFLOAT},
	}})
	register(&Format{VkFormat: vk.FormatR32Sfloat, Name: "VK_FORMAT_R32_SFLOAT", Parts: []Part{
		{32, ComponentR, ModeSFLOAT},
	}})
	register(&Format{VkFormat: vk.FormatR32g32b32a32Uint, Name: "VK_FORMAT_R32G32B32A32_UINT", Parts: []Part{
		{32, ComponentR, ModeUINT}, {32, ComponentG, ModeUINT}, {32, ComponentB, ModeUINT}, {32, ComponentA, ModeUINT},
	}})
	register(&Format{VkFormat: vk.FormatR32g32b32a32Sint, Name: "VK_FORMAT_R32G32B32A32_SINT", Parts: []Part{
		{32, ComponentR, ModeSINT}, {32, ComponentG, ModeSINT}, {32, ComponentB, ModeSINT}, {32, ComponentA, ModeSINT},
	}})
	register(&Format{VkFormat: vk.FormatR64Sfloat, Name: "VK_FORMAT_R64_SFLOAT", Parts: []Part{
		{64, ComponentR, ModeSFLOAT},
	}})
	register(&Format{VkFormat: vk.FormatD32Sfloat, Name: "VK_FORMAT_D32_SFLOAT", Parts: []Part{
		{32, ComponentD, ModeSFLOAT},
	}})
	register(&Format{VkFormat: vk.FormatD24UnormS8Uint, Name: "VK_FORMAT_D24_UNORM_S8_UINT", Parts: []Part{
		{24, ComponentD, ModeUNORM}, {8, ComponentS, ModeUINT},
	}})
	register(&Format{VkFormat: vk.FormatD32SfloatS8Uint, Name: "VK_FORMAT_D32_SFLOAT_S8_UINT", Parts: []Part{
		{32, ComponentD, ModeSFLOAT}, {8, ComponentS, ModeUINT},
	}})
	register(&Format{VkFormat: vk.FormatS8Uint, Name: "VK_FORMAT_S8_UINT", Parts: []Part{
		{8, ComponentS, ModeUINT},
	}})
	// Packed formats: declaration order is MSB to LSB (§4.1).
	register(&Format{VkFormat: vk.FormatA2b10g10r10UnormPack32, Name: "VK_FORMAT_A2B10G10R10_UNORM_PACK32", PackedSize: 32, Parts: []Part{
		{2, ComponentA, ModeUNORM}, {10, ComponentB, ModeUNORM}, {10, ComponentG, ModeUNORM}, {10, ComponentR, ModeUNORM},
	}})
	register(&Format{VkFormat: vk.FormatA8b8g8r8UnormPack32, Name: "VK_FORMAT_A8B8G8R8_UNORM_PACK32", PackedSize: 32, Parts: []Part{
		{8, ComponentA, ModeUNORM}, {8, ComponentB, ModeUNORM}, {8, ComponentG, ModeUNORM}, {8, ComponentR, ModeUNORM},
	}})
	register(&Format{VkFormat: vk.FormatB10g11r11UfloatPack32, Name: "VK_FORMAT_B10G11R11_UFLOAT_PACK32", PackedSize: 32, Parts: []Part{
		{10, ComponentB, ModeUFLOAT}, {11, ComponentG, ModeUFLOAT}, {11, ComponentR, ModeUFLOAT},
	}})
	register(&Format{VkFormat: vk.FormatR5g6b5UnormPack16, Name: "VK_FORMAT_R5G6B5_UNORM_PACK16", PackedSize: 16, Parts: []Part{
		{5, ComponentR, ModeUNORM}, {6, ComponentG, ModeUNORM}, {5, ComponentB, ModeUNORM},
	}})
	register(&Format{VkFormat: vk.FormatR4g4b4a4UnormPack16, Name: "VK_FORMAT_R4G4B4A4_UNORM_PACK16", PackedSize: 16, Parts: []Part{
		{4, ComponentR, ModeUNORM}, {4, ComponentG, ModeUNORM}, {4, ComponentB, ModeUNORM}, {4, ComponentA, ModeUNORM},
	}})

	byName = append(byName, formats...)
	sort.Slice(byName, func(i, j int) bool { return byName[i].Name < byName[j].Name })
}

// LookupByName does a binary search of the catalogue by exact
// `VK_FORMAT_*` name.
func LookupByName(name string) (*Format, bool) {
	i := sort.Search(len(byName), func(i int) bool { return byName[i].Name >= name })
	if i < len(byName) && byName[i].Name == name {
		return byName[i], true
	}
	return nil, false
}

// LookupByVkFormat linearly scans the catalogue for a matching Vulkan
// format enumerator.
func LookupByVkFormat(f vk.Format) (*Format, bool) {
	for _, entry := range formats {
		if entry.VkFormat == f {
			return entry, true
		}
	}
	return nil, false
}

// LookupByDetails finds a non-packed RGBA-order format whose parts are
// all of the given bit size and mode and whose part count matches
// nComponents (§4.1; used by the VBO header parser).
func LookupByDetails(bitSize int, mode Mode, nComponents int) (*Format, bool) {
formatLoop:
	for _, f := range formats {
		if len(f.Parts) != nComponents || f.PackedSize != 0 {
			continue
		}
		for i, p := range f.Parts {
			if p.Bits != bitSize || p.Component != compOrder[i] || p.Mode != mode {
				continue formatLoop
			}
		}
		return f, true
	}
	return nil, false
}

func signExtend(part uint32, bits int) int32 {
	if part&(1<<(bits-1)) != 0 {
		return int32((^uint32(0) << uint(bits)) | part)
	}
	return int32(part)
}

func loadPackedPart(mode Mode, part uint32, bits int) float64 {
	switch mode {
	case ModeSRGB, ModeUNORM:
		return float64(part) / float64((uint32(1)<<uint(bits))-1)
	case ModeSNORM:
		return float64(signExtend(part, bits)) / float64((uint32(1)<<uint(bits-1))-1)
	case ModeUINT, ModeUSCALED:
		return float64(part)
	case ModeSSCALED, ModeSINT:
		return float64(signExtend(part, bits))
	case ModeUFLOAT:
		switch bits {
		case 10:
			return loadUnsignedSmallFloat(part, 5, 5)
		case 11:
			return loadUnsignedSmallFloat(part, 5, 6)
		default:
			panic(fmt.Sprintf("format: unsupported packed UFLOAT bit size %d", bits))
		}
	default:
		panic("format: unexpected packed SFLOAT part")
	}
}

// loadUnsignedSmallFloat decodes an unsigned shared-exponent float
// with expBits exponent bits and mantBits mantissa bits (the 10- and
// 11-bit UFLOAT packed forms used by B10G11R11_UFLOAT_PACK32).
func loadUnsignedSmallFloat(bits uint32, expBits, mantBits int) float64 {
	bias := (1 << (expBits - 1)) - 1
	exp := int(bits>>uint(mantBits)) & ((1 << expBits) - 1)
	mant := bits & ((1 << uint(mantBits)) - 1)

	if exp == (1<<expBits)-1 {
		if mant == 0 {
			return inf()
		}
		return nan()
	}
	if exp == 0 {
		if mant == 0 {
			return 0
		}
		return float64(mant) * pow2(1-bias-mantBits)
	}
	return (1 + float64(mant)/float64(uint32(1)<<uint(mantBits))) * pow2(exp-bias)
}

func pow2(e int) float64 {
	if e >= 0 {
		return float64(uint64(1) << uint(e))
	}
	v := 1.0
	for i := 0; i < -e; i++ {
		v /= 2
	}
	return v
}

func inf() float64 { var z float64; return 1 / z }
func nan() float64 { var z float64; return z / z }
