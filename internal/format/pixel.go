package format

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaghettifunk/vkrunner-go/internal/numeric"
)

// LoadPixel decodes one pixel's worth of bytes into up to four
// floating-point components, in RGBA order, defaulting unset
// components to 0.0 (alpha to 1.0) as specified in §4.1.
func (f *Format) LoadPixel(source []byte) [4]float64 {
	if len(source) < f.Size() {
		panic(fmt.Sprintf("format: short pixel buffer for %s", f.Name))
	}

	var parts [4]float64

	if f.PackedSize != 0 {
		f.loadPackedParts(source, &parts)
	} else {
		rest := source
		for i, p := range f.Parts {
			parts[i] = loadUnpackedPart(p.Mode, p.Bits, rest)
			rest = rest[p.Bits/8:]
		}
	}

	pixel := [4]float64{0, 0, 0, 1}
	for i, p := range f.Parts {
		switch p.Component {
		case ComponentR:
			pixel[0] = parts[i]
		case ComponentG:
			pixel[1] = parts[i]
		case ComponentB:
			pixel[2] = parts[i]
		case ComponentA:
			pixel[3] = parts[i]
		case ComponentD, ComponentS, ComponentX:
			// Depth/stencil/padding parts never feed a colour component.
		}
	}
	return pixel
}

func (f *Format) loadPackedParts(source []byte, parts *[4]float64) {
	var packedWord uint32
	switch f.PackedSize {
	case 8:
		packedWord = uint32(source[0])
	case 16:
		packedWord = uint32(binary.LittleEndian.Uint16(source))
	case 32:
		packedWord = binary.LittleEndian.Uint32(source)
	default:
		panic(fmt.Sprintf("format: unsupported packed size %d", f.PackedSize))
	}

	for i := len(f.Parts) - 1; i >= 0; i-- {
		p := f.Parts[i]
		mask := uint32(math.MaxUint32) >> uint(32-p.Bits)
		partBits := packedWord & mask
		parts[i] = loadPackedPart(p.Mode, partBits, p.Bits)
		packedWord >>= uint(p.Bits)
	}
}

func loadUnpackedPart(mode Mode, bits int, fb []byte) float64 {
	switch mode {
	case ModeSRGB, ModeUNORM:
		switch bits {
		case 8:
			return float64(fb[0]) / float64(math.MaxUint8)
		case 16:
			return float64(binary.LittleEndian.Uint16(fb)) / float64(math.MaxUint16)
		case 24:
			return float64(extractU24(fb)) / 16777215.0
		case 32:
			return float64(binary.LittleEndian.Uint32(fb)) / float64(math.MaxUint32)
		case 64:
			return float64(binary.LittleEndian.Uint64(fb)) / float64(uint64(math.MaxUint64))
		default:
			panic(fmt.Sprintf("format: unsupported UNORM bit size %d", bits))
		}
	case ModeSNORM:
		switch bits {
		case 8:
			return float64(int8(fb[0])) / float64(math.MaxInt8)
		case 16:
			return float64(int16(binary.LittleEndian.Uint16(fb))) / float64(math.MaxInt16)
		case 32:
			return float64(int32(binary.LittleEndian.Uint32(fb))) / float64(math.MaxInt32)
		case 64:
			return float64(int64(binary.LittleEndian.Uint64(fb))) / float64(int64(math.MaxInt64))
		default:
			panic(fmt.Sprintf("format: unsupported SNORM bit size %d", bits))
		}
	case ModeUINT, ModeUSCALED:
		switch bits {
		case 8:
			return float64(fb[0])
		case 16:
			return float64(binary.LittleEndian.Uint16(fb))
		case 32:
			return float64(binary.LittleEndian.Uint32(fb))
		case 64:
			return float64(binary.LittleEndian.Uint64(fb))
		default:
			panic(fmt.Sprintf("format: unsupported UINT bit size %d", bits))
		}
	case ModeSINT, ModeSSCALED:
		switch bits {
		case 8:
			return float64(int8(fb[0]))
		case 16:
			return float64(int16(binary.LittleEndian.Uint16(fb)))
		case 32:
			return float64(int32(binary.LittleEndian.Uint32(fb)))
		case 64:
			return float64(int64(binary.LittleEndian.Uint64(fb)))
		default:
			panic(fmt.Sprintf("format: unsupported SINT bit size %d", bits))
		}
	case ModeSFLOAT:
		switch bits {
		case 16:
			return float64(numeric.ToFloat32(binary.LittleEndian.Uint16(fb)))
		case 32:
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(fb)))
		case 64:
			return math.Float64frombits(binary.LittleEndian.Uint64(fb))
		default:
			panic(fmt.Sprintf("format: unsupported SFLOAT bit size %d", bits))
		}
	default:
		panic("format: unexpected unpacked UFLOAT part")
	}
}

func extractU24(bytes []byte) uint32 {
	return uint32(bytes[0]) | uint32(bytes[1])<<8 | uint32(bytes[2])<<16
}
