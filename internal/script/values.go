package script

import (
	"math"
	"strings"

	"github.com/spaghettifunk/vkrunner-go/internal/numeric"
	"github.com/spaghettifunk/vkrunner-go/internal/slot"
)

// parseGLSLType reads a GLSL type name off the front of line and
// returns its slot.Type plus the remaining text.
func (l *loader) parseGLSLType(line string) (slot.Type, string, error) {
	word, tail, ok := nextWord(line)
	if !ok {
		return 0, "", l.errf("expected GLSL type name")
	}
	typ, ok := slot.FromGLSLType(word)
	if !ok {
		return 0, "", l.errf("invalid GLSL type name: %s", word)
	}
	return typ, tail, nil
}

// nextWord splits the first whitespace-delimited token off s.
func nextWord(s string) (string, string, bool) {
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return "", "", false
	}
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, "", true
	}
	return s[:i], s[i:], true
}

// parseSlotValues parses one or more repeated occurrences of typ's
// component values from line, packing each occurrence stride bytes
// apart (array_stride(layout) for data destined for a device buffer;
// size(layout) for probe comparison values, which are compared
// tightly-packed against a strided buffer read — §4.5).
func (l *loader) parseSlotValues(line string, typ slot.Type, layout slot.Layout, stride int) ([]byte, error) {
	typeSize := typ.Size(layout)
	base := typ.BaseType()
	var offsets []slot.Offset
	if typ.IsMatrix() {
		offsets = typ.Offsets(layout)
	} else {
		// slot.Type.Offsets only accepts matrices; scalar and vector
		// components are simply packed one component size apart.
		for row := 0; row < typ.Rows(); row++ {
			offsets = append(offsets, slot.Offset{Row: row, Offset: row * base.Size()})
		}
	}

	var buffer []byte
	nValues := 0

	for {
		needed := nValues*stride + typeSize
		for len(buffer) < needed {
			buffer = append(buffer, 0)
		}
		baseOffset := len(buffer) - typeSize

		for _, off := range offsets {
			tail, err := l.parseComponentInto(buffer[baseOffset+off.Offset:], line, base)
			if err != nil {
				return nil, err
			}
			line = tail
		}

		if strings.TrimSpace(line) == "" {
			break
		}
		nValues++
	}

	return buffer, nil
}

// parseBufferSubdata packs line's values at typ's full array stride,
// ready to be written directly into a device buffer under layout.
func (l *loader) parseBufferSubdata(line string, typ slot.Type, layout slot.Layout) ([]byte, error) {
	return l.parseSlotValues(line, typ, layout, typ.ArrayStride(layout))
}

func (l *loader) parseComponentInto(dst []byte, line string, base slot.BaseType) (string, error) {
	switch base {
	case slot.BaseFloat:
		v, tail, err := numeric.ParseFloat32(line)
		if err != nil {
			return "", l.errf("invalid float")
		}
		putU32(dst, math.Float32bits(v))
		return tail, nil
	case slot.BaseDouble:
		v, tail, err := numeric.ParseFloat64(line)
		if err != nil {
			return "", l.errf("invalid double")
		}
		putU64(dst, math.Float64bits(v))
		return tail, nil
	case slot.BaseFloat16:
		v, tail, err := numeric.ParseHalfFloat(line)
		if err != nil {
			return "", l.errf("invalid half float")
		}
		putU16(dst, v)
		return tail, nil
	default:
		v, tail, err := numeric.ParseInteger(line)
		if err != nil {
			return "", l.errf("invalid integer")
		}
		switch base.Size() {
		case 1:
			dst[0] = byte(v)
		case 2:
			putU16(dst, uint16(v))
		case 4:
			putU32(dst, uint32(v))
		case 8:
			putU64(dst, uint64(v))
		}
		return tail, nil
	}
}

func putU16(dst []byte, v uint16) {
	dst[0], dst[1] = byte(v), byte(v>>8)
}

func putU32(dst []byte, v uint32) {
	dst[0], dst[1], dst[2], dst[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func putU64(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}

// parseUint consumes a leading integer literal from s character by
// character, returning the tail starting immediately after it (which
// may be non-whitespace, e.g. ":" or "%") rather than the next
// whitespace-delimited token.
func (l *loader) parseUint(s string) (uint32, string, error) {
	v, tail, err := numeric.ParseInteger(s)
	if err != nil {
		return 0, "", l.errf("missing number")
	}
	return uint32(v), tail, nil
}

func (l *loader) parseFloat(s string) (float32, string, error) {
	v, tail, err := numeric.ParseFloat32(s)
	if err != nil {
		return 0, "", l.errf("missing number")
	}
	return v, tail, nil
}

func (l *loader) parseFloat64(s string) (float64, string, error) {
	v, tail, err := numeric.ParseFloat64(s)
	if err != nil {
		return 0, "", l.errf("missing number")
	}
	return v, tail, nil
}

// parseDescSetAndBinding parses "<a>[:<b>]", where a lone number is the
// binding at descriptor set 0.
func (l *loader) parseDescSetAndBinding(line string) (uint32, uint32, string, error) {
	a, tail, err := l.parseUint(line)
	if err != nil {
		return 0, 0, "", err
	}

	if strings.HasPrefix(tail, ":") {
		b, tail2, err := l.parseUint(tail[1:])
		if err != nil {
			return 0, 0, "", err
		}
		return a, b, tail2, nil
	}

	return 0, a, tail, nil
}
