// Package vbo parses the columnar vertex-data text format used by a
// test script's [vertex data] section: a header row of
// `location/format` (or `location/gltype/glsltype`) column
// descriptors followed by any number of whitespace-separated data
// rows, `#` starting a trailing comment.
//
// Grounded on vkrunner's vbo.rs.
package vbo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spaghettifunk/vkrunner-go/internal/format"
	"github.com/spaghettifunk/vkrunner-go/internal/numeric"
)

// Attrib describes one column of a Vbo: the vertex attribute location
// it binds to, the Vulkan format of its data and its byte offset
// within a row.
type Attrib struct {
	Format   *format.Format
	Location uint32
	Offset   int
}

// Vbo is a parsed blob of columnar vertex data ready to be uploaded as
// a Vulkan vertex buffer.
type Vbo struct {
	Attribs []Attrib
	RawData []byte
	Stride  int
	NumRows int
}

// Parser builds a Vbo by consuming one source line at a time.
type Parser struct {
	attribs []Attrib
	haveHdr bool
	rawData []byte
	stride  int
	numRows int
}

// NewParser returns an empty Parser ready for ParseLine calls.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses an entire vertex-data block given as a single string,
// one source line per "\n"-delimited line.
func Parse(source string) (*Vbo, error) {
	p := NewParser()
	for _, line := range strings.Split(source, "\n") {
		if err := p.ParseLine(line); err != nil {
			return nil, err
		}
	}
	return p.IntoVbo()
}

func trimLine(line string) string {
	line = strings.TrimLeft(line, " \t")
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimRight(line, " \t\r\n")
}

var glTypes = map[string]struct {
	mode    format.Mode
	bitSize int
}{
	"byte":   {format.ModeSINT, 8},
	"ubyte":  {format.ModeUINT, 8},
	"short":  {format.ModeSINT, 16},
	"ushort": {format.ModeUINT, 16},
	"int":    {format.ModeSINT, 32},
	"uint":   {format.ModeUINT, 32},
	"half":   {format.ModeSFLOAT, 16},
	"float":  {format.ModeSFLOAT, 32},
	"double": {format.ModeSFLOAT, 64},
}

func lookupGLType(name string) (format.Mode, int, error) {
	t, ok := glTypes[name]
	if !ok {
		return 0, 0, fmt.Errorf("Unknown GL type: %s", name)
	}
	return t.mode, t.bitSize, nil
}

func componentsForGLSLType(glslType string) (int, error) {
	switch glslType {
	case "int", "uint", "float", "double":
		return 1, nil
	}

	vecPart := glslType
	if len(glslType) > 0 {
		switch glslType[0] {
		case 'i', 'u', 'd':
			vecPart = glslType[1:]
		}
	}

	if !strings.HasPrefix(vecPart, "vec") {
		return 0, fmt.Errorf("Unknown GLSL type: %s", glslType)
	}

	n, err := strconv.Atoi(vecPart[3:])
	if err != nil || n < 2 || n > 4 {
		return 0, fmt.Errorf("Invalid vec size: %s", glslType)
	}
	return n, nil
}

func decodeType(glType, glslType string) (*format.Format, error) {
	mode, bitSize, err := lookupGLType(glType)
	if err != nil {
		return nil, err
	}
	n, err := componentsForGLSLType(glslType)
	if err != nil {
		return nil, err
	}
	f, ok := format.LookupByDetails(bitSize, mode, n)
	if !ok {
		return nil, fmt.Errorf("Invalid type combo: %s/%s", glType, glslType)
	}
	return f, nil
}

func alignUp(offset, alignment int) int {
	if alignment <= 1 {
		return offset
	}
	if rem := offset % alignment; rem != 0 {
		return offset + alignment - rem
	}
	return offset
}

func parseAttrib(s string, offset int) (Attrib, error) {
	parts := strings.Split(s, "/")

	location, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return Attrib{}, fmt.Errorf("Invalid attrib location in %s", s)
	}

	if len(parts) < 2 {
		return Attrib{}, fmt.Errorf(
			"Column headers must be in the form location/format. Got: %s", s)
	}
	formatName := parts[1]

	var f *format.Format
	switch len(parts) {
	case 2:
		var ok bool
		f, ok = format.LookupByName("VK_FORMAT_" + formatName)
		if !ok {
			return Attrib{}, fmt.Errorf("Unknown format: %s", formatName)
		}
	case 3:
		f, err = decodeType(formatName, parts[2])
		if err != nil {
			return Attrib{}, err
		}
	default:
		return Attrib{}, fmt.Errorf("Extra data at end of column header: %s", s)
	}

	return Attrib{
		Format:   f,
		Location: uint32(location),
		Offset:   alignUp(offset, f.Alignment()),
	}, nil
}

func (p *Parser) parseHeaderLine(line string) error {
	var attribs []Attrib
	stride := 0
	maxAlignment := 1

	for _, field := range strings.Fields(line) {
		a, err := parseAttrib(field, stride)
		if err != nil {
			return err
		}
		stride = a.Offset + a.Format.Size()
		if align := a.Format.Alignment(); align > maxAlignment {
			maxAlignment = align
		}
		attribs = append(attribs, a)
	}

	p.attribs = attribs
	p.stride = alignUp(stride, maxAlignment)
	return nil
}

func parseUnsignedDatum(bitSize int, text string, data []byte) (string, error) {
	v, tail, err := numeric.ParseInteger(text)
	if err != nil {
		return tail, fmt.Errorf("Couldn't parse as unsigned %s", bitSizeName(bitSize))
	}
	putUint(data, bitSize, uint64(v))
	return tail, nil
}

func parseSignedDatum(bitSize int, text string, data []byte) (string, error) {
	v, tail, err := numeric.ParseInteger(text)
	if err != nil {
		return tail, fmt.Errorf("Couldn't parse as signed %s", bitSizeName(bitSize))
	}
	putUint(data, bitSize, uint64(v))
	return tail, nil
}

func bitSizeName(bitSize int) string {
	switch bitSize {
	case 8:
		return "byte"
	case 16:
		return "short"
	case 32:
		return "int"
	case 64:
		return "long"
	default:
		return fmt.Sprintf("%d-bit value", bitSize)
	}
}

func putUint(data []byte, bitSize int, v uint64) {
	switch bitSize {
	case 8:
		data[0] = byte(v)
	case 16:
		data[0] = byte(v)
		data[1] = byte(v >> 8)
	case 32:
		for i := 0; i < 4; i++ {
			data[i] = byte(v >> (8 * i))
		}
	case 64:
		for i := 0; i < 8; i++ {
			data[i] = byte(v >> (8 * i))
		}
	}
}

func parseFloatDatum(bitSize int, text string, data []byte) (string, error) {
	switch bitSize {
	case 16:
		v, tail, err := numeric.ParseHalfFloat(text)
		if err != nil {
			return tail, fmt.Errorf("Couldn't parse as half float")
		}
		putUint(data, 16, uint64(v))
		return tail, nil
	case 32:
		v, tail, err := numeric.ParseFloat32(text)
		if err != nil {
			return tail, fmt.Errorf("Couldn't parse as float")
		}
		putUint(data, 32, uint64(math.Float32bits(v)))
		return tail, nil
	case 64:
		v, tail, err := numeric.ParseFloat64(text)
		if err != nil {
			return tail, fmt.Errorf("Couldn't parse as double")
		}
		putUint(data, 64, math.Float64bits(v))
		return tail, nil
	default:
		return text, fmt.Errorf("vbo: unexpected float bit size %d", bitSize)
	}
}

func parseDatum(mode format.Mode, bitSize int, text string, data []byte) (string, error) {
	switch mode {
	case format.ModeSFLOAT:
		return parseFloatDatum(bitSize, text, data)
	case format.ModeUNORM, format.ModeUSCALED, format.ModeUINT, format.ModeSRGB:
		return parseUnsignedDatum(bitSize, text, data)
	case format.ModeSNORM, format.ModeSSCALED, format.ModeSINT:
		return parseSignedDatum(bitSize, text, data)
	default:
		return text, fmt.Errorf("vbo: unexpected packed component mode in unpacked data")
	}
}

func parseUnpackedData(f *format.Format, text string, data []byte) (string, error) {
	for _, part := range f.Parts {
		var err error
		text, err = parseDatum(part.Mode, part.Bits, text, data)
		if err != nil {
			return text, err
		}
		data = data[part.Bits/8:]
	}
	return text, nil
}

func (p *Parser) parseDataLine(line string) error {
	oldLength := len(p.rawData)
	p.rawData = append(p.rawData, make([]byte, p.stride)...)

	for _, a := range p.attribs {
		dataPtr := p.rawData[oldLength+a.Offset:]

		var err error
		if a.Format.PackedSize != 0 {
			line, err = parseUnsignedDatum(a.Format.PackedSize, line, dataPtr)
		} else {
			line, err = parseUnpackedData(a.Format, line, dataPtr)
		}
		if err != nil {
			return err
		}
	}

	if strings.TrimRight(line, " \t\r") != "" {
		return fmt.Errorf("Extra data at end of line")
	}

	p.numRows++
	return nil
}

// ParseLine feeds one source line into the parser: the first
// non-blank, non-comment line is treated as the column header; every
// line after that is a data row.
func (p *Parser) ParseLine(line string) error {
	line = trimLine(line)
	if len(line) == 0 {
		return nil
	}

	if !p.haveHdr {
		if err := p.parseHeaderLine(line); err != nil {
			return err
		}
		p.haveHdr = true
		return nil
	}
	return p.parseDataLine(line)
}

// IntoVbo finalizes parsing and returns the completed Vbo. Fails if no
// header line was ever seen.
func (p *Parser) IntoVbo() (*Vbo, error) {
	if !p.haveHdr {
		return nil, fmt.Errorf("Missing header line")
	}
	return &Vbo{
		Attribs: p.attribs,
		RawData: p.rawData,
		Stride:  p.stride,
		NumRows: p.numRows,
	}, nil
}
