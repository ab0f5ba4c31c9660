package script

import (
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrunner-go/internal/numeric"
	"github.com/spaghettifunk/vkrunner-go/internal/pipelinekey"
	"github.com/spaghettifunk/vkrunner-go/internal/shaderstage"
	"github.com/spaghettifunk/vkrunner-go/internal/slot"
)

// comparisonOperators maps the token spellings a "probe ssbo" line can
// use for its comparison operator to a slot.Comparison.
var comparisonOperators = map[string]slot.Comparison{
	"==": slot.CmpEqual,
	"!=": slot.CmpNotEqual,
	"~=": slot.CmpEqual,
	"<":  slot.CmpLess,
	"<=": slot.CmpLessEqual,
	">":  slot.CmpGreater,
	">=": slot.CmpGreaterEqual,
}

// processTestLine tries each test-command matcher in vkrunner's fixed
// dispatch order; the first one that recognises the line wins.
func (l *loader) processTestLine(line string) error {
	trimmed := strings.TrimRight(stripComment(line), " \t\r\n")
	if strings.TrimSpace(trimmed) == "" {
		return nil
	}

	matchers := []func(string) (bool, error){
		l.matchProbeSsbo,
		l.matchProbe,
		l.matchUniformUbo,
		l.matchLayout,
		l.matchPush,
		l.matchDrawRect,
		l.matchDrawArrays,
		l.matchEntrypoint,
		l.matchCompute,
		l.matchBufferCommand,
		l.matchClear,
		l.matchPipelineProperty,
		l.matchClearValues,
		l.matchTolerance,
		l.matchPatchParameterVertices,
	}

	for _, m := range matchers {
		matched, err := m(trimmed)
		if err != nil {
			return err
		}
		if matched {
			return nil
		}
	}

	return l.errf("invalid test command")
}

func (l *loader) pushCommand(op Operation) {
	l.commands = append(l.commands, Command{LineNum: l.st.LineNum(), Op: op})
}

// addPipelineKey returns the index of key within the deduplicated
// pipeline key set, appending it if it is not already present.
func (l *loader) addPipelineKey(key *pipelinekey.Key) int {
	for i, existing := range l.pipelineKeys {
		if existing.Equal(key) {
			return i
		}
	}
	l.pipelineKeys = append(l.pipelineKeys, key)
	return len(l.pipelineKeys) - 1
}

func (l *loader) cloneCurrentKey() *pipelinekey.Key {
	clone := *l.currentKey
	return &clone
}

func (l *loader) matchProbe(line string) (bool, error) {
	relative := false
	rest := line
	if tail, ok := stripWordPrefix(rest, "relative"); ok {
		relative = true
		rest = tail
	}

	rest, ok := stripWordPrefix(rest, "probe")
	if !ok {
		return false, nil
	}

	const (
		regionPoint = iota
		regionRect
		regionAll
	)
	region := regionPoint
	if tail, ok := stripWordPrefix(rest, "rect"); ok {
		region = regionRect
		rest = tail
	} else if tail, ok := stripWordPrefix(rest, "all"); ok {
		region = regionAll
		rest = tail
	}

	var nComponents int
	if tail, ok := stripWordPrefix(rest, "rgba"); ok {
		nComponents = 4
		rest = tail
	} else if tail, ok := stripWordPrefix(rest, "rgb"); ok {
		nComponents = 3
		rest = tail
	} else {
		return false, l.errf("expected rgb or rgba in probe command")
	}

	var x, y, w, h int
	var color [4]float64

	switch region {
	case regionAll:
		if relative {
			return false, l.errf("'all' can't be used with a relative probe")
		}
		for i := 0; i < nComponents; i++ {
			v, tail, err := l.parseFloat64(rest)
			if err != nil {
				return false, err
			}
			color[i] = v
			rest = tail
		}
		w, h = l.window.Width, l.window.Height
	case regionPoint:
		parts, tail, err := l.parseProbeParts(rest, 2, relative)
		if err != nil {
			return false, err
		}
		c, tail2, err := l.parseColor(tail, nComponents)
		if err != nil {
			return false, err
		}
		x, y, w, h = parts[0], parts[1], 1, 1
		color = c
		rest = tail2
	case regionRect:
		parts, tail, err := l.parseProbeParts(rest, 4, relative)
		if err != nil {
			return false, err
		}
		c, tail2, err := l.parseColor(tail, nComponents)
		if err != nil {
			return false, err
		}
		x, y, w, h = parts[0], parts[1], parts[2], parts[3]
		color = c
		rest = tail2
	}

	if strings.TrimSpace(rest) != "" {
		return false, l.errf("extra data after probe command")
	}

	l.pushCommand(Operation{
		Kind:        OpProbeRect,
		NComponents: nComponents,
		PX:          x, PY: y, PW: w, PH: h,
		Color:     color,
		Tolerance: l.tolerance,
	})

	return true, nil
}

func (l *loader) parseProbeParts(line string, n int, relative bool) ([4]int, string, error) {
	var parts [4]int
	rest := line
	for i := 0; i < n; i++ {
		v, tail, err := l.parseFloat(rest)
		if err != nil {
			return parts, "", err
		}
		rest = tail
		if relative {
			if i%2 == 0 {
				v *= float32(l.window.Width)
			} else {
				v *= float32(l.window.Height)
			}
		}
		parts[i] = int(v)
	}
	return parts, rest, nil
}

func (l *loader) parseColor(line string, n int) ([4]float64, string, error) {
	var color [4]float64
	rest := strings.TrimSpace(line)
	rest = strings.TrimPrefix(rest, "(")
	for i := 0; i < n; i++ {
		var tok string
		rest = strings.TrimLeft(rest, " \t,")
		rest = strings.TrimPrefix(rest, ")")
		idx := strings.IndexAny(rest, " \t,)")
		if idx < 0 {
			tok, rest = rest, ""
		} else {
			tok, rest = rest[:idx], rest[idx:]
		}
		v, _, err := numeric.ParseFloat64(tok)
		if err != nil {
			return color, "", l.errf("invalid colour component: %s", tok)
		}
		color[i] = v
	}
	rest = strings.TrimLeft(rest, " \t,")
	rest = strings.TrimPrefix(rest, ")")
	return color, rest, nil
}

func (l *loader) matchPush(line string) (bool, error) {
	rest, ok := stripWordPrefix(line, "push")
	if !ok {
		rest, ok = stripWordPrefix(line, "uniform")
		if !ok {
			return false, nil
		}
	}

	typ, rest, err := l.parseGLSLType(rest)
	if err != nil {
		return false, err
	}
	offset, rest, err := l.parseUint(rest)
	if err != nil {
		return false, err
	}
	data, err := l.parseBufferSubdata(rest, typ, l.pushLayout)
	if err != nil {
		return false, err
	}

	l.pushCommand(Operation{Kind: OpSetPushCommand, Offset: int(offset), Data: data})
	return true, nil
}

func (l *loader) matchUniformUbo(line string) (bool, error) {
	rest, ok := stripWordsPrefix(line, "uniform ubo")
	if !ok {
		return false, nil
	}
	descSet, binding, rest, err := l.parseDescSetAndBinding(rest)
	if err != nil {
		return false, err
	}
	return true, l.processSetBufferSubdata(descSet, binding, Ubo, rest)
}

func (l *loader) matchDrawRect(line string) (bool, error) {
	rest, ok := stripWordsPrefix(line, "draw rect")
	if !ok {
		return false, nil
	}

	ortho, patch := false, false
	for {
		if tail, ok := stripWordPrefix(rest, "ortho"); ok {
			ortho = true
			rest = tail
		} else if tail, ok := stripWordPrefix(rest, "patch"); ok {
			patch = true
			rest = tail
		} else {
			break
		}
	}

	x, rest, err := l.parseFloat(rest)
	if err != nil {
		return false, err
	}
	y, rest, err := l.parseFloat(rest)
	if err != nil {
		return false, err
	}
	w, rest, err := l.parseFloat(rest)
	if err != nil {
		return false, err
	}
	h, rest, err := l.parseFloat(rest)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(rest) != "" {
		return false, l.errf("extra data at end of line")
	}

	if ortho {
		width := float32(l.window.Width)
		// Deliberately uses width for both axes, matching the
		// upstream script language's own behaviour.
		height := width
		x = x*2.0/width - 1.0
		y = y*2.0/height - 1.0
		w *= 2.0 / width
		h *= 2.0 / height
	}

	key := l.cloneCurrentKey()
	key.PipelineType = pipelinekey.Graphics
	key.PipelineSource = pipelinekey.Rectangle
	if patch {
		key.Topology = vk.PrimitiveTopologyPatchList
	} else {
		key.Topology = vk.PrimitiveTopologyTriangleStrip
	}
	key.PatchControlPoints = 4
	idx := l.addPipelineKey(key)

	l.pushCommand(Operation{Kind: OpDrawRect, X: x, Y: y, W: w, H: h, Ortho: ortho, Patch: patch, PipelineKey: idx})
	return true, nil
}

func (l *loader) matchDrawArrays(line string) (bool, error) {
	rest, ok := stripWordsPrefix(line, "draw arrays")
	if !ok {
		return false, nil
	}

	instanced, indexed := false, false
	for {
		if tail, ok := stripWordPrefix(rest, "instanced"); ok {
			instanced = true
			rest = tail
		} else if tail, ok := stripWordPrefix(rest, "indexed"); ok {
			indexed = true
			rest = tail
		} else {
			break
		}
	}

	name, rest, ok := nextWord(rest)
	if !ok {
		return false, l.errf("expected topology name")
	}
	topology, ok := topologyNames[name]
	if !ok {
		return false, l.errf("unknown topology: %s", name)
	}

	firstVertex, rest, err := l.parseUint(rest)
	if err != nil {
		return false, err
	}
	vertexCount, rest, err := l.parseUint(rest)
	if err != nil {
		return false, err
	}
	instanceCount := uint32(1)
	if instanced {
		instanceCount, rest, err = l.parseUint(rest)
		if err != nil {
			return false, err
		}
	}
	if strings.TrimSpace(rest) != "" {
		return false, l.errf("extra data at end of line")
	}

	key := l.cloneCurrentKey()
	key.PipelineType = pipelinekey.Graphics
	key.PipelineSource = pipelinekey.VertexData
	key.Topology = topology
	idx := l.addPipelineKey(key)

	l.pushCommand(Operation{
		Kind: OpDrawArrays, Topology: topology, Indexed: indexed, Instanced: instanced,
		FirstVertex: firstVertex, VertexCount: vertexCount, InstanceCount: instanceCount,
		PipelineKey: idx,
	})
	return true, nil
}

func (l *loader) matchCompute(line string) (bool, error) {
	rest, ok := stripWordPrefix(line, "compute")
	if !ok {
		return false, nil
	}
	x, rest, err := l.parseUint(rest)
	if err != nil {
		return false, err
	}
	y, rest, err := l.parseUint(rest)
	if err != nil {
		return false, err
	}
	z, rest, err := l.parseUint(rest)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(rest) != "" {
		return false, l.errf("extra data at end of line")
	}

	key := l.cloneCurrentKey()
	key.PipelineType = pipelinekey.Compute
	idx := l.addPipelineKey(key)

	l.pushCommand(Operation{Kind: OpDispatchCompute, GroupsX: x, GroupsY: y, GroupsZ: z, PipelineKey: idx})
	return true, nil
}

func (l *loader) matchBufferCommand(line string) (bool, error) {
	var bufType BufferType
	rest, ok := stripWordPrefix(line, "ssbo")
	if ok {
		bufType = Ssbo
	} else if rest, ok = stripWordPrefix(line, "ubo"); ok {
		bufType = Ubo
	} else {
		return false, nil
	}

	descSet, binding, rest, err := l.parseDescSetAndBinding(rest)
	if err != nil {
		return false, err
	}
	rest = strings.TrimLeft(rest, " \t")

	if tail, ok := stripWordPrefix(rest, "subdata"); ok {
		return true, l.processSetBufferSubdata(descSet, binding, bufType, tail)
	}

	size, tail, err := l.parseUint(rest)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(tail) != "" {
		return false, l.errf("invalid buffer command")
	}
	return true, l.processSetBufferSize(descSet, binding, bufType, int(size))
}

func (l *loader) matchProbeSsbo(line string) (bool, error) {
	rest, ok := stripWordsPrefix(line, "probe ssbo")
	if !ok {
		return false, nil
	}

	typ, rest, err := l.parseGLSLType(rest)
	if err != nil {
		return false, err
	}
	descSet, binding, rest, err := l.parseDescSetAndBinding(rest)
	if err != nil {
		return false, err
	}
	offset, rest, err := l.parseUint(rest)
	if err != nil {
		return false, err
	}

	opTok, rest, ok := nextWord(rest)
	if !ok {
		return false, l.errf("expected comparison operator")
	}
	cmp, ok := comparisonOperators[opTok]
	if !ok {
		return false, l.errf("unknown comparison operator: %s", opTok)
	}

	typeSize := typ.Size(l.ssboLayout)
	values, err := l.parseSlotValues(rest, typ, l.ssboLayout, typeSize)
	if err != nil {
		return false, err
	}

	l.pushCommand(Operation{
		Kind: OpProbeSsbo, DescSet: descSet, Binding: binding, Comparison: cmp,
		Offset: int(offset), SlotType: typ, Layout: l.ssboLayout, Values: values,
		Tolerance: l.tolerance,
	})
	return true, nil
}

func (l *loader) matchClear(line string) (bool, error) {
	if line != "clear" {
		return false, nil
	}
	l.pushCommand(Operation{Kind: OpClear, ClearColor: l.clearColor, ClearDepth: l.clearDepth, ClearStencil: l.clearStencil})
	return true, nil
}

func (l *loader) matchClearValues(line string) (bool, error) {
	rest, ok := stripWordPrefix(line, "clear")
	if !ok {
		return false, nil
	}

	if tail, ok := stripWordPrefix(rest, "color"); ok {
		r, tail, err := l.parseFloat(tail)
		if err != nil {
			return false, err
		}
		g, tail, err := l.parseFloat(tail)
		if err != nil {
			return false, err
		}
		b, tail, err := l.parseFloat(tail)
		if err != nil {
			return false, err
		}
		a, tail, err := l.parseFloat(tail)
		if err != nil {
			return false, err
		}
		if strings.TrimSpace(tail) != "" {
			return false, l.errf("invalid clear color command")
		}
		l.clearColor = [4]float32{r, g, b, a}
		return true, nil
	}

	if tail, ok := stripWordPrefix(rest, "depth"); ok {
		d, tail, err := l.parseFloat(tail)
		if err != nil {
			return false, err
		}
		if strings.TrimSpace(tail) != "" {
			return false, l.errf("invalid clear depth command")
		}
		l.clearDepth = d
		return true, nil
	}

	if tail, ok := stripWordPrefix(rest, "stencil"); ok {
		s, tail, err := l.parseUint(tail)
		if err != nil {
			return false, err
		}
		if strings.TrimSpace(tail) != "" {
			return false, l.errf("invalid clear stencil command")
		}
		l.clearStencil = s
		return true, nil
	}

	return false, nil
}

func (l *loader) matchPipelineProperty(line string) (bool, error) {
	key, value, ok := nextWord(line)
	if !ok {
		return false, nil
	}
	value = strings.TrimLeft(value, " \t")

	err := l.currentKey.Set(key, value)
	if err == nil {
		return true, nil
	}
	if spe, ok := err.(*pipelinekey.SetPropertyError); ok && spe.NotFound {
		return false, nil
	}
	return false, l.errf("invalid value: %s", value)
}

func (l *loader) matchLayout(line string) (bool, error) {
	var layout *slot.Layout
	var def slot.Layout
	var rest string
	var ok bool

	if rest, ok = stripWordsPrefix(line, "push layout"); ok {
		layout, def = &l.pushLayout, defaultPushLayout
	} else if rest, ok = stripWordsPrefix(line, "ubo layout"); ok {
		layout, def = &l.uboLayout, defaultUboLayout
	} else if rest, ok = stripWordsPrefix(line, "ssbo layout"); ok {
		layout, def = &l.ssboLayout, defaultSsboLayout
	} else {
		return false, nil
	}

	*layout = def

	for _, tok := range strings.Fields(rest) {
		switch tok {
		case "std140":
			layout.Std = slot.Std140
		case "std430":
			layout.Std = slot.Std430
		case "row_major":
			layout.Major = slot.Row
		case "column_major":
			layout.Major = slot.Column
		default:
			return false, l.errf("unknown layout parameter %q", tok)
		}
	}

	return true, nil
}

func (l *loader) matchTolerance(line string) (bool, error) {
	rest, ok := stripWordPrefix(line, "tolerance")
	if !ok {
		return false, nil
	}

	isPercent := false
	nArgs := 0
	var values [4]float64

	for {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		if nArgs >= 4 {
			return false, l.errf("tolerance command has extra arguments")
		}

		v, tail, err := l.parseFloat64(rest)
		if err != nil {
			return false, err
		}
		values[nArgs] = v
		rest = tail

		thisPercent := false
		if strings.HasPrefix(rest, "%") {
			thisPercent = true
			rest = rest[1:]
		}
		if nArgs > 0 && thisPercent != isPercent {
			return false, l.errf("either all tolerance values must be a percentage or none")
		}
		isPercent = thisPercent
		nArgs++
	}

	if nArgs == 1 {
		for i := 1; i < 4; i++ {
			values[i] = values[0]
		}
	} else if nArgs != 4 {
		return false, l.errf("there must be either 1 or 4 tolerance values")
	}

	l.tolerance = slot.NewTolerance(values, isPercent)
	return true, nil
}

func (l *loader) matchEntrypoint(line string) (bool, error) {
	for stage := shaderstage.Vertex; stage < shaderstage.NStages; stage++ {
		tail, ok := stripWordPrefix(line, stageNames[stage])
		if !ok {
			continue
		}
		tail, ok = stripWordPrefix(tail, "entrypoint")
		if !ok {
			continue
		}
		name := strings.TrimSpace(tail)
		if name == "" {
			return false, l.errf("missing entrypoint name")
		}
		l.currentKey.SetEntrypoint(stage, name)
		return true, nil
	}
	return false, nil
}

func (l *loader) matchPatchParameterVertices(line string) (bool, error) {
	rest, ok := stripWordsPrefix(line, "patch parameter vertices")
	if !ok {
		return false, nil
	}
	pcp, tail, err := l.parseUint(rest)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(tail) != "" {
		return false, l.errf("invalid patch parameter vertices command")
	}
	l.currentKey.PatchControlPoints = pcp
	return true, nil
}

func (l *loader) processSetBufferSubdata(descSet, binding uint32, bufType BufferType, line string) error {
	typ, rest, err := l.parseGLSLType(line)
	if err != nil {
		return err
	}
	offset, rest, err := l.parseUint(rest)
	if err != nil {
		return err
	}
	layout := l.layoutForBufferType(bufType)
	data, err := l.parseBufferSubdata(rest, typ, layout)
	if err != nil {
		return err
	}

	buf := l.getBuffer(descSet, binding, bufType)
	minSize := int(offset) + len(data)
	if buf.Size < minSize {
		buf.Size = minSize
	}

	l.pushCommand(Operation{Kind: OpSetBufferData, DescSet: descSet, Binding: binding, Offset: int(offset), Data: data})
	return nil
}

func (l *loader) processSetBufferSize(descSet, binding uint32, bufType BufferType, size int) error {
	buf := l.getBuffer(descSet, binding, bufType)
	if buf.Size < size {
		buf.Size = size
	}
	return nil
}

func (l *loader) layoutForBufferType(bufType BufferType) slot.Layout {
	if bufType == Ubo {
		return l.uboLayout
	}
	return l.ssboLayout
}

// getBuffer returns a pointer to the Buffer entry for (descSet,
// binding), creating one of the given type if it doesn't exist yet.
func (l *loader) getBuffer(descSet, binding uint32, bufType BufferType) *Buffer {
	for i := range l.buffers {
		b := &l.buffers[i]
		if b.DescSet == descSet && b.Binding == binding {
			return b
		}
	}
	l.buffers = append(l.buffers, Buffer{DescSet: descSet, Binding: binding, Type: bufType})
	return &l.buffers[len(l.buffers)-1]
}

// stripWordsPrefix strips a multi-word literal prefix such as "draw
// rect", requiring each internal space in prefix to match one or more
// whitespace characters in s, and the whole prefix to end at a word
// boundary.
func stripWordsPrefix(s, prefix string) (string, bool) {
	rest := s
	for _, word := range strings.Fields(prefix) {
		var ok bool
		rest, ok = stripWordPrefix(rest, word)
		if !ok {
			return "", false
		}
	}
	return rest, true
}
