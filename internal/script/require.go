package script

import (
	"strconv"
	"strings"

	"github.com/spaghettifunk/vkrunner-go/internal/format"
)

func (l *loader) processRequireLine(line string) error {
	trimmed := strings.TrimSpace(stripComment(line))
	if trimmed == "" {
		return nil
	}

	if tail, ok := stripWordPrefix(trimmed, "framebuffer"); ok {
		f, err := l.parseFormat(tail)
		if err != nil {
			return err
		}
		l.window.ColorFormat = f
		return nil
	}

	if tail, ok := stripWordPrefix(trimmed, "depthstencil"); ok {
		f, err := l.parseFormat(tail)
		if err != nil {
			return err
		}
		l.window.DepthStencilFormat = f
		return nil
	}

	if tail, ok := stripWordPrefix(trimmed, "fbsize"); ok {
		w, h, err := l.parseFbsize(tail)
		if err != nil {
			return err
		}
		l.window.Width = w
		l.window.Height = h
		return nil
	}

	if tail, ok := stripWordPrefix(trimmed, "vulkan"); ok {
		major, minor, patch, err := l.parseVersion(tail)
		if err != nil {
			return err
		}
		l.req.AddVersion(major, minor, patch)
		return nil
	}

	if isValidExtensionOrFeatureName(trimmed) {
		l.req.Add(trimmed)
		return nil
	}

	return l.errf("invalid require line")
}

func (l *loader) parseFormat(line string) (*format.Format, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, l.errf("missing format name")
	}
	f, ok := format.LookupByName("VK_FORMAT_" + line)
	if !ok {
		return nil, l.errf("unknown format: %s", line)
	}
	return f, nil
}

func (l *loader) parseFbsize(line string) (int, int, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, l.errf("invalid fbsize")
	}
	w, err1 := strconv.Atoi(fields[0])
	h, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, l.errf("invalid fbsize")
	}
	return w, h, nil
}

func (l *loader) parseVersion(line string) (uint32, uint32, uint32, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, 0, 0, l.errf("invalid vulkan version")
	}
	parts := strings.SplitN(line, ".", 3)
	values := [3]uint64{0, 0, 0}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return 0, 0, 0, l.errf("invalid vulkan version")
		}
		values[i] = v
	}
	return uint32(values[0]), uint32(values[1]), uint32(values[2]), nil
}

func isValidExtensionOrFeatureName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}
