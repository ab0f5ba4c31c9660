package ppm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vkrunner-go/internal/format"
)

func TestWriteHeaderAndDimensions(t *testing.T) {
	f, ok := format.LookupByName("VK_FORMAT_R8G8B8A8_UNORM")
	require.True(t, ok, "VK_FORMAT_R8G8B8A8_UNORM not registered")

	const w, h = 2, 1
	stride := w * f.Size()
	pixels := []byte{
		255, 0, 0, 255, // red
		0, 255, 0, 255, // green
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f, pixels, stride, w, h))

	want := "P6\n2 1\n255\n" +
		string([]byte{255, 0, 0}) +
		string([]byte{0, 255, 0})
	require.Equal(t, want, buf.String())
}

func TestWriteRowStrideSkipsPadding(t *testing.T) {
	f, ok := format.LookupByName("VK_FORMAT_R8G8B8A8_UNORM")
	require.True(t, ok, "VK_FORMAT_R8G8B8A8_UNORM not registered")

	const w, h = 1, 2
	stride := 16 // wider than one pixel, as a device-aligned linear buffer would be
	pixels := make([]byte, stride*h)
	copy(pixels[0:4], []byte{10, 20, 30, 255})
	copy(pixels[stride:stride+4], []byte{40, 50, 60, 255})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f, pixels, stride, w, h))

	want := "P6\n1 2\n255\n" +
		string([]byte{10, 20, 30}) +
		string([]byte{40, 50, 60})
	require.Equal(t, want, buf.String())
}
