// Package ppm writes the window's color attachment out as a PPM
// (P6) image, the debugging dump the -i/--image CLI flag asks for.
// It is a collaborator the core test-running path never calls.
package ppm

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"

	"golang.org/x/image/draw"

	"github.com/spaghettifunk/vkrunner-go/internal/format"
)

// rawImage adapts a raw, possibly non-RGBA window buffer (any format
// catalogued in internal/format) to image.Image so it can be fed
// through golang.org/x/image/draw like any other source image.
type rawImage struct {
	f      *format.Format
	pixels []byte
	stride int
	width  int
	height int
}

func (r *rawImage) ColorModel() color.Model { return color.NRGBAModel }

func (r *rawImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.width, r.height)
}

func (r *rawImage) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return color.NRGBA{}
	}
	offset := y*r.stride + x*r.f.Size()
	c := r.f.LoadPixel(r.pixels[offset:])
	return color.NRGBA{
		R: clampToByte(c[0]),
		G: clampToByte(c[1]),
		B: clampToByte(c[2]),
		A: clampToByte(c[3]),
	}
}

func clampToByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255.0 + 0.5)
}

// Write reads width*height pixels of f out of pixels (row stride
// bytes apart, as a mapped vk.Buffer would lay them out) and writes
// them to w as a binary PPM: header "P6\n<w> <h>\n255\n" followed by
// raw RGB triples, alpha dropped.
func Write(w io.Writer, f *format.Format, pixels []byte, stride, width, height int) error {
	src := &rawImage{f: f, pixels: pixels, stride: stride, width: width, height: height}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P6\n%d %d\n255\n", width, height); err != nil {
		return err
	}

	row := make([]byte, width*3)
	for y := 0; y < height; y++ {
		base := y * dst.Stride
		for x := 0; x < width; x++ {
			p := base + x*4
			row[x*3+0] = dst.Pix[p+0]
			row[x*3+1] = dst.Pix[p+1]
			row[x*3+2] = dst.Pix[p+2]
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}

	return bw.Flush()
}
