package vbo

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestGeneral(t *testing.T) {
	source := "# position      color \n" +
		"0/R32G32_SFLOAT 1/A8B8G8R8_UNORM_PACK32 \n" +
		"\n" +
		"# Top-left red \n" +
		"-1 -1           0xff0000ff \n" +
		"0  -1           0xff1200ff"

	v, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(v.Attribs) != 2 {
		t.Fatalf("len(Attribs) = %d, want 2", len(v.Attribs))
	}
	if v.Stride != 12 {
		t.Errorf("Stride = %d, want 12", v.Stride)
	}
	if v.NumRows != 2 {
		t.Errorf("NumRows = %d, want 2", v.NumRows)
	}
	if v.Attribs[0].Format.VkFormat != vk.FormatR32g32Sfloat {
		t.Errorf("attrib 0 format mismatch")
	}
	if v.Attribs[0].Offset != 0 {
		t.Errorf("attrib 0 offset = %d, want 0", v.Attribs[0].Offset)
	}
	if v.Attribs[1].Offset != 8 {
		t.Errorf("attrib 1 offset = %d, want 8", v.Attribs[1].Offset)
	}
	if len(v.RawData) != v.Stride*v.NumRows {
		t.Errorf("len(RawData) = %d, want %d", len(v.RawData), v.Stride*v.NumRows)
	}
}

func TestNoHeader(t *testing.T) {
	_, err := Parse("")
	if err == nil || err.Error() != "Missing header line" {
		t.Fatalf("err = %v, want \"Missing header line\"", err)
	}
}

func TestLineComment(t *testing.T) {
	source := "0/R32_SFLOAT\n42.0 # the next number is ignored 32.0"
	v, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(v.RawData) != 4 {
		t.Fatalf("len(RawData) = %d, want 4", len(v.RawData))
	}
}

func TestAlignment(t *testing.T) {
	source := "1/R8_UNORM 2/R64_SFLOAT 3/R8_UNORM\n1 12.0 24"
	v, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v.Attribs[0].Offset != 0 || v.Attribs[1].Offset != 8 || v.Attribs[2].Offset != 16 {
		t.Errorf("unexpected offsets: %+v", v.Attribs)
	}
	if v.Stride != 24 {
		t.Errorf("Stride = %d, want 24", v.Stride)
	}
}

func TestTrailingData(t *testing.T) {
	source := "1/R8_UNORM\n23 25 "
	_, err := Parse(source)
	if err == nil || err.Error() != "Extra data at end of line" {
		t.Fatalf("err = %v, want \"Extra data at end of line\"", err)
	}
}

func TestBadAttrib(t *testing.T) {
	_, err := Parse("foo/int/int")
	if err == nil {
		t.Fatal("expected error for bad attrib location")
	}

	_, err = Parse("12")
	if err == nil {
		t.Fatal("expected error for missing format")
	}

	_, err = Parse("1/R76_SFLOAT")
	if err == nil || err.Error() != "Unknown format: R76_SFLOAT" {
		t.Fatalf("err = %v, want unknown format error", err)
	}
}

func TestPackedData(t *testing.T) {
	source := "1/B10G11R11_UFLOAT_PACK32\n0xfedcba98"
	v, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(v.RawData) != 4 {
		t.Fatalf("len(RawData) = %d, want 4", len(v.RawData))
	}
}
