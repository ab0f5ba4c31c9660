package vkgpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/spaghettifunk/vkrunner-go/internal/slot"
)

func TestComponentOffsetsVector(t *testing.T) {
	layout := slot.Layout{Std: slot.Std140, Major: slot.Column}
	offsets := componentOffsets(slot.TVec3, layout)
	want := []int{0, 4, 8}
	if len(offsets) != len(want) {
		t.Fatalf("componentOffsets(TVec3) = %v, want %v", offsets, want)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("componentOffsets(TVec3)[%d] = %d, want %d", i, offsets[i], want[i])
		}
	}
}

func TestComponentOffsetsMatrix(t *testing.T) {
	layout := slot.Layout{Std: slot.Std140, Major: slot.Column}
	offsets := componentOffsets(slot.TMat2, layout)
	if len(offsets) != 4 {
		t.Fatalf("componentOffsets(TMat2) returned %d offsets, want 4", len(offsets))
	}
	// std140 aligns each column of a 2-row matrix to 16 bytes.
	want := []int{0, 4, 16, 20}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("componentOffsets(TMat2)[%d] = %d, want %d", i, offsets[i], want[i])
		}
	}
}

func TestDecodeComponentFloat(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(1.5))
	if got := decodeComponent(slot.BaseFloat, buf); got != 1.5 {
		t.Errorf("decodeComponent(BaseFloat) = %v, want 1.5", got)
	}
}

func TestDecodeComponentInt(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(int32(-7)))
	if got := decodeComponent(slot.BaseInt, buf); got != -7 {
		t.Errorf("decodeComponent(BaseInt) = %v, want -7", got)
	}
}

func TestDecodeComponentDouble(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(3.25))
	if got := decodeComponent(slot.BaseDouble, buf); got != 3.25 {
		t.Errorf("decodeComponent(BaseDouble) = %v, want 3.25", got)
	}
}

func TestCompareSlotValuesEqual(t *testing.T) {
	layout := slot.Layout{Std: slot.Std140, Major: slot.Column}
	a := make([]byte, 16)
	b := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(a[i*4:], math.Float32bits(float32(i)))
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(float32(i)))
	}
	tolerance := slot.DefaultTolerance()
	if !compareSlotValues(slot.CmpEqual, tolerance, slot.TVec4, layout, a, b) {
		t.Errorf("compareSlotValues: identical vec4s compared unequal")
	}
}

func TestCompareSlotValuesMismatch(t *testing.T) {
	layout := slot.Layout{Std: slot.Std140, Major: slot.Column}
	a := make([]byte, 4)
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(a, math.Float32bits(1.0))
	binary.LittleEndian.PutUint32(b, math.Float32bits(2.0))
	tolerance := slot.DefaultTolerance()
	if compareSlotValues(slot.CmpEqual, tolerance, slot.TFloat, layout, a, b) {
		t.Errorf("compareSlotValues: distinct floats compared equal")
	}
}

func TestComparePixel(t *testing.T) {
	tolerance := slot.DefaultTolerance()
	observed := [4]float64{1, 0, 0, 1}
	expected := [4]float64{1, 0, 0, 1}
	if !comparePixel(observed, expected, 4, tolerance) {
		t.Errorf("comparePixel: identical pixels compared unequal")
	}
	expected[1] = 1
	if comparePixel(observed, expected, 4, tolerance) {
		t.Errorf("comparePixel: distinct pixels compared equal")
	}
}

func TestCommandErrorsError(t *testing.T) {
	errs := CommandErrors{
		{LineNum: 3, Err: ErrInvalidBufferOffset},
		{LineNum: 7, Err: ErrQueueSubmitFailed},
	}
	got := errs.Error()
	want := "line 3: invalid buffer offset\nline 7: vkQueueSubmit failed"
	if got != want {
		t.Errorf("CommandErrors.Error() = %q, want %q", got, want)
	}
}

func TestInvalidBufferBindingErrorMessage(t *testing.T) {
	err := &InvalidBufferBindingError{DescSet: 2, Binding: 5}
	want := "invalid buffer binding: 2:5"
	if err.Error() != want {
		t.Errorf("InvalidBufferBindingError.Error() = %q, want %q", err.Error(), want)
	}
}
