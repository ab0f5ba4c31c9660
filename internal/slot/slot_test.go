package slot

import "testing"

func TestFromGLSLType(t *testing.T) {
	cases := map[string]Type{
		"vec3":      TVec3,
		"mat4":      TMat4,
		"dmat3x4":   TDMat3x4,
		"uint16_t":  TUInt16,
		"float16_t": TFloat16,
	}
	for name, want := range cases {
		got, ok := FromGLSLType(name)
		if !ok {
			t.Fatalf("FromGLSLType(%q): not found", name)
		}
		if got != want {
			t.Errorf("FromGLSLType(%q) = %v, want %v", name, got, want)
		}
	}

	if _, ok := FromGLSLType("not_a_type"); ok {
		t.Error("FromGLSLType(\"not_a_type\") unexpectedly succeeded")
	}
}

func TestScalarSize(t *testing.T) {
	layout := Layout{Std: Std140, Major: Column}
	if got := TFloat.Size(layout); got != 4 {
		t.Errorf("float size = %d, want 4", got)
	}
	if got := TVec3.Size(layout); got != 12 {
		t.Errorf("vec3 size = %d, want 12", got)
	}
	if got := TDouble.Size(layout); got != 8 {
		t.Errorf("double size = %d, want 8", got)
	}
}

func TestMat4Std140(t *testing.T) {
	layout := Layout{Std: Std140, Major: Column}
	if got := TMat4.MatrixStride(layout); got != 16 {
		t.Errorf("mat4 std140 stride = %d, want 16", got)
	}
	if got := TMat4.Size(layout); got != 64 {
		t.Errorf("mat4 std140 size = %d, want 64", got)
	}
}

func TestMat4x3SizeStd430ColumnMajor(t *testing.T) {
	// 3-row (minor) matrices have no padding on the last column: size is
	// (columns-1)*stride + base_size*rows, strictly less than
	// array_stride since the minor axis isn't vec4-aligned.
	layout := Layout{Std: Std430, Major: Column}
	if got := TMat4x3.Size(layout); got != 60 {
		t.Errorf("mat4x3 std430 column-major size = %d, want 60", got)
	}
}

func TestMat3SizeColumnMajor(t *testing.T) {
	if got := (TMat3.Size(Layout{Std: Std430, Major: Column})); got != 44 {
		t.Errorf("mat3 std430 column-major size = %d, want 44", got)
	}
	if got := (TMat3.Size(Layout{Std: Std140, Major: Column})); got != 44 {
		t.Errorf("mat3 std140 column-major size = %d, want 44", got)
	}
}

func TestMat3x4SizeStd430RowMajor(t *testing.T) {
	// minor axis is Columns() == 3 here, exercising the row-major branch.
	layout := Layout{Std: Std430, Major: Row}
	if got := TMat3x4.Size(layout); got != 60 {
		t.Errorf("mat3x4 std430 row-major size = %d, want 60", got)
	}
}

func TestMat3x4Std430RowMajor(t *testing.T) {
	layout := Layout{Std: Std430, Major: Row}
	// mat3x4 laid out row-major: each row has 3 columns of float (12
	// bytes), rounded up to vec3 alignment (16 bytes).
	if got := TMat3x4.MatrixStride(layout); got != 16 {
		t.Errorf("mat3x4 std430 row-major stride = %d, want 16", got)
	}
}

func TestArrayStrideStd140(t *testing.T) {
	layout := Layout{Std: Std140, Major: Column}
	if got := TFloat.ArrayStride(layout); got != 16 {
		t.Errorf("float[] std140 stride = %d, want 16", got)
	}
	if got := TVec4.ArrayStride(layout); got != 16 {
		t.Errorf("vec4[] std140 stride = %d, want 16", got)
	}
}

func TestOffsetsMat2ColumnMajor(t *testing.T) {
	layout := Layout{Std: Std430, Major: Column}
	offsets := TMat2.Offsets(layout)
	if len(offsets) != 4 {
		t.Fatalf("len(offsets) = %d, want 4", len(offsets))
	}
	stride := TMat2.MatrixStride(layout)
	for _, o := range offsets {
		want := o.Column*stride + o.Row*4
		if o.Offset != want {
			t.Errorf("offset(col=%d,row=%d) = %d, want %d", o.Column, o.Row, o.Offset, want)
		}
	}
}

func TestToleranceAbsolute(t *testing.T) {
	tol := DefaultTolerance()
	if !tol.Equal(0, 1.0, 1.005) {
		t.Error("expected 1.0 ~= 1.005 within default tolerance")
	}
	if tol.Equal(0, 1.0, 1.5) {
		t.Error("expected 1.0 != 1.5 outside default tolerance")
	}
}

func TestTolerancePercent(t *testing.T) {
	tol := NewTolerance([4]float64{10, 10, 10, 10}, true)
	if !tol.Equal(0, 100.0, 105.0) {
		t.Error("expected 100 ~= 105 within 10% of 105")
	}
	if tol.Equal(0, 100.0, 200.0) {
		t.Error("expected 100 != 200 outside 10% tolerance")
	}
}

func TestCompareRelational(t *testing.T) {
	tol := DefaultTolerance()
	if !tol.Compare(CmpLess, 0, 1.0, 2.0) {
		t.Error("expected 1.0 < 2.0")
	}
	if !tol.Compare(CmpGreaterEqual, 0, 2.0, 2.0) {
		t.Error("expected 2.0 >= 2.0")
	}
	if !tol.Compare(CmpNotEqual, 0, 1.0, 5.0) {
		t.Error("expected 1.0 != 5.0 under default tolerance")
	}
}
