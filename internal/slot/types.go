// Package slot implements the GLSL-type-aware data-layout engine:
// sizing, strides and offsets under std140/std430 and row/column
// major layouts, plus typed, tolerance-aware comparison. Used both to
// pack values into UBO/SSBO/push-constant buffers and to compare
// observed vs expected values when probing an SSBO (§4.2).
//
// Grounded on vkrunner's slot.rs.
package slot

import "sort"

// LayoutStd is the GLSL layout standard in effect.
type LayoutStd int

const (
	Std140 LayoutStd = iota
	Std430
)

// MajorAxis selects which axis of a matrix is stored contiguously.
type MajorAxis int

const (
	Column MajorAxis = iota
	Row
)

// Layout combines a LayoutStd and MajorAxis; non-matrix types ignore
// Major entirely (§4.2).
type Layout struct {
	Std   LayoutStd
	Major MajorAxis
}

// BaseType is the scalar component type underlying a Type.
type BaseType int

const (
	BaseInt BaseType = iota
	BaseUInt
	BaseInt8
	BaseUInt8
	BaseInt16
	BaseUInt16
	BaseInt64
	BaseUInt64
	BaseFloat16
	BaseFloat
	BaseDouble
)

// Size returns the size in bytes of one component of this base type.
func (b BaseType) Size() int {
	switch b {
	case BaseInt, BaseUInt, BaseFloat:
		return 4
	case BaseInt8, BaseUInt8:
		return 1
	case BaseInt16, BaseUInt16, BaseFloat16:
		return 2
	case BaseInt64, BaseUInt64, BaseDouble:
		return 8
	default:
		return 0
	}
}

// Type enumerates every GLSL scalar/vector/matrix type this engine
// understands, mirroring vkrunner's slot::Type.
type Type int

const (
	TInt Type = iota
	TUInt
	TInt8
	TUInt8
	TInt16
	TUInt16
	TInt64
	TUInt64
	TFloat16
	TFloat
	TDouble
	TF16Vec2
	TF16Vec3
	TF16Vec4
	TVec2
	TVec3
	TVec4
	TDVec2
	TDVec3
	TDVec4
	TIVec2
	TIVec3
	TIVec4
	TUVec2
	TUVec3
	TUVec4
	TI8Vec2
	TI8Vec3
	TI8Vec4
	TU8Vec2
	TU8Vec3
	TU8Vec4
	TI16Vec2
	TI16Vec3
	TI16Vec4
	TU16Vec2
	TU16Vec3
	TU16Vec4
	TI64Vec2
	TI64Vec3
	TI64Vec4
	TU64Vec2
	TU64Vec3
	TU64Vec4
	TMat2
	TMat2x3
	TMat2x4
	TMat3x2
	TMat3
	TMat3x4
	TMat4x2
	TMat4x3
	TMat4
	TDMat2
	TDMat2x3
	TDMat2x4
	TDMat3x2
	TDMat3
	TDMat3x4
	TDMat4x2
	TDMat4x3
	TDMat4
)

type typeInfo struct {
	base    BaseType
	columns int
	rows    int
}

var typeInfos = [...]typeInfo{
	TInt:     {BaseInt, 1, 1},
	TUInt:    {BaseUInt, 1, 1},
	TInt8:    {BaseInt8, 1, 1},
	TUInt8:   {BaseUInt8, 1, 1},
	TInt16:   {BaseInt16, 1, 1},
	TUInt16:  {BaseUInt16, 1, 1},
	TInt64:   {BaseInt64, 1, 1},
	TUInt64:  {BaseUInt64, 1, 1},
	TFloat16: {BaseFloat16, 1, 1},
	TFloat:   {BaseFloat, 1, 1},
	TDouble:  {BaseDouble, 1, 1},
	TF16Vec2: {BaseFloat16, 1, 2},
	TF16Vec3: {BaseFloat16, 1, 3},
	TF16Vec4: {BaseFloat16, 1, 4},
	TVec2:    {BaseFloat, 1, 2},
	TVec3:    {BaseFloat, 1, 3},
	TVec4:    {BaseFloat, 1, 4},
	TDVec2:   {BaseDouble, 1, 2},
	TDVec3:   {BaseDouble, 1, 3},
	TDVec4:   {BaseDouble, 1, 4},
	TIVec2:   {BaseInt, 1, 2},
	TIVec3:   {BaseInt, 1, 3},
	TIVec4:   {BaseInt, 1, 4},
	TUVec2:   {BaseUInt, 1, 2},
	TUVec3:   {BaseUInt, 1, 3},
	TUVec4:   {BaseUInt, 1, 4},
	TI8Vec2:  {BaseInt8, 1, 2},
	TI8Vec3:  {BaseInt8, 1, 3},
	TI8Vec4:  {BaseInt8, 1, 4},
	TU8Vec2:  {BaseUInt8, 1, 2},
	TU8Vec3:  {BaseUInt8, 1, 3},
	TU8Vec4:  {BaseUInt8, 1, 4},
	TI16Vec2: {BaseInt16, 1, 2},
	TI16Vec3: {BaseInt16, 1, 3},
	TI16Vec4: {BaseInt16, 1, 4},
	TU16Vec2: {BaseUInt16, 1, 2},
	TU16Vec3: {BaseUInt16, 1, 3},
	TU16Vec4: {BaseUInt16, 1, 4},
	TI64Vec2: {BaseInt64, 1, 2},
	TI64Vec3: {BaseInt64, 1, 3},
	TI64Vec4: {BaseInt64, 1, 4},
	TU64Vec2: {BaseUInt64, 1, 2},
	TU64Vec3: {BaseUInt64, 1, 3},
	TU64Vec4: {BaseUInt64, 1, 4},
	TMat2:    {BaseFloat, 2, 2},
	TMat2x3:  {BaseFloat, 2, 3},
	TMat2x4:  {BaseFloat, 2, 4},
	TMat3x2:  {BaseFloat, 3, 2},
	TMat3:    {BaseFloat, 3, 3},
	TMat3x4:  {BaseFloat, 3, 4},
	TMat4x2:  {BaseFloat, 4, 2},
	TMat4x3:  {BaseFloat, 4, 3},
	TMat4:    {BaseFloat, 4, 4},
	TDMat2:   {BaseDouble, 2, 2},
	TDMat2x3: {BaseDouble, 2, 3},
	TDMat2x4: {BaseDouble, 2, 4},
	TDMat3x2: {BaseDouble, 3, 2},
	TDMat3:   {BaseDouble, 3, 3},
	TDMat3x4: {BaseDouble, 3, 4},
	TDMat4x2: {BaseDouble, 4, 2},
	TDMat4x3: {BaseDouble, 4, 3},
	TDMat4:   {BaseDouble, 4, 4},
}

func (t Type) info() typeInfo { return typeInfos[t] }

// BaseType returns the scalar component type of t.
func (t Type) BaseType() BaseType { return t.info().base }

// Rows returns the row count (vector length / matrix row count).
func (t Type) Rows() int { return t.info().rows }

// Columns returns the column count (1 for non-matrix types).
func (t Type) Columns() int { return t.info().columns }

// IsMatrix reports whether t has more than one column.
func (t Type) IsMatrix() bool { return t.Columns() > 1 }

type glslName struct {
	name string
	typ  Type
}

var glslTypeNames = []glslName{
	{"dmat2", TDMat2}, {"dmat2x2", TDMat2}, {"dmat2x3", TDMat2x3}, {"dmat2x4", TDMat2x4},
	{"dmat3", TDMat3}, {"dmat3x2", TDMat3x2}, {"dmat3x3", TDMat3}, {"dmat3x4", TDMat3x4},
	{"dmat4", TDMat4}, {"dmat4x2", TDMat4x2}, {"dmat4x3", TDMat4x3}, {"dmat4x4", TDMat4},
	{"double", TDouble}, {"dvec2", TDVec2}, {"dvec3", TDVec3}, {"dvec4", TDVec4},
	{"f16vec2", TF16Vec2}, {"f16vec3", TF16Vec3}, {"f16vec4", TF16Vec4},
	{"float", TFloat}, {"float16_t", TFloat16},
	{"i16vec2", TI16Vec2}, {"i16vec3", TI16Vec3}, {"i16vec4", TI16Vec4},
	{"i64vec2", TI64Vec2}, {"i64vec3", TI64Vec3}, {"i64vec4", TI64Vec4},
	{"i8vec2", TI8Vec2}, {"i8vec3", TI8Vec3}, {"i8vec4", TI8Vec4},
	{"int", TInt}, {"int16_t", TInt16}, {"int64_t", TInt64}, {"int8_t", TInt8},
	{"ivec2", TIVec2}, {"ivec3", TIVec3}, {"ivec4", TIVec4},
	{"mat2", TMat2}, {"mat2x2", TMat2}, {"mat2x3", TMat2x3}, {"mat2x4", TMat2x4},
	{"mat3", TMat3}, {"mat3x2", TMat3x2}, {"mat3x3", TMat3}, {"mat3x4", TMat3x4},
	{"mat4", TMat4}, {"mat4x2", TMat4x2}, {"mat4x3", TMat4x3}, {"mat4x4", TMat4},
	{"u16vec2", TU16Vec2}, {"u16vec3", TU16Vec3}, {"u16vec4", TU16Vec4},
	{"u64vec2", TU64Vec2}, {"u64vec3", TU64Vec3}, {"u64vec4", TU64Vec4},
	{"u8vec2", TU8Vec2}, {"u8vec3", TU8Vec3}, {"u8vec4", TU8Vec4},
	{"uint", TUInt}, {"uint16_t", TUInt16}, {"uint64_t", TUInt64}, {"uint8_t", TUInt8},
	{"uvec2", TUVec2}, {"uvec3", TUVec3}, {"uvec4", TUVec4},
	{"vec2", TVec2}, {"vec3", TVec3}, {"vec4", TVec4},
}

func init() {
	sort.Slice(glslTypeNames, func(i, j int) bool { return glslTypeNames[i].name < glslTypeNames[j].name })
}

// FromGLSLType resolves a GLSL type spelling ("vec3", "dmat2x4",
// "uint16_t", ...) to a Type via binary search over the alias table.
func FromGLSLType(name string) (Type, bool) {
	i := sort.Search(len(glslTypeNames), func(i int) bool { return glslTypeNames[i].name >= name })
	if i < len(glslTypeNames) && glslTypeNames[i].name == name {
		return glslTypeNames[i].typ, true
	}
	return 0, false
}
