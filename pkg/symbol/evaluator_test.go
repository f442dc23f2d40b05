package symbol

import (
	"debug/dwarf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intType() *typeInfo {
	return &typeInfo{tag: dwarf.TagBaseType, name: "int", byteSize: 4, encoding: encSigned}
}

func TestEvaluationRegisterScalar(t *testing.T) {
	snap := &ValueSnapshot{Locals: []Value{ValueI32(0), ValueI32(42)}}
	ev := &Evaluation{
		snap: snap,
		typ:  intType(),
		ops:  []varOp{{kind: opExprLoc, expr: []byte{0xed, 0x00, 0x01}}},
		c:    &DwarfContainer{mod: &WasmModule{}},
	}

	out, err := ev.Resume(nil)
	require.NoError(t, err)
	require.Nil(t, out.Need)
	assert.Equal(t, "(int)42", out.Value)
}

func TestEvaluationMemoryRead(t *testing.T) {
	// variable at fbreg+8, frame base in local 0
	sub := &Subroutine{FrameBase: &WasmLoc{Kind: WasmLocLocal, Index: 0}}
	snap := &ValueSnapshot{Locals: []Value{ValueI32(0x1000)}}
	ev := &Evaluation{
		c:    &DwarfContainer{mod: &WasmModule{}},
		sub:  sub,
		snap: snap,
		typ:  intType(),
		ops:  []varOp{{kind: opExprLoc, expr: []byte{0x91, 0x08}}},
	}

	out, err := ev.Resume(nil)
	require.NoError(t, err)
	require.NotNil(t, out.Need)
	assert.Equal(t, uint64(0x1008), out.Need.Address)
	assert.Equal(t, 4, out.Need.ByteSize)

	out, err = ev.Resume([]byte{0x2c, 0x01, 0x00, 0x00})
	require.NoError(t, err)
	require.Nil(t, out.Need)
	assert.Equal(t, "(int)300", out.Value)
}

func TestEvaluationPointerChase(t *testing.T) {
	// pointer value in a register, then one deref to the pointee
	snap := &ValueSnapshot{Locals: []Value{ValueI32(0x2000)}}
	ev := &Evaluation{
		c:    &DwarfContainer{mod: &WasmModule{}},
		snap: snap,
		typ:  intType(),
		ops: []varOp{
			{kind: opExprLoc, expr: []byte{0xed, 0x00, 0x00}},
			{kind: opPointer},
		},
	}

	out, err := ev.Resume(nil)
	require.NoError(t, err)
	require.NotNil(t, out.Need)
	assert.Equal(t, uint64(0x2000), out.Need.Address)

	// each fulfilled slice makes strictly more progress
	out, err = ev.Resume([]byte{0x07, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	require.Nil(t, out.Need)
	assert.Equal(t, "(int)7", out.Value)
}

func TestEvaluationPointerInMemory(t *testing.T) {
	// p lives at fbreg+0; *p requires two reads: the pointer, then the int
	sub := &Subroutine{FrameBase: &WasmLoc{Kind: WasmLocLocal, Index: 0}}
	snap := &ValueSnapshot{Locals: []Value{ValueI32(0x100)}}
	ev := &Evaluation{
		c:    &DwarfContainer{mod: &WasmModule{}},
		sub:  sub,
		snap: snap,
		typ:  intType(),
		ops: []varOp{
			{kind: opExprLoc, expr: []byte{0x91, 0x00}},
			{kind: opPointer},
		},
	}

	out, err := ev.Resume(nil)
	require.NoError(t, err)
	require.NotNil(t, out.Need)
	assert.Equal(t, uint64(0x100), out.Need.Address)

	out, err = ev.Resume([]byte{0x00, 0x10, 0x00, 0x00})
	require.NoError(t, err)
	require.NotNil(t, out.Need)
	assert.Equal(t, uint64(0x1000), out.Need.Address)

	out, err = ev.Resume([]byte{0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	require.Nil(t, out.Need)
	assert.Equal(t, "(int)-1", out.Value)
}

func TestEvaluationConstValue(t *testing.T) {
	ev := &Evaluation{
		c:   &DwarfContainer{mod: &WasmModule{}},
		typ: intType(),
		ops: []varOp{{kind: opConstValue, constVal: []byte{0x09, 0x00, 0x00, 0x00}}},
	}
	out, err := ev.Resume(nil)
	require.NoError(t, err)
	require.Nil(t, out.Need)
	assert.Equal(t, "(int)9", out.Value)
}

func TestEvaluationMemberOffset(t *testing.T) {
	sub := &Subroutine{FrameBase: &WasmLoc{Kind: WasmLocLocal, Index: 0}}
	snap := &ValueSnapshot{Locals: []Value{ValueI32(0x500)}}
	ev := &Evaluation{
		c:    &DwarfContainer{mod: &WasmModule{}},
		sub:  sub,
		snap: snap,
		typ:  intType(),
		ops: []varOp{
			{kind: opExprLoc, expr: []byte{0x91, 0x00}},
			{kind: opOffset, offset: 12},
		},
	}
	out, err := ev.Resume(nil)
	require.NoError(t, err)
	require.NotNil(t, out.Need)
	assert.Equal(t, uint64(0x50c), out.Need.Address)
}

func TestEvalExprlocDataAddr(t *testing.T) {
	c := &DwarfContainer{mod: &WasmModule{DataBase: 0x400}}
	res, err := c.evalExprloc([]byte{0x03, 0x10, 0x00, 0x00, 0x00}, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.isAddr)
	assert.Equal(t, uint64(0x410), res.addr)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "(int)-2",
		formatValue(intType(), []byte{0xfe, 0xff, 0xff, 0xff}))

	u := &typeInfo{tag: dwarf.TagBaseType, name: "unsigned int", byteSize: 4, encoding: encUnsigned}
	assert.Equal(t, "(unsigned int)4294967294",
		formatValue(u, []byte{0xfe, 0xff, 0xff, 0xff}))

	b := &typeInfo{tag: dwarf.TagBaseType, name: "bool", byteSize: 1, encoding: encBoolean}
	assert.Equal(t, "(bool)true", formatValue(b, []byte{1}))

	f := &typeInfo{tag: dwarf.TagBaseType, name: "float", byteSize: 4, encoding: encFloat}
	assert.Equal(t, "(float)1.5", formatValue(f, []byte{0x00, 0x00, 0xc0, 0x3f}))

	s := &typeInfo{tag: dwarf.TagStructType, name: "Point", members: []string{"x", "y"}}
	assert.Equal(t, "Point { x, y }", formatValue(s, nil))
}

func TestValueSnapshotResolve(t *testing.T) {
	snap := &ValueSnapshot{
		Locals:  []Value{ValueI32(1)},
		Globals: []Value{ValueI64(2)},
		Stacks:  []Value{ValueF64(3)},
	}

	v, err := snap.Resolve(WasmLoc{Kind: WasmLocGlobal, Index: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.I64)

	_, err = snap.Resolve(WasmLoc{Kind: WasmLocLocal, Index: 9})
	assert.Error(t, err)
}
