package symbol

import (
	"fmt"
	"math"
)

// ValueKind wasm value type tag.
type ValueKind int

const (
	I32 ValueKind = iota
	I64
	F32
	F64
)

func (k ValueKind) String() string {
	switch k {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return "unknown"
}

// Value one wasm local, global, or operand stack slot.
type Value struct {
	Kind ValueKind
	I32  int32
	I64  int64
	F32  float32
	F64  float64
}

func ValueI32(v int32) Value { return Value{Kind: I32, I32: v} }
func ValueI64(v int64) Value { return Value{Kind: I64, I64: v} }
func ValueF32(v float32) Value {
	return Value{Kind: F32, F32: v}
}
func ValueF64(v float64) Value {
	return Value{Kind: F64, F64: v}
}

// Uint64 reinterprets the value as an address or raw register content.
func (v Value) Uint64() uint64 {
	switch v.Kind {
	case I32:
		return uint64(uint32(v.I32))
	case I64:
		return uint64(v.I64)
	case F32:
		return uint64(math.Float32bits(v.F32))
	case F64:
		return math.Float64bits(v.F64)
	}
	return 0
}

func (v Value) String() string {
	switch v.Kind {
	case I32:
		return fmt.Sprintf("%d", v.I32)
	case I64:
		return fmt.Sprintf("%d", v.I64)
	case F32:
		return fmt.Sprintf("%g", v.F32)
	case F64:
		return fmt.Sprintf("%g", v.F64)
	}
	return "?"
}

// ValueSnapshot the paused frame's register files.
type ValueSnapshot struct {
	Locals  []Value
	Globals []Value
	Stacks  []Value
}

// Resolve reads the register a wasm location expression names.
func (s *ValueSnapshot) Resolve(loc WasmLoc) (Value, error) {
	var file []Value
	switch loc.Kind {
	case WasmLocLocal:
		file = s.Locals
	case WasmLocGlobal:
		file = s.Globals
	case WasmLocStack:
		file = s.Stacks
	}
	if loc.Index >= uint64(len(file)) {
		return Value{}, fmt.Errorf("symbol: %s %d out of range (%d)", loc.Kind, loc.Index, len(file))
	}
	return file[loc.Index], nil
}
