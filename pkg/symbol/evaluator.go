package symbol

import (
	"debug/dwarf"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// DWARF expression opcodes the wasm subset uses.
const (
	dwOpAddr       = 0x03
	dwOpConstu     = 0x10
	dwOpConsts     = 0x11
	dwOpPlusUconst = 0x23
	dwOpFbreg      = 0x91
	dwOpStackValue = 0x9f
	dwOpLit0       = 0x30
	dwOpLit31      = 0x4f
)

// wasm32 pointers
const pointerSize = 4

// ErrNotAVariable the expression's base name is not in scope.
var ErrNotAVariable = errors.New("symbol: not a valid variable name")

// MemorySlice a linear-memory range the evaluator needs before it can make
// progress.
type MemorySlice struct {
	Address  uint64
	ByteSize int
}

// EvalOutcome either the final formatted value or the next required slice,
// never both.
type EvalOutcome struct {
	Value string
	Need  *MemorySlice
}

// typeInfo a concrete type with typedef/const/volatile peeled off.
type typeInfo struct {
	tag      dwarf.Tag
	name     string
	byteSize int
	encoding int64
	members  []string
	pointee  dwarf.Offset
	hasPtee  bool
}

func (c *DwarfContainer) resolveTypeInfo(off dwarf.Offset) (*typeInfo, error) {
	reader := c.data.Reader()
	for {
		reader.Seek(off)
		entry, err := reader.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, fmt.Errorf("symbol: no type DIE at %#x", off)
		}

		switch entry.Tag {
		case dwarf.TagTypedef, dwarf.TagConstType, dwarf.TagVolatileType:
			inner, ok := entry.Val(dwarf.AttrType).(dwarf.Offset)
			if !ok || inner == off {
				return nil, fmt.Errorf("symbol: dangling type modifier at %#x", off)
			}
			off = inner
			continue

		case dwarf.TagBaseType:
			t := &typeInfo{tag: entry.Tag, name: "<no type name>", byteSize: pointerSize}
			if name, ok := entry.Val(dwarf.AttrName).(string); ok {
				t.name = name
			}
			if size, ok := entry.Val(dwarf.AttrByteSize).(int64); ok {
				t.byteSize = int(size)
			}
			if enc, ok := entry.Val(dwarf.AttrEncoding).(int64); ok {
				t.encoding = enc
			}
			return t, nil

		case dwarf.TagPointerType, dwarf.TagReferenceType:
			t := &typeInfo{tag: entry.Tag, byteSize: pointerSize, encoding: encUnsigned}
			if inner, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok && inner != off {
				t.pointee = inner
				t.hasPtee = true
			}
			if name, err := c.typeName(off); err == nil {
				t.name = name
			} else {
				t.name = "void*"
			}
			return t, nil

		case dwarf.TagStructType, dwarf.TagClassType, dwarf.TagUnionType, dwarf.TagEnumerationType:
			t := &typeInfo{tag: entry.Tag, name: "<no type name>", encoding: encSigned}
			if name, ok := entry.Val(dwarf.AttrName).(string); ok {
				t.name = name
			}
			if size, ok := entry.Val(dwarf.AttrByteSize).(int64); ok {
				t.byteSize = int(size)
			}
			if entry.Children {
				for {
					m, err := reader.Next()
					if err != nil || m == nil || m.Tag == 0 {
						break
					}
					if m.Tag == dwarf.TagMember {
						if name, ok := m.Val(dwarf.AttrName).(string); ok {
							t.members = append(t.members, name)
						}
					}
					if m.Children {
						reader.SkipChildren()
					}
				}
			}
			return t, nil

		default:
			// array and other wrappers: fall through to the underlying type
			if inner, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok && inner != off {
				off = inner
				continue
			}
			return nil, fmt.Errorf("symbol: unsupported type DIE %v", entry.Tag)
		}
	}
}

// exprResult where a location expression left the value: an address in
// linear memory, or directly in a wasm register.
type exprResult struct {
	isAddr bool
	addr   uint64
	reg    *Value
}

// evalExprloc runs the DWARF expression subset emitted for wasm targets.
func (c *DwarfContainer) evalExprloc(expr []byte, sub *Subroutine, snap *ValueSnapshot) (exprResult, error) {
	cur := newByteCursor(expr)
	var stack []uint64
	var reg *Value
	isValue := false

	push := func(v uint64) { stack = append(stack, v) }
	pop := func() (uint64, error) {
		if len(stack) == 0 {
			return 0, errors.New("symbol: expression stack underflow")
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	for !cur.empty() {
		op, err := cur.u8()
		if err != nil {
			return exprResult{}, err
		}
		switch {
		case op == opWasmLocation:
			kind, err := cur.u8()
			if err != nil {
				return exprResult{}, err
			}
			var loc WasmLoc
			switch kind {
			case wasmOpLocal, wasmOpGlobal, wasmOpStack:
				idx, err := cur.uleb()
				if err != nil {
					return exprResult{}, err
				}
				loc = WasmLoc{Kind: WasmLocKind(kind), Index: idx}
			case wasmOpGlobalU32:
				idx, err := cur.u32()
				if err != nil {
					return exprResult{}, err
				}
				loc = WasmLoc{Kind: WasmLocGlobal, Index: uint64(idx)}
			default:
				return exprResult{}, fmt.Errorf("symbol: wasm location op %#x", kind)
			}
			if snap == nil {
				return exprResult{}, errors.New("symbol: no value snapshot")
			}
			v, err := snap.Resolve(loc)
			if err != nil {
				return exprResult{}, err
			}
			reg = &v
			push(v.Uint64())

		case op == dwOpAddr:
			// wasm DWARF uses 4-byte addresses into the data space
			v, err := cur.u32()
			if err != nil {
				return exprResult{}, err
			}
			push(uint64(v) + c.mod.DataBase)

		case op == dwOpFbreg:
			off, err := cur.sleb()
			if err != nil {
				return exprResult{}, err
			}
			if sub == nil || sub.FrameBase == nil {
				return exprResult{}, errors.New("symbol: no frame base")
			}
			base, err := snap.Resolve(*sub.FrameBase)
			if err != nil {
				return exprResult{}, err
			}
			push(uint64(int64(base.Uint64()) + off))

		case op == dwOpConstu:
			v, err := cur.uleb()
			if err != nil {
				return exprResult{}, err
			}
			push(v)

		case op == dwOpConsts:
			v, err := cur.sleb()
			if err != nil {
				return exprResult{}, err
			}
			push(uint64(v))

		case op == dwOpPlusUconst:
			v, err := cur.uleb()
			if err != nil {
				return exprResult{}, err
			}
			top, err := pop()
			if err != nil {
				return exprResult{}, err
			}
			push(top + v)

		case op == dwOpStackValue:
			isValue = true

		case op >= dwOpLit0 && op <= dwOpLit31:
			push(uint64(op - dwOpLit0))

		default:
			return exprResult{}, fmt.Errorf("symbol: unsupported DWARF op %#x", op)
		}
	}

	top, err := pop()
	if err != nil {
		return exprResult{}, err
	}
	if isValue || (reg != nil && len(stack) == 0 && reg.Uint64() == top) {
		return exprResult{reg: reg, addr: top}, nil
	}
	return exprResult{isAddr: true, addr: top}, nil
}

// Evaluation a resumable variable evaluation. Each Resume call either
// finishes with a formatted value or reports the next memory slice it
// needs; after a fulfilled slice the evaluation is strictly further along,
// so the caller's hop budget bounds the loop.
type Evaluation struct {
	c    *DwarfContainer
	sub  *Subroutine
	snap *ValueSnapshot
	typ  *typeInfo

	ops []varOp

	addr      uint64
	haveAddr  bool
	reg       *Value
	constData []byte

	pending    *MemorySlice
	pendingPtr bool
	done       bool
}

// EvaluateExpression resolves expr (optionally `*`-prefixed and dotted) at
// the module offset and starts an evaluation against the given register
// snapshot.
func (c *DwarfContainer) EvaluateExpression(expr string, snap *ValueSnapshot, offset uint64) (*Evaluation, error) {
	derefs := 0
	for strings.HasPrefix(expr, "*") {
		derefs++
		expr = expr[1:]
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrNotAVariable
	}

	sub, err := c.FindSubroutine(offset)
	if err != nil {
		return nil, err
	}

	v, err := c.lookupVariable(expr, sub, offset)
	if err != nil {
		return nil, err
	}
	if !v.Type.HasOffset {
		return nil, fmt.Errorf("symbol: %s has no type info", expr)
	}

	ops := append([]varOp{}, v.Ops...)
	typeOff := v.Type.Offset
	for i := 0; i < derefs; i++ {
		t, err := c.resolveTypeInfo(typeOff)
		if err != nil {
			return nil, err
		}
		if !t.hasPtee {
			return nil, fmt.Errorf("symbol: cannot dereference %s", t.name)
		}
		ops = append(ops, varOp{kind: opPointer})
		typeOff = t.pointee
	}
	typ, err := c.resolveTypeInfo(typeOff)
	if err != nil {
		return nil, err
	}

	return &Evaluation{c: c, sub: sub, snap: snap, typ: typ, ops: ops}, nil
}

func (c *DwarfContainer) lookupVariable(expr string, sub *Subroutine, offset uint64) (*SymbolVariable, error) {
	locals, err := c.localVariables(offset, RootGroupLocals)
	if err == nil {
		if v := findVariable(locals, expr); v != nil {
			return v, nil
		}
	}
	globals, err := c.globalVariables(sub.Unit, RootGroupGlobals)
	if err != nil {
		return nil, err
	}
	if v := findVariable(globals, expr); v != nil {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotAVariable, expr)
}

// Resume advances the evaluation. The first call passes nil; subsequent
// calls pass the bytes of the previously requested slice.
func (ev *Evaluation) Resume(data []byte) (*EvalOutcome, error) {
	if ev.done {
		return nil, errors.New("symbol: evaluation already complete")
	}
	if ev.pending != nil {
		if len(data) < ev.pending.ByteSize {
			return nil, fmt.Errorf("symbol: slice of %d bytes, want %d", len(data), ev.pending.ByteSize)
		}
		if !ev.pendingPtr {
			// this was the final value read
			ev.done = true
			return &EvalOutcome{Value: formatValue(ev.typ, data)}, nil
		}
		// pointer hop
		ev.addr = uint64(binary.LittleEndian.Uint32(data))
		ev.haveAddr = true
		ev.reg = nil
		ev.pending = nil
		ev.pendingPtr = false
	}

	for len(ev.ops) > 0 {
		op := ev.ops[0]
		ev.ops = ev.ops[1:]
		switch op.kind {
		case opExprLoc:
			res, err := ev.c.evalExprloc(op.expr, ev.sub, ev.snap)
			if err != nil {
				return nil, err
			}
			if res.isAddr {
				ev.addr = res.addr
				ev.haveAddr = true
			} else {
				ev.reg = res.reg
				if ev.reg == nil {
					// a computed scalar (DW_OP_stack_value)
					v := ValueI64(int64(res.addr))
					ev.reg = &v
				}
				ev.addr = res.addr
				ev.haveAddr = false
			}
		case opConstValue:
			ev.constData = op.constVal
		case opOffset:
			ev.addr = uint64(int64(ev.addr) + op.offset)
			ev.haveAddr = true
		case opPointer:
			if ev.haveAddr {
				// pointer itself lives in memory: read it first
				ev.pending = &MemorySlice{Address: ev.addr, ByteSize: pointerSize}
				ev.pendingPtr = true
				return &EvalOutcome{Need: ev.pending}, nil
			}
			// pointer value is in a register
			ev.haveAddr = true
			ev.reg = nil
		}
	}

	// location fully resolved
	if ev.constData != nil {
		ev.done = true
		return &EvalOutcome{Value: formatValue(ev.typ, ev.constData)}, nil
	}
	if !ev.haveAddr {
		if ev.reg == nil {
			return nil, errors.New("symbol: variable has no location")
		}
		ev.done = true
		return &EvalOutcome{Value: formatRegister(ev.typ, *ev.reg)}, nil
	}

	size := ev.typ.byteSize
	if size <= 0 {
		size = pointerSize
	}
	ev.pending = &MemorySlice{Address: ev.addr, ByteSize: size}
	return &EvalOutcome{Need: ev.pending}, nil
}
