package symbol

import (
	"debug/dwarf"
	"errors"
	"fmt"
)

// DW_OP_WASM_location prefixes wasm location expressions; the operand selects
// a local, global or operand-stack slot.
const (
	opWasmLocation = 0xed

	wasmOpLocal     = 0x00
	wasmOpGlobal    = 0x01
	wasmOpStack     = 0x02
	wasmOpGlobalU32 = 0x03
)

// WasmLocKind which register file a WasmLoc points into.
type WasmLocKind int

const (
	WasmLocLocal WasmLocKind = iota
	WasmLocGlobal
	WasmLocStack
)

func (k WasmLocKind) String() string {
	switch k {
	case WasmLocLocal:
		return "local"
	case WasmLocGlobal:
		return "global"
	case WasmLocStack:
		return "stack"
	}
	return "unknown"
}

// WasmLoc a wasm "register": local, global, or operand stack slot.
type WasmLoc struct {
	Kind  WasmLocKind
	Index uint64
}

// Subroutine a subprogram or lexical block covering a pc range.
type Subroutine struct {
	Name      string
	Ranges    [][2]uint64
	Offset    dwarf.Offset // offset of the DIE itself
	Unit      *unitInfo
	FrameBase *WasmLoc

	size uint64
}

// ErrNoSubroutine no subprogram covers the queried instruction.
var ErrNoSubroutine = errors.New("symbol: no subroutine at offset")

func (c *DwarfContainer) parseScopes() error {
	reader := c.data.Reader()
	var cu *unitInfo
	for {
		entry, err := reader.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		switch entry.Tag {
		case dwarf.TagCompileUnit:
			cu = c.unitForOffset(entry.Offset)
		case dwarf.TagSubprogram, dwarf.TagLexDwarfBlock:
			if cu == nil {
				continue
			}
			sub, err := c.readScopeHeader(entry, cu)
			if err != nil {
				return err
			}
			if sub != nil {
				c.subroutines = append(c.subroutines, sub)
			}
		}
	}
	return nil
}

func (c *DwarfContainer) unitForOffset(off dwarf.Offset) *unitInfo {
	for _, u := range c.units {
		if u.offset == off {
			return u
		}
	}
	return nil
}

func (c *DwarfContainer) readScopeHeader(entry *dwarf.Entry, cu *unitInfo) (*Subroutine, error) {
	ranges, err := c.entryRanges(entry)
	if err != nil || len(ranges) == 0 {
		return nil, nil
	}

	sub := &Subroutine{
		Ranges: ranges,
		Offset: entry.Offset,
		Unit:   cu,
	}
	for _, r := range ranges {
		sub.size += r[1] - r[0]
	}
	if sub.size == 0 {
		return nil, nil
	}
	if name, ok := entry.Val(dwarf.AttrName).(string); ok {
		sub.Name = name
	}
	if fb, ok := entry.Val(dwarf.AttrFrameBase).([]byte); ok {
		loc, err := decodeWasmLoc(fb)
		if err != nil {
			return nil, fmt.Errorf("symbol: frame base of %q: %w", sub.Name, err)
		}
		sub.FrameBase = loc
	}
	return sub, nil
}

// FindSubroutine returns the innermost scope containing the module offset.
func (c *DwarfContainer) FindSubroutine(offset uint64) (*Subroutine, error) {
	var best *Subroutine
	for _, sub := range c.subroutines {
		if !rangesContain(sub.Ranges, offset) {
			continue
		}
		if best == nil || sub.size < best.size {
			best = sub
		}
	}
	if best == nil {
		return nil, ErrNoSubroutine
	}
	return best, nil
}

// decodeWasmLoc decodes a DW_OP_WASM_location expression.
func decodeWasmLoc(expr []byte) (*WasmLoc, error) {
	r := newByteCursor(expr)
	magic, err := r.u8()
	if err != nil {
		return nil, err
	}
	if magic != opWasmLocation {
		return nil, fmt.Errorf("symbol: not a wasm location: op %#x", magic)
	}
	op, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch op {
	case wasmOpLocal:
		idx, err := r.uleb()
		return &WasmLoc{Kind: WasmLocLocal, Index: idx}, err
	case wasmOpGlobal:
		idx, err := r.uleb()
		return &WasmLoc{Kind: WasmLocGlobal, Index: idx}, err
	case wasmOpStack:
		idx, err := r.uleb()
		return &WasmLoc{Kind: WasmLocStack, Index: idx}, err
	case wasmOpGlobalU32:
		idx, err := r.u32()
		return &WasmLoc{Kind: WasmLocGlobal, Index: uint64(idx)}, err
	default:
		return nil, fmt.Errorf("symbol: wasm location op %#x", op)
	}
}
