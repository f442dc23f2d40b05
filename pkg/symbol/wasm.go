package symbol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	wasmMagic   = 0x6d736100 // "\0asm"
	wasmVersion = 1

	sectionCustom = 0
	sectionCode   = 10
	sectionData   = 11
)

var errNotWasm = errors.New("symbol: not a wasm module")

// WasmModule the slices of a wasm binary the debugger cares about: every
// `.debug_*` custom section, plus the file offsets of the code and data
// sections. CDP reports wasm code positions as byte offsets into the module
// file, while DWARF addresses are relative to the code section payload, so
// the two bases bridge the difference.
type WasmModule struct {
	DebugSections map[string][]byte
	CodeBase      uint64
	DataBase      uint64
}

// ParseWasm walks the module's sections without decoding function bodies.
func ParseWasm(data []byte) (*WasmModule, error) {
	r := bytes.NewReader(data)

	var header struct {
		Magic   uint32
		Version uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, errNotWasm
	}
	if header.Magic != wasmMagic || header.Version != wasmVersion {
		return nil, errNotWasm
	}

	mod := &WasmModule{DebugSections: map[string][]byte{}}

	for {
		id, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		size, err := readUleb128(r)
		if err != nil {
			return nil, fmt.Errorf("symbol: section %d size: %w", id, err)
		}
		payloadStart := uint64(len(data)) - uint64(r.Len())
		switch id {
		case sectionCustom:
			name, n, err := readName(r)
			if err != nil {
				return nil, fmt.Errorf("symbol: custom section name: %w", err)
			}
			rest := int64(size) - int64(n)
			if rest < 0 || rest > int64(r.Len()) {
				return nil, fmt.Errorf("symbol: custom section %q truncated", name)
			}
			if strings.HasPrefix(name, ".debug_") {
				payload := make([]byte, rest)
				if _, err := io.ReadFull(r, payload); err != nil {
					return nil, err
				}
				// keep the first occurrence
				if _, ok := mod.DebugSections[name]; !ok {
					mod.DebugSections[name] = payload
				}
			} else if _, err := r.Seek(rest, io.SeekCurrent); err != nil {
				return nil, err
			}
		case sectionCode:
			mod.CodeBase = payloadStart
			if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, err
			}
		case sectionData:
			mod.DataBase = dataSegmentBase(data[payloadStart : payloadStart+size])
			if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, err
			}
		default:
			if int64(size) > int64(r.Len()) {
				return nil, fmt.Errorf("symbol: section %d truncated", id)
			}
			if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}

	return mod, nil
}

// dataSegmentBase extracts the i32.const offset of the first active data
// segment, or 0 if the section is not in that shape.
func dataSegmentBase(payload []byte) uint64 {
	r := bytes.NewReader(payload)
	if _, err := readUleb128(r); err != nil { // segment count
		return 0
	}
	kind, err := readUleb128(r)
	if err != nil || kind != 0 { // 0 = active segment with init expr
		return 0
	}
	op, err := r.ReadByte()
	if err != nil || op != 0x41 { // i32.const
		return 0
	}
	v, err := readSleb128(r)
	if err != nil || v < 0 {
		return 0
	}
	return uint64(v)
}

func readName(r *bytes.Reader) (string, int, error) {
	before := r.Len()
	n, err := readUleb128(r)
	if err != nil {
		return "", 0, err
	}
	if int(n) > r.Len() {
		return "", 0, io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", 0, err
	}
	return string(buf), before - r.Len(), nil
}

func readUleb128(r io.ByteReader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("symbol: uleb128 overflow")
		}
	}
}

func readSleb128(r io.ByteReader) (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
		if shift >= 64 {
			return 0, errors.New("symbol: sleb128 overflow")
		}
	}
}
