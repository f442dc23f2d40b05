package symbol

import (
	"debug/dwarf"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// DW_ATE encodings we format.
const (
	encAddress      = 0x01
	encBoolean      = 0x02
	encFloat        = 0x04
	encSigned       = 0x05
	encSignedChar   = 0x06
	encUnsigned     = 0x07
	encUnsignedChar = 0x08
)

// formatValue renders raw little-endian bytes as "(<type>)<value>".
func formatValue(t *typeInfo, data []byte) string {
	switch t.tag {
	case dwarf.TagStructType, dwarf.TagClassType, dwarf.TagUnionType:
		if len(t.members) == 0 {
			return t.name
		}
		return fmt.Sprintf("%s { %s }", t.name, strings.Join(t.members, ", "))
	}

	size := t.byteSize
	if size <= 0 || size > len(data) {
		size = len(data)
	}
	b := data[:size]

	switch t.encoding {
	case encSigned, encSignedChar:
		return fmt.Sprintf("(%s)%s", t.name, signedFromLE(b).String())
	case encUnsigned, encUnsignedChar, encAddress:
		return fmt.Sprintf("(%s)%s", t.name, unsignedFromLE(b).String())
	case encBoolean:
		v := len(b) > 0 && b[0] != 0
		return fmt.Sprintf("(%s)%t", t.name, v)
	case encFloat:
		switch size {
		case 4:
			v := math.Float32frombits(binary.LittleEndian.Uint32(b))
			return fmt.Sprintf("(%s)%g", t.name, v)
		case 8:
			v := math.Float64frombits(binary.LittleEndian.Uint64(b))
			return fmt.Sprintf("(%s)%g", t.name, v)
		}
	}
	return fmt.Sprintf("(%s)%s", t.name, unsignedFromLE(b).String())
}

// formatRegister renders a value that never left a wasm register.
func formatRegister(t *typeInfo, v Value) string {
	switch t.encoding {
	case encFloat:
		return fmt.Sprintf("(%s)%s", t.name, v.String())
	default:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v.Uint64())
		return formatValue(t, b[:])
	}
}

func unsignedFromLE(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return new(big.Int).SetBytes(be)
}

func signedFromLE(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	v := unsignedFromLE(b)
	if b[len(b)-1]&0x80 != 0 {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8))
		v.Sub(v, limit)
	}
	return v
}
