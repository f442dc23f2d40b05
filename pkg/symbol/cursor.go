package symbol

import (
	"bytes"
	"encoding/binary"
	"io"
)

// byteCursor tiny sequential reader over DWARF expression bytes.
type byteCursor struct {
	r *bytes.Reader
}

func newByteCursor(b []byte) *byteCursor {
	return &byteCursor{r: bytes.NewReader(b)}
}

func (c *byteCursor) empty() bool {
	return c.r.Len() == 0
}

func (c *byteCursor) u8() (byte, error) {
	return c.r.ReadByte()
}

func (c *byteCursor) u32() (uint32, error) {
	var v uint32
	err := binary.Read(c.r, binary.LittleEndian, &v)
	return v, err
}

func (c *byteCursor) u64() (uint64, error) {
	var v uint64
	err := binary.Read(c.r, binary.LittleEndian, &v)
	return v, err
}

func (c *byteCursor) uleb() (uint64, error) {
	return readUleb128(c.r)
}

func (c *byteCursor) sleb() (int64, error) {
	return readSleb128(c.r)
}

func (c *byteCursor) skip(n int64) error {
	if int64(c.r.Len()) < n {
		return io.ErrUnexpectedEOF
	}
	_, err := c.r.Seek(n, io.SeekCurrent)
	return err
}
