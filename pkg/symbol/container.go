package symbol

import (
	"debug/dwarf"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrNoSymbols the module carries no (usable) DWARF custom sections.
var ErrNoSymbols = errors.New("symbol: no DWARF debug info")

// LineInfo a resolved source position.
type LineInfo struct {
	File   string
	Line   int
	Column int
}

func (l LineInfo) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// lineRow one row of a DWARF line-number program, with the address already
// rebased to module-file offsets.
type lineRow struct {
	addr        uint64
	file        string
	line        int
	column      int
	endSequence bool
}

// DwarfContainer decodes one module's embedded DWARF and answers the four
// debugger queries: address→line, line→address, in-scope variables by
// instruction, and typed expression evaluation.
type DwarfContainer struct {
	data *dwarf.Data
	mod  *WasmModule

	// address-sorted line rows across all compilation units
	addrRows []lineRow
	// normalized file path -> line-sorted rows of that file
	fileRows map[string][]lineRow
	// normalized file paths in deterministic (sorted) order
	files []string

	subroutines []*Subroutine
	units       []*unitInfo

	groups *groupTable
}

// unitInfo per-CU bookkeeping for global variable queries.
type unitInfo struct {
	entry  *dwarf.Entry
	offset dwarf.Offset
}

// NewDwarfContainer parses the module's `.debug_*` custom sections.
func NewDwarfContainer(wasm []byte) (*DwarfContainer, error) {
	mod, err := ParseWasm(wasm)
	if err != nil {
		return nil, err
	}
	if len(mod.DebugSections) == 0 {
		return nil, ErrNoSymbols
	}

	sec := func(name string) []byte {
		return mod.DebugSections[name]
	}
	data, err := dwarf.New(
		sec(".debug_abbrev"),
		sec(".debug_aranges"),
		sec(".debug_frame"),
		sec(".debug_info"),
		sec(".debug_line"),
		sec(".debug_pubnames"),
		sec(".debug_ranges"),
		sec(".debug_str"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSymbols, err)
	}
	// DWARF 5 side tables, when present
	for _, name := range []string{".debug_line_str", ".debug_str_offsets", ".debug_addr", ".debug_rnglists", ".debug_loclists"} {
		if b := sec(name); b != nil {
			if err := data.AddSection(name, b); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNoSymbols, name, err)
			}
		}
	}

	c := &DwarfContainer{
		data:     data,
		mod:      mod,
		fileRows: map[string][]lineRow{},
		groups:   newGroupTable(),
	}
	if err := c.parseLineTables(); err != nil {
		return nil, err
	}
	if err := c.parseScopes(); err != nil {
		return nil, err
	}
	return c, nil
}

// CodeBase module-file offset of the code section payload.
func (c *DwarfContainer) CodeBase() uint64 {
	return c.mod.CodeBase
}

func (c *DwarfContainer) parseLineTables() error {
	reader := c.data.Reader()
	for {
		entry, err := reader.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			if entry.Children {
				reader.SkipChildren()
			}
			continue
		}
		c.units = append(c.units, &unitInfo{entry: entry, offset: entry.Offset})

		lr, err := c.data.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}
		if err := c.ingestLineProgram(lr); err != nil {
			return err
		}
		reader.SkipChildren()
	}

	sort.SliceStable(c.addrRows, func(i, j int) bool {
		return c.addrRows[i].addr < c.addrRows[j].addr
	})
	for file, rows := range c.fileRows {
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].line != rows[j].line {
				return rows[i].line < rows[j].line
			}
			return rows[i].addr < rows[j].addr
		})
		c.fileRows[file] = rows
	}
	for file := range c.fileRows {
		c.files = append(c.files, file)
	}
	sort.Strings(c.files)
	return nil
}

func (c *DwarfContainer) ingestLineProgram(lr *dwarf.LineReader) error {
	var entry dwarf.LineEntry
	for {
		err := lr.Next(&entry)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		row := lineRow{
			addr:        entry.Address + c.mod.CodeBase,
			line:        entry.Line,
			column:      entry.Column,
			endSequence: entry.EndSequence,
		}
		if entry.File != nil {
			row.file = NormalizePath(entry.File.Name)
		}
		c.addrRows = append(c.addrRows, row)

		if !entry.EndSequence && row.file != "" {
			c.fileRows[row.file] = append(c.fileRows[row.file], row)
		}
	}
}

// FindLineInfo maps a module byte offset to its source position: the
// greatest row at or below the offset, with end-of-sequence rows exclusive.
func (c *DwarfContainer) FindLineInfo(offset uint64) (LineInfo, bool) {
	i := sort.Search(len(c.addrRows), func(i int) bool {
		return c.addrRows[i].addr > offset
	})
	if i == 0 {
		return LineInfo{}, false
	}
	row := c.addrRows[i-1]
	if row.endSequence {
		// the query address is past the end of its row sequence
		return LineInfo{}, false
	}
	return LineInfo{File: row.file, Line: row.line, Column: row.column}, true
}

// FindAddress maps a user-supplied (file,line) to the breakpointable module
// byte offset: the row with the smallest line >= the requested line in the
// matching file, smallest address on ties. The file matches by suffix so
// absolute user paths line up with compiler-emitted paths; among several
// matching files the lexicographically shortest wins. The returned LineInfo
// is the container's canonical form of the location.
func (c *DwarfContainer) FindAddress(file string, line int) (uint64, LineInfo, bool) {
	want := NormalizePath(file)

	var match string
	for _, candidate := range c.files {
		if !pathMatchesSuffix(candidate, want) {
			continue
		}
		if match == "" || len(candidate) < len(match) ||
			(len(candidate) == len(match) && candidate < match) {
			match = candidate
		}
	}
	if match == "" {
		return 0, LineInfo{}, false
	}

	rows := c.fileRows[match]
	i := sort.Search(len(rows), func(i int) bool {
		return rows[i].line >= line
	})
	if i == len(rows) {
		return 0, LineInfo{}, false
	}
	// rows are (line, addr) sorted, so rows[i] already carries the smallest
	// address of the smallest acceptable line
	row := rows[i]
	return row.addr, LineInfo{File: row.file, Line: row.line, Column: row.column}, true
}

// entryRanges the pc ranges of a DIE, rebased to module offsets.
func (c *DwarfContainer) entryRanges(entry *dwarf.Entry) ([][2]uint64, error) {
	ranges, err := c.data.Ranges(entry)
	if err != nil {
		return nil, err
	}
	for i := range ranges {
		ranges[i][0] += c.mod.CodeBase
		ranges[i][1] += c.mod.CodeBase
	}
	return ranges, nil
}

func rangesContain(ranges [][2]uint64, offset uint64) bool {
	for _, r := range ranges {
		if r[0] <= offset && offset < r[1] {
			return true
		}
	}
	return false
}
