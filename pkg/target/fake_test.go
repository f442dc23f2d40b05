package target

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/hitzhangjie/wadbg/pkg/cdp"
	"github.com/hitzhangjie/wadbg/pkg/symbol"
)

// fakeAPI a scriptable in-memory CDP endpoint. Events are delivered
// synchronously so tests stay deterministic.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []fakeCall
	respond map[string]func(sessionID string, params []byte) (any, error)
	subs    []*fakeSub
}

type fakeCall struct {
	sessionID string
	method    string
	params    []byte
}

type fakeSub struct {
	events map[string]bool
	h      cdp.Handler
	gone   bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{respond: map[string]func(string, []byte) (any, error){}}
}

func (f *fakeAPI) on(method string, fn func(sessionID string, params []byte) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond[method] = fn
}

func (f *fakeAPI) Call(ctx context.Context, sessionID, method string, params, result any) error {
	raw, _ := json.Marshal(params)
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{sessionID: sessionID, method: method, params: raw})
	fn := f.respond[method]
	f.mu.Unlock()

	var resp any
	if fn != nil {
		var err error
		resp, err = fn(sessionID, raw)
		if err != nil {
			return err
		}
	}
	if result == nil || resp == nil {
		return nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, result)
}

func (f *fakeAPI) Subscribe(h cdp.Handler, events ...string) (cancel func()) {
	sub := &fakeSub{events: map[string]bool{}, h: h}
	for _, ev := range events {
		sub.events[ev] = true
	}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		sub.gone = true
		f.mu.Unlock()
	}
}

// emit delivers an event to every matching subscriber, in registration
// order, on the caller's goroutine.
func (f *fakeAPI) emit(sessionID, method string, params any) {
	raw, _ := json.Marshal(params)
	f.mu.Lock()
	subs := make([]*fakeSub, 0, len(f.subs))
	for _, s := range f.subs {
		if !s.gone && s.events[method] {
			subs = append(subs, s)
		}
	}
	f.mu.Unlock()
	for _, s := range subs {
		s.h(sessionID, method, raw)
	}
}

func (f *fakeAPI) callsOf(method string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// recordSink records every event the session emits.
type recordSink struct {
	mu          sync.Mutex
	stopped     []symbol.LineInfo
	continued   []int
	started     []int
	exited      []int
	bpChanged   []ResolvedBreakpoint
	terminated  int
	outputLines []string
}

func (r *recordSink) BreakpointChanged(threadID int, rb ResolvedBreakpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bpChanged = append(r.bpChanged, rb)
}

func (r *recordSink) ThreadStarted(threadID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, threadID)
}

func (r *recordSink) ThreadExited(threadID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exited = append(r.exited, threadID)
}

func (r *recordSink) Stopped(threadID int, reason string, loc symbol.LineInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, loc)
}

func (r *recordSink) Continued(threadID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.continued = append(r.continued, threadID)
}

func (r *recordSink) Terminated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminated++
}

func (r *recordSink) Output(category, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputLines = append(r.outputLines, line)
}

func (r *recordSink) stoppedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stopped)
}

// --- minimal wasm module with a DWARF line table ---

// testWasmModule builds a wasm binary whose DWARF line table maps:
//
//	0x10 -> main.c:3
//	0x18 -> main.c:4
//	0x2a -> main.c:4
//	0x30 -> main.c:6
//	0x40    end_sequence
func testWasmModule() []byte {
	abbrev := []byte{
		0x01,       // abbrev code 1
		0x11,       // DW_TAG_compile_unit
		0x00,       // no children
		0x10, 0x17, // DW_AT_stmt_list, DW_FORM_sec_offset
		0x00, 0x00, // end of attributes
		0x00, // end of abbrevs
	}

	// DWARF4 compilation unit with one DIE referencing the line program
	var info bytes.Buffer
	infoBody := []byte{
		0x04, 0x00, // version 4
		0x00, 0x00, 0x00, 0x00, // abbrev offset
		0x04,                   // address size
		0x01,                   // DIE: abbrev 1
		0x00, 0x00, 0x00, 0x00, // stmt_list = 0
	}
	writeU32(&info, uint32(len(infoBody)))
	info.Write(infoBody)

	line := testLineProgram()

	return wasmWithSections(map[string][]byte{
		".debug_abbrev": abbrev,
		".debug_info":   info.Bytes(),
		".debug_line":   line,
	})
}

func testLineProgram() []byte {
	var header bytes.Buffer
	header.WriteByte(0x01) // minimum_instruction_length
	header.WriteByte(0x01) // maximum_operations_per_instruction
	header.WriteByte(0x01) // default_is_stmt
	header.WriteByte(0xfb) // line_base -5
	header.WriteByte(0x0e) // line_range 14
	header.WriteByte(0x0d) // opcode_base 13
	header.Write([]byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1})
	header.WriteByte(0x00) // no include directories
	header.WriteString("main.c")
	header.Write([]byte{0x00, 0x00, 0x00, 0x00}) // name nul, dir, mtime, len
	header.WriteByte(0x00)                       // end of file table

	var prog bytes.Buffer
	setAddress := func(addr uint32) {
		prog.Write([]byte{0x00, 0x05, 0x02})
		writeU32(&prog, addr)
	}
	advanceLine := func(delta byte) {
		prog.Write([]byte{0x03, delta}) // DW_LNS_advance_line, positive sleb
	}
	advancePC := func(delta byte) {
		prog.Write([]byte{0x02, delta}) // DW_LNS_advance_pc
	}
	copyRow := func() {
		prog.WriteByte(0x01) // DW_LNS_copy
	}
	endSequence := func() {
		prog.Write([]byte{0x00, 0x01, 0x01})
	}

	setAddress(0x10)
	advanceLine(2) // line 3
	copyRow()
	advancePC(0x08)
	advanceLine(1) // line 4
	copyRow()
	advancePC(0x12) // 0x2a
	copyRow()
	advancePC(0x06) // 0x30
	advanceLine(2)  // line 6
	copyRow()
	advancePC(0x10) // 0x40
	endSequence()

	var unit bytes.Buffer
	writeU16(&unit, 4) // version
	writeU32(&unit, uint32(header.Len()))
	unit.Write(header.Bytes())
	unit.Write(prog.Bytes())

	var out bytes.Buffer
	writeU32(&out, uint32(unit.Len()))
	out.Write(unit.Bytes())
	return out.Bytes()
}

func wasmWithSections(custom map[string][]byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})
	// deterministic order
	for _, name := range []string{".debug_abbrev", ".debug_info", ".debug_line"} {
		content, ok := custom[name]
		if !ok {
			continue
		}
		var payload bytes.Buffer
		payload.Write(ulebBytes(uint64(len(name))))
		payload.WriteString(name)
		payload.Write(content)

		buf.WriteByte(0x00)
		buf.Write(ulebBytes(uint64(payload.Len())))
		buf.Write(payload.Bytes())
	}
	return buf.Bytes()
}

func ulebBytes(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func writeU32(buf *bytes.Buffer, v uint32) {
	buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func writeU16(buf *bytes.Buffer, v uint16) {
	buf.Write([]byte{byte(v), byte(v >> 8)})
}
