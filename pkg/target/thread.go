package target

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/hitzhangjie/wadbg/pkg/cdp"
	"github.com/hitzhangjie/wadbg/pkg/symbol"
)

// State a thread is either running or paused; everything a user can do in
// the paused state hangs off the captured frame snapshot.
type State int

const (
	Running State = iota
	Paused
)

func (s State) String() string {
	if s == Paused {
		return "paused"
	}
	return "running"
}

// ErrNotPaused the command needs a paused thread.
var ErrNotPaused = errors.New("target: thread is not paused")

// pause reasons with special handling
const (
	reasonInstrumentation = "instrumentation"
	reasonBreakOnStart    = "Break on start"
)

// dumpVariable follows at most this many memory hops so cyclic data cannot
// pin the evaluator.
const maxMemoryHops = 20

// FailureValue the sentinel returned when expression evaluation fails.
const FailureValue = "<failure>"

type stepKind int

const (
	stepNone stepKind = iota
	stepOver
	stepInto
)

// Thread mirrors one CDP execution context (the page, or one worker). It
// owns the per-thread breakpoint mirror and the {Running, Paused} state
// machine; the shared registries live in the session.
type Thread struct {
	ID        int
	sessionID string

	session *DebugSession
	api     cdp.SessionAPI
	dbg     cdp.Debugger
	rt      cdp.Runtime
	logger  *log.Logger

	// reconcileMu serializes breakpoint reconciliation; it is held across
	// the CDP round-trips so interleaved triggers stay idempotent.
	reconcileMu sync.Mutex

	// parseInFlight completion handle for scriptParsed processing; the
	// instrumentation pause path awaits it before releasing the debuggee.
	parseInFlight sync.WaitGroup

	mu           sync.Mutex
	state        State
	frames       []*callFrame
	focusedFrame int
	mem          *MemoryEvaluator
	mirror       map[uint64]*ResolvedBreakpoint
	step         stepKind
	lastStop     symbol.LineInfo
	hasLastStop  bool
	cancel       func()
}

func newThread(id int, sessionID string, api cdp.SessionAPI, session *DebugSession) *Thread {
	return &Thread{
		ID:        id,
		sessionID: sessionID,
		session:   session,
		api:       api,
		dbg:       cdp.Debugger{API: api},
		rt:        cdp.Runtime{API: api},
		logger:    session.logger,
		mirror:    map[uint64]*ResolvedBreakpoint{},
	}
}

// activate enables the debugger domains on the target, arranges the
// before-execution instrumentation pause, releases a waiting target, and
// adopts the current breakpoint intent.
func (t *Thread) activate(ctx context.Context) error {
	t.cancel = t.api.Subscribe(t.handleEvent,
		"Debugger.scriptParsed", "Debugger.paused", "Debugger.resumed")

	if err := t.dbg.Enable(ctx); err != nil {
		return fmt.Errorf("target: enable debugger: %w", err)
	}
	if err := t.rt.Enable(ctx); err != nil {
		return fmt.Errorf("target: enable runtime: %w", err)
	}
	if err := t.dbg.SetInstrumentationBreakpoint(ctx, "beforeScriptExecution"); err != nil {
		return fmt.Errorf("target: instrumentation breakpoint: %w", err)
	}
	if err := t.rt.RunIfWaitingForDebugger(ctx); err != nil {
		return fmt.Errorf("target: release target: %w", err)
	}
	t.UpdateBreakpoint(ctx)
	return nil
}

func (t *Thread) deactivate() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// handleEvent receives this thread's CDP events in arrival order; the
// shared subscription queue is what keeps a pause from overtaking the
// scriptParsed that precedes it.
func (t *Thread) handleEvent(method string, params json.RawMessage) {
	ctx := context.Background()
	switch method {
	case "Debugger.scriptParsed":
		var ev cdp.ScriptParsedEvent
		if err := json.Unmarshal(params, &ev); err != nil {
			t.logger.Printf("thread %d: bad scriptParsed: %v", t.ID, err)
			return
		}
		t.onScriptParsed(ctx, ev)
	case "Debugger.paused":
		var ev cdp.PausedEvent
		if err := json.Unmarshal(params, &ev); err != nil {
			t.logger.Printf("thread %d: bad paused: %v", t.ID, err)
			return
		}
		t.onPaused(ctx, ev)
	case "Debugger.resumed":
		t.onResumed()
	}
}

func (t *Thread) onScriptParsed(ctx context.Context, ev cdp.ScriptParsedEvent) {
	t.parseInFlight.Add(1)
	defer t.parseInFlight.Done()

	if ev.ScriptLanguage != "WebAssembly" {
		t.session.registry.AddNonWasm(ev.ScriptID, ev.URL)
		return
	}

	if _, ok := t.session.registry.Get(ev.ScriptID); !ok {
		_, bytecode, err := t.dbg.GetScriptSource(ctx, ev.ScriptID)
		if err != nil {
			t.logger.Printf("thread %d: script source of %s: %v", t.ID, ev.URL, err)
			return
		}
		wasm, err := base64.StdEncoding.DecodeString(bytecode)
		if err != nil {
			t.logger.Printf("thread %d: bytecode of %s: %v", t.ID, ev.URL, err)
			return
		}
		if err := t.session.loadModule(ev.ScriptID, ev.URL, wasm); err != nil {
			if errors.Is(err, symbol.ErrNoSymbols) {
				t.logger.Printf("no symbols for %s", ev.URL)
			} else if !errors.Is(err, symbol.ErrDuplicateScript) {
				t.logger.Printf("thread %d: load %s: %v", t.ID, ev.URL, err)
			}
			return
		}
	}

	t.UpdateBreakpoint(ctx)
}

func (t *Thread) onPaused(ctx context.Context, ev cdp.PausedEvent) {
	switch ev.Reason {
	case reasonInstrumentation:
		// hold the debuggee until module load and breakpoint reconciliation
		// are done, so breakpoints set before the load land before the first
		// instruction runs
		t.parseInFlight.Wait()
		if err := t.dbg.Resume(ctx); err != nil {
			t.logger.Printf("thread %d: resume after instrumentation: %v", t.ID, err)
		}
		return
	case reasonBreakOnStart:
		if err := t.dbg.Resume(ctx); err != nil {
			t.logger.Printf("thread %d: resume after break-on-start: %v", t.ID, err)
		}
		return
	}

	if len(ev.CallFrames) == 0 {
		t.logger.Printf("thread %d: paused without call frames", t.ID)
		return
	}

	frames := t.buildFrames(ev.CallFrames)
	top := frames[0].resolved
	loc := symbol.LineInfo{File: top.File, Line: top.Line}

	t.mu.Lock()
	step := t.step
	same := t.hasLastStop && t.lastStop.File == loc.File && t.lastStop.Line == loc.Line
	t.mu.Unlock()

	if step != stepNone && same {
		// Chrome paused again inside the same source line; repeat the step
		// without surfacing anything
		var err error
		if step == stepOver {
			err = t.dbg.StepOver(ctx)
		} else {
			err = t.dbg.StepInto(ctx)
		}
		if err != nil {
			t.logger.Printf("thread %d: re-step: %v", t.ID, err)
		}
		return
	}

	t.mu.Lock()
	t.state = Paused
	t.frames = frames
	t.focusedFrame = 0
	t.mem = NewMemoryEvaluator(t.dbg, frames[0].raw.CallFrameID)
	t.step = stepNone
	t.lastStop = loc
	t.hasLastStop = true
	t.mu.Unlock()

	t.session.sink.Stopped(t.ID, ev.Reason, loc)
}

func (t *Thread) onResumed() {
	t.mu.Lock()
	wasPaused := t.state == Paused
	t.state = Running
	t.frames = nil
	t.mem = nil
	t.mu.Unlock()
	if wasPaused {
		t.session.sink.Continued(t.ID)
	}
}

func (t *Thread) buildFrames(raw []cdp.CallFrame) []*callFrame {
	frames := make([]*callFrame, 0, len(raw))
	for i, cf := range raw {
		resolved := StackFrame{
			Index:        i,
			FunctionName: cf.FunctionName,
			File:         cf.URL,
			Line:         cf.Location.LineNumber + 1,
			Instruction:  uint64(cf.Location.ColumnNumber),
		}
		var wasm *symbol.WasmFile
		if f, ok := t.session.registry.Get(cf.Location.ScriptID); ok {
			wasm = f
		}
		if info, ok := t.session.registry.FindFileFromLocation(cf.Location.ScriptID, cf.Location.LineNumber, cf.Location.ColumnNumber); ok {
			resolved.File = info.File
			resolved.Line = info.Line
		}
		frames = append(frames, &callFrame{raw: cf, resolved: resolved, wasm: wasm})
	}
	return frames
}

// State the thread's current state.
func (t *Thread) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// UpdateBreakpoint reconciles the per-thread mirror against the registry:
// adopt new intent, drop stale raw breakpoints, and try to verify anything
// still pending. Safe to trigger from user commands and scriptParsed alike.
func (t *Thread) UpdateBreakpoint(ctx context.Context) {
	t.reconcileMu.Lock()
	defer t.reconcileMu.Unlock()

	wanted := t.session.breakpoints.List()

	// adopt new registry entries, collect stale mirror entries
	t.mu.Lock()
	wantedIDs := map[uint64]bool{}
	for _, bp := range wanted {
		wantedIDs[bp.ID] = true
		if _, ok := t.mirror[bp.ID]; !ok {
			t.mirror[bp.ID] = &ResolvedBreakpoint{Breakpoint: bp}
		}
	}
	var stale []*ResolvedBreakpoint
	for id, rb := range t.mirror {
		if !wantedIDs[id] {
			stale = append(stale, rb)
			delete(t.mirror, id)
		}
	}
	var pending []*ResolvedBreakpoint
	for _, rb := range t.mirror {
		if !rb.Verified {
			pending = append(pending, rb)
		}
	}
	t.mu.Unlock()

	for _, rb := range stale {
		if rb.RawID == "" {
			continue
		}
		if err := t.dbg.RemoveBreakpoint(ctx, rb.RawID); err != nil {
			t.logger.Printf("thread %d: remove breakpoint %d: %v", t.ID, rb.ID, err)
		}
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	for _, rb := range pending {
		file, addr, info, ok := t.resolveLocation(rb.File, rb.Line)
		if !ok {
			// module not loaded yet; stays unverified for the next round
			continue
		}
		rawID, _, err := t.dbg.SetBreakpoint(ctx, cdp.Location{
			ScriptID:     file.ScriptID,
			LineNumber:   0,
			ColumnNumber: int(addr),
		})
		if err != nil {
			t.logger.Printf("thread %d: set breakpoint %d at %s:%d: %v", t.ID, rb.ID, rb.File, rb.Line, err)
			continue
		}
		t.mu.Lock()
		rb.File = info.File
		rb.Line = info.Line
		rb.RawID = rawID
		rb.Verified = true
		changed := *rb
		t.mu.Unlock()
		t.session.sink.BreakpointChanged(t.ID, changed)
	}
}

func (t *Thread) resolveLocation(file string, line int) (*symbol.WasmFile, uint64, symbol.LineInfo, bool) {
	return t.session.registry.FindAddressFromFileLocation(file, line)
}

// resetBreakpoints drops raw ids after a page navigation: the scripts they
// were bound to are gone, but the intent is kept for re-resolution.
func (t *Thread) resetBreakpoints() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rb := range t.mirror {
		rb.RawID = ""
		rb.Verified = false
	}
}

// breakpointList the mirror sorted by id.
func (t *Thread) breakpointList() []ResolvedBreakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ResolvedBreakpoint, 0, len(t.mirror))
	for _, rb := range t.mirror {
		out = append(out, *rb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- workflow commands ---

func (t *Thread) StepOver(ctx context.Context) error {
	return t.stepCommand(ctx, stepOver)
}

func (t *Thread) StepIn(ctx context.Context) error {
	return t.stepCommand(ctx, stepInto)
}

func (t *Thread) stepCommand(ctx context.Context, kind stepKind) error {
	t.mu.Lock()
	if t.state != Paused {
		t.mu.Unlock()
		return ErrNotPaused
	}
	t.step = kind
	t.mu.Unlock()

	var err error
	if kind == stepOver {
		err = t.dbg.StepOver(ctx)
	} else {
		err = t.dbg.StepInto(ctx)
	}
	if err != nil {
		t.mu.Lock()
		t.step = stepNone
		t.mu.Unlock()
		return fmt.Errorf("target: step: %w", err)
	}
	return nil
}

func (t *Thread) StepOut(ctx context.Context) error {
	if t.State() != Paused {
		return ErrNotPaused
	}
	if err := t.dbg.StepOut(ctx); err != nil {
		return fmt.Errorf("target: step out: %w", err)
	}
	return nil
}

func (t *Thread) Continue(ctx context.Context) error {
	t.mu.Lock()
	if t.state != Paused {
		t.mu.Unlock()
		return ErrNotPaused
	}
	t.step = stepNone
	t.hasLastStop = false
	t.mu.Unlock()

	if err := t.dbg.Resume(ctx); err != nil {
		return fmt.Errorf("target: continue: %w", err)
	}
	return nil
}

// --- paused-state inspection ---

// GetStackFrames the snapshot captured at the last pause.
func (t *Thread) GetStackFrames() ([]StackFrame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Paused {
		return nil, ErrNotPaused
	}
	out := make([]StackFrame, 0, len(t.frames))
	for _, f := range t.frames {
		sf := f.resolved
		sf.File = t.session.remapPath(sf.File)
		out = append(out, sf)
	}
	return out, nil
}

// SetFocusedFrame selects the frame later variable commands target.
func (t *Thread) SetFocusedFrame(index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Paused {
		return ErrNotPaused
	}
	if index < 0 || index >= len(t.frames) {
		return fmt.Errorf("target: no frame %d", index)
	}
	t.focusedFrame = index
	return nil
}

func (t *Thread) focused() (*callFrame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Paused {
		return nil, ErrNotPaused
	}
	return t.frames[t.focusedFrame], nil
}

// ListVariable enumerates the locals in scope at the focused frame.
// groupID 0 lists the top-level scope; a composite's child group id lists
// its members.
func (t *Thread) ListVariable(groupID int32) ([]symbol.VariableName, error) {
	frame, err := t.focused()
	if err != nil {
		return nil, err
	}
	if frame.wasm == nil {
		return nil, fmt.Errorf("target: frame %d is not wasm", frame.resolved.Index)
	}
	names, err := frame.wasm.Container.VariableNameList(frame.resolved.Instruction, symbol.RootGroupLocals)
	if err != nil {
		return nil, err
	}
	return filterGroup(names, groupID, symbol.RootGroupLocals), nil
}

// ListGlobalVariable enumerates module globals across every loaded module.
func (t *Thread) ListGlobalVariable(groupID int32) ([]symbol.VariableName, error) {
	frame, err := t.focused()
	if err != nil {
		return nil, err
	}
	var all []symbol.VariableName
	for _, f := range t.session.registry.Files() {
		var names []symbol.VariableName
		var err error
		if frame.wasm != nil && f.ScriptID == frame.wasm.ScriptID {
			// scope globals by the paused frame's compilation unit
			names, err = f.Container.GlobalVariableNameList(frame.resolved.Instruction, symbol.RootGroupGlobals)
		} else {
			names, err = f.Container.AllGlobalVariableNames(symbol.RootGroupGlobals)
		}
		if err != nil {
			continue
		}
		all = append(all, names...)
	}
	return filterGroup(all, groupID, symbol.RootGroupGlobals), nil
}

func filterGroup(names []symbol.VariableName, groupID, root int32) []symbol.VariableName {
	want := groupID
	if want == 0 {
		want = root
	}
	out := make([]symbol.VariableName, 0, len(names))
	for _, n := range names {
		if n.GroupID == want {
			out = append(out, n)
		}
	}
	return out
}

// DumpVariable evaluates an expression at the focused frame, feeding the
// evaluator memory slices until it completes. Failures come back as the
// `<failure>` sentinel with the error describing why.
func (t *Thread) DumpVariable(ctx context.Context, expr string) (string, error) {
	frame, err := t.focused()
	if err != nil {
		return FailureValue, err
	}
	if frame.wasm == nil {
		return FailureValue, fmt.Errorf("target: frame %d is not wasm", frame.resolved.Index)
	}

	snap, err := frame.valueStores(ctx, t.rt)
	if err != nil {
		if errors.Is(err, ErrProtocolViolation) {
			t.forceRunning()
		}
		return FailureValue, err
	}

	t.mu.Lock()
	mem := t.mem
	t.mu.Unlock()
	if mem == nil {
		return FailureValue, ErrNotPaused
	}

	eval, err := frame.wasm.Container.EvaluateExpression(expr, snap, frame.resolved.Instruction)
	if err != nil {
		return FailureValue, err
	}

	var data []byte
	for hop := 0; hop <= maxMemoryHops; hop++ {
		outcome, err := eval.Resume(data)
		if err != nil {
			return FailureValue, err
		}
		if outcome.Need == nil {
			return outcome.Value, nil
		}
		data, err = mem.Read(ctx, outcome.Need.Address, outcome.Need.ByteSize)
		if err != nil {
			return FailureValue, err
		}
	}
	return FailureValue, fmt.Errorf("target: %q exceeds %d memory hops", expr, maxMemoryHops)
}

// forceRunning abandons an untrustworthy paused state.
func (t *Thread) forceRunning() {
	t.mu.Lock()
	t.state = Running
	t.frames = nil
	t.mem = nil
	t.mu.Unlock()
}
