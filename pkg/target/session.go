package target

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/atomic"

	"github.com/hitzhangjie/wadbg/pkg/cdp"
	"github.com/hitzhangjie/wadbg/pkg/symbol"
)

// FocusedThread passed as a threadID to address whichever thread currently
// has focus.
const FocusedThread = -1

// ErrNoThread the addressed thread does not exist (anymore).
var ErrNoThread = errors.New("target: no such thread")

// Options session construction knobs.
type Options struct {
	// ServerRoot/WebRoot optional path remap: a returned stack-frame file
	// starting with ServerRoot has that prefix replaced by WebRoot.
	ServerRoot string
	WebRoot    string
	Logger     *log.Logger
	Sink       EventSink
}

// ThreadInfo one row of the thread listing.
type ThreadInfo struct {
	ID    int
	State State
}

// DebugSession the root of the debugger core: it owns the file registry,
// the breakpoint registry and the thread table, and routes user commands to
// the focused thread.
type DebugSession struct {
	api    cdp.API
	logger *log.Logger
	sink   EventSink

	registry    *symbol.FileRegistry
	breakpoints *BreakpointRegistry

	threadSeq *atomic.Int64

	mu      sync.Mutex
	threads map[int]*Thread
	focused int

	serverRoot string
	webRoot    string

	cancels []func()
}

// NewDebugSession builds a session over an established CDP connection.
func NewDebugSession(api cdp.API, opts Options) *DebugSession {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	var sink EventSink = NopSink{}
	if opts.Sink != nil {
		sink = opts.Sink
	}
	s := &DebugSession{
		api:         api,
		logger:      logger,
		sink:        sink,
		registry:    symbol.NewFileRegistry(),
		breakpoints: NewBreakpointRegistry(),
		threadSeq:   atomic.NewInt64(0),
		threads:     map[int]*Thread{},
		serverRoot:  opts.ServerRoot,
		webRoot:     opts.WebRoot,
	}
	return s
}

// Activate creates the default thread over the top-level target, arranges
// worker auto-attach and page events, and starts debugging.
func (s *DebugSession) Activate(ctx context.Context) error {
	root := cdp.NewSession(s.api, "")

	s.cancels = append(s.cancels, s.api.Subscribe(s.handleTargetEvent,
		"Target.attachedToTarget", "Target.detachedFromTarget"))
	s.cancels = append(s.cancels, root.Subscribe(func(method string, params json.RawMessage) {
		s.onLoadEventFired(context.Background())
	}, "Page.loadEventFired"))

	def := newThread(0, "", root, s)
	s.mu.Lock()
	s.threads[0] = def
	s.focused = 0
	s.mu.Unlock()

	if err := def.activate(ctx); err != nil {
		return err
	}

	page := cdp.Page{API: root}
	if err := page.Enable(ctx); err != nil {
		return fmt.Errorf("target: enable page: %w", err)
	}
	tgt := cdp.Target{API: root}
	if err := tgt.SetDiscoverTargets(ctx, true); err != nil {
		return fmt.Errorf("target: discover targets: %w", err)
	}
	if err := tgt.SetAutoAttach(ctx); err != nil {
		return fmt.Errorf("target: auto attach: %w", err)
	}
	return nil
}

// Deactivate detaches every thread and stops listening.
func (s *DebugSession) Deactivate() {
	s.mu.Lock()
	threads := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		threads = append(threads, t)
	}
	s.threads = map[int]*Thread{}
	s.mu.Unlock()

	for _, t := range threads {
		t.deactivate()
	}
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	s.sink.Terminated()
}

func (s *DebugSession) handleTargetEvent(sessionID, method string, params json.RawMessage) {
	ctx := context.Background()
	switch method {
	case "Target.attachedToTarget":
		var ev cdp.AttachedToTargetEvent
		if err := json.Unmarshal(params, &ev); err != nil {
			s.logger.Printf("session: bad attachedToTarget: %v", err)
			return
		}
		s.onAttached(ctx, ev)
	case "Target.detachedFromTarget":
		var ev cdp.DetachedFromTargetEvent
		if err := json.Unmarshal(params, &ev); err != nil {
			s.logger.Printf("session: bad detachedFromTarget: %v", err)
			return
		}
		s.onDetached(ev)
	}
}

func (s *DebugSession) onAttached(ctx context.Context, ev cdp.AttachedToTargetEvent) {
	id := int(s.threadSeq.Add(1))
	proxy := cdp.NewSession(s.api, ev.SessionID)
	t := newThread(id, ev.SessionID, proxy, s)

	s.mu.Lock()
	s.threads[id] = t
	s.mu.Unlock()

	if err := t.activate(ctx); err != nil {
		s.logger.Printf("session: activate thread %d (%s): %v", id, ev.TargetInfo.URL, err)
	}
	s.sink.ThreadStarted(id)
}

func (s *DebugSession) onDetached(ev cdp.DetachedFromTargetEvent) {
	s.mu.Lock()
	var gone *Thread
	for id, t := range s.threads {
		if t.sessionID == ev.SessionID && id != 0 {
			gone = t
			delete(s.threads, id)
			break
		}
	}
	if gone != nil && s.focused == gone.ID {
		s.focused = 0
	}
	s.mu.Unlock()

	if gone != nil {
		gone.deactivate()
		s.sink.ThreadExited(gone.ID)
	}
}

// onLoadEventFired resets per-page state: worker threads are gone, loaded
// modules are stale, but breakpoint intent survives and re-verifies as the
// new page parses its modules.
func (s *DebugSession) onLoadEventFired(ctx context.Context) {
	s.mu.Lock()
	var workers []*Thread
	def := s.threads[0]
	for id, t := range s.threads {
		if id != 0 {
			workers = append(workers, t)
			delete(s.threads, id)
		}
	}
	s.focused = 0
	s.mu.Unlock()

	for _, t := range workers {
		t.deactivate()
		s.sink.ThreadExited(t.ID)
	}

	s.registry.Clear()
	if def != nil {
		def.resetBreakpoints()
		def.UpdateBreakpoint(ctx)
	}
}

// loadModule registers a parsed wasm module; refuses duplicates.
func (s *DebugSession) loadModule(scriptID, url string, wasm []byte) error {
	_, err := s.registry.LoadWasm(scriptID, url, wasm)
	return err
}

func (s *DebugSession) remapPath(file string) string {
	if s.serverRoot != "" && strings.HasPrefix(file, s.serverRoot) {
		return s.webRoot + strings.TrimPrefix(file, s.serverRoot)
	}
	return file
}

// thread resolves a threadID; FocusedThread picks the focused one.
func (s *DebugSession) thread(threadID int) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := threadID
	if id == FocusedThread {
		id = s.focused
	}
	t, ok := s.threads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoThread, id)
	}
	return t, nil
}

func (s *DebugSession) allThreads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- lifecycle & navigation ---

// JumpToPage navigates the top-level page.
func (s *DebugSession) JumpToPage(ctx context.Context, url string) error {
	page := cdp.Page{API: cdp.NewSession(s.api, "")}
	return page.Navigate(ctx, url)
}

// SetFocusedThread changes which thread unaddressed commands go to.
func (s *DebugSession) SetFocusedThread(threadID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return fmt.Errorf("%w: %d", ErrNoThread, threadID)
	}
	s.focused = threadID
	return nil
}

// GetThreadList snapshots the thread table sorted by id.
func (s *DebugSession) GetThreadList() []ThreadInfo {
	threads := s.allThreads()
	out := make([]ThreadInfo, 0, len(threads))
	for _, t := range threads {
		out = append(out, ThreadInfo{ID: t.ID, State: t.State()})
	}
	return out
}

// FocusedThreadID the thread unaddressed commands currently go to.
func (s *DebugSession) FocusedThreadID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// --- breakpoints ---

// SetBreakPoint records the request and reconciles every thread; the
// returned entry reflects the focused thread's view (verified if a loaded
// module resolved it already).
func (s *DebugSession) SetBreakPoint(ctx context.Context, file string, line, column int) (ResolvedBreakpoint, error) {
	bp := s.breakpoints.Insert(file, line, column)
	for _, t := range s.allThreads() {
		t.UpdateBreakpoint(ctx)
	}
	if t, err := s.thread(FocusedThread); err == nil {
		for _, rb := range t.breakpointList() {
			if rb.ID == bp.ID {
				return rb, nil
			}
		}
	}
	return ResolvedBreakpoint{Breakpoint: bp}, nil
}

// RemoveBreakPoint drops the request everywhere.
func (s *DebugSession) RemoveBreakPoint(ctx context.Context, id uint64) error {
	if !s.breakpoints.Remove(id) {
		return fmt.Errorf("target: no breakpoint %d", id)
	}
	for _, t := range s.allThreads() {
		t.UpdateBreakpoint(ctx)
	}
	return nil
}

// RemoveAllBreakPoints drops every request for path ("" for all).
func (s *DebugSession) RemoveAllBreakPoints(ctx context.Context, path string) []uint64 {
	removed := s.breakpoints.RemoveAllForFile(path)
	if len(removed) > 0 {
		for _, t := range s.allThreads() {
			t.UpdateBreakpoint(ctx)
		}
	}
	return removed
}

// GetBreakPointsList lists the focused thread's mirror, optionally filtered
// by a "file:line" location string.
func (s *DebugSession) GetBreakPointsList(location string) ([]ResolvedBreakpoint, error) {
	t, err := s.thread(FocusedThread)
	if err != nil {
		return nil, err
	}
	list := t.breakpointList()
	if location == "" {
		return list, nil
	}
	file, line, err := ParseFileLine(location)
	if err != nil {
		return nil, err
	}
	var out []ResolvedBreakpoint
	for _, rb := range list {
		if rb.Line == line && (rb.File == file || strings.HasSuffix(rb.File, "/"+file) || strings.HasSuffix(file, "/"+rb.File)) {
			out = append(out, rb)
		}
	}
	return out, nil
}

// ParseFileLine splits a "file:line" location.
func ParseFileLine(s string) (string, int, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", 0, fmt.Errorf("target: invalid location %q, want file:lineno", s)
	}
	line, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("target: invalid location %q, want file:lineno", s)
	}
	return s[:i], line, nil
}

// --- workflow & inspection, routed to a thread ---

func (s *DebugSession) StepOver(ctx context.Context, threadID int) error {
	t, err := s.thread(threadID)
	if err != nil {
		return err
	}
	return t.StepOver(ctx)
}

func (s *DebugSession) StepIn(ctx context.Context, threadID int) error {
	t, err := s.thread(threadID)
	if err != nil {
		return err
	}
	return t.StepIn(ctx)
}

func (s *DebugSession) StepOut(ctx context.Context, threadID int) error {
	t, err := s.thread(threadID)
	if err != nil {
		return err
	}
	return t.StepOut(ctx)
}

func (s *DebugSession) Continue(ctx context.Context, threadID int) error {
	t, err := s.thread(threadID)
	if err != nil {
		return err
	}
	return t.Continue(ctx)
}

func (s *DebugSession) GetStackFrames(threadID int) ([]StackFrame, error) {
	t, err := s.thread(threadID)
	if err != nil {
		return nil, err
	}
	return t.GetStackFrames()
}

// ShowLine the focused frame's source position, for source listings.
func (s *DebugSession) ShowLine(threadID int) (string, int, error) {
	t, err := s.thread(threadID)
	if err != nil {
		return "", 0, err
	}
	frame, err := t.focused()
	if err != nil {
		return "", 0, err
	}
	return s.remapPath(frame.resolved.File), frame.resolved.Line, nil
}

func (s *DebugSession) SetFocusedFrame(threadID, index int) error {
	t, err := s.thread(threadID)
	if err != nil {
		return err
	}
	return t.SetFocusedFrame(index)
}

func (s *DebugSession) ListVariable(threadID int, groupID int32) ([]symbol.VariableName, error) {
	t, err := s.thread(threadID)
	if err != nil {
		return nil, err
	}
	return t.ListVariable(groupID)
}

func (s *DebugSession) ListGlobalVariable(threadID int, groupID int32) ([]symbol.VariableName, error) {
	t, err := s.thread(threadID)
	if err != nil {
		return nil, err
	}
	return t.ListGlobalVariable(groupID)
}

func (s *DebugSession) DumpVariable(ctx context.Context, threadID int, expr string) (string, error) {
	t, err := s.thread(threadID)
	if err != nil {
		return FailureValue, err
	}
	return t.DumpVariable(ctx, expr)
}
