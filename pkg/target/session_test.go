package target

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (*fakeAPI, *recordSink, *DebugSession) {
	t.Helper()
	api := newFakeAPI()

	wasm := testWasmModule()
	api.on("Debugger.getScriptSource", func(sessionID string, params []byte) (any, error) {
		return map[string]any{"bytecode": base64.StdEncoding.EncodeToString(wasm)}, nil
	})
	rawSeq := 0
	api.on("Debugger.setBreakpoint", func(sessionID string, params []byte) (any, error) {
		rawSeq++
		return map[string]any{
			"breakpointId":   fmt.Sprintf("raw-%d", rawSeq),
			"actualLocation": map[string]any{"scriptId": "s1", "lineNumber": 0, "columnNumber": 0x18},
		}, nil
	})

	sink := &recordSink{}
	session := NewDebugSession(api, Options{
		Sink:   sink,
		Logger: log.New(io.Discard, "", 0),
	})
	require.NoError(t, session.Activate(context.Background()))
	return api, sink, session
}

func parseWasmScript(api *fakeAPI, sessionID string) {
	api.emit(sessionID, "Debugger.scriptParsed", map[string]any{
		"scriptId":       "s1",
		"url":            "http://localhost/a.wasm",
		"scriptLanguage": "WebAssembly",
	})
}

func pauseAt(api *fakeAPI, sessionID string, column int, reason string) {
	api.emit(sessionID, "Debugger.paused", map[string]any{
		"reason": reason,
		"callFrames": []map[string]any{{
			"callFrameId":  "cf0",
			"functionName": "main",
			"url":          "http://localhost/a.wasm",
			"location":     map[string]any{"scriptId": "s1", "lineNumber": 0, "columnNumber": column},
			"scopeChain":   []map[string]any{},
		}},
	})
}

func TestBreakpointBeforeModuleLoad(t *testing.T) {
	api, sink, session := newTestSession(t)
	ctx := context.Background()

	rb, err := session.SetBreakPoint(ctx, "main.c", 4, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rb.ID)
	assert.False(t, rb.Verified)

	// the pending intent is visible
	list, err := session.GetBreakPointsList("main.c:4")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(0), list[0].ID)
	assert.False(t, list[0].Verified)

	// module containing main.c:4 at 0x18 arrives
	parseWasmScript(api, "")

	list, err = session.GetBreakPointsList("main.c:4")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Verified)
	assert.NotEmpty(t, list[0].RawID)

	require.Len(t, sink.bpChanged, 1)
	assert.Equal(t, uint64(0), sink.bpChanged[0].ID)

	// exactly one raw breakpoint was set
	calls := api.callsOf("Debugger.setBreakpoint")
	require.Len(t, calls, 1)
}

func TestBreakpointNormalizedToCanonicalLine(t *testing.T) {
	api, _, session := newTestSession(t)
	ctx := context.Background()

	parseWasmScript(api, "")

	// no row for line 5: snaps to line 6
	rb, err := session.SetBreakPoint(ctx, "main.c", 5, 0)
	require.NoError(t, err)
	assert.True(t, rb.Verified)
	assert.Equal(t, 6, rb.Line)
}

func TestStepOverDeduplication(t *testing.T) {
	api, sink, session := newTestSession(t)
	ctx := context.Background()

	parseWasmScript(api, "")

	// paused at 0x18 -> main.c:4
	pauseAt(api, "", 0x18, "other")
	require.Equal(t, 1, sink.stoppedCount())
	assert.Equal(t, 4, sink.stopped[0].Line)

	require.NoError(t, session.StepOver(ctx, FocusedThread))
	api.emit("", "Debugger.resumed", map[string]any{})

	// chrome lands at 0x2a, still main.c:4: the step repeats silently
	before := len(api.callsOf("Debugger.stepOver"))
	pauseAt(api, "", 0x2a, "other")
	assert.Equal(t, 1, sink.stoppedCount())
	assert.Equal(t, before+1, len(api.callsOf("Debugger.stepOver")))

	// next pause reaches main.c:6 and surfaces
	pauseAt(api, "", 0x30, "other")
	require.Equal(t, 2, sink.stoppedCount())
	assert.Equal(t, 6, sink.stopped[1].Line)
}

func TestInstrumentationPauseResumesSilently(t *testing.T) {
	api, sink, _ := newTestSession(t)

	before := len(api.callsOf("Debugger.resume"))
	pauseAt(api, "", 0x18, "instrumentation")
	assert.Equal(t, 0, sink.stoppedCount())
	assert.Equal(t, before+1, len(api.callsOf("Debugger.resume")))

	pauseAt(api, "", 0x18, "Break on start")
	assert.Equal(t, 0, sink.stoppedCount())
	assert.Equal(t, before+2, len(api.callsOf("Debugger.resume")))
}

func TestWorkerAttachAndDetach(t *testing.T) {
	api, sink, session := newTestSession(t)
	ctx := context.Background()

	parseWasmScript(api, "")

	api.emit("", "Target.attachedToTarget", map[string]any{
		"sessionId":          "w1",
		"targetInfo":         map[string]any{"targetId": "t1", "type": "worker"},
		"waitingForDebugger": true,
	})
	assert.Equal(t, []int{1}, sink.started)
	assert.Len(t, session.GetThreadList(), 2)

	// a new breakpoint reconciles in both threads
	_, err := session.SetBreakPoint(ctx, "main.c", 4, 0)
	require.NoError(t, err)
	sessions := map[string]bool{}
	for _, c := range api.callsOf("Debugger.setBreakpoint") {
		sessions[c.sessionID] = true
	}
	assert.True(t, sessions[""])
	assert.True(t, sessions["w1"])

	// removing it removes the raw breakpoint from both
	require.NoError(t, session.RemoveBreakPoint(ctx, 0))
	removed := map[string]bool{}
	for _, c := range api.callsOf("Debugger.removeBreakpoint") {
		removed[c.sessionID] = true
	}
	assert.True(t, removed[""])
	assert.True(t, removed["w1"])

	api.emit("", "Target.detachedFromTarget", map[string]any{
		"sessionId": "w1",
		"targetId":  "t1",
	})
	assert.Equal(t, []int{1}, sink.exited)
	assert.Len(t, session.GetThreadList(), 1)
}

func TestPageNavigationPreservesIntent(t *testing.T) {
	api, _, session := newTestSession(t)
	ctx := context.Background()

	parseWasmScript(api, "")
	for _, line := range []int{3, 4, 6} {
		_, err := session.SetBreakPoint(ctx, "main.c", line, 0)
		require.NoError(t, err)
	}
	list, err := session.GetBreakPointsList("")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, rb := range list {
		assert.True(t, rb.Verified)
	}

	api.emit("", "Target.attachedToTarget", map[string]any{
		"sessionId":  "w1",
		"targetInfo": map[string]any{"targetId": "t1", "type": "worker"},
	})
	require.Len(t, session.GetThreadList(), 2)

	// navigation: threads reset, registry reset, intent preserved
	api.emit("", "Page.loadEventFired", map[string]any{})

	assert.Len(t, session.GetThreadList(), 1)
	list, err = session.GetBreakPointsList("")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, rb := range list {
		assert.False(t, rb.Verified, "breakpoint %d must await the new page's modules", rb.ID)
		assert.Empty(t, rb.RawID)
	}

	// the same module is parsed again under its old script id, which the
	// cleared registry accepts anew: all verify again
	parseWasmScript(api, "")
	list, err = session.GetBreakPointsList("")
	require.NoError(t, err)
	for _, rb := range list {
		assert.True(t, rb.Verified)
	}
}

func TestNonWasmFrameFallsBackToURL(t *testing.T) {
	api, sink, _ := newTestSession(t)

	api.emit("", "Debugger.scriptParsed", map[string]any{
		"scriptId":       "js1",
		"url":            "http://localhost/app.js",
		"scriptLanguage": "JavaScript",
	})
	api.emit("", "Debugger.paused", map[string]any{
		"reason": "other",
		"callFrames": []map[string]any{{
			"callFrameId":  "cf0",
			"functionName": "tick",
			"url":          "http://localhost/app.js",
			"location":     map[string]any{"scriptId": "js1", "lineNumber": 10, "columnNumber": 3},
			"scopeChain":   []map[string]any{},
		}},
	})

	require.Equal(t, 1, sink.stoppedCount())
	assert.Equal(t, "http://localhost/app.js", sink.stopped[0].File)
	assert.Equal(t, 11, sink.stopped[0].Line)
}

func TestStackFramesAndPathRemap(t *testing.T) {
	api := newFakeAPI()
	sink := &recordSink{}
	session := NewDebugSession(api, Options{
		Sink:       sink,
		Logger:     log.New(io.Discard, "", 0),
		ServerRoot: "/srv",
		WebRoot:    "/web",
	})
	require.NoError(t, session.Activate(context.Background()))

	api.emit("", "Debugger.scriptParsed", map[string]any{
		"scriptId":       "js1",
		"url":            "/srv/js/app.js",
		"scriptLanguage": "JavaScript",
	})
	api.emit("", "Debugger.paused", map[string]any{
		"reason": "other",
		"callFrames": []map[string]any{{
			"callFrameId":  "cf0",
			"functionName": "tick",
			"url":          "/srv/js/app.js",
			"location":     map[string]any{"scriptId": "js1", "lineNumber": 4, "columnNumber": 9},
			"scopeChain":   []map[string]any{},
		}},
	})

	frames, err := session.GetStackFrames(FocusedThread)
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	assert.Equal(t, "/web/js/app.js", frames[0].File)
	assert.Equal(t, uint64(9), frames[0].Instruction)
}

func TestCommandsRequirePausedState(t *testing.T) {
	_, _, session := newTestSession(t)
	ctx := context.Background()

	assert.ErrorIs(t, session.Continue(ctx, FocusedThread), ErrNotPaused)
	assert.ErrorIs(t, session.StepOver(ctx, FocusedThread), ErrNotPaused)
	assert.ErrorIs(t, session.StepIn(ctx, FocusedThread), ErrNotPaused)
	assert.ErrorIs(t, session.StepOut(ctx, FocusedThread), ErrNotPaused)
	_, err := session.GetStackFrames(FocusedThread)
	assert.ErrorIs(t, err, ErrNotPaused)
}

func TestContinueTransitionsToRunning(t *testing.T) {
	api, sink, session := newTestSession(t)
	ctx := context.Background()

	parseWasmScript(api, "")
	pauseAt(api, "", 0x18, "other")
	require.Equal(t, 1, sink.stoppedCount())

	require.NoError(t, session.Continue(ctx, FocusedThread))
	api.emit("", "Debugger.resumed", map[string]any{})
	assert.Equal(t, []int{0}, sink.continued)

	info := session.GetThreadList()
	require.Len(t, info, 1)
	assert.Equal(t, Running, info[0].State)
}

func TestFocusedThreadRouting(t *testing.T) {
	api, _, session := newTestSession(t)

	api.emit("", "Target.attachedToTarget", map[string]any{
		"sessionId":  "w1",
		"targetInfo": map[string]any{"targetId": "t1", "type": "worker"},
	})
	require.NoError(t, session.SetFocusedThread(1))
	assert.Equal(t, 1, session.FocusedThreadID())

	assert.Error(t, session.SetFocusedThread(42))

	// detaching the focused thread falls back to the default thread
	api.emit("", "Target.detachedFromTarget", map[string]any{
		"sessionId": "w1",
		"targetId":  "t1",
	})
	assert.Equal(t, 0, session.FocusedThreadID())
}
