package cdp

import (
	"context"
	"encoding/json"
)

// SessionAPI is what the typed domain wrappers run on: an API already
// narrowed to a single session. *Session implements it; tests substitute
// fakes.
type SessionAPI interface {
	Call(ctx context.Context, method string, params, result any) error
	Subscribe(h func(method string, params json.RawMessage), events ...string) (cancel func())
}

// Debugger typed wrapper for the Debugger domain.
type Debugger struct {
	API SessionAPI
}

func (d Debugger) Enable(ctx context.Context) error {
	return d.API.Call(ctx, "Debugger.enable", nil, nil)
}

func (d Debugger) Disable(ctx context.Context) error {
	return d.API.Call(ctx, "Debugger.disable", nil, nil)
}

// SetInstrumentationBreakpoint arranges a synthetic pause before the first
// execution of every newly parsed script.
func (d Debugger) SetInstrumentationBreakpoint(ctx context.Context, instrumentation string) error {
	params := struct {
		Instrumentation string `json:"instrumentation"`
	}{instrumentation}
	return d.API.Call(ctx, "Debugger.setInstrumentationBreakpoint", params, nil)
}

// SetBreakpoint returns the raw breakpoint id and the location the runtime
// actually bound it to.
func (d Debugger) SetBreakpoint(ctx context.Context, loc Location) (string, Location, error) {
	params := struct {
		Location Location `json:"location"`
	}{loc}
	var result struct {
		BreakpointID   string   `json:"breakpointId"`
		ActualLocation Location `json:"actualLocation"`
	}
	if err := d.API.Call(ctx, "Debugger.setBreakpoint", params, &result); err != nil {
		return "", Location{}, err
	}
	return result.BreakpointID, result.ActualLocation, nil
}

func (d Debugger) RemoveBreakpoint(ctx context.Context, rawID string) error {
	params := struct {
		BreakpointID string `json:"breakpointId"`
	}{rawID}
	return d.API.Call(ctx, "Debugger.removeBreakpoint", params, nil)
}

// GetScriptSource returns the script source; for WebAssembly scripts the
// module bytes arrive base64-encoded in bytecode.
func (d Debugger) GetScriptSource(ctx context.Context, scriptID string) (source, bytecode string, err error) {
	params := struct {
		ScriptID string `json:"scriptId"`
	}{scriptID}
	var result struct {
		ScriptSource string `json:"scriptSource"`
		Bytecode     string `json:"bytecode"`
	}
	if err := d.API.Call(ctx, "Debugger.getScriptSource", params, &result); err != nil {
		return "", "", err
	}
	return result.ScriptSource, result.Bytecode, nil
}

func (d Debugger) Resume(ctx context.Context) error {
	return d.API.Call(ctx, "Debugger.resume", nil, nil)
}

func (d Debugger) StepOver(ctx context.Context) error {
	return d.API.Call(ctx, "Debugger.stepOver", nil, nil)
}

func (d Debugger) StepInto(ctx context.Context) error {
	return d.API.Call(ctx, "Debugger.stepInto", nil, nil)
}

func (d Debugger) StepOut(ctx context.Context) error {
	return d.API.Call(ctx, "Debugger.stepOut", nil, nil)
}

// EvaluateOnCallFrame evaluates a javascript expression in the context of a
// paused call frame and returns the value by-value.
func (d Debugger) EvaluateOnCallFrame(ctx context.Context, callFrameID, expr string) (RemoteObject, error) {
	params := struct {
		CallFrameID   string `json:"callFrameId"`
		Expression    string `json:"expression"`
		ReturnByValue bool   `json:"returnByValue"`
	}{callFrameID, expr, true}
	var result struct {
		Result RemoteObject `json:"result"`
	}
	err := d.API.Call(ctx, "Debugger.evaluateOnCallFrame", params, &result)
	return result.Result, err
}

// Runtime typed wrapper for the Runtime domain.
type Runtime struct {
	API SessionAPI
}

func (r Runtime) Enable(ctx context.Context) error {
	return r.API.Call(ctx, "Runtime.enable", nil, nil)
}

// RunIfWaitingForDebugger releases a target started with
// waitForDebuggerOnStart.
func (r Runtime) RunIfWaitingForDebugger(ctx context.Context) error {
	return r.API.Call(ctx, "Runtime.runIfWaitingForDebugger", nil, nil)
}

func (r Runtime) GetProperties(ctx context.Context, objectID string) ([]PropertyDescriptor, error) {
	params := struct {
		ObjectID               string `json:"objectId"`
		OwnProperties          bool   `json:"ownProperties"`
		GeneratePreviewForData bool   `json:"generatePreview"`
	}{objectID, true, false}
	var result struct {
		Result []PropertyDescriptor `json:"result"`
	}
	err := r.API.Call(ctx, "Runtime.getProperties", params, &result)
	return result.Result, err
}

// Page typed wrapper for the Page domain.
type Page struct {
	API SessionAPI
}

func (p Page) Enable(ctx context.Context) error {
	return p.API.Call(ctx, "Page.enable", nil, nil)
}

func (p Page) Navigate(ctx context.Context, url string) error {
	params := struct {
		URL string `json:"url"`
	}{url}
	return p.API.Call(ctx, "Page.navigate", params, nil)
}

// Target typed wrapper for the Target domain.
type Target struct {
	API SessionAPI
}

func (t Target) SetDiscoverTargets(ctx context.Context, discover bool) error {
	params := struct {
		Discover bool `json:"discover"`
	}{discover}
	return t.API.Call(ctx, "Target.setDiscoverTargets", params, nil)
}

// SetAutoAttach attaches to related targets (workers) as they spawn, pausing
// each until the debugger releases it.
func (t Target) SetAutoAttach(ctx context.Context) error {
	params := struct {
		AutoAttach             bool `json:"autoAttach"`
		WaitForDebuggerOnStart bool `json:"waitForDebuggerOnStart"`
		Flatten                bool `json:"flatten"`
	}{true, true, true}
	return t.API.Call(ctx, "Target.setAutoAttach", params, nil)
}
