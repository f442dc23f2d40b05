package target

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hitzhangjie/wadbg/pkg/cdp"
	"github.com/hitzhangjie/wadbg/pkg/symbol"
)

// ErrProtocolViolation CDP answered with a shape that contradicts the
// protocol (e.g. a wasm frame without a local scope). The current paused
// state cannot be trusted; the thread goes back to Running.
var ErrProtocolViolation = errors.New("target: CDP protocol violation")

// StackFrame a resolved stack entry as shown to the user.
type StackFrame struct {
	Index        int
	FunctionName string
	File         string
	Line         int
	// Instruction the wasm byte offset (the CDP column number) of this frame.
	Instruction uint64
}

func (f StackFrame) String() string {
	return fmt.Sprintf("#%d %s %s:%d", f.Index, f.FunctionName, f.File, f.Line)
}

// callFrame one CDP call frame captured at a pause, with the typed value
// stores built lazily on first use and memoized for the pause's lifetime.
type callFrame struct {
	raw      cdp.CallFrame
	resolved StackFrame
	wasm     *symbol.WasmFile // nil for javascript frames

	storesOnce sync.Once
	stores     *symbol.ValueSnapshot
	storesErr  error
}

// valueStores builds the {stacks, locals, globals} snapshot from the
// frame's scope chain, at most once. The three vectors share no state and
// are fetched concurrently.
func (f *callFrame) valueStores(ctx context.Context, rt cdp.Runtime) (*symbol.ValueSnapshot, error) {
	f.storesOnce.Do(func() {
		f.stores, f.storesErr = buildSnapshot(ctx, rt, f.raw)
	})
	return f.stores, f.storesErr
}

func buildSnapshot(ctx context.Context, rt cdp.Runtime, frame cdp.CallFrame) (*symbol.ValueSnapshot, error) {
	var localID, stackID, moduleID string
	for _, scope := range frame.ScopeChain {
		switch scope.Type {
		case "local":
			localID = scope.Object.ObjectID
		case "wasm-expression-stack":
			stackID = scope.Object.ObjectID
		case "module", "global":
			if moduleID == "" {
				moduleID = scope.Object.ObjectID
			}
		}
	}
	if localID == "" {
		return nil, fmt.Errorf("%w: no local scope in frame %s", ErrProtocolViolation, frame.CallFrameID)
	}

	snap := &symbol.ValueSnapshot{}
	var wg sync.WaitGroup
	var errLocal, errStack, errGlobal error

	wg.Add(1)
	go func() {
		defer wg.Done()
		snap.Locals, errLocal = scopeVector(ctx, rt, localID)
	}()
	if stackID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap.Stacks, errStack = scopeVector(ctx, rt, stackID)
		}()
	}
	if moduleID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap.Globals, errGlobal = globalsVector(ctx, rt, moduleID)
		}()
	}
	wg.Wait()

	for _, err := range []error{errLocal, errStack, errGlobal} {
		if err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func scopeVector(ctx context.Context, rt cdp.Runtime, objectID string) ([]symbol.Value, error) {
	props, err := rt.GetProperties(ctx, objectID)
	if err != nil {
		return nil, err
	}
	return buildValueVector(ctx, rt, props)
}

// globalsVector digs the "globals" member out of the module scope; older
// runtimes expose the globals directly on the scope object instead.
func globalsVector(ctx context.Context, rt cdp.Runtime, objectID string) ([]symbol.Value, error) {
	props, err := rt.GetProperties(ctx, objectID)
	if err != nil {
		return nil, err
	}
	for _, p := range props {
		if p.Name == "globals" && p.Value != nil && p.Value.ObjectID != "" {
			return scopeVector(ctx, rt, p.Value.ObjectID)
		}
	}
	return buildValueVector(ctx, rt, props)
}
