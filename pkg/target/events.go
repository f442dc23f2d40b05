package target

import "github.com/hitzhangjie/wadbg/pkg/symbol"

// EventSink receives the debugger's outbound events. The CLI prints them,
// the DAP server turns them into protocol events.
type EventSink interface {
	// BreakpointChanged a previously unverified breakpoint got a real address.
	BreakpointChanged(threadID int, bp ResolvedBreakpoint)
	ThreadStarted(threadID int)
	ThreadExited(threadID int)
	// Stopped the thread surfaced a pause at the given source location.
	Stopped(threadID int, reason string, loc symbol.LineInfo)
	Continued(threadID int)
	Terminated()
	Output(category, line string)
}

// NopSink drops everything; embedded by sinks that only care about a few
// events.
type NopSink struct{}

func (NopSink) BreakpointChanged(int, ResolvedBreakpoint) {}

func (NopSink) ThreadStarted(int) {}

func (NopSink) ThreadExited(int) {}

func (NopSink) Stopped(int, string, symbol.LineInfo) {}

func (NopSink) Continued(int) {}

func (NopSink) Terminated() {}

func (NopSink) Output(string, string) {}
