package debug

import (
	"fmt"

	"github.com/hitzhangjie/wadbg/pkg/symbol"
	"github.com/hitzhangjie/wadbg/pkg/target"
)

// ConsoleSink prints debugger events onto the shell.
type ConsoleSink struct{}

func (ConsoleSink) BreakpointChanged(threadID int, rb target.ResolvedBreakpoint) {
	fmt.Printf("breakpoint %d resolved to %s:%d\n", rb.ID, rb.File, rb.Line)
}

func (ConsoleSink) ThreadStarted(threadID int) {
	fmt.Printf("thread %d started\n", threadID)
}

func (ConsoleSink) ThreadExited(threadID int) {
	fmt.Printf("thread %d exited\n", threadID)
}

func (ConsoleSink) Stopped(threadID int, reason string, loc symbol.LineInfo) {
	fmt.Printf("thread %d stopped (%s) at %s\n", threadID, reason, loc)
}

func (ConsoleSink) Continued(threadID int) {
	fmt.Printf("thread %d continued\n", threadID)
}

func (ConsoleSink) Terminated() {
	fmt.Println("debuggee terminated")
}

func (ConsoleSink) Output(category, line string) {
	fmt.Printf("[%s] %s\n", category, line)
}
