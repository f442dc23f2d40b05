// Package dap exposes the debugger core over the Debug Adapter Protocol,
// speaking DAP framing on an arbitrary reader/writer pair (usually
// stdin/stdout of the adapter process).
package dap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/go-dap"
	"github.com/tidwall/gjson"

	"github.com/hitzhangjie/wadbg/pkg/symbol"
	"github.com/hitzhangjie/wadbg/pkg/target"
)

// Connector dials the debuggee described by the launch/attach arguments and
// returns an activated debug session. wait blocks until the underlying
// connection dies.
type Connector func(ctx context.Context, host string, port int, url string, sink target.EventSink) (session *target.DebugSession, wait func() error, err error)

// Server one DAP session over a stream pair.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	logger *log.Logger

	connect Connector
	session *target.DebugSession

	writeMu sync.Mutex
	seq     int

	varMu   sync.Mutex
	varRefs map[int]varRef
	nextRef int
}

type varRef struct {
	threadID int
	frame    int
	groupID  int32
	global   bool
}

func NewServer(r io.Reader, w io.Writer, connect Connector, logger *log.Logger) *Server {
	return &Server{
		in:      bufio.NewReader(r),
		out:     bufio.NewWriter(w),
		logger:  logger,
		connect: connect,
		varRefs: map[int]varRef{},
		nextRef: 1,
	}
}

// Serve processes requests until the stream closes.
func (s *Server) Serve(ctx context.Context) error {
	for {
		msg, err := dap.ReadProtocolMessage(s.in)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			continue
		}
		s.dispatch(ctx, req)
		if _, done := msg.(*dap.DisconnectRequest); done {
			return nil
		}
	}
}

func (s *Server) send(msg dap.Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := dap.WriteProtocolMessage(s.out, msg); err != nil {
		s.logger.Printf("dap: write: %v", err)
		return
	}
	s.out.Flush()
}

func (s *Server) newEvent(event string) dap.Event {
	s.writeMu.Lock()
	s.seq++
	seq := s.seq
	s.writeMu.Unlock()
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "event"},
		Event:           event,
	}
}

func (s *Server) newResponse(req dap.RequestMessage) dap.Response {
	r := req.GetRequest()
	s.writeMu.Lock()
	s.seq++
	seq := s.seq
	s.writeMu.Unlock()
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "response"},
		Command:         r.Command,
		RequestSeq:      r.Seq,
		Success:         true,
	}
}

func (s *Server) sendError(req dap.RequestMessage, err error) {
	resp := s.newResponse(req)
	resp.Success = false
	resp.Message = err.Error()
	s.send(&dap.ErrorResponse{Response: resp})
}

func (s *Server) dispatch(ctx context.Context, req dap.RequestMessage) {
	switch req := req.(type) {
	case *dap.InitializeRequest:
		s.onInitialize(req)
	case *dap.LaunchRequest:
		s.onLaunchAttach(ctx, req, req.Arguments)
	case *dap.AttachRequest:
		s.onLaunchAttach(ctx, req, req.Arguments)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpoints(ctx, req)
	case *dap.ConfigurationDoneRequest:
		s.send(&dap.ConfigurationDoneResponse{Response: s.newResponse(req)})
	case *dap.ThreadsRequest:
		s.onThreads(req)
	case *dap.StackTraceRequest:
		s.onStackTrace(req)
	case *dap.ScopesRequest:
		s.onScopes(req)
	case *dap.VariablesRequest:
		s.onVariables(req)
	case *dap.EvaluateRequest:
		s.onEvaluate(ctx, req)
	case *dap.ContinueRequest:
		s.onWorkflow(ctx, req, req.Arguments.ThreadId, s.sessionDo((*target.DebugSession).Continue))
	case *dap.NextRequest:
		s.onWorkflow(ctx, req, req.Arguments.ThreadId, s.sessionDo((*target.DebugSession).StepOver))
	case *dap.StepInRequest:
		s.onWorkflow(ctx, req, req.Arguments.ThreadId, s.sessionDo((*target.DebugSession).StepIn))
	case *dap.StepOutRequest:
		s.onWorkflow(ctx, req, req.Arguments.ThreadId, s.sessionDo((*target.DebugSession).StepOut))
	case *dap.DisconnectRequest:
		if s.session != nil {
			s.session.Deactivate()
		}
		s.send(&dap.DisconnectResponse{Response: s.newResponse(req)})
	default:
		s.sendError(req, fmt.Errorf("dap: unsupported request %q", req.GetRequest().Command))
	}
}

func (s *Server) sessionDo(fn func(*target.DebugSession, context.Context, int) error) func(context.Context, int) error {
	return func(ctx context.Context, threadID int) error {
		if s.session == nil {
			return fmt.Errorf("dap: no active session")
		}
		return fn(s.session, ctx, threadID)
	}
}

func (s *Server) onInitialize(req *dap.InitializeRequest) {
	resp := &dap.InitializeResponse{Response: s.newResponse(req)}
	resp.Body = dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsEvaluateForHovers:        true,
	}
	s.send(resp)

	ev := &dap.InitializedEvent{Event: s.newEvent("initialized")}
	s.send(ev)
}

func (s *Server) onLaunchAttach(ctx context.Context, req dap.RequestMessage, args []byte) {
	host := gjson.GetBytes(args, "host").String()
	if host == "" {
		host = "127.0.0.1"
	}
	port := int(gjson.GetBytes(args, "port").Int())
	if port == 0 {
		port = 9222
	}
	url := gjson.GetBytes(args, "url").String()

	session, wait, err := s.connect(ctx, host, port, url, s)
	if err != nil {
		s.sendError(req, err)
		return
	}
	s.session = session
	go func() {
		if err := wait(); err != nil {
			s.logger.Printf("dap: connection lost: %v", err)
		}
		s.Terminated()
	}()

	switch req := req.(type) {
	case *dap.LaunchRequest:
		s.send(&dap.LaunchResponse{Response: s.newResponse(req)})
	case *dap.AttachRequest:
		s.send(&dap.AttachResponse{Response: s.newResponse(req)})
	}
}

func (s *Server) onSetBreakpoints(ctx context.Context, req *dap.SetBreakpointsRequest) {
	if s.session == nil {
		s.sendError(req, fmt.Errorf("dap: no active session"))
		return
	}
	path := req.Arguments.Source.Path

	// the request carries the complete wanted set for this file
	s.session.RemoveAllBreakPoints(ctx, path)

	resp := &dap.SetBreakpointsResponse{Response: s.newResponse(req)}
	for _, want := range req.Arguments.Breakpoints {
		rb, err := s.session.SetBreakPoint(ctx, path, want.Line, want.Column)
		if err != nil {
			resp.Body.Breakpoints = append(resp.Body.Breakpoints, dap.Breakpoint{Verified: false})
			continue
		}
		resp.Body.Breakpoints = append(resp.Body.Breakpoints, dapBreakpoint(rb))
	}
	s.send(resp)
}

func dapBreakpoint(rb target.ResolvedBreakpoint) dap.Breakpoint {
	return dap.Breakpoint{
		Id:       int(rb.ID),
		Verified: rb.Verified,
		Line:     rb.Line,
		Source:   &dap.Source{Path: rb.File},
	}
}

func (s *Server) onThreads(req *dap.ThreadsRequest) {
	resp := &dap.ThreadsResponse{Response: s.newResponse(req)}
	if s.session != nil {
		for _, info := range s.session.GetThreadList() {
			resp.Body.Threads = append(resp.Body.Threads, dap.Thread{
				Id:   info.ID,
				Name: fmt.Sprintf("thread %d (%s)", info.ID, info.State),
			})
		}
	}
	if len(resp.Body.Threads) == 0 {
		resp.Body.Threads = []dap.Thread{{Id: 0, Name: "thread 0"}}
	}
	s.send(resp)
}

// frame ids pack (thread, frame index)
func frameID(threadID, index int) int {
	return threadID*1000 + index
}

func splitFrameID(id int) (threadID, index int) {
	return id / 1000, id % 1000
}

func (s *Server) onStackTrace(req *dap.StackTraceRequest) {
	if s.session == nil {
		s.sendError(req, fmt.Errorf("dap: no active session"))
		return
	}
	threadID := req.Arguments.ThreadId
	frames, err := s.session.GetStackFrames(threadID)
	if err != nil {
		s.sendError(req, err)
		return
	}
	resp := &dap.StackTraceResponse{Response: s.newResponse(req)}
	for _, f := range frames {
		resp.Body.StackFrames = append(resp.Body.StackFrames, dap.StackFrame{
			Id:     frameID(threadID, f.Index),
			Name:   f.FunctionName,
			Line:   f.Line,
			Source: &dap.Source{Path: f.File},
		})
	}
	resp.Body.TotalFrames = len(frames)
	s.send(resp)
}

func (s *Server) ref(r varRef) int {
	s.varMu.Lock()
	defer s.varMu.Unlock()
	id := s.nextRef
	s.nextRef++
	s.varRefs[id] = r
	return id
}

func (s *Server) deref(id int) (varRef, bool) {
	s.varMu.Lock()
	defer s.varMu.Unlock()
	r, ok := s.varRefs[id]
	return r, ok
}

func (s *Server) resetRefs() {
	s.varMu.Lock()
	defer s.varMu.Unlock()
	s.varRefs = map[int]varRef{}
	s.nextRef = 1
}

func (s *Server) onScopes(req *dap.ScopesRequest) {
	threadID, frame := splitFrameID(req.Arguments.FrameId)
	if s.session != nil {
		if err := s.session.SetFocusedFrame(threadID, frame); err != nil {
			s.sendError(req, err)
			return
		}
	}
	resp := &dap.ScopesResponse{Response: s.newResponse(req)}
	resp.Body.Scopes = []dap.Scope{
		{Name: "Locals", VariablesReference: s.ref(varRef{threadID: threadID, frame: frame})},
		{Name: "Globals", VariablesReference: s.ref(varRef{threadID: threadID, frame: frame, global: true}), Expensive: true},
	}
	s.send(resp)
}

func (s *Server) onVariables(req *dap.VariablesRequest) {
	if s.session == nil {
		s.sendError(req, fmt.Errorf("dap: no active session"))
		return
	}
	r, ok := s.deref(req.Arguments.VariablesReference)
	if !ok {
		s.sendError(req, fmt.Errorf("dap: unknown variables reference %d", req.Arguments.VariablesReference))
		return
	}

	var names []symbol.VariableName
	var err error
	if r.global {
		names, err = s.session.ListGlobalVariable(r.threadID, r.groupID)
	} else {
		names, err = s.session.ListVariable(r.threadID, r.groupID)
	}
	if err != nil {
		s.sendError(req, err)
		return
	}

	resp := &dap.VariablesResponse{Response: s.newResponse(req)}
	for _, n := range names {
		v := dap.Variable{Name: n.DisplayName, Type: n.TypeName, Value: n.TypeName}
		if n.ChildGroupID != 0 {
			v.VariablesReference = s.ref(varRef{
				threadID: r.threadID,
				frame:    r.frame,
				groupID:  n.ChildGroupID,
				global:   r.global,
			})
		}
		resp.Body.Variables = append(resp.Body.Variables, v)
	}
	s.send(resp)
}

func (s *Server) onEvaluate(ctx context.Context, req *dap.EvaluateRequest) {
	if s.session == nil {
		s.sendError(req, fmt.Errorf("dap: no active session"))
		return
	}
	threadID, _ := splitFrameID(req.Arguments.FrameId)
	value, err := s.session.DumpVariable(ctx, threadID, req.Arguments.Expression)
	resp := &dap.EvaluateResponse{Response: s.newResponse(req)}
	if err != nil {
		// keep the UI responsive: the failure message is the value
		resp.Body.Result = err.Error()
	} else {
		resp.Body.Result = value
	}
	s.send(resp)
}

func (s *Server) onWorkflow(ctx context.Context, req dap.RequestMessage, threadID int, do func(context.Context, int) error) {
	if err := do(ctx, threadID); err != nil {
		s.sendError(req, err)
		return
	}
	resp := s.newResponse(req)
	switch req := req.(type) {
	case *dap.ContinueRequest:
		s.send(&dap.ContinueResponse{Response: resp})
	case *dap.NextRequest:
		s.send(&dap.NextResponse{Response: resp})
	case *dap.StepInRequest:
		s.send(&dap.StepInResponse{Response: resp})
	case *dap.StepOutRequest:
		s.send(&dap.StepOutResponse{Response: resp})
	default:
		_ = req
	}
}

// --- target.EventSink ---

func (s *Server) BreakpointChanged(threadID int, rb target.ResolvedBreakpoint) {
	ev := &dap.BreakpointEvent{Event: s.newEvent("breakpoint")}
	ev.Body.Reason = "changed"
	ev.Body.Breakpoint = dapBreakpoint(rb)
	s.send(ev)
}

func (s *Server) ThreadStarted(threadID int) {
	ev := &dap.ThreadEvent{Event: s.newEvent("thread")}
	ev.Body.Reason = "started"
	ev.Body.ThreadId = threadID
	s.send(ev)
}

func (s *Server) ThreadExited(threadID int) {
	ev := &dap.ThreadEvent{Event: s.newEvent("thread")}
	ev.Body.Reason = "exited"
	ev.Body.ThreadId = threadID
	s.send(ev)
}

func (s *Server) Stopped(threadID int, reason string, loc symbol.LineInfo) {
	s.resetRefs()
	ev := &dap.StoppedEvent{Event: s.newEvent("stopped")}
	switch reason {
	case "other", "ambiguous":
		ev.Body.Reason = "step"
	default:
		ev.Body.Reason = "breakpoint"
	}
	ev.Body.ThreadId = threadID
	ev.Body.AllThreadsStopped = false
	ev.Body.Description = loc.String()
	s.send(ev)
}

func (s *Server) Continued(threadID int) {
	ev := &dap.ContinuedEvent{Event: s.newEvent("continued")}
	ev.Body.ThreadId = threadID
	s.send(ev)
}

func (s *Server) Terminated() {
	s.send(&dap.TerminatedEvent{Event: s.newEvent("terminated")})
}

func (s *Server) Output(category, line string) {
	ev := &dap.OutputEvent{Event: s.newEvent("output")}
	ev.Body.Category = category
	ev.Body.Output = line + "\n"
	s.send(ev)
}
