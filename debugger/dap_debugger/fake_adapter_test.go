package dap_debugger

import (
	"bufio"
	"net"
	"sync"
	"testing"

	"github.com/google/go-dap"
)

// fakeAdapter 通过net.Pipe模拟调试适配器
// handlers按command覆盖默认的响应
type fakeAdapter struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	mutex    sync.Mutex
	requests []dap.RequestMessage

	handlers  map[string]func(a *fakeAdapter, req dap.RequestMessage)
	variables map[int][]dap.Variable
}

func newFakeAdapter(t *testing.T) (*fakeAdapter, Transport) {
	server, clientConn := net.Pipe()
	a := &fakeAdapter{
		t:         t,
		conn:      server,
		reader:    bufio.NewReader(server),
		handlers:  map[string]func(a *fakeAdapter, req dap.RequestMessage){},
		variables: map[int][]dap.Variable{},
	}
	go a.serve()
	t.Cleanup(func() {
		_ = a.conn.Close()
	})
	return a, NewConnTransport(clientConn)
}

func (a *fakeAdapter) serve() {
	for {
		msg, err := dap.ReadProtocolMessage(a.reader)
		if err != nil {
			return
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			continue
		}
		a.mutex.Lock()
		a.requests = append(a.requests, req)
		handler, ok := a.handlers[req.GetRequest().Command]
		a.mutex.Unlock()
		if ok {
			handler(a, req)
			continue
		}
		a.defaultHandle(req)
	}
}

func (a *fakeAdapter) on(command string, handler func(a *fakeAdapter, req dap.RequestMessage)) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.handlers[command] = handler
}

func (a *fakeAdapter) received(command string) []dap.RequestMessage {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	var answer []dap.RequestMessage
	for _, req := range a.requests {
		if req.GetRequest().Command == command {
			answer = append(answer, req)
		}
	}
	return answer
}

func (a *fakeAdapter) send(msg dap.Message) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = dap.WriteProtocolMessage(a.conn, msg)
}

func (a *fakeAdapter) respond(req dap.RequestMessage, resp dap.ResponseMessage) {
	r := resp.GetResponse()
	r.Type = "response"
	r.RequestSeq = req.GetRequest().Seq
	r.Command = req.GetRequest().Command
	r.Success = true
	a.send(resp)
}

func (a *fakeAdapter) fail(req dap.RequestMessage, message string) {
	a.send(&dap.ErrorResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Type: "response"},
			RequestSeq:      req.GetRequest().Seq,
			Command:         req.GetRequest().Command,
			Success:         false,
			Message:         message,
		},
		Body: dap.ErrorResponseBody{Error: &dap.ErrorMessage{Format: message}},
	})
}

func newEvent(event string) dap.Event {
	return dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: event}
}

func (a *fakeAdapter) stopped(reason string, threadID int, hit ...int) {
	a.send(&dap.StoppedEvent{
		Event: newEvent("stopped"),
		Body:  dap.StoppedEventBody{Reason: reason, ThreadId: threadID, HitBreakpointIds: hit},
	})
}

func (a *fakeAdapter) defaultHandle(req dap.RequestMessage) {
	switch r := req.(type) {
	case *dap.InitializeRequest:
		a.respond(req, &dap.InitializeResponse{Body: dap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsFunctionBreakpoints:      true,
		}})
	case *dap.LaunchRequest:
		a.respond(req, &dap.LaunchResponse{})
		a.send(&dap.InitializedEvent{Event: newEvent("initialized")})
	case *dap.AttachRequest:
		a.respond(req, &dap.AttachResponse{})
		a.send(&dap.InitializedEvent{Event: newEvent("initialized")})
	case *dap.SetFunctionBreakpointsRequest:
		var breakpoints []dap.Breakpoint
		for i := range r.Arguments.Breakpoints {
			breakpoints = append(breakpoints, dap.Breakpoint{Id: 100 + i, Verified: true})
		}
		a.respond(req, &dap.SetFunctionBreakpointsResponse{
			Body: dap.SetFunctionBreakpointsResponseBody{Breakpoints: breakpoints},
		})
	case *dap.ConfigurationDoneRequest:
		a.respond(req, &dap.ConfigurationDoneResponse{})
	case *dap.SetBreakpointsRequest:
		// 第99行没有代码
		var breakpoints []dap.Breakpoint
		for _, bp := range r.Arguments.Breakpoints {
			breakpoints = append(breakpoints, dap.Breakpoint{Id: bp.Line, Verified: bp.Line != 99, Line: bp.Line})
		}
		a.respond(req, &dap.SetBreakpointsResponse{Body: dap.SetBreakpointsResponseBody{Breakpoints: breakpoints}})
	case *dap.ThreadsRequest:
		a.respond(req, &dap.ThreadsResponse{Body: dap.ThreadsResponseBody{
			Threads: []dap.Thread{{Id: 1, Name: "main"}, {Id: 2, Name: "worker"}},
		}})
	case *dap.ContinueRequest:
		a.respond(req, &dap.ContinueResponse{Body: dap.ContinueResponseBody{AllThreadsContinued: true}})
	case *dap.NextRequest:
		a.respond(req, &dap.NextResponse{})
	case *dap.PauseRequest:
		a.respond(req, &dap.PauseResponse{})
	case *dap.StackTraceRequest:
		a.respond(req, &dap.StackTraceResponse{Body: dap.StackTraceResponseBody{
			StackFrames: []dap.StackFrame{
				{Id: 10, Name: "main.main", Line: 6, Source: &dap.Source{Path: "/src/main.go"}},
				{Id: 11, Name: "runtime.main", Line: 250, Source: &dap.Source{Path: "/go/src/runtime/proc.go"}},
			},
			TotalFrames: 2,
		}})
	case *dap.ScopesRequest:
		a.respond(req, &dap.ScopesResponse{Body: dap.ScopesResponseBody{Scopes: []dap.Scope{
			{Name: "Locals", VariablesReference: 1000},
			{Name: "Globals", VariablesReference: 2000, Expensive: true},
		}}})
	case *dap.VariablesRequest:
		a.mutex.Lock()
		variables := a.variables[r.Arguments.VariablesReference]
		a.mutex.Unlock()
		a.respond(req, &dap.VariablesResponse{Body: dap.VariablesResponseBody{Variables: variables}})
	case *dap.DisconnectRequest:
		a.respond(req, &dap.DisconnectResponse{})
		a.send(&dap.TerminatedEvent{Event: newEvent("terminated")})
	default:
		a.fail(req, "unsupported")
	}
}
