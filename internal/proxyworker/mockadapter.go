package proxyworker

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	dap "github.com/google/go-dap"

	"github.com/oriys/dapbridge/internal/policy"
)

// MockSpawner implements Spawner for policy.TransportMock: instead of
// forking a subprocess it starts an in-process DAP responder connected
// over net.Pipe, so the rest of the core (framing, request tracking,
// session manager) can be exercised deterministically in tests without a
// real debugpy/js-debug/CodeLLDB/lldb-dap binary on PATH.
type MockSpawner struct{}

func (MockSpawner) Spawn(ctx context.Context, cfg policy.SpawnConfig, opts policy.SpawnOptions) (Process, error) {
	clientSide, adapterSide := net.Pipe()
	m := &mockProcess{conn: clientSide, done: make(chan struct{})}
	go runMockAdapter(adapterSide, m.done)
	return m, nil
}

type mockProcess struct {
	conn net.Conn
	done chan struct{}
}

func (m *mockProcess) Conn(ctx context.Context) (io.ReadWriteCloser, error) { return m.conn, nil }

func (m *mockProcess) Wait() error {
	<-m.done
	return nil
}

func (m *mockProcess) Kill() error {
	return m.conn.Close()
}

// runMockAdapter speaks just enough DAP to drive the full Session Manager
// surface: it acknowledges initialize/launch, emits initialized, accepts
// setBreakpoints (marking every breakpoint verified), emits a stopped
// event shortly after configurationDone, and answers stack/scopes/
// variables/evaluate with small deterministic fixtures.
func runMockAdapter(conn net.Conn, done chan struct{}) {
	defer close(done)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		msg, err := dap.ReadProtocolMessage(reader)
		if err != nil {
			return
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			continue
		}
		base := req.GetRequest()

		switch r := req.(type) {
		case *dap.InitializeRequest:
			writeMock(conn, &dap.InitializeResponse{Response: newResp(base, true)})
			writeMock(conn, &dap.InitializedEvent{Event: newEvt("initialized")})
		case *dap.LaunchRequest:
			writeMock(conn, &dap.LaunchResponse{Response: newResp(base, true)})
		case *dap.AttachRequest:
			writeMock(conn, &dap.AttachResponse{Response: newResp(base, true)})
		case *dap.SetBreakpointsRequest:
			bps := make([]dap.Breakpoint, 0, len(r.Arguments.Breakpoints))
			for i, b := range r.Arguments.Breakpoints {
				bps = append(bps, dap.Breakpoint{Id: i + 1, Verified: true, Line: b.Line, Source: &r.Arguments.Source})
			}
			writeMock(conn, &dap.SetBreakpointsResponse{
				Response: newResp(base, true),
				Body:     dap.SetBreakpointsResponseBody{Breakpoints: bps},
			})
		case *dap.ConfigurationDoneRequest:
			writeMock(conn, &dap.ConfigurationDoneResponse{Response: newResp(base, true)})
			go func() {
				time.Sleep(20 * time.Millisecond)
				writeMock(conn, &dap.StoppedEvent{
					Event: newEvt("stopped"),
					Body:  dap.StoppedEventBody{Reason: "breakpoint", ThreadId: 1, AllThreadsStopped: true},
				})
			}()
		case *dap.ThreadsRequest:
			writeMock(conn, &dap.ThreadsResponse{
				Response: newResp(base, true),
				Body:     dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: 1, Name: "main"}}},
			})
		case *dap.StackTraceRequest:
			writeMock(conn, &dap.StackTraceResponse{
				Response: newResp(base, true),
				Body: dap.StackTraceResponseBody{
					StackFrames: []dap.StackFrame{{Id: 1, Name: "main", Line: 1, Column: 1, Source: &dap.Source{Path: "mock.py"}}},
					TotalFrames: 1,
				},
			})
		case *dap.ScopesRequest:
			writeMock(conn, &dap.ScopesResponse{
				Response: newResp(base, true),
				Body:     dap.ScopesResponseBody{Scopes: []dap.Scope{{Name: "Locals", VariablesReference: 1000}}},
			})
		case *dap.VariablesRequest:
			writeMock(conn, &dap.VariablesResponse{
				Response: newResp(base, true),
				Body: dap.VariablesResponseBody{Variables: []dap.Variable{
					{Name: "i", Value: "6", Type: "int"},
				}},
			})
		case *dap.EvaluateRequest:
			writeMock(conn, &dap.EvaluateResponse{
				Response: newResp(base, true),
				Body:     dap.EvaluateResponseBody{Result: r.Arguments.Expression, Type: "str"},
			})
		case *dap.ContinueRequest:
			writeMock(conn, &dap.ContinueResponse{Response: newResp(base, true)})
		case *dap.NextRequest:
			writeMock(conn, &dap.NextResponse{Response: newResp(base, true)})
			go emitStoppedSoon(conn, "step")
		case *dap.StepInRequest:
			writeMock(conn, &dap.StepInResponse{Response: newResp(base, true)})
			go emitStoppedSoon(conn, "step")
		case *dap.StepOutRequest:
			writeMock(conn, &dap.StepOutResponse{Response: newResp(base, true)})
			go emitStoppedSoon(conn, "step")
		case *dap.PauseRequest:
			writeMock(conn, &dap.PauseResponse{Response: newResp(base, true)})
			go emitStoppedSoon(conn, "pause")
		case *dap.DisconnectRequest:
			writeMock(conn, &dap.DisconnectResponse{Response: newResp(base, true)})
			return
		case *dap.TerminateRequest:
			writeMock(conn, &dap.TerminateResponse{Response: newResp(base, true)})
		default:
			writeMock(conn, &dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Seq: 0, Type: "response"},
				RequestSeq:      base.Seq,
				Success:         true,
				Command:         base.Command,
			})
		}
	}
}

func emitStoppedSoon(conn net.Conn, reason string) {
	time.Sleep(10 * time.Millisecond)
	writeMock(conn, &dap.StoppedEvent{
		Event: newEvt("stopped"),
		Body:  dap.StoppedEventBody{Reason: reason, ThreadId: 1, AllThreadsStopped: true},
	})
}

func writeMock(w io.Writer, msg dap.Message) {
	_ = dap.WriteProtocolMessage(w, msg)
}

var mockSeq int64

func newResp(base *dap.Request, success bool) dap.Response {
	seq := atomic.AddInt64(&mockSeq, 1)
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: int(seq), Type: "response"},
		RequestSeq:      base.Seq,
		Success:         success,
		Command:         base.Command,
	}
}

func newEvt(event string) dap.Event {
	seq := atomic.AddInt64(&mockSeq, 1)
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: int(seq), Type: "event"},
		Event:           event,
	}
}
