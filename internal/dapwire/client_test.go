package dapwire

import (
	"net"
	"testing"
	"time"

	dap "github.com/google/go-dap"
)

// pipePair returns two connected Clients wired over an in-memory net.Pipe,
// simulating a proxy worker (client) talking to an adapter (server).
func pipePair(t *testing.T) (clientSide *Client, adapterSide *Client) {
	t.Helper()
	a, b := net.Pipe()
	clientSide = New(a, nil)
	adapterSide = New(b, nil)
	go clientSide.Serve()
	go adapterSide.Serve()
	return clientSide, adapterSide
}

func TestClientSendRequestRoundTrip(t *testing.T) {
	client, adapter := pipePair(t)
	defer client.Close()
	defer adapter.Close()

	adapter.SetReverseRequestHandler(func(req dap.RequestMessage) {
		ir, ok := req.(*dap.InitializeRequest)
		if !ok {
			t.Errorf("adapter received unexpected request type %T", req)
			return
		}
		resp := &dap.InitializeResponse{
			Response: dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Type: "response"},
				RequestSeq:      ir.Seq,
				Success:         true,
				Command:         ir.Command,
			},
			Body: dap.Capabilities{SupportsConfigurationDoneRequest: true},
		}
		if err := adapter.Respond(resp); err != nil {
			t.Errorf("adapter respond: %v", err)
		}
	})

	req := &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "initialize",
		},
		Arguments: dap.InitializeRequestArguments{ClientID: "dapbridge"},
	}

	msg, err := client.SendRequest(req, time.Second)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	resp, ok := msg.(*dap.InitializeResponse)
	if !ok {
		t.Fatalf("got %T, want *dap.InitializeResponse", msg)
	}
	if !resp.Body.SupportsConfigurationDoneRequest {
		t.Fatal("expected SupportsConfigurationDoneRequest to be true")
	}
}

func TestClientEventDelivery(t *testing.T) {
	client, adapter := pipePair(t)
	defer client.Close()
	defer adapter.Close()

	events := make(chan dap.EventMessage, 1)
	client.SetEventHandler(func(ev dap.EventMessage) {
		events <- ev
	})

	stopped := &dap.StoppedEvent{
		Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: "stopped"},
		Body:  dap.StoppedEventBody{Reason: "breakpoint", ThreadId: 1},
	}
	if err := adapter.Respond(stopped); err != nil {
		t.Fatalf("adapter send event: %v", err)
	}

	select {
	case ev := <-events:
		se, ok := ev.(*dap.StoppedEvent)
		if !ok {
			t.Fatalf("got %T, want *dap.StoppedEvent", ev)
		}
		if se.Body.Reason != "breakpoint" {
			t.Fatalf("got reason %q, want %q", se.Body.Reason, "breakpoint")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestClientReverseRequestDelivery(t *testing.T) {
	client, adapter := pipePair(t)
	defer client.Close()
	defer adapter.Close()

	reverse := make(chan dap.RequestMessage, 1)
	client.SetReverseRequestHandler(func(req dap.RequestMessage) {
		reverse <- req
	})

	rit := &dap.RunInTerminalRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "runInTerminal",
		},
		Arguments: dap.RunInTerminalRequestArguments{
			Kind:  "integrated",
			Title: "dapbridge",
			Args:  []string{"python3"},
			Cwd:   "/tmp",
		},
	}
	if err := adapter.Respond(rit); err != nil {
		t.Fatalf("adapter send reverse request: %v", err)
	}

	select {
	case req := <-reverse:
		got, ok := req.(*dap.RunInTerminalRequest)
		if !ok {
			t.Fatalf("got %T, want *dap.RunInTerminalRequest", req)
		}
		if got.Arguments.Title != "dapbridge" {
			t.Fatalf("got title %q, want %q", got.Arguments.Title, "dapbridge")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reverse request")
	}
}

func TestClientSendRequestTimeout(t *testing.T) {
	client, adapter := pipePair(t)
	defer client.Close()
	defer adapter.Close()

	// adapter 没有安装任何 ReverseRequestHandler，因此永远不会响应。
	req := &dap.EvaluateRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "evaluate",
		},
		Arguments: dap.EvaluateArguments{Expression: "1+1"},
	}

	_, err := client.SendRequest(req, 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("expected *TimeoutError, got %T (%v)", err, err)
	}
}

func TestClientCloseIsIdempotent(t *testing.T) {
	client, adapter := pipePair(t)
	defer adapter.Close()

	if err := client.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if client.IsConnected() {
		t.Fatal("expected IsConnected to be false after Close")
	}
}

func TestClientSendRequestFailureExtractsMessage(t *testing.T) {
	client, adapter := pipePair(t)
	defer client.Close()
	defer adapter.Close()

	adapter.SetReverseRequestHandler(func(req dap.RequestMessage) {
		er, ok := req.(*dap.EvaluateRequest)
		if !ok {
			t.Errorf("adapter received unexpected request type %T", req)
			return
		}
		resp := &dap.ErrorResponse{
			Response: dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Type: "response"},
				RequestSeq:      er.Seq,
				Success:         false,
				Command:         er.Command,
				Message:         "NameError: name 'undefined_var' is not defined",
			},
		}
		if err := adapter.Respond(resp); err != nil {
			t.Errorf("adapter respond: %v", err)
		}
	})

	req := &dap.EvaluateRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "evaluate",
		},
		Arguments: dap.EvaluateArguments{Expression: "undefined_var"},
	}

	_, err := client.SendRequest(req, time.Second)
	if err == nil {
		t.Fatal("expected an error for a success=false response")
	}
	rfe, ok := err.(*RequestFailedError)
	if !ok {
		t.Fatalf("expected *RequestFailedError, got %T (%v)", err, err)
	}
	if rfe.Message != "NameError: name 'undefined_var' is not defined" {
		t.Fatalf("got message %q", rfe.Message)
	}
}

func TestExtractDAPErrorMessageFallsBackThroughBody(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"format", `{"body":{"error":{"format":"bad expression"}}}`, "bad expression"},
		{"error message", `{"body":{"error":{"message":"no member named foo"}}}`, "no member named foo"},
		{"error string", `{"body":{"error":"plain string error"}}`, "plain string error"},
		{"description", `{"body":{"description":"could not evaluate"}}`, "could not evaluate"},
		{"message", `{"body":{"message":"fallback message"}}`, "fallback message"},
		{"nothing", `{"body":{}}`, "Request failed"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := extractDAPErrorMessage("", []byte(c.raw))
			if got != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestClientSendRequestAfterCloseFails(t *testing.T) {
	client, adapter := pipePair(t)
	defer adapter.Close()

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	req := &dap.ThreadsRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Type: "request"},
			Command:         "threads",
		},
	}
	if _, err := client.SendRequest(req, time.Second); err == nil {
		t.Fatal("expected SendRequest to fail after Close")
	}
}
