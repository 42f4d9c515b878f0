package proxyworker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	dap "github.com/google/go-dap"
	"github.com/google/uuid"

	"github.com/oriys/dapbridge/internal/dapwire"
	"github.com/oriys/dapbridge/internal/policy"
)

const childDialTimeout = 10 * time.Second

// onReverseRequest is the dapwire.Client reverse-request callback: it always
// runs on the same goroutine as the adapter's read loop, so any work that
// blocks on further DAP traffic (dialing and handshaking a child session)
// is handed off to its own goroutine after the ack is written.
func (w *Worker) onReverseRequest(req dap.RequestMessage) {
	base := req.GetRequest()

	switch req.(type) {
	case *dap.RunInTerminalRequest:
		_ = w.client.Respond(&dap.RunInTerminalResponse{
			Response: dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Seq: w.client.NextSeq(), Type: "response"},
				RequestSeq:      base.Seq,
				Success:         true,
				Command:         base.Command,
			},
			Body: dap.RunInTerminalResponseBody{},
		})
		return
	}

	outcome := w.policy.HandleReverseRequest(req, w.adstate)
	if !outcome.Handled {
		w.ackReverseDefault(base)
		return
	}

	w.ackReverseDefault(base)

	if outcome.CreateChildSession && outcome.ChildConfig != nil {
		go w.adoptChildSession(*outcome.ChildConfig)
	}
}

func (w *Worker) ackReverseDefault(base *dap.Request) {
	_ = w.client.Respond(&dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: w.client.NextSeq(), Type: "response"},
		RequestSeq:      base.Seq,
		Success:         true,
		Command:         base.Command,
	})
}

// adoptChildSession dials the secondary DAP endpoint a reverse startDebugging
// request announced, adopts it with the Child Session Manager as the active
// child right away, runs it through the same initialize/launch/
// configurationDone sequence as the parent, and then marks it ready.
func (w *Worker) adoptChildSession(cfg policy.ChildSessionConfig) {
	if cfg.Host == "" || cfg.Port == 0 {
		if w.logger != nil {
			w.logger.WithField("session", w.sessionID).Warn("proxyworker: reverse request created a child session with no connection info, skipping adoption")
		}
		return
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ctx, cancel := context.WithTimeout(context.Background(), childDialTimeout)
	conn, err := dapwire.DialTCPWithRetry(ctx, addr, 100*time.Millisecond)
	cancel()
	if err != nil {
		if w.logger != nil {
			w.logger.WithError(err).WithField("addr", addr).Warn("proxyworker: failed to dial child debug session")
		}
		return
	}

	client := dapwire.New(conn, w.logger)
	if w.tracer != nil {
		client.SetFrameTracer(w.tracer)
	}

	id := uuid.NewString()
	child := w.children.Adopt(id, client)

	client.SetEventHandler(w.onAdapterEvent)
	client.SetReverseRequestHandler(w.onReverseRequest)
	go func() {
		if err := client.Serve(); err != nil && w.logger != nil {
			w.logger.WithError(err).WithField("child", id).Warn("proxyworker: child DAP read loop ended")
		}
		w.children.Remove(id)
	}()

	initReq := &dap.InitializeRequest{
		Request: dap.Request{Command: "initialize"},
		Arguments: w.policy.NormalizeInitializeArgs(dap.InitializeRequestArguments{
			AdapterID:       w.policy.GetDapAdapterConfiguration().AdapterID,
			ClientID:        "dapbridge",
			ClientName:      "DAP Bridge",
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
			PathFormat:      "path",
		}),
	}
	if _, err := client.SendRequest(initReq, 0); err != nil {
		if w.logger != nil {
			w.logger.WithError(err).WithField("child", id).Warn("proxyworker: child initialize failed")
		}
		return
	}

	launchReq := &dap.LaunchRequest{Request: dap.Request{Command: "launch"}}
	if cfg.LaunchArgs != nil {
		if body, err := json.Marshal(cfg.LaunchArgs); err == nil {
			launchReq.Arguments = body
		}
	}
	if _, err := client.SendRequest(launchReq, 0); err != nil && w.logger != nil {
		w.logger.WithError(err).WithField("child", id).Warn("proxyworker: child launch failed")
	}

	if _, err := client.SendRequest(&dap.ConfigurationDoneRequest{Request: dap.Request{Command: "configurationDone"}}, 0); err != nil && w.logger != nil {
		w.logger.WithError(err).WithField("child", id).Warn("proxyworker: child configurationDone failed")
	}

	child.MarkReady()
}
