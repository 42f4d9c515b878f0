package proxyworker

import (
	"context"
	"strings"
	"testing"
	"time"

	dap "github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/oriys/dapbridge/internal/envelope"
	"github.com/oriys/dapbridge/internal/policy"
)

func newTestWorker(t *testing.T) (*Worker, *envelope.Bus, context.CancelFunc) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	bus := envelope.NewBus(0)
	w := New(Options{
		SessionID: "s1",
		Registry:  policy.NewRegistry(),
		Logger:    logger,
		Bus:       bus,
		SpawnOpts: policy.SpawnOptions{Port: 45999},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	t.Cleanup(cancel)
	return w, bus, cancel
}

// awaitStatus drains ToParent until a status message with the wanted tag
// arrives, failing the test after timeout. Intervening events and responses
// are discarded.
func awaitStatus(t *testing.T, bus *envelope.Bus, want envelope.Status, timeout time.Duration) map[string]interface{} {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-bus.ToParent:
			if msg.Kind == envelope.KindStatus && msg.Status == want {
				return msg.StatusData
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func awaitResponse(t *testing.T, bus *envelope.Bus, corrID string, timeout time.Duration) *envelope.DAPResponsePayload {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-bus.ToParent:
			if msg.Kind == envelope.KindDAPResponse && msg.DAPResponse != nil && msg.DAPResponse.CorrelationID == corrID {
				return msg.DAPResponse
			}
		case <-deadline:
			t.Fatalf("timed out waiting for response %q", corrID)
		}
	}
}

func awaitError(t *testing.T, bus *envelope.Bus, timeout time.Duration) error {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-bus.ToParent:
			if msg.Kind == envelope.KindError {
				return msg.Err
			}
		case <-deadline:
			t.Fatal("timed out waiting for worker error")
		}
	}
}

func mockInit(dryRun bool) envelope.Message {
	return envelope.Message{
		Kind:      envelope.KindInit,
		SessionID: "s1",
		Init: &envelope.InitPayload{
			Language:     "mock",
			PolicyName:   "mock",
			ScriptPath:   "fixture.mock",
			LaunchConfig: map[string]interface{}{"program": "fixture.mock"},
			DryRun:       dryRun,
		},
	}
}

func TestWorkerInitReachesConfiguredAndLaunched(t *testing.T) {
	w, bus, _ := newTestWorker(t)

	bus.ToWorker <- mockInit(false)

	awaitStatus(t, bus, envelope.StatusAcknowledged, time.Second)
	awaitStatus(t, bus, envelope.StatusAdapterConnected, 2*time.Second)
	awaitStatus(t, bus, envelope.StatusConfiguredLaunched, 5*time.Second)

	if w.State() != StateConnected {
		t.Fatalf("expected Connected, got %s", w.State())
	}
}

func TestWorkerDAPCommandRoundTrip(t *testing.T) {
	_, bus, _ := newTestWorker(t)

	bus.ToWorker <- mockInit(false)
	awaitStatus(t, bus, envelope.StatusConfiguredLaunched, 5*time.Second)

	bus.ToWorker <- envelope.Message{
		Kind:      envelope.KindDAP,
		SessionID: "s1",
		DAPCommand: &envelope.DAPCommandPayload{
			CorrelationID: "c1",
			Request:       &dap.ThreadsRequest{Request: dap.Request{Command: "threads"}},
		},
	}

	resp := awaitResponse(t, bus, "c1", 2*time.Second)
	if resp.Err != nil {
		t.Fatalf("threads failed: %v", resp.Err)
	}
	tr, ok := resp.Response.(*dap.ThreadsResponse)
	if !ok {
		t.Fatalf("got %T, want *dap.ThreadsResponse", resp.Response)
	}
	if len(tr.Body.Threads) != 1 || tr.Body.Threads[0].Id != 1 {
		t.Fatalf("unexpected threads body: %+v", tr.Body)
	}
}

func TestWorkerDryRunReportsCommandWithoutConnecting(t *testing.T) {
	w, bus, _ := newTestWorker(t)

	bus.ToWorker <- mockInit(true)

	awaitStatus(t, bus, envelope.StatusAcknowledged, time.Second)
	data := awaitStatus(t, bus, envelope.StatusDryRunComplete, 2*time.Second)

	command, _ := data["command"].(string)
	if !strings.Contains(command, "__mock__") {
		t.Fatalf("expected rendered command line, got %q", command)
	}
	if data["script"] != "fixture.mock" {
		t.Fatalf("expected script in dry-run data, got %+v", data)
	}

	awaitStatus(t, bus, envelope.StatusTerminated, 2*time.Second)
	if w.State() != StateTerminated {
		t.Fatalf("expected Terminated after dry run, got %s", w.State())
	}
}

func TestWorkerRejectsInitFromTerminatedState(t *testing.T) {
	_, bus, _ := newTestWorker(t)

	bus.ToWorker <- mockInit(true)
	awaitStatus(t, bus, envelope.StatusTerminated, 2*time.Second)

	// worker 的 Run 循环已经退出：为覆盖状态机本身，直接构造一个终止态
	// worker 再调用 handleInit。
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	bus2 := envelope.NewBus(0)
	w2 := New(Options{SessionID: "s2", Registry: policy.NewRegistry(), Logger: logger, Bus: bus2})
	w2.setState(StateTerminated)
	w2.handleInit(context.Background(), &envelope.InitPayload{PolicyName: "mock"})

	err := awaitError(t, bus2, time.Second)
	if err == nil || !strings.Contains(err.Error(), "invalid state for init") {
		t.Fatalf("expected invalid-state error, got %v", err)
	}
}

func TestWorkerDuplicateInitIsIdempotent(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	bus := envelope.NewBus(0)
	w := New(Options{SessionID: "s3", Registry: policy.NewRegistry(), Logger: logger, Bus: bus})
	w.setState(StateInitializing)

	w.handleInit(context.Background(), &envelope.InitPayload{PolicyName: "mock"})
	awaitStatus(t, bus, envelope.StatusAcknowledged, time.Second)
	if w.State() != StateInitializing {
		t.Fatalf("duplicate init must not advance state, got %s", w.State())
	}
}

func TestWorkerTerminateEmitsTerminatedAndRejectsLateCommands(t *testing.T) {
	w, bus, _ := newTestWorker(t)

	bus.ToWorker <- mockInit(false)
	awaitStatus(t, bus, envelope.StatusConfiguredLaunched, 5*time.Second)

	bus.ToWorker <- envelope.Message{Kind: envelope.KindTerminate, SessionID: "s1"}
	awaitStatus(t, bus, envelope.StatusTerminated, 2*time.Second)
	if w.State() != StateTerminated {
		t.Fatalf("expected Terminated, got %s", w.State())
	}

	w.handleDAPCommand(context.Background(), &envelope.DAPCommandPayload{
		CorrelationID: "late",
		Request:       &dap.ThreadsRequest{Request: dap.Request{Command: "threads"}},
	})
	resp := awaitResponse(t, bus, "late", time.Second)
	if resp.Err == nil {
		t.Fatal("expected a command after terminate to be rejected")
	}
}

func TestWorkerForwardsStoppedEvents(t *testing.T) {
	_, bus, _ := newTestWorker(t)

	bus.ToWorker <- mockInit(false)

	// mock 适配器在 configurationDone 之后主动上报一次 stopped。
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-bus.ToParent:
			if msg.Kind != envelope.KindDAPEvent {
				continue
			}
			if se, ok := msg.DAPEvent.(*dap.StoppedEvent); ok {
				if se.Body.Reason != "breakpoint" || se.Body.ThreadId != 1 {
					t.Fatalf("unexpected stopped body: %+v", se.Body)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for forwarded stopped event")
		}
	}
}
