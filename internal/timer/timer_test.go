package timer

import (
	"log/slog"
	"testing"
	"time"

	"github.com/fly-207/skynet/internal/actor"
	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
	"github.com/fly-207/skynet/internal/module"
)

type recordingModule struct {
	module.BaseModule
	got chan mailbox.Message
}

func (r *recordingModule) Init(_ module.Instance, ctx module.ServiceContext, _ string) error {
	ctx.SetCallback(func(source handle.Handle, session uint32, ptype mailbox.ProtocolType, payload []byte) bool {
		r.got <- mailbox.Message{Source: uint32(source), Session: session, Type: ptype, Payload: payload}
		return true
	})
	return nil
}

type noopWaker struct{ woken int }

func (w *noopWaker) WakeAllButOne() { w.woken++ }

func TestAfterFiresTimeoutMessage(t *testing.T) {
	loader := module.NewLoader(4)
	rec := &recordingModule{got: make(chan mailbox.Message, 1)}
	loader.Register("rec", rec)

	node := actor.NewNode(0, loader, slog.New(slog.DiscardHandler))
	svc, err := node.ContextNew("rec", "")
	if err != nil {
		t.Fatalf("ContextNew: %v", err)
	}

	w := &noopWaker{}
	d := New(node, w, 0)
	d.After(svc.Handle(), 7, time.Millisecond)
	d.Start()
	defer d.Stop()

	// No worker pool is running in this test, so drain by hand until the
	// timer-injected message shows up or we give up.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		node.Dispatch(nil, nil, 0)
		select {
		case msg := <-rec.got:
			if msg.Session != 7 || msg.Type != mailbox.PTYPESystem {
				t.Fatalf("unexpected timeout message: %+v", msg)
			}
			return
		default:
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatal("timed out waiting for the timer-injected message")
}

func TestReopenLogInjectsSystemMessage(t *testing.T) {
	loader := module.NewLoader(4)
	rec := &recordingModule{got: make(chan mailbox.Message, 1)}
	loader.Register("logger", rec)

	node := actor.NewNode(0, loader, slog.New(slog.DiscardHandler))
	logSvc, err := node.ContextNew("logger", "")
	if err != nil {
		t.Fatalf("ContextNew: %v", err)
	}

	d := New(node, &noopWaker{}, logSvc.Handle())
	d.ReopenLog()

	if mb := node.Dispatch(nil, nil, 0); mb != nil {
		t.Fatalf("expected mailbox to drain, got %v", mb)
	}

	select {
	case msg := <-rec.got:
		if string(msg.Payload) != "reopen" {
			t.Fatalf("payload = %q, want %q", msg.Payload, "reopen")
		}
	default:
		t.Fatal("expected a reopen message to have been delivered")
	}
}
