package worker

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fly-207/skynet/internal/actor"
	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
	"github.com/fly-207/skynet/internal/module"
	"github.com/fly-207/skynet/internal/monitor"
	"github.com/fly-207/skynet/internal/timer"
)

func TestWeightsTable(t *testing.T) {
	w := Weights(8)
	if len(w) != 8 {
		t.Fatalf("len = %d, want 8", len(w))
	}
	if w[0] != -1 || w[7] != 2 {
		t.Fatalf("unexpected table shape: %v", w)
	}
	// monotonically non-decreasing
	for i := 1; i < len(w); i++ {
		if w[i] < w[i-1] {
			t.Fatalf("weights not sorted ascending: %v", w)
		}
	}
}

// concurrencyCounter is a test module whose callback records the peak
// number of concurrent invocations observed, to verify the at-most-one
// dispatcher-per-service invariant under a real worker pool.
type concurrencyCounter struct {
	module.BaseModule
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	done     chan struct{}
	target   int32
}

func (c *concurrencyCounter) Init(_ module.Instance, ctx module.ServiceContext, _ string) error {
	ctx.SetCallback(func(handle.Handle, uint32, mailbox.ProtocolType, []byte) bool {
		n := c.inFlight.Add(1)
		for {
			p := c.peak.Load()
			if n <= p || c.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		c.inFlight.Add(-1)
		if c.calls.Add(1) == c.target {
			close(c.done)
		}
		return true
	})
	return nil
}

func TestAtMostOneDispatcherPerService(t *testing.T) {
	loader := module.NewLoader(8)
	cc := &concurrencyCounter{done: make(chan struct{}), target: 50}
	loader.Register("counter", cc)

	n := actor.NewNode(0, loader, slog.New(slog.DiscardHandler))
	mon := monitor.New(4, slog.New(slog.DiscardHandler))
	mon.Start()
	defer mon.Stop()

	p := New(n, Weights(4), mon)
	p.Start()
	defer p.Stop()

	svc, err := n.ContextNew("counter", "")
	if err != nil {
		t.Fatalf("ContextNew: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < int(cc.target); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = n.Send(svc.Handle(), mailbox.PTYPEText, 0, []byte("x"))
		}()
	}
	wg.Wait()

	select {
	case <-cc.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for all messages to be dispatched")
	}

	if peak := cc.peak.Load(); peak > 1 {
		t.Fatalf("observed %d concurrent callback invocations, want at most 1", peak)
	}
}

func TestWakeupLiveness(t *testing.T) {
	loader := module.NewLoader(8)
	rec := &recordingModule{done: make(chan struct{})}
	loader.Register("rec", rec)

	n := actor.NewNode(0, loader, slog.New(slog.DiscardHandler))
	mon := monitor.New(2, slog.New(slog.DiscardHandler))
	mon.Start()
	defer mon.Stop()

	p := New(n, Weights(2), mon)
	p.Start()
	defer p.Stop()

	svc, err := n.ContextNew("rec", "")
	if err != nil {
		t.Fatalf("ContextNew: %v", err)
	}

	time.Sleep(20 * time.Millisecond) // let every worker fall asleep

	if _, err := n.Send(svc.Handle(), mailbox.PTYPEText, 0, []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("message was not dispatched within the liveness bound")
	}
}

type recordingModule struct {
	module.BaseModule
	done chan struct{}
}

func (r *recordingModule) Init(_ module.Instance, ctx module.ServiceContext, _ string) error {
	ctx.SetCallback(func(handle.Handle, uint32, mailbox.ProtocolType, []byte) bool {
		close(r.done)
		return true
	})
	return nil
}

// rallyCounter bounces every message it receives straight back to its
// source, closing done on its target-th hit and replying to that one too,
// so the other side reaches its own target; later hits are not returned
// — the ping-pong
// throughput/correctness scenario, run here against a real worker pool,
// monitor, and timer driver running together.
type rallyCounter struct {
	module.BaseModule
	hits   atomic.Int64
	target int64
	done   chan struct{}
}

func (r *rallyCounter) Init(_ module.Instance, ctx module.ServiceContext, _ string) error {
	ctx.SetCallback(func(source handle.Handle, session uint32, ptype mailbox.ProtocolType, payload []byte) bool {
		if source.IsZero() {
			return true
		}
		n := r.hits.Add(1)
		if n == r.target {
			close(r.done)
		}
		if n > r.target {
			return true
		}
		_, _ = ctx.Send(source, ptype, session, payload)
		return true
	})
	return nil
}

func TestPingPongTenThousandRallies(t *testing.T) {
	const rallies = 10000

	loader := module.NewLoader(8)
	ping := &rallyCounter{target: rallies, done: make(chan struct{})}
	pong := &rallyCounter{target: rallies, done: make(chan struct{})}
	loader.Register("ping", ping)
	loader.Register("pong", pong)

	n := actor.NewNode(0, loader, slog.New(slog.DiscardHandler))
	mon := monitor.New(4, slog.New(slog.DiscardHandler))
	mon.Start()
	defer mon.Stop()

	p := New(n, Weights(4), mon)
	p.Start()
	defer p.Stop()

	drv := timer.New(n, p, 0)
	drv.Start()
	defer drv.Stop()

	pingSvc, err := n.ContextNew("ping", "")
	if err != nil {
		t.Fatalf("ContextNew(ping): %v", err)
	}
	pongSvc, err := n.ContextNew("pong", "")
	if err != nil {
		t.Fatalf("ContextNew(pong): %v", err)
	}

	kickoff := &mailbox.Message{
		Source:  uint32(pingSvc.Handle()),
		Session: 0,
		Type:    mailbox.PTYPEText,
		Payload: []byte("serve"),
	}
	if err := n.DeliverLocal(pongSvc.Handle(), kickoff); err != nil {
		t.Fatalf("kick off rally: %v", err)
	}

	deadline := time.After(10 * time.Second)
	select {
	case <-ping.done:
	case <-deadline:
		t.Fatalf("ping side did not reach %d hits within the timeout (ping=%d pong=%d)",
			rallies, ping.hits.Load(), pong.hits.Load())
	}
	select {
	case <-pong.done:
	case <-deadline:
		t.Fatalf("pong side did not reach %d hits within the timeout (ping=%d pong=%d)",
			rallies, ping.hits.Load(), pong.hits.Load())
	}
}
