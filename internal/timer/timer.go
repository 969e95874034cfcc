// Package timer implements the runtime's tick driver: a fast clock that
// injects timeout messages into service mailboxes and periodically nudges
// the worker pool awake, plus the SIGHUP-triggered log-reopen signal.
package timer

import (
	"sync"
	"time"

	"github.com/fly-207/skynet/internal/actor"
	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
)

// tickInterval matches the distilled spec's "~2.5ms" tick rate.
const tickInterval = 2500 * time.Microsecond

// waker is the subset of worker.Pool the timer needs: wake every worker
// but one on each tick. Defined locally to avoid internal/timer
// depending on internal/worker for a single method.
type waker interface {
	WakeAllButOne()
}

// pendingTimeout is a single outstanding timer-injected message: fire at
// or after deadline, then deliver to dest.
type pendingTimeout struct {
	deadline time.Time
	dest     handle.Handle
	session  uint32
}

// Driver owns the tick goroutine. Every tick it fires any due timeouts
// and wakes the pool; it also exposes ReopenLog, wired to SIGHUP by the
// CLI, which injects a system message to the logger service.
type Driver struct {
	node   *actor.Node
	pool   waker
	logger handle.Handle

	mu      sync.Mutex
	pending []pendingTimeout

	quit chan struct{}
	wg   sync.WaitGroup
}

// New builds a Driver. logger is the handle of the well-known logger
// service, to which ReopenLog delivers its system message.
func New(node *actor.Node, pool waker, logger handle.Handle) *Driver {
	return &Driver{
		node:   node,
		pool:   pool,
		logger: logger,
		quit:   make(chan struct{}),
	}
}

// After schedules a timeout message to dest, fired no sooner than d from
// now, carrying session as its correlation id so the receiving service
// can match it against the call that armed it.
func (d *Driver) After(dest handle.Handle, session uint32, delay time.Duration) {
	d.mu.Lock()
	d.pending = append(d.pending, pendingTimeout{deadline: time.Now().Add(delay), dest: dest, session: session})
	d.mu.Unlock()
}

// Start launches the tick goroutine.
func (d *Driver) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop signals the tick goroutine to exit and waits for it.
func (d *Driver) Stop() {
	close(d.quit)
	d.wg.Wait()
}

func (d *Driver) run() {
	defer d.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.tick()
		case <-d.quit:
			return
		}
	}
}

func (d *Driver) tick() {
	now := time.Now()
	d.mu.Lock()
	due := d.pending[:0]
	var fire []pendingTimeout
	for _, p := range d.pending {
		if now.Before(p.deadline) {
			due = append(due, p)
		} else {
			fire = append(fire, p)
		}
	}
	d.pending = due
	d.mu.Unlock()

	for _, p := range fire {
		_, _ = d.node.Send(p.dest, mailbox.PTYPESystem, p.session, []byte("timeout"))
	}

	if d.pool != nil {
		d.pool.WakeAllButOne()
	}
}

// ReopenLog injects a "reopen" system message into the logger service,
// the in-band signal a SIGHUP handler maps to.
func (d *Driver) ReopenLog() {
	if d.logger.IsZero() {
		return
	}
	_, _ = d.node.Send(d.logger, mailbox.PTYPESystem, 0, []byte("reopen"))
}
