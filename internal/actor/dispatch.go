package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// MonitorSlot is the per-worker liveness token the monitor goroutine
// samples. Touch is called before each message is handed to a callback
// and Clear after, so the monitor can tell "no progress since last
// sample" from "idle".
type MonitorSlot interface {
	Touch(source, dest handle.Handle)
	Clear()
}

// noopSlot satisfies MonitorSlot for callers (tests, one-off sends) that
// don't need monitor integration.
type noopSlot struct{}

func (noopSlot) Touch(handle.Handle, handle.Handle) {}
func (noopSlot) Clear()                             {}

// NoopMonitorSlot is a MonitorSlot that does nothing, for tests and
// tools that drive Dispatch outside the worker pool.
var NoopMonitorSlot MonitorSlot = noopSlot{}

// Dispatch runs one scheduling tick. If current is nil, it pops a
// mailbox from the global ready queue; nil result means the caller
// should sleep. Otherwise it drains k = (weight == -1 ? 1 : max(1, n>>weight))
// messages from current (or fewer if it empties first), invoking the
// owning service's callback for each, and returns the mailbox to
// continue on directly if it still has work, or nil if it went idle.
// When the k-th message empties the mailbox, one more Pop is taken; it
// either marks the mailbox idle or yields a message pushed meanwhile,
// which is dispatched in the same tick.
func (n *Node) Dispatch(slot MonitorSlot, current *mailbox.Mailbox, weight int) *mailbox.Mailbox {
	if slot == nil {
		slot = NoopMonitorSlot
	}
	if current == nil {
		current = n.queue.Pop()
		if current == nil {
			return nil
		}
	}

	dest := handle.Handle(current.Handle())
	entry, ok := n.registry.Peek(dest)
	var ctx *Context
	if ok {
		ctx = entry.(*Context)
	}

	count := current.Len()
	k := 1
	if weight != -1 {
		if weight <= 0 {
			k = count
		} else {
			k = count >> weight
		}
		if k < 1 {
			k = 1
		}
	}

	for i := 0; i < k; i++ {
		msg, ok, overloadAt := current.Pop()
		if !ok {
			return nil // the empty Pop cleared inGlobal: the mailbox is idle
		}

		slot.Touch(handle.Handle(msg.Source), dest)
		n.dispatchOne(ctx, current, msg)
		slot.Clear()

		if overloadAt > 0 {
			n.log.Warn("mailbox overload", "dest", dest, "length", overloadAt)
		}

		// Only an empty Pop clears inGlobal. If the last of the k pops
		// emptied the mailbox, go round once more so that Pop marks it
		// idle and a later Push links it onto the queue again.
		if i == k-1 && current.Len() == 0 {
			k++
		}
	}
	return current
}

// dispatchOne hands a single message to ctx's callback, or to the drop
// path if the owning service has no live context or has been retired.
// Callback panics are recovered and logged; the service is not retired
// as a result.
func (n *Node) dispatchOne(ctx *Context, mb *mailbox.Mailbox, msg mailbox.Message) {
	if ctx == nil || mb.Released() {
		return // dropped: payload simply becomes garbage, nothing to free manually
	}

	start := time.Now()
	defer func() {
		if n.profile {
			elapsed := time.Since(start)
			ctx.recordCPUTime(elapsed)
			if n.histogram != nil {
				n.histogram.Record(context.Background(), float64(elapsed.Microseconds())/1000,
					otelmetric.WithAttributes(
						attribute.String("handle", ctx.self.String()),
						attribute.String("module", ctx.name),
					))
			}
		}
		if r := recover(); r != nil {
			n.log.Error("service callback panicked",
				"source", handle.Handle(msg.Source), "dest", ctx.self,
				"session", msg.Session, "msgsz", len(msg.Payload), "panic", fmt.Sprint(r))
		}
	}()

	cb := ctx.cb
	if cb == nil {
		return
	}
	cb(handle.Handle(msg.Source), msg.Session, msg.BaseType(), msg.Payload)
}
