package actor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
	"github.com/fly-207/skynet/internal/module"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// ErrNoDestination is returned when a send's destination cannot be
// resolved to a live service, locally or via the harbor collaborator.
var ErrNoDestination = fmt.Errorf("actor: destination not found")

// Harbor is the cross-node delivery collaborator consulted whenever a
// destination handle's harbor byte differs from this Node's own. Defined
// locally (rather than importing internal/harbor) so internal/harbor can
// depend on internal/actor's exported types without a cycle; any type
// satisfying this structurally (such as *harbor.AMQPHarbor) can be
// installed with SetHarbor.
type Harbor interface {
	Send(ctx context.Context, dest handle.Handle, msg *mailbox.Message) error
	Close() error
}

// Node is the facade tying the registry, global queue, and module loader
// into one send/dispatch surface. One Node exists per running process.
type Node struct {
	harborID uint8
	registry *handle.Registry
	queue    *mailbox.GlobalQueue
	loader   *module.Loader
	log      *slog.Logger

	harbor Harbor

	profile   bool
	histogram otelmetric.Float64Histogram
}

// NewNode constructs a Node for cluster node harborID, with fresh
// registry, global queue, and the given module loader.
func NewNode(harborID uint8, loader *module.Loader, log *slog.Logger) *Node {
	if log == nil {
		log = slog.Default()
	}
	q := mailbox.NewGlobalQueue()
	return &Node{
		harborID: harborID,
		registry: handle.NewRegistry(harborID),
		queue:    q,
		loader:   loader,
		log:      log,
	}
}

// Queue exposes the global ready queue so the worker pool can check it
// for pending work and install itself as the queue's Waker.
func (n *Node) Queue() *mailbox.GlobalQueue { return n.queue }

// Registry exposes the handle registry for admin/diagnostic use
// (stats snapshots, name listings).
func (n *Node) Registry() *handle.Registry { return n.registry }

// SetHarbor installs the cross-node delivery collaborator. Nil disables
// cross-node routing: sends to a foreign harbor byte then fail with
// ErrNoDestination.
func (n *Node) SetHarbor(h Harbor) { n.harbor = h }

// EnableProfiling wires a CPU-time histogram recorded around every
// callback invocation, tagged by handle and module name.
func (n *Node) EnableProfiling(meter otelmetric.Meter) error {
	h, err := meter.Float64Histogram(
		"skynet.service.cpu_time",
		otelmetric.WithDescription("per-service callback execution time"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}
	n.histogram = h
	n.profile = true
	return nil
}

// ContextNew resolves moduleName, creates its instance, allocates a
// handle, runs Init, and — on success — activates the mailbox so workers
// can dispatch it. On failure the handle is retired and no mailbox is
// ever made visible to the scheduler.
func (n *Node) ContextNew(moduleName, initArg string) (*Context, error) {
	mod, err := n.loader.Load(moduleName)
	if err != nil {
		return nil, err
	}
	inst, err := mod.Create()
	if err != nil {
		return nil, fmt.Errorf("actor: %s.Create: %w", moduleName, err)
	}

	mb := mailbox.NewMailbox(n.queue)
	c := &Context{
		node: n,
		mbox: mb,
		mod:  mod,
		inst: inst,
		name: moduleName,
	}
	c.refs.Store(1)

	h := n.registry.Register(c)
	c.self = h
	mb.SetHandle(uint32(h))

	if err := mod.Init(inst, c, initArg); err != nil {
		n.registry.Retire(h)
		return nil, fmt.Errorf("actor: %s.Init: %w", moduleName, err)
	}

	mb.Activate()
	return c, nil
}

// BindName binds name to h in the registry's name table.
func (n *Node) BindName(h handle.Handle, name string) bool {
	return n.registry.BindName(h, name)
}

// Resolve turns a destination string into a handle: a leading ':' is a
// raw hex-encoded handle, a leading '.' or '@' (both accepted — local and
// cluster-routed name lookups share one table in this implementation
// since cross-node name resolution is the harbor collaborator's concern,
// out of scope here) is stripped before the name-table lookup, and
// anything else is looked up as-is.
func (n *Node) Resolve(dest string) (handle.Handle, bool) {
	if dest == "" {
		return 0, false
	}
	if dest[0] == ':' {
		var v uint32
		if _, err := fmt.Sscanf(dest, ":%x", &v); err != nil {
			return 0, false
		}
		return handle.Handle(v), true
	}
	name := strings.TrimLeft(dest, ".@")
	h := n.registry.FindName(name)
	return h, h != 0
}

// Signal looks up h and invokes its module's Signal entry point
// synchronously on the caller's goroutine, concurrently-safe with the
// service being dispatched elsewhere.
func (n *Node) Signal(h handle.Handle, arg int) error {
	entry, ok := n.registry.Peek(h)
	if !ok {
		return ErrNoDestination
	}
	c := entry.(*Context)
	c.mod.Signal(c.inst, arg)
	return nil
}

// Retire retires h: removes it from the registry and marks its mailbox
// for drain-then-release. Returns whether h was actually occupied.
func (n *Node) Retire(h handle.Handle) bool {
	entry, ok := n.registry.Peek(h)
	if !ok {
		return false
	}
	c := entry.(*Context)
	c.retired.Store(true)
	removed := n.registry.Retire(h)
	c.mbox.MarkRelease()
	return removed
}

// deliver is the shared core of Context.Send and any externally
// originated send (e.g. from admin or the CLI): resolve destination,
// route locally or to the harbor, and append to the destination mailbox.
func (n *Node) deliver(source, dest handle.Handle, ptype mailbox.ProtocolType, session uint32, payload []byte) (uint32, error) {
	if dest.Harbor() != n.harborID {
		if n.harbor == nil {
			return session, ErrNoDestination
		}
		msg := &mailbox.Message{Source: uint32(source), Session: session, Type: ptype, Payload: payload}
		if err := n.harbor.Send(context.Background(), dest, msg); err != nil {
			n.log.Warn("harbor send failed", "dest", dest, "err", err)
			return session, ErrNoDestination
		}
		return session, nil
	}

	entry, ok := n.registry.Peek(dest)
	if !ok {
		return session, ErrNoDestination
	}
	target := entry.(*Context)

	body := payload
	if ptype&mailbox.FlagDontCopy == 0 && payload != nil {
		body = make([]byte, len(payload))
		copy(body, payload)
	}
	if len(body) > mailbox.MaxPayloadSize {
		return session, fmt.Errorf("actor: payload of %d bytes exceeds max %d", len(body), mailbox.MaxPayloadSize)
	}

	target.mbox.Push(mailbox.Message{Source: uint32(source), Session: session, Type: ptype, Payload: body})
	return session, nil
}

// DeliverLocal hands an inbound message, already addressed to one of
// this node's own handles, straight to the local registry — the harbor
// collaborator's counterpart to deliver, used when a message arrives
// from another cluster node instead of originating locally.
func (n *Node) DeliverLocal(dest handle.Handle, msg *mailbox.Message) error {
	entry, ok := n.registry.Peek(dest)
	if !ok {
		return ErrNoDestination
	}
	entry.(*Context).mbox.Push(*msg)
	return nil
}

// Send is the externally callable counterpart to Context.Send, used by
// callers with no service context of their own (admin endpoints, the
// CLI, tests): source is recorded as 0 ("system").
func (n *Node) Send(dest handle.Handle, ptype mailbox.ProtocolType, session uint32, payload []byte) (uint32, error) {
	return n.deliver(0, dest, ptype, session, payload)
}

// Stats is a point-in-time snapshot for the admin HTTP surface.
type Stats struct {
	RegisteredServices int
	ReadyQueueEmpty    bool
}

// Stats returns a snapshot of registry and queue occupancy.
func (n *Node) Stats() Stats {
	return Stats{
		RegisteredServices: n.registry.Count(),
		ReadyQueueEmpty:    n.queue.Empty(),
	}
}
