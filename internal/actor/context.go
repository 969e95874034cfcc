// Package actor implements the service context, the one-tick dispatcher,
// and the Node facade that ties the handle registry, mailboxes, global
// ready queue, and module loader into the runtime's send/dispatch loop.
package actor

import (
	"sync/atomic"
	"time"

	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
	"github.com/fly-207/skynet/internal/module"
)

const sessionMask = handle.LocalMask

// Context is the per-service record: its address, its mailbox, its
// module instance, a session counter for outbound correlation ids, and
// the reference count the registry manipulates via Grab/Release. It
// implements both handle.Entry (for the registry) and
// module.ServiceContext (for the module's Init to install a callback).
type Context struct {
	node *Node

	self   handle.Handle
	mbox   *mailbox.Mailbox
	mod    module.Module
	inst   module.Instance
	name   string // module name, for diagnostics and CPU-time labeling

	session atomic.Uint32
	refs    atomic.Int32
	retired atomic.Bool

	cb module.Callback

	cpuTime atomic.Int64 // accumulated nanoseconds, only touched when profiling is on
}

// Handle returns the service's own address.
func (c *Context) Handle() handle.Handle { return c.self }

// ModuleName returns the name the context's module was resolved under.
func (c *Context) ModuleName() string { return c.name }

// SetCallback installs f as the service's message handler. Only the
// module's own Init is expected to call this, during context_new; the
// dispatcher reads it with no additional synchronization because Init
// completes (and happens-before the mailbox is ever drained) before any
// worker can observe the context.
func (c *Context) SetCallback(f module.Callback) {
	c.cb = f
}

// nextSession draws the next session id: monotonic, 24 bits, skipping 0
// on wrap, matching the registry's local-id allocation discipline.
func (c *Context) nextSession() uint32 {
	for {
		n := c.session.Add(1) & sessionMask
		if n != 0 {
			return n
		}
		// landed exactly on the skipped value; try again
	}
}

// Send delivers payload to dest on behalf of this service. See
// module.ServiceContext for the session-allocation contract.
func (c *Context) Send(dest handle.Handle, ptype mailbox.ProtocolType, session uint32, payload []byte) (uint32, error) {
	if session == 0 && ptype&mailbox.FlagAllocSession != 0 {
		session = c.nextSession()
	}
	return c.node.deliver(c.self, dest, ptype, session, payload)
}

// Retain implements handle.Entry: a grab of an already-registered
// context.
func (c *Context) Retain() {
	c.refs.Add(1)
}

// Release implements handle.Entry. It reports whether the refcount
// reached zero; no caller acts on the result, and a retired context is
// left to the garbage collector.
func (c *Context) Release() bool {
	return c.refs.Add(-1) <= 0
}

// recordCPUTime accumulates d if profiling is enabled on the owning Node.
func (c *Context) recordCPUTime(d time.Duration) {
	c.cpuTime.Add(int64(d))
}

// CPUTime returns the service's accumulated callback execution time. Zero
// if profiling was never enabled.
func (c *Context) CPUTime() time.Duration {
	return time.Duration(c.cpuTime.Load())
}
