// Package module implements the native module ABI the runtime's services
// are built from: four entry points (create/init/release/signal) resolved
// by name, the way a skynet-style host would resolve M_create/M_init/
// M_release/M_signal by string concatenation against a dlopen'd .so. This
// implementation resolves in-process, by name, against a registry built
// at init time rather than via dlopen.
package module

import (
	"errors"

	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
)

// ErrLoadFailed is returned when a module name cannot be resolved.
var ErrLoadFailed = errors.New("module: load failed")

// Instance is an opaque per-service object returned by a Module's Create.
// The runtime never inspects it; it is handed back to Init/Release/Signal
// verbatim.
type Instance any

// Callback is the per-message handler a module installs on its
// ServiceContext during Init. The dispatcher does not act on the returned
// bool: every popped message is handed to the callback the same way
// whatever earlier calls returned.
type Callback func(source handle.Handle, session uint32, ptype mailbox.ProtocolType, payload []byte) bool

// ServiceContext is the slice of internal/actor.Context a Module's Init
// needs: enough to learn its own address, register a message callback,
// and send. Defined here (rather than importing *actor.Context directly)
// so internal/module never depends on internal/actor, which is the
// package that depends on internal/module.
type ServiceContext interface {
	Handle() handle.Handle
	SetCallback(Callback)
	// Send delivers payload to dest. session is used verbatim unless it
	// is 0 and ptype carries mailbox.FlagAllocSession, in which case a
	// fresh session is drawn from this service's own counter and
	// returned; a plain 0 stays 0 (fire-and-forget).
	Send(dest handle.Handle, ptype mailbox.ProtocolType, session uint32, payload []byte) (uint32, error)
}

// Module is the native ABI a service's behavior is built from. Only Init
// carries meaning the runtime depends on (a non-nil error aborts service
// creation); Create, Release, and Signal may be no-ops.
type Module interface {
	// Create returns a fresh, per-service instance.
	Create() (Instance, error)
	// Init runs the service's first-message bootstrap: typically
	// constructing inst's steady-state behavior and installing it via
	// ctx.SetCallback.
	Init(inst Instance, ctx ServiceContext, arg string) error
	// Release tears down inst. The runtime does not call it: retiring a
	// service (actor.Node.Retire) leaves inst in place.
	Release(inst Instance)
	// Signal delivers an out-of-band interrupt (see internal/actor's
	// Signal) to inst, synchronously on the caller's goroutine. It must
	// tolerate being called concurrently with inst's own callback
	// running on a worker.
	Signal(inst Instance, n int)
}

// BaseModule gives every built-in module a zero-cost way to satisfy
// Create/Release/Signal when it only cares about Init, matching the
// distilled spec's "only _init is mandatory; the others have sensible
// no-op defaults".
type BaseModule struct{}

func (BaseModule) Create() (Instance, error) { return nil, nil }
func (BaseModule) Release(Instance)          {}
func (BaseModule) Signal(Instance, int)      {}
