package module

import (
	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
)

// Echo is the minimal demonstration module used by the end-to-end ping
// scenarios: every message it receives is sent straight back to its
// source, same protocol type, payload, and session.
type Echo struct {
	BaseModule
}

func (Echo) Init(_ Instance, ctx ServiceContext, _ string) error {
	ctx.SetCallback(func(source handle.Handle, session uint32, ptype mailbox.ProtocolType, payload []byte) bool {
		if source.IsZero() {
			return true
		}
		_, _ = ctx.Send(source, ptype, session, payload)
		return true
	})
	return nil
}
