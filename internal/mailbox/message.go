// Package mailbox implements the per-service FIFO message queue and the
// global queue of mailboxes that currently have work ready to dispatch.
package mailbox

// ProtocolType is the high-byte tag carried by every message. It identifies
// the payload's wire shape to the receiving module, the way a skynet
// PTYPE identifies which codec a service should use to interpret a message.
type ProtocolType uint8

const (
	// PTYPESystem is used for runtime-injected messages (timeouts, signals).
	PTYPESystem ProtocolType = iota
	// PTYPEText carries a plain UTF-8 payload, used by the logger service.
	PTYPEText
	// PTYPEResponse marks a reply to a previous session-bearing message.
	PTYPEResponse
	// PTYPEError carries an in-band error report.
	PTYPEError
)

const (
	// sizeBits is the width of the payload-length field packed into TypeAndSize.
	sizeBits = 24
	sizeMask = 1<<sizeBits - 1
	// MaxPayloadSize is the largest payload a message can carry; anything
	// bigger is refused by the sender before it ever reaches a mailbox.
	MaxPayloadSize = sizeMask
)

// FlagDontCopy, when set in a message's type tag, means the sender has
// handed ownership of Payload to the mailbox: the send path stores the
// slice as-is instead of copying it. Nothing frees the backing array
// explicitly; it is garbage-collected once no longer referenced.
const FlagDontCopy ProtocolType = 1 << 7

// FlagAllocSession, when set on a Send call whose session is 0, tells the
// sender's context to draw a fresh session from its own counter rather
// than send fire-and-forget (session 0). Replies do not set this: they
// pass the original request's session straight through.
const FlagAllocSession ProtocolType = 1 << 6

// Message is the unit of communication between services. Source is the
// 32-bit handle of the sender, or 0 for runtime-injected messages. Session
// is a correlation id used to match requests and replies; 0 means
// fire-and-forget.
type Message struct {
	Source  uint32
	Session uint32
	Type    ProtocolType
	Payload []byte
}

// packedSize returns the low-24-bit size field a wire encoder would use;
// kept for parity with the distilled spec's type_and_size packing even
// though this implementation stores Type and Payload as separate fields.
func (m *Message) packedSize() uint32 {
	n := len(m.Payload)
	if n > sizeMask {
		n = sizeMask
	}
	return uint32(n)
}

// TypeAndSize reconstructs the packed 32-bit (tag<<24 | size) field, for
// callers that need the wire-compatible representation (e.g. harbor
// encoding, logging).
func (m *Message) TypeAndSize() uint32 {
	return uint32(m.Type)<<sizeBits | m.packedSize()
}

// DontCopy reports whether the sender transferred ownership of Payload.
func (m *Message) DontCopy() bool {
	return m.Type&FlagDontCopy != 0
}

// BaseType strips the ownership and session-allocation flag bits,
// returning the plain protocol tag a callback should switch on.
func (m *Message) BaseType() ProtocolType {
	return m.Type &^ (FlagDontCopy | FlagAllocSession)
}
