package mailbox

import "sync"

const (
	initialCapacity         = 64
	initialOverloadThreshold = 1024
)

// Mailbox is a bounded-growing FIFO of messages for exactly one service.
// It never fails to accept a message: when full it doubles its ring
// buffer, trading a GC pause for delivery guarantees. A Mailbox also
// carries the intrusive link (next) used by GlobalQueue, so "is this
// mailbox ready to dispatch" is always a single flag check rather than a
// separate queue-node allocation.
type Mailbox struct {
	mu                sync.Mutex
	handle            uint32
	buf               []Message
	head, tail        int
	inGlobal          bool
	release           bool
	overloadThreshold int

	queue *GlobalQueue

	// next and linked are owned by GlobalQueue, not by mu; they are only
	// ever touched while holding queue.mu.
	next   *Mailbox
	linked bool
}

// NewMailbox creates a mailbox bound to queue. The mailbox starts with
// inGlobal already set so that no worker can observe and dispatch it
// before the owning service has finished its module's Init call; the
// creator must call Activate once bootstrap succeeds.
func NewMailbox(queue *GlobalQueue) *Mailbox {
	return &Mailbox{
		buf:               make([]Message, initialCapacity),
		inGlobal:          true,
		overloadThreshold: initialOverloadThreshold,
		queue:             queue,
	}
}

// SetHandle attaches the owning service's handle once it has been
// allocated by the registry. Called exactly once during construction,
// before the mailbox is reachable from any other goroutine.
func (mb *Mailbox) SetHandle(h uint32) {
	mb.mu.Lock()
	mb.handle = h
	mb.mu.Unlock()
}

// Handle returns the owning service's handle.
func (mb *Mailbox) Handle() uint32 {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.handle
}

// Activate links the mailbox onto the global ready queue for the first
// time, ending the post-construction suppressed state described above.
func (mb *Mailbox) Activate() {
	mb.queue.push(mb)
}

// Push appends msg to the tail of the mailbox. It never fails: a full
// ring buffer is doubled in place. If the mailbox was idle (not already
// queued or being dispatched), it transitions to non-idle and is linked
// onto the global ready queue.
func (mb *Mailbox) Push(msg Message) {
	mb.mu.Lock()
	mb.buf[mb.tail] = msg
	mb.tail = (mb.tail + 1) % len(mb.buf)
	if mb.tail == mb.head {
		mb.grow()
	}
	wasIdle := !mb.inGlobal
	if wasIdle {
		mb.inGlobal = true
	}
	mb.mu.Unlock()

	if wasIdle {
		mb.queue.push(mb)
	}
}

// grow doubles the ring buffer's capacity, preserving logical order. Must
// be called with mu held.
func (mb *Mailbox) grow() {
	oldCap := len(mb.buf)
	next := make([]Message, oldCap*2)
	n := copy(next, mb.buf[mb.head:])
	copy(next[n:], mb.buf[:mb.head])
	mb.buf = next
	mb.head = 0
	mb.tail = oldCap
}

// length returns the logical element count. Must be called with mu held.
func (mb *Mailbox) length() int {
	return (mb.tail - mb.head + len(mb.buf)) % len(mb.buf)
}

// Len returns a locked snapshot of the mailbox's logical length.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.length()
}

// Pop removes and returns the message at the head of the mailbox. ok is
// false if the mailbox was empty, in which case the mailbox is marked
// idle (cleared from inGlobal) since there is nothing left to dispatch.
// overloadAt is non-zero exactly once per threshold doubling: the first
// pop that observes the post-pop length still above overloadThreshold
// reports the threshold it crossed (1024, 2048, ...) and doubles it.
func (mb *Mailbox) Pop() (msg Message, ok bool, overloadAt int) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.head == mb.tail {
		mb.inGlobal = false
		return Message{}, false, 0
	}

	msg = mb.buf[mb.head]
	mb.buf[mb.head] = Message{}
	mb.head = (mb.head + 1) % len(mb.buf)

	if n := mb.length(); n > mb.overloadThreshold {
		overloadAt = mb.overloadThreshold
		mb.overloadThreshold *= 2
	}

	return msg, true, overloadAt
}

// MarkRelease flags the mailbox for retirement: once drained, the owner
// must free the underlying service context. It is a programming error to
// call this twice. If the mailbox was idle, it is pushed onto the global
// queue so a worker observes and drains it.
func (mb *Mailbox) MarkRelease() {
	mb.mu.Lock()
	if mb.release {
		mb.mu.Unlock()
		panic("mailbox: MarkRelease called on an already-released mailbox")
	}
	mb.release = true
	wasIdle := !mb.inGlobal
	if wasIdle {
		mb.inGlobal = true
	}
	mb.mu.Unlock()

	if wasIdle {
		mb.queue.push(mb)
	}
}

// Released reports whether MarkRelease has been called. The dispatcher
// uses this to decide whether popped messages should go to the service's
// callback or be dropped.
func (mb *Mailbox) Released() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.release
}
