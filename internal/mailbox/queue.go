package mailbox

import "sync"

// Waker is notified after a mailbox is linked onto the global ready
// queue, so the worker pool can implement the "wake exactly one sleeper"
// rule without GlobalQueue needing to know anything about worker sleep
// accounting.
type Waker interface {
	WakeOne()
}

// GlobalQueue is the FIFO of mailboxes that currently hold work and are
// not presently being dispatched by any worker. It is intrusive: list
// nodes are the Mailbox values themselves (via their unexported next
// field), so pushing and popping are both O(1) with no extra allocation.
type GlobalQueue struct {
	mu         sync.Mutex
	head, tail *Mailbox
	waker      Waker
}

// NewGlobalQueue returns an empty queue.
func NewGlobalQueue() *GlobalQueue {
	return &GlobalQueue{}
}

// SetWaker installs the worker pool's wakeup hook. Must be called once,
// before any mailbox can be pushed (i.e. during bootstrap).
func (q *GlobalQueue) SetWaker(w Waker) {
	q.mu.Lock()
	q.waker = w
	q.mu.Unlock()
}

// push links mb onto the tail of the queue. It is unexported because the
// only legal caller is Mailbox itself, on an idle->non-idle transition;
// pushing an already-linked mailbox is a programming error.
func (q *GlobalQueue) push(mb *Mailbox) {
	q.mu.Lock()
	if mb.linked {
		q.mu.Unlock()
		panic("mailbox: pushed onto global queue while already linked")
	}
	mb.next = nil
	mb.linked = true
	if q.tail == nil {
		q.head, q.tail = mb, mb
	} else {
		q.tail.next = mb
		q.tail = mb
	}
	w := q.waker
	q.mu.Unlock()

	if w != nil {
		w.WakeOne()
	}
}

// Pop detaches and returns the mailbox at the head of the queue, or nil
// if the queue is empty. Once popped, the caller is the mailbox's
// exclusive dispatcher until it is linked again by a later Push or
// MarkRelease call.
func (q *GlobalQueue) Pop() *Mailbox {
	q.mu.Lock()
	defer q.mu.Unlock()

	mb := q.head
	if mb == nil {
		return nil
	}
	q.head = mb.next
	if q.head == nil {
		q.tail = nil
	}
	mb.next = nil
	mb.linked = false
	return mb
}

// Empty reports whether the queue currently holds no mailboxes.
func (q *GlobalQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head == nil
}
