package mailbox

import "testing"

func TestMailboxFIFO(t *testing.T) {
	q := NewGlobalQueue()
	mb := NewMailbox(q)
	mb.Activate()

	for i := range 5 {
		mb.Push(Message{Source: 1, Session: uint32(i + 1)})
	}

	for i := range 5 {
		msg, ok, _ := mb.Pop()
		if !ok {
			t.Fatalf("pop %d: expected a message", i)
		}
		if msg.Session != uint32(i+1) {
			t.Fatalf("pop %d: got session %d, want %d", i, msg.Session, i+1)
		}
	}

	if _, ok, _ := mb.Pop(); ok {
		t.Fatal("expected mailbox to be empty")
	}
}

func TestMailboxGrowsPastInitialCapacity(t *testing.T) {
	q := NewGlobalQueue()
	mb := NewMailbox(q)
	mb.Activate()

	const n = initialCapacity*2 + 3
	for i := range n {
		mb.Push(Message{Session: uint32(i)})
	}
	if got := mb.Len(); got != n {
		t.Fatalf("Len() = %d, want %d", got, n)
	}
	for i := range n {
		msg, ok, _ := mb.Pop()
		if !ok || msg.Session != uint32(i) {
			t.Fatalf("pop %d: got (%v, %v), want session %d", i, msg, ok, i)
		}
	}
}

func TestMailboxOverloadReportsOncePerDoubling(t *testing.T) {
	q := NewGlobalQueue()
	mb := NewMailbox(q)
	mb.Activate()

	const total = 3000
	for i := range total {
		mb.Push(Message{Session: uint32(i)})
	}

	var reports []int
	for {
		_, ok, overloadAt := mb.Pop()
		if !ok {
			break
		}
		if overloadAt != 0 {
			reports = append(reports, overloadAt)
		}
	}

	if len(reports) != 2 || reports[0] != 1024 || reports[1] != 2048 {
		t.Fatalf("overload reports = %v, want [1024 2048]", reports)
	}
}

func TestMailboxInGlobalTransitionsOnlyOncePerIdlePeriod(t *testing.T) {
	q := NewGlobalQueue()
	mb := NewMailbox(q)
	mb.Activate()
	q.Pop() // simulate a worker taking it for dispatch

	mb.Push(Message{})
	mb.Push(Message{})
	// A second Push while already non-idle must not push mb onto the
	// queue again (it would panic on the double-link check).
	if !q.Empty() {
		t.Fatal("mailbox should not be re-queued while already non-idle/being dispatched")
	}
}

func TestMailboxMarkReleasePushesIdleMailbox(t *testing.T) {
	q := NewGlobalQueue()
	mb := NewMailbox(q)
	mb.Activate()
	q.Pop() // detach after activation, mailbox is now idle (not linked)
	mb.Pop()

	mb.MarkRelease()
	if !mb.Released() {
		t.Fatal("expected Released() to be true")
	}
	if q.Pop() != mb {
		t.Fatal("expected MarkRelease to re-link the idle mailbox")
	}
}

func TestMailboxMarkReleaseTwicePanics(t *testing.T) {
	q := NewGlobalQueue()
	mb := NewMailbox(q)
	mb.Activate()
	q.Pop()
	mb.Pop()
	mb.MarkRelease()

	defer func() {
		if recover() == nil {
			t.Fatal("expected second MarkRelease to panic")
		}
	}()
	mb.MarkRelease()
}
