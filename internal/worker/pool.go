// Package worker implements the fixed-size goroutine pool that drives
// the dispatcher: each worker repeatedly calls Node.Dispatch with its own
// static weight, sleeping on a shared wakeup channel when there is
// nothing ready.
package worker

import (
	"sync"

	"github.com/fly-207/skynet/internal/actor"
	"github.com/fly-207/skynet/internal/mailbox"
	"github.com/fly-207/skynet/internal/monitor"
)

// Weights returns the static per-worker greediness table for a pool of
// size n: the first quarter drains one message per tick (weight -1), the
// next quarter drains everything (weight 0), and the remaining workers
// drain progressively smaller fractions, matching the distilled spec's
// example table ([-1,-1,-1,-1,0,0,0,0,1,...,3,3]) scaled to n.
func Weights(n int) []int {
	w := make([]int, n)
	for i := range w {
		switch quartile := i * 4 / n; quartile {
		case 0:
			w[i] = -1
		case 1:
			w[i] = 0
		case 2:
			w[i] = 1
		default:
			w[i] = 2
		}
	}
	return w
}

// Pool is the N-goroutine worker pool. It implements mailbox.Waker so it
// can be installed directly as the global queue's wakeup hook.
type Pool struct {
	node    *actor.Node
	weights []int
	slots   []*monitor.Slot

	wake chan struct{} // capacity 1: the shared "condition variable"
	quit chan struct{}
	wg   sync.WaitGroup
}

var _ mailbox.Waker = (*Pool)(nil)

// New builds a pool of len(weights) workers against node, one monitor
// slot per worker supplied by mon. It installs itself as the global
// queue's waker.
func New(node *actor.Node, weights []int, mon *monitor.Monitor) *Pool {
	slots := make([]*monitor.Slot, len(weights))
	for i := range slots {
		slots[i] = mon.Slot(i)
	}
	p := &Pool{
		node:    node,
		weights: weights,
		slots:   slots,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
	node.Queue().SetWaker(p)
	return p
}

// WakeOne signals at most one sleeping worker: the signal goes straight
// to a worker blocked on the channel if there is one, and otherwise
// waits in the channel's single buffer slot. While that slot is full and
// no worker is waiting, further signals are dropped, so they collapse
// into a single pending wakeup.
func (p *Pool) WakeOne() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// WakeAllButOne is used by the timer driver to nudge every worker but
// one awake on each tick, per the distilled spec's timer responsibility.
func (p *Pool) WakeAllButOne() {
	for i := 0; i < len(p.weights)-1; i++ {
		p.WakeOne()
	}
}

// Start launches all worker goroutines.
func (p *Pool) Start() {
	for i := range p.weights {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Stop signals every worker to exit after its current tick and waits for
// them to join.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

func (p *Pool) run(i int) {
	defer p.wg.Done()

	weight := p.weights[i]
	slot := p.slots[i]
	var held *mailbox.Mailbox

	for {
		select {
		case <-p.quit:
			return
		default:
		}

		next := p.node.Dispatch(slot, held, weight)
		if next != nil {
			held = next
			continue
		}
		held = nil

		if !p.node.Queue().Empty() {
			continue
		}

		select {
		case <-p.wake:
		case <-p.quit:
			return
		}
	}
}
