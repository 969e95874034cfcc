// Package monitor implements the background watchdog that samples every
// worker's liveness slot and reports services that appear stuck, without
// ever touching the worker itself.
package monitor

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fly-207/skynet/internal/handle"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// sampleInterval matches the distilled spec's "every 5 seconds".
const sampleInterval = 5 * time.Second

// Slot is one worker's liveness token: the (source, destination) pair of
// the message it is currently dispatching, plus a version counter bumped
// on every Touch. It implements actor.MonitorSlot.
type Slot struct {
	source  atomic.Uint32
	dest    atomic.Uint32
	version atomic.Uint64
}

// Touch records that dispatch of a message from source to dest has
// begun.
func (s *Slot) Touch(source, dest handle.Handle) {
	s.source.Store(uint32(source))
	s.dest.Store(uint32(dest))
	s.version.Add(1)
}

// Clear marks the slot idle: no dispatch currently in flight.
func (s *Slot) Clear() {
	s.dest.Store(0)
}

type sample struct {
	dest    uint32
	version uint64
}

// Monitor samples a fixed set of worker slots on a timer and logs a
// warning, at most once per breach window, whenever a slot's version has
// not advanced since the previous sample while its destination is still
// set — meaning that worker has been inside the same callback invocation
// for at least one full sampling period.
type Monitor struct {
	log   *slog.Logger
	slots []*Slot
	last  []sample

	mu       sync.Mutex
	breakers map[uint32]*gobreaker.CircuitBreaker

	sink Sink

	quit chan struct{}
	wg   sync.WaitGroup
}

// Sink receives stuck-worker notices, e.g. for forwarding onto the admin
// websocket monitor stream. Optional; see SetSink.
type Sink interface {
	Report(worker int, source, dest handle.Handle, message string)
}

// SetSink installs a notification sink. Must be called before Start if
// used at all.
func (m *Monitor) SetSink(s Sink) { m.sink = s }

// New returns a Monitor with n per-worker slots, initially idle.
func New(n int, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	slots := make([]*Slot, n)
	for i := range slots {
		slots[i] = &Slot{}
	}
	return &Monitor{
		log:      log,
		slots:    slots,
		last:     make([]sample, n),
		breakers: make(map[uint32]*gobreaker.CircuitBreaker),
		quit:     make(chan struct{}),
	}
}

// Slot returns worker i's liveness slot, to be handed to that worker's
// Dispatch calls.
func (m *Monitor) Slot(i int) *Slot { return m.slots[i] }

// Start launches the sampling goroutine.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop signals the sampling goroutine to exit and waits for it.
func (m *Monitor) Stop() {
	close(m.quit)
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sampleOnce()
		case <-m.quit:
			return
		}
	}
}

func (m *Monitor) sampleOnce() {
	for i, s := range m.slots {
		dest := s.dest.Load()
		version := s.version.Load()
		prev := m.last[i]

		if dest != 0 && prev.dest == dest && prev.version == version {
			m.reportStuck(i, handle.Handle(s.source.Load()), handle.Handle(dest))
		}
		m.last[i] = sample{dest: dest, version: version}
	}
}

// reportStuck logs a stuck-worker warning, suppressing repeats for the
// same destination via a per-destination circuit breaker: the breaker
// trips open on the first report and stays open for its timeout window,
// so a service wedged for minutes produces one log line per window
// instead of one per sample.
func (m *Monitor) reportStuck(worker int, source, dest handle.Handle) {
	m.mu.Lock()
	cb, ok := m.breakers[uint32(dest)]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        dest.String(),
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 },
		})
		m.breakers[uint32(dest)] = cb
	}
	m.mu.Unlock()

	_, _ = cb.Execute(func() (any, error) {
		msg := "service appears stuck"
		m.log.Warn(msg,
			"worker", worker, "source", source, "dest", dest,
			"episode", uuid.NewString())
		if m.sink != nil {
			m.sink.Report(worker, source, dest, msg)
		}
		return nil, errStuck
	})
}

var errStuck = stuckError{}

type stuckError struct{}

func (stuckError) Error() string { return "monitor: destination stuck" }
