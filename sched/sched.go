package sched

import (
	"container/heap"
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/timewinder-dev/dreamvm/interp"
	"github.com/timewinder-dev/dreamvm/vm"
)

type timer struct {
	deadline int64
	seq      uint64
	thread   *interp.Thread
}

// timerQueue orders sleepers by deadline, then by the order they slept in.
type timerQueue []timer

func (q timerQueue) Len() int { return len(q) }
func (q timerQueue) Less(i, j int) bool {
	if q[i].deadline != q[j].deadline {
		return q[i].deadline < q[j].deadline
	}
	return q[i].seq < q[j].seq
}
func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *timerQueue) Push(x any)   { *q = append(*q, x.(timer)) }
func (q *timerQueue) Pop() any {
	old := *q
	t := old[len(old)-1]
	*q = old[:len(old)-1]
	return t
}

// Scheduler drives suspended threads from a single executor goroutine. Time
// advances in ticks; every opcode of every thread runs inside Tick. Other
// goroutines reach the executor only through Post.
type Scheduler struct {
	ctx    *interp.Context
	tick   int64
	seq    uint64
	timers timerQueue

	mu     sync.Mutex
	events []func()
	notify chan struct{}

	resumed atomic.Int64

	// OnTick, when set, is called by Run after every tick. Returning false
	// stops Run.
	OnTick func(now int64) bool
}

// New creates a scheduler and installs it as c's Waker.
func New(c *interp.Context) *Scheduler {
	s := &Scheduler{
		ctx:    c,
		notify: make(chan struct{}, 1),
	}
	c.Waker = s
	return s
}

func (s *Scheduler) Context() *interp.Context {
	return s.ctx
}

// Now is the number of ticks run so far.
func (s *Scheduler) Now() int64 {
	return s.tick
}

// Sleep implements interp.Waker. Called on the executor only.
func (s *Scheduler) Sleep(t *interp.Thread, ticks int) {
	if ticks < 0 {
		ticks = 0
	}
	deadline := int64(math.MaxInt64)
	if int64(ticks) < math.MaxInt64-s.tick {
		deadline = s.tick + int64(ticks)
	}
	s.seq++
	heap.Push(&s.timers, timer{deadline: deadline, seq: s.seq, thread: t})
	log.Trace().Str("thread", t.Name).Int("ticks", ticks).Int64("tick", s.tick).Msg("thread sleeping")
}

// Post queues fn to run on the executor at the start of the next tick.
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	s.events = append(s.events, fn)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Scheduler) drain() int {
	s.mu.Lock()
	events := s.events
	s.events = nil
	s.mu.Unlock()
	for _, fn := range events {
		fn()
	}
	return len(events)
}

// Tick runs posted events, advances the clock and resumes every thread whose
// sleep has ended, in the order they went to sleep. Threads that go back to
// sleep during the tick wait at least until the next one.
func (s *Scheduler) Tick() {
	s.drain()
	s.tick++
	limit := s.seq
	for s.timers.Len() > 0 {
		next := s.timers[0]
		if next.deadline > s.tick || next.seq > limit {
			break
		}
		heap.Pop(&s.timers)
		if next.thread.Status() != interp.Suspended {
			continue
		}
		s.resumed.Add(1)
		if err := next.thread.Resume(vm.Null); err != nil {
			log.Warn().Err(err).Str("thread", next.thread.Name).Msg("resume failed")
		}
	}
}

// Pending reports how many sleepers and posted events are outstanding.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	n := len(s.events)
	s.mu.Unlock()
	return n + s.timers.Len()
}

// Resumed is the number of thread wake-ups performed.
func (s *Scheduler) Resumed() int64 {
	return s.resumed.Load()
}

// Run ticks every period until ctx is done or maxTicks ticks have run
// (maxTicks <= 0 runs until cancelled).
func (s *Scheduler) Run(ctx context.Context, period time.Duration, maxTicks int64) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	start := s.tick
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
			if s.OnTick != nil && !s.OnTick(s.tick) {
				return nil
			}
			if maxTicks > 0 && s.tick-start >= maxTicks {
				return nil
			}
		case <-s.notify:
			// Posted work runs between ticks so callers don't wait a full
			// period.
			s.drain()
		}
	}
}

// RunUntilIdle ticks without waiting until nothing is pending or maxTicks
// ticks have run. It returns the number of ticks run.
func (s *Scheduler) RunUntilIdle(maxTicks int64) int64 {
	var n int64
	for s.Pending() > 0 && (maxTicks <= 0 || n < maxTicks) {
		s.Tick()
		n++
	}
	return n
}

// Call runs a proc on a new thread from the executor.
func (s *Scheduler) Call(id vm.ProcID, src, usr vm.Value, args interp.Args) (vm.Value, *interp.Thread, error) {
	return interp.Run(s.ctx, id, src, usr, args)
}

// Spawn starts a proc on a new thread at the next tick. Its result is
// discarded.
func (s *Scheduler) Spawn(id vm.ProcID, src, usr vm.Value, args interp.Args) error {
	proc, err := s.ctx.Program.Proc(id)
	if err != nil {
		return err
	}
	ps, err := s.ctx.NewFrame(proc, src, usr, args)
	if err != nil {
		return err
	}
	s.Post(func() {
		t := s.ctx.NewThread(s.ctx.Program.ProcPath(id), ps)
		t.Start()
	})
	return nil
}
