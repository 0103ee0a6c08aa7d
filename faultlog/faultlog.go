package faultlog

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Record is one crash that reached the bottom of a call chain.
type Record struct {
	Time    time.Time
	Thread  string
	Proc    string
	PC      int
	Loc     string
	Kind    string
	Message string
	Trace   []string
	// NoWait marks crashes swallowed at a no-wait boundary rather than at
	// the bottom of a thread.
	NoWait bool
}

// Store persists records beyond the in-memory window.
type Store interface {
	Append(rec Record) error
	Close() error
}

// Log is the process-wide fault counter. It keeps the most recent records
// in memory and forwards every record to an optional Store.
type Log struct {
	count atomic.Int64

	mu     sync.Mutex
	recent []Record
	next   int
	full   bool
	store  Store
}

// New creates a log keeping up to keep recent records (0 means 64). store
// may be nil.
func New(keep int, store Store) *Log {
	if keep <= 0 {
		keep = 64
	}
	return &Log{
		recent: make([]Record, keep),
		store:  store,
	}
}

func (l *Log) Record(rec Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	n := l.count.Add(1)
	log.Error().
		Int64("fault", n).
		Str("thread", rec.Thread).
		Str("proc", rec.Proc).
		Int("pc", rec.PC).
		Str("loc", rec.Loc).
		Str("kind", rec.Kind).
		Bool("nowait", rec.NoWait).
		Strs("trace", rec.Trace).
		Msg(rec.Message)

	l.mu.Lock()
	l.recent[l.next] = rec
	l.next = (l.next + 1) % len(l.recent)
	if l.next == 0 {
		l.full = true
	}
	store := l.store
	l.mu.Unlock()

	if store != nil {
		if err := store.Append(rec); err != nil {
			log.Warn().Err(err).Msg("couldn't persist fault record")
		}
	}
}

func (l *Log) Count() int64 {
	return l.count.Load()
}

// Recent returns the retained records, oldest first.
func (l *Log) Recent() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		out := make([]Record, l.next)
		copy(out, l.recent[:l.next])
		return out
	}
	out := make([]Record, 0, len(l.recent))
	out = append(out, l.recent[l.next:]...)
	out = append(out, l.recent[:l.next]...)
	return out
}

func (l *Log) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}
