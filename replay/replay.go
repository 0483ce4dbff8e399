// Package replay performs the stable k-way merge that turns independently
// ordered market data streams into one deterministic event sequence. Two
// runs over the same sources in the same declaration order produce the
// identical output, which is the foundation of reproducible backtests.
package replay

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/tickvault/tickvault/internal/btlog"
	"github.com/tickvault/tickvault/marketdata"
	"go.uber.org/zap"
)

// Merger merges N time ordered streams into one globally ordered sequence.
// It owns no persistent state, only stream cursors, so memory is bounded
// by the number of open streams
type Merger struct {
	sources  []Source
	prefetch int
	log      *zap.Logger

	running  bool
	lastTS   int64
	h        mergeHeap
	nextGen  uint64
	perSrcTS []int64
}

// Option configures a Merger
type Option func(*Merger)

// WithPrefetch buffers up to depth records per stream ahead of the merge.
// Prefetch workers are pure producers; merged order is unaffected by their
// timing
func WithPrefetch(depth int) Option {
	return func(m *Merger) {
		if depth > 0 {
			m.prefetch = depth
		}
	}
}

// NewMerger builds a merger over the given sources. Slice order assigns
// each stream its fixed tie break priority
func NewMerger(sources []Source, opts ...Option) (*Merger, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	m := &Merger{
		sources: sources,
		log:     btlog.Sub("replay"),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Reenter inserts a record generated during delivery into the merge at its
// own ts_init. A record stamped at the in flight timestamp goes out before
// the input streams resume; a later stamp waits until the merge reaches it.
// The record must not precede the in flight record's ts_init
func (m *Merger) Reenter(rec marketdata.Record) error {
	if !m.running {
		return ErrNotRunning
	}
	if rec.InitTime() < m.lastTS {
		return fmt.Errorf("%w: reentered record at %d before current %d",
			ErrNonMonotonicInput, rec.InitTime(), m.lastTS)
	}
	heap.Push(&m.h, mergeEntry{rec: rec, src: reentrySrc, gen: m.nextGen})
	m.nextGen++
	return nil
}

// Run drives the merge to exhaustion, delivering one record at a time.
// Cancellation is observed between deliveries; an aborted run returns the
// context error and the caller must discard any partial output. Returns
// the number of records delivered
func (m *Merger) Run(ctx context.Context, deliver DeliverFunc) (uint64, error) {
	streams := make([]Stream, len(m.sources))
	for i := range m.sources {
		streams[i] = m.sources[i].Stream
		if m.prefetch > 0 {
			streams[i] = newPrefetched(ctx, m.sources[i].Stream, m.prefetch)
		}
	}

	m.running = true
	m.lastTS = 0
	m.nextGen = 0
	m.perSrcTS = make([]int64, len(streams))
	defer func() { m.running = false }()

	m.h = make(mergeHeap, 0, len(streams))
	for i, s := range streams {
		rec, ok, err := m.pull(s, i)
		if err != nil {
			return 0, err
		}
		if ok {
			m.h = append(m.h, mergeEntry{rec: rec, src: i})
		}
	}
	heap.Init(&m.h)

	var delivered uint64
	emit := func(rec marketdata.Record) error {
		m.lastTS = rec.InitTime()
		if err := deliver(rec); err != nil {
			return err
		}
		delivered++
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			m.log.Warn("merge aborted", zap.Uint64("delivered", delivered), zap.Error(err))
			return delivered, err
		}
		if m.h.Len() == 0 {
			m.log.Debug("merge exhausted", zap.Uint64("delivered", delivered))
			return delivered, nil
		}

		entry := m.h[0]
		if entry.src == reentrySrc {
			heap.Pop(&m.h)
		} else {
			next, ok, err := m.pull(streams[entry.src], entry.src)
			if err != nil {
				return delivered, err
			}
			if ok {
				m.h[0] = mergeEntry{rec: next, src: entry.src}
				heap.Fix(&m.h, 0)
			} else {
				heap.Pop(&m.h)
			}
		}
		// delivery may reenter generated records; they land in the heap
		// at their own timestamp and are picked up on later iterations
		if err := emit(entry.rec); err != nil {
			return delivered, err
		}
	}
}

// pull advances one stream, enforcing per stream monotonicity
func (m *Merger) pull(s Stream, src int) (marketdata.Record, bool, error) {
	rec, ok := s.Next()
	if !ok {
		if err := s.Err(); err != nil {
			return nil, false, fmt.Errorf("stream %q (index %d): %w", m.sources[src].Name, src, err)
		}
		return nil, false, nil
	}
	if rec.InitTime() < m.perSrcTS[src] {
		return nil, false, fmt.Errorf("%w: stream %q (index %d) yielded %d after %d",
			ErrNonMonotonicInput, m.sources[src].Name, src, rec.InitTime(), m.perSrcTS[src])
	}
	m.perSrcTS[src] = rec.InitTime()
	return rec, true, nil
}
