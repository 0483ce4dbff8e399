// Package query reads partitioned market data back out of the catalog as
// one lazily merged, time ascending record stream.
package query

import (
	"container/heap"
	"errors"

	"github.com/tickvault/tickvault/catalog"
	"github.com/tickvault/tickvault/catalog/partition"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/internal/btlog"
	"github.com/tickvault/tickvault/marketdata"
	"go.uber.org/zap"
)

// ErrNoInstruments is returned when a query names no instruments
var ErrNoInstruments = errors.New("query requires at least one instrument")

// Engine resolves queries against one catalog. The catalog owns partition
// metadata; the engine only holds reader cursors while a stream is open
type Engine struct {
	cat *catalog.Catalog
	log *zap.Logger
}

// New returns a query engine bound to a catalog
func New(cat *catalog.Catalog) *Engine {
	return &Engine{cat: cat, log: btlog.Sub("query")}
}

// Query opens a stream over all records of one kind for the given
// instruments within [start, end) on ts_init. Output is globally ordered
// by ts_init with ties broken by instrument id then write sequence, and
// duplicates arising from overlapping partitions are suppressed keeping
// the latest written partition's version
func (e *Engine) Query(kind marketdata.Kind, ids []instrument.ID, start, end int64) (*Stream, error) {
	if len(ids) == 0 {
		return nil, ErrNoInstruments
	}
	s := &Stream{start: start, end: end, curTS: start - 1}
	for _, id := range ids {
		entries, err := e.cat.Lookup(kind, id, start, end)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			r, err := partition.OpenKind(entry.Path, kind)
			if err != nil {
				return nil, err
			}
			cur := &cursor{reader: r, seq: entry.Sequence}
			if cur.advance(start, end) {
				s.h = append(s.h, cur)
			}
		}
	}
	heap.Init(&s.h)
	e.log.Debug("query stream opened",
		zap.String("kind", kind.String()),
		zap.Int("cursors", len(s.h)),
		zap.Int64("start", start),
		zap.Int64("end", end))
	return s, nil
}

// Stream is the merged output of one query. It is lazy; partitions are
// only decoded as their records are consumed
type Stream struct {
	h     cursorHeap
	start int64
	end   int64

	curTS   int64
	emitted []emittedRecord
}

type emittedRecord struct {
	rec      marketdata.Record
	seq      uint64
	absorbed []uint64
}

// Next returns the next record in merged order, or false once every
// contributing partition is exhausted
func (s *Stream) Next() (marketdata.Record, bool) {
	for len(s.h) > 0 {
		cur := s.h[0]
		rec := cur.next
		if cur.advance(s.start, s.end) {
			heap.Fix(&s.h, 0)
		} else {
			heap.Pop(&s.h)
		}

		if rec.InitTime() != s.curTS {
			s.curTS = rec.InitTime()
			s.emitted = s.emitted[:0]
		}
		if s.suppress(rec, cur.seq) {
			continue
		}
		s.emitted = append(s.emitted, emittedRecord{rec: rec, seq: cur.seq})
		return rec, true
	}
	return nil, false
}

// Err reports a stream error. Merged catalog streams cannot fail after
// open, the method exists to satisfy the replay stream contract
func (s *Stream) Err() error { return nil }

// suppress drops a record identical to one already emitted at the current
// timestamp when it arrives from a different (older) partition. Each
// emitted record absorbs at most one duplicate per overlapping partition
// so genuinely repeated records within a single partition survive no
// matter how many partitions cover the span
func (s *Stream) suppress(rec marketdata.Record, seq uint64) bool {
	for i := range s.emitted {
		e := &s.emitted[i]
		if e.seq == seq || !e.rec.Equal(rec) {
			continue
		}
		if containsSeq(e.absorbed, seq) {
			continue
		}
		e.absorbed = append(e.absorbed, seq)
		return true
	}
	return false
}

func containsSeq(seqs []uint64, seq uint64) bool {
	for _, s := range seqs {
		if s == seq {
			return true
		}
	}
	return false
}

// All drains the stream into a slice
func (s *Stream) All() []marketdata.Record {
	var out []marketdata.Record
	for {
		rec, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

type cursor struct {
	reader *partition.Reader
	seq    uint64
	next   marketdata.Record
}

// advance buffers the cursor's next in-window record, skipping anything
// before the window start and halting at the exclusive end bound
func (c *cursor) advance(start, end int64) bool {
	for {
		rec, ok := c.reader.Next()
		if !ok {
			c.next = nil
			return false
		}
		if rec.InitTime() < start {
			continue
		}
		if rec.InitTime() >= end {
			c.next = nil
			return false
		}
		c.next = rec
		return true
	}
}

type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].next, h[j].next
	if a.InitTime() != b.InitTime() {
		return a.InitTime() < b.InitTime()
	}
	ai, bi := a.InstrumentID().String(), b.InstrumentID().String()
	if ai != bi {
		return ai < bi
	}
	// latest written partition first so duplicate suppression keeps it
	return h[i].seq > h[j].seq
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}
