package replay

import (
	"errors"

	"github.com/tickvault/tickvault/marketdata"
)

var (
	// ErrNonMonotonicInput is returned when a contributing stream yields a
	// decreasing ts_init. The merge never silently reorders corrupt input
	ErrNonMonotonicInput = errors.New("non-monotonic input stream")
	// ErrNoSources is returned when a merger is built without any streams
	ErrNoSources = errors.New("no sources to merge")
	// ErrNotRunning is returned when reentering a record outside a delivery
	ErrNotRunning = errors.New("merger is not running")
)

// Stream is an individually time ordered, lazily produced record sequence.
// Next returns false once the stream is exhausted; exhaustion is explicit
// and final. Err reports any failure after exhaustion
type Stream interface {
	Next() (marketdata.Record, bool)
	Err() error
}

// Source pairs a stream with its declared name. Slice order when
// constructing a Merger fixes the tie break priority, which is what makes
// equal timestamp ordering a pure function of configuration
type Source struct {
	Name   string
	Stream Stream
}

// DeliverFunc receives each merged record. Exactly one record is in flight
// at a time; a handler may synchronously reenter generated events and they
// join the merge at their own timestamp
type DeliverFunc func(marketdata.Record) error

// reentrySrc marks heap entries holding reentered records. It sorts before
// every real stream index so generated records precede input records that
// share their timestamp
const reentrySrc = -1

type mergeEntry struct {
	rec marketdata.Record
	src int
	gen uint64
}

type mergeHeap []mergeEntry

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if h[i].rec.InitTime() != h[j].rec.InitTime() {
		return h[i].rec.InitTime() < h[j].rec.InitTime()
	}
	if h[i].src != h[j].src {
		return h[i].src < h[j].src
	}
	// only reentered entries share a src; gen keeps them in reentry order
	return h[i].gen < h[j].gen
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(mergeEntry)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
