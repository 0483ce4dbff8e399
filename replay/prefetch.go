package replay

import (
	"context"
	"sync"

	"github.com/tickvault/tickvault/marketdata"
)

// prefetched wraps a stream with a single producer goroutine feeding a
// bounded buffer. It preserves the wrapped stream's order exactly; only
// read ahead timing changes
type prefetched struct {
	ch chan marketdata.Record

	mu  sync.Mutex
	err error
}

func newPrefetched(ctx context.Context, inner Stream, depth int) *prefetched {
	p := &prefetched{ch: make(chan marketdata.Record, depth)}
	go func() {
		defer close(p.ch)
		for {
			rec, ok := inner.Next()
			if !ok {
				p.setErr(inner.Err())
				return
			}
			select {
			case p.ch <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return p
}

// Next implements Stream
func (p *prefetched) Next() (marketdata.Record, bool) {
	rec, ok := <-p.ch
	return rec, ok
}

// Err implements Stream
func (p *prefetched) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *prefetched) setErr(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}
