package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickvault/tickvault/instrument"
	"github.com/tickvault/tickvault/marketdata"
)

type sliceStream struct {
	records []marketdata.Record
	pos     int
	err     error
}

func (s *sliceStream) Next() (marketdata.Record, bool) {
	if s.pos >= len(s.records) {
		return nil, false
	}
	r := s.records[s.pos]
	s.pos++
	return r, true
}

func (s *sliceStream) Err() error { return s.err }

func tradeAt(symbol string, ts int64) *marketdata.Trade {
	return &marketdata.Trade{
		Instrument: instrument.ID{Symbol: symbol, Venue: "SIM"},
		TSEvent:    ts,
		TSInit:     ts,
	}
}

func trades(symbol string, ts ...int64) []marketdata.Record {
	out := make([]marketdata.Record, 0, len(ts))
	for _, t := range ts {
		out = append(out, tradeAt(symbol, t))
	}
	return out
}

func collect(t *testing.T, m *Merger) []marketdata.Record {
	t.Helper()
	var out []marketdata.Record
	n, err := m.Run(context.Background(), func(r marketdata.Record) error {
		out = append(out, r)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(len(out)), n)
	return out
}

func timestamps(records []marketdata.Record) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.InitTime())
	}
	return out
}

func TestMergeThreeStreams(t *testing.T) {
	t.Parallel()
	m, err := NewMerger([]Source{
		{Name: "a", Stream: &sliceStream{records: trades("A", 1, 3, 5)}},
		{Name: "b", Stream: &sliceStream{records: trades("B", 2, 4)}},
		{Name: "c", Stream: &sliceStream{records: trades("C", 0)}},
	})
	require.NoError(t, err)
	out := collect(t, m)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, timestamps(out))
}

func TestMergeTieBreakByDeclarationOrder(t *testing.T) {
	t.Parallel()
	m, err := NewMerger([]Source{
		{Name: "first", Stream: &sliceStream{records: trades("A", 10, 10)}},
		{Name: "second", Stream: &sliceStream{records: trades("B", 10)}},
	})
	require.NoError(t, err)
	out := collect(t, m)
	require.Len(t, out, 3)
	assert.Equal(t, "A", out[0].InstrumentID().Symbol)
	assert.Equal(t, "A", out[1].InstrumentID().Symbol)
	assert.Equal(t, "B", out[2].InstrumentID().Symbol)
}

func TestMergeNoSources(t *testing.T) {
	t.Parallel()
	_, err := NewMerger(nil)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestNonMonotonicStream(t *testing.T) {
	t.Parallel()
	m, err := NewMerger([]Source{
		{Name: "bad", Stream: &sliceStream{records: trades("A", 5, 3)}},
	})
	require.NoError(t, err)
	_, err = m.Run(context.Background(), func(marketdata.Record) error { return nil })
	require.ErrorIs(t, err, ErrNonMonotonicInput)
	assert.Contains(t, err.Error(), `"bad"`)
}

func TestStreamErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("decode failed")
	m, err := NewMerger([]Source{
		{Name: "broken", Stream: &sliceStream{records: trades("A", 1), err: boom}},
	})
	require.NoError(t, err)
	_, err = m.Run(context.Background(), func(marketdata.Record) error { return nil })
	assert.ErrorIs(t, err, boom)
}

func TestReentry(t *testing.T) {
	t.Parallel()
	m, err := NewMerger([]Source{
		{Name: "a", Stream: &sliceStream{records: trades("A", 1, 2, 3)}},
	})
	require.NoError(t, err)

	var out []marketdata.Record
	injected := false
	_, err = m.Run(context.Background(), func(r marketdata.Record) error {
		out = append(out, r)
		if r.InitTime() == 1 && !injected {
			injected = true
			return m.Reenter(tradeAt("GEN", 1))
		}
		return nil
	})
	require.NoError(t, err)
	// the generated record goes out before the merge resumes its inputs
	require.Len(t, out, 4)
	assert.Equal(t, []int64{1, 1, 2, 3}, timestamps(out))
	assert.Equal(t, "GEN", out[1].InstrumentID().Symbol)
}

func TestReenterAtFutureTimestamp(t *testing.T) {
	t.Parallel()
	m, err := NewMerger([]Source{
		{Name: "a", Stream: &sliceStream{records: trades("A", 1, 2, 3)}},
	})
	require.NoError(t, err)

	var out []marketdata.Record
	injected := false
	_, err = m.Run(context.Background(), func(r marketdata.Record) error {
		out = append(out, r)
		if r.InitTime() == 1 && !injected {
			injected = true
			return m.Reenter(tradeAt("GEN", 10))
		}
		return nil
	})
	require.NoError(t, err)
	// a record stamped past the pending inputs waits its turn instead of
	// jumping ahead of them
	require.Len(t, out, 4)
	assert.Equal(t, []int64{1, 2, 3, 10}, timestamps(out))
	assert.Equal(t, "GEN", out[3].InstrumentID().Symbol)
}

func TestReenterInterleavesWithInputs(t *testing.T) {
	t.Parallel()
	m, err := NewMerger([]Source{
		{Name: "a", Stream: &sliceStream{records: trades("A", 1, 2, 3)}},
	})
	require.NoError(t, err)

	var out []marketdata.Record
	injected := false
	_, err = m.Run(context.Background(), func(r marketdata.Record) error {
		out = append(out, r)
		if r.InitTime() == 1 && !injected {
			injected = true
			if err := m.Reenter(tradeAt("GEN1", 2)); err != nil {
				return err
			}
			return m.Reenter(tradeAt("GEN2", 2))
		}
		return nil
	})
	require.NoError(t, err)
	// generated records precede the input record sharing their timestamp
	// and keep their reentry order among themselves
	require.Len(t, out, 5)
	assert.Equal(t, []int64{1, 2, 2, 2, 3}, timestamps(out))
	assert.Equal(t, "GEN1", out[1].InstrumentID().Symbol)
	assert.Equal(t, "GEN2", out[2].InstrumentID().Symbol)
	assert.Equal(t, "A", out[3].InstrumentID().Symbol)
}

func TestReenterBeforeCurrentFails(t *testing.T) {
	t.Parallel()
	m, err := NewMerger([]Source{
		{Name: "a", Stream: &sliceStream{records: trades("A", 5)}},
	})
	require.NoError(t, err)
	_, err = m.Run(context.Background(), func(r marketdata.Record) error {
		return m.Reenter(tradeAt("GEN", 4))
	})
	assert.ErrorIs(t, err, ErrNonMonotonicInput)
}

func TestReenterWhenIdle(t *testing.T) {
	t.Parallel()
	m, err := NewMerger([]Source{
		{Name: "a", Stream: &sliceStream{records: trades("A", 1)}},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, m.Reenter(tradeAt("GEN", 1)), ErrNotRunning)
}

func TestCancellation(t *testing.T) {
	t.Parallel()
	m, err := NewMerger([]Source{
		{Name: "a", Stream: &sliceStream{records: trades("A", 1, 2, 3, 4, 5)}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	delivered, err := m.Run(ctx, func(r marketdata.Record) error {
		if r.InitTime() == 2 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(2), delivered)
}

func TestPrefetchPreservesOrder(t *testing.T) {
	t.Parallel()
	a := trades("A", 0, 2, 4, 6, 8, 10, 12, 14)
	b := trades("B", 1, 3, 5, 7, 9, 11, 13, 15)

	plain, err := NewMerger([]Source{
		{Name: "a", Stream: &sliceStream{records: a}},
		{Name: "b", Stream: &sliceStream{records: b}},
	})
	require.NoError(t, err)
	want := timestamps(collect(t, plain))

	fetched, err := NewMerger([]Source{
		{Name: "a", Stream: &sliceStream{records: a}},
		{Name: "b", Stream: &sliceStream{records: b}},
	}, WithPrefetch(3))
	require.NoError(t, err)
	got := timestamps(collect(t, fetched))

	assert.Equal(t, want, got)
}
