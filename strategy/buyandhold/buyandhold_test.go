package buyandhold

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickvault/tickvault/strategy"
)

func TestRegistered(t *testing.T) {
	t.Parallel()
	assert.Contains(t, strategy.Registered(), Name)
}

func TestNew(t *testing.T) {
	t.Parallel()
	s, err := New(strategy.Params{"instrument": "EURUSD.SIM", "size": "100"})
	require.NoError(t, err)
	bh, ok := s.(*BuyAndHold)
	require.True(t, ok)
	assert.Equal(t, "EURUSD.SIM", bh.instrument.String())
	assert.True(t, bh.size.Equal(decimal.NewFromInt(100)))

	_, err = New(strategy.Params{"size": "100"})
	assert.ErrorIs(t, err, strategy.ErrMissingParam)

	_, err = New(strategy.Params{"instrument": "EURUSD.SIM", "size": "0"})
	assert.ErrorIs(t, err, strategy.ErrMissingParam)

	_, err = New(strategy.Params{"instrument": "EURUSD", "size": "100"})
	assert.Error(t, err)
}
