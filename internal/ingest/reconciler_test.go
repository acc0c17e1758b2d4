package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// partialReader fails exactly one of the three reads.
type partialReader struct {
	fakeReader
	failLastPrice bool
}

func (p *partialReader) LastPrice(ctx context.Context, token string) (decimal.Decimal, error) {
	if p.failLastPrice {
		return decimal.Zero, errors.New("execution reverted")
	}
	return p.fakeReader.LastPrice(ctx, token)
}

func TestReconciler_AllReadsSucceed(t *testing.T) {
	reader := &fakeReader{
		collateral:    decimal.RequireFromString("1000000000000000000"),
		virtualSupply: decimal.RequireFromString("900000000000000000000"),
		lastPrice:     decimal.RequireFromString("0.0011"),
	}
	r := NewReconciler(reader, zerolog.Nop())

	state := r.Read(context.Background(), testToken)
	require.NotNil(t, state)
	assert.True(t, state.Collateral.Equal(reader.collateral))
	assert.True(t, state.VirtualSupply.Equal(reader.virtualSupply))
	assert.True(t, state.LastPrice.Equal(reader.lastPrice))
}

func TestReconciler_AnyFailureMeansFallback(t *testing.T) {
	reader := &partialReader{
		fakeReader: fakeReader{
			collateral:    decimal.RequireFromString("1000000000000000000"),
			virtualSupply: decimal.RequireFromString("900000000000000000000"),
		},
		failLastPrice: true,
	}
	r := NewReconciler(reader, zerolog.Nop())

	assert.Nil(t, r.Read(context.Background(), testToken),
		"one failed read invalidates the whole result")
}

func TestReconciler_NilReader(t *testing.T) {
	r := NewReconciler(nil, zerolog.Nop())
	assert.Nil(t, r.Read(context.Background(), testToken))
}
