package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
	"github.com/itripleg/motherhaven-sub003/internal/storage/memory"
)

const (
	testToken   = "0x1111111111111111111111111111111111111111"
	testCreator = "0x2222222222222222222222222222222222222222"
	testTrader  = "0x3333333333333333333333333333333333333333"
)

// fakeReader is a StateReader with canned results.
type fakeReader struct {
	collateral    decimal.Decimal
	virtualSupply decimal.Decimal
	lastPrice     decimal.Decimal
	err           error
}

func (f *fakeReader) Collateral(ctx context.Context, token string) (decimal.Decimal, error) {
	return f.collateral, f.err
}

func (f *fakeReader) VirtualSupply(ctx context.Context, token string) (decimal.Decimal, error) {
	return f.virtualSupply, f.err
}

func (f *fakeReader) LastPrice(ctx context.Context, token string) (decimal.Decimal, error) {
	return f.lastPrice, f.err
}

type testEnv struct {
	handlers *Handlers
	tokens   *memory.TokenStore
	trades   *memory.TradeStore
	users    *memory.UserStore
	points   *memory.PricePointStore
}

// newTestEnv wires handlers over memory stores. reader nil means every
// reconciler read falls back.
func newTestEnv(reader StateReader) *testEnv {
	logger := zerolog.Nop()
	env := &testEnv{
		tokens: memory.NewTokenStore(),
		trades: memory.NewTradeStore(),
		users:  memory.NewUserStore(),
		points: memory.NewPricePointStore(),
	}
	env.handlers = NewHandlers(HandlersOptions{
		TokenStore:      env.tokens,
		TradeStore:      env.trades,
		UserStore:       env.users,
		PricePointStore: env.points,
		Reconciler:      NewReconciler(reader, logger),
		Logger:          logger,
	})
	return env
}

func createdEvent() *domain.TokenCreated {
	return &domain.TokenCreated{
		EventMeta: domain.EventMeta{
			BlockNumber: 100,
			TxHash:      "0xcreate01",
			Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		Token:         testToken,
		Creator:       testCreator,
		TokenName:     "Mother Haven",
		Symbol:        "HAVEN",
		ImageURL:      "https://img.example/haven.png",
		FundingGoal:   decimal.RequireFromString("5000000000000000000"),
		CreatorTokens: decimal.RequireFromString("1000000000000000000000"), // 1000 tokens
		EthSpent:      decimal.RequireFromString("1000000000000000000"),    // 1 ETH
	}
}

func buyEvent(txHash string, amount, eth, fee decimal.Decimal) *domain.TokensPurchased {
	return &domain.TokensPurchased{
		EventMeta: domain.EventMeta{
			BlockNumber: 110,
			TxHash:      txHash,
			Timestamp:   time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
		},
		Token:  testToken,
		Buyer:  testTrader,
		Amount: amount,
		Eth:    eth,
		Fee:    fee,
	}
}

func TestHandleTokenCreated_SynthesizesCreationTrade(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()

	require.NoError(t, env.handlers.HandleTokenCreated(ctx, createdEvent()))

	tok, err := env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, domain.StateTrading, tok.State)
	assert.Equal(t, "Mother Haven", tok.Name)
	assert.Equal(t, testCreator, tok.Creator)
	assert.Equal(t, int64(1), tok.TradeCount)
	assert.Equal(t, int64(1), tok.UniqueHolders)
	// 1 ETH for 1000 tokens
	assert.True(t, tok.LastPrice.Equal(decimal.RequireFromString("0.001")), "last price: %s", tok.LastPrice)
	assert.True(t, tok.Collateral.Equal(decimal.RequireFromString("1000000000000000000")))

	trades, err := env.trades.GetByToken(ctx, testToken)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeBuy, trades[0].Type)
	assert.True(t, trades[0].TokenAmount.Equal(decimal.RequireFromString("1000000000000000000000")))
	assert.True(t, trades[0].EthAmount.Equal(decimal.RequireFromString("1000000000000000000")))
	assert.True(t, trades[0].Fee.IsZero(), "creation trade carries no fee")
	assert.Equal(t, testCreator, trades[0].Trader)

	user, err := env.users.GetByAddress(ctx, testCreator)
	require.NoError(t, err)
	assert.Equal(t, []string{testToken}, user.CreatedTokens)
}

func TestHandleTokenCreated_ReplayConverges(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()

	ev := createdEvent()
	require.NoError(t, env.handlers.HandleTokenCreated(ctx, ev))
	require.NoError(t, env.handlers.HandleTokenCreated(ctx, ev))

	trades, err := env.trades.GetByToken(ctx, testToken)
	require.NoError(t, err)
	assert.Len(t, trades, 1, "creation trade is deduplicated by trade ID")

	tok, err := env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tok.TradeCount)
	assert.Equal(t, int64(1), tok.UniqueHolders)

	user, err := env.users.GetByAddress(ctx, testCreator)
	require.NoError(t, err)
	assert.Equal(t, []string{testToken}, user.CreatedTokens)
}

func TestHandleTokenCreated_NoAllocationNoTrade(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()

	ev := createdEvent()
	ev.CreatorTokens = decimal.Zero
	ev.EthSpent = decimal.Zero
	require.NoError(t, env.handlers.HandleTokenCreated(ctx, ev))

	trades, err := env.trades.GetByToken(ctx, testToken)
	require.NoError(t, err)
	assert.Empty(t, trades)

	tok, err := env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tok.TradeCount)
}

func TestTradeHandler_Idempotent(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	require.NoError(t, env.handlers.HandleTokenCreated(ctx, createdEvent()))

	buy := buyEvent("0xbuy01",
		decimal.RequireFromString("500000000000000000000"),
		decimal.RequireFromString("600000000000000000"),
		decimal.RequireFromString("6000000000000000"))

	require.NoError(t, env.handlers.HandleTokensPurchased(ctx, buy))
	require.NoError(t, env.handlers.HandleTokensPurchased(ctx, buy))

	trades, err := env.trades.GetByToken(ctx, testToken)
	require.NoError(t, err)
	assert.Len(t, trades, 2, "creation trade plus one buy")

	tok, err := env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tok.TradeCount, "replay increments statistics exactly once")
	assert.True(t, tok.VolumeETH.Equal(decimal.RequireFromString("1600000000000000000")))
}

func TestTradeHandler_ZeroAmountRejected(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	require.NoError(t, env.handlers.HandleTokenCreated(ctx, createdEvent()))

	before, err := env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)

	buy := buyEvent("0xbuy02", decimal.Zero, decimal.RequireFromString("1000000000000000000"), decimal.Zero)
	err = env.handlers.HandleTokensPurchased(ctx, buy)
	require.ErrorIs(t, err, ErrZeroTokenAmount)

	trades, err := env.trades.GetByToken(ctx, testToken)
	require.NoError(t, err)
	assert.Len(t, trades, 1, "only the creation trade")

	after, err := env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, before.TradeCount, after.TradeCount)
	assert.True(t, before.VolumeETH.Equal(after.VolumeETH))
	assert.True(t, before.Collateral.Equal(after.Collateral))
}

func TestTradeHandler_FallbackArithmetic(t *testing.T) {
	env := newTestEnv(&fakeReader{err: errors.New("rpc unavailable")})
	ctx := context.Background()

	ev := createdEvent()
	ev.CreatorTokens = decimal.Zero
	ev.EthSpent = decimal.Zero
	require.NoError(t, env.handlers.HandleTokenCreated(ctx, ev))

	e1 := decimal.RequireFromString("2000000000000000000")
	e2 := decimal.RequireFromString("700000000000000000")
	amount := decimal.RequireFromString("1000000000000000000000")

	require.NoError(t, env.handlers.HandleTokensPurchased(ctx, buyEvent("0xbuy03", amount, e1, decimal.Zero)))
	require.NoError(t, env.handlers.HandleTokensPurchased(ctx, buyEvent("0xbuy04", amount, e2, decimal.Zero)))

	tok, err := env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)
	// Both reads failed, so collateral is the sum of the two buys.
	assert.True(t, tok.Collateral.Equal(e1.Add(e2)), "collateral: %s", tok.Collateral)
	assert.True(t, tok.LastPrice.Equal(e2.DivRound(amount, priceScale)), "last price: %s", tok.LastPrice)

	sell := &domain.TokensSold{
		EventMeta: domain.EventMeta{BlockNumber: 120, TxHash: "0xsell01", Timestamp: time.Now().UTC()},
		Token:     testToken,
		Seller:    testTrader,
		Amount:    amount,
		Eth:       decimal.RequireFromString("500000000000000000"),
		Fee:       decimal.Zero,
	}
	require.NoError(t, env.handlers.HandleTokensSold(ctx, sell))

	tok, err = env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)
	want := e1.Add(e2).Sub(decimal.RequireFromString("500000000000000000"))
	assert.True(t, tok.Collateral.Equal(want), "collateral after sell: %s", tok.Collateral)
}

func TestTradeHandler_ReconciledValuesWin(t *testing.T) {
	reader := &fakeReader{
		collateral:    decimal.RequireFromString("9990000000000000000"),
		virtualSupply: decimal.RequireFromString("500000000000000000000"),
		lastPrice:     decimal.RequireFromString("0.0042"),
	}
	env := newTestEnv(reader)
	ctx := context.Background()

	ev := createdEvent()
	ev.CreatorTokens = decimal.Zero
	ev.EthSpent = decimal.Zero
	require.NoError(t, env.handlers.HandleTokenCreated(ctx, ev))

	buy := buyEvent("0xbuy05",
		decimal.RequireFromString("1000000000000000000000"),
		decimal.RequireFromString("1000000000000000000"),
		decimal.Zero)
	require.NoError(t, env.handlers.HandleTokensPurchased(ctx, buy))

	tok, err := env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)
	assert.True(t, tok.Collateral.Equal(reader.collateral))
	assert.True(t, tok.VirtualSupply.Equal(reader.virtualSupply))
	assert.True(t, tok.LastPrice.Equal(reader.lastPrice))
}

func TestTradeHandler_UnknownTokenAborts(t *testing.T) {
	env := newTestEnv(nil)

	buy := buyEvent("0xbuy06",
		decimal.RequireFromString("1000000000000000000"),
		decimal.RequireFromString("1000000000000000"),
		decimal.Zero)
	err := env.handlers.HandleTokensPurchased(context.Background(), buy)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStateTransitions_Monotonic(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	require.NoError(t, env.handlers.HandleTokenCreated(ctx, createdEvent()))

	halt := &domain.TradingHalted{
		EventMeta:  domain.EventMeta{BlockNumber: 200, TxHash: "0xhalt01", Timestamp: time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)},
		Token:      testToken,
		Collateral: decimal.RequireFromString("5000000000000000000"),
	}
	require.NoError(t, env.handlers.HandleTradingHalted(ctx, halt))

	tok, err := env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, domain.StateGoalReached, tok.State)
	require.NotNil(t, tok.HaltBlock)
	assert.Equal(t, uint64(200), *tok.HaltBlock)

	resume := &domain.TradingResumed{
		EventMeta: domain.EventMeta{BlockNumber: 210, TxHash: "0xresume01", Timestamp: time.Date(2025, 6, 4, 10, 0, 0, 0, time.UTC)},
		Token:     testToken,
	}
	require.NoError(t, env.handlers.HandleTradingResumed(ctx, resume))

	// A replayed halt must not regress the state.
	require.NoError(t, env.handlers.HandleTradingHalted(ctx, halt))

	tok, err = env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, domain.StateResumed, tok.State)
}

func TestHandleTradingAutoResumed_RecordsResumeTime(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	require.NoError(t, env.handlers.HandleTokenCreated(ctx, createdEvent()))

	resumeTime := time.Date(2025, 6, 5, 8, 30, 0, 0, time.UTC)
	ev := &domain.TradingAutoResumed{
		EventMeta:  domain.EventMeta{BlockNumber: 300, TxHash: "0xauto01", Timestamp: resumeTime.Add(time.Minute)},
		Token:      testToken,
		ResumeTime: resumeTime,
	}
	require.NoError(t, env.handlers.HandleTradingAutoResumed(ctx, ev))

	tok, err := env.tokens.GetByAddress(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, domain.StateResumed, tok.State)
	require.NotNil(t, tok.AutoResumedAt)
	assert.True(t, tok.AutoResumedAt.Equal(resumeTime))
	require.NotNil(t, tok.AutoResumeBlock)
	assert.Equal(t, uint64(300), *tok.AutoResumeBlock)
}

func TestTradeHandler_AppendsPricePoint(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	require.NoError(t, env.handlers.HandleTokenCreated(ctx, createdEvent()))

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	points, err := env.points.GetByTimeRange(ctx, testToken, from, to)
	require.NoError(t, err)
	require.Len(t, points, 1, "creation trade produces a chart sample")
	assert.Equal(t, domain.TradeBuy, points[0].Side)
	assert.True(t, points[0].Price.Equal(decimal.RequireFromString("0.001")))
}
