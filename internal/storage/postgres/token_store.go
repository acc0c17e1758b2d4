package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Upsert merges the token document by address. Merge rules are encoded
// in the ON CONFLICT clause: descriptive fields overwrite when set,
// lifecycle state only moves forward (token_state_rank), aggregates
// keep the larger value, provenance fills only when absent.
func (s *TokenStore) Upsert(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tokens (
			address, name, symbol, image_url, creator, burn_manager,
			state, funding_goal, collateral, virtual_supply, total_supply, last_price,
			volume_eth, trade_count, unique_holders,
			creation_block, creation_tx_hash, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18
		)
		ON CONFLICT (address) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE tokens.name END,
			symbol = CASE WHEN EXCLUDED.symbol <> '' THEN EXCLUDED.symbol ELSE tokens.symbol END,
			image_url = CASE WHEN EXCLUDED.image_url <> '' THEN EXCLUDED.image_url ELSE tokens.image_url END,
			creator = CASE WHEN EXCLUDED.creator <> '' THEN EXCLUDED.creator ELSE tokens.creator END,
			burn_manager = COALESCE(EXCLUDED.burn_manager, tokens.burn_manager),
			state = CASE
				WHEN token_state_rank(EXCLUDED.state) >= token_state_rank(tokens.state) THEN EXCLUDED.state
				ELSE tokens.state
			END,
			funding_goal = CASE WHEN EXCLUDED.funding_goal <> 0 THEN EXCLUDED.funding_goal ELSE tokens.funding_goal END,
			collateral = CASE WHEN tokens.collateral = 0 THEN EXCLUDED.collateral ELSE tokens.collateral END,
			virtual_supply = CASE WHEN tokens.virtual_supply = 0 THEN EXCLUDED.virtual_supply ELSE tokens.virtual_supply END,
			total_supply = CASE WHEN tokens.total_supply = 0 THEN EXCLUDED.total_supply ELSE tokens.total_supply END,
			last_price = CASE WHEN tokens.last_price = 0 THEN EXCLUDED.last_price ELSE tokens.last_price END,
			volume_eth = GREATEST(tokens.volume_eth, EXCLUDED.volume_eth),
			trade_count = GREATEST(tokens.trade_count, EXCLUDED.trade_count),
			unique_holders = GREATEST(tokens.unique_holders, EXCLUDED.unique_holders),
			creation_block = CASE WHEN tokens.creation_block = 0 THEN EXCLUDED.creation_block ELSE tokens.creation_block END,
			creation_tx_hash = CASE WHEN tokens.creation_tx_hash = '' THEN EXCLUDED.creation_tx_hash ELSE tokens.creation_tx_hash END
	`

	_, err := s.pool.Exec(ctx, query,
		domain.NormalizeAddress(t.Address), t.Name, t.Symbol, t.ImageURL,
		domain.NormalizeAddress(t.Creator), t.BurnManager,
		string(t.State), t.FundingGoal.String(), t.Collateral.String(),
		t.VirtualSupply.String(), t.TotalSupply.String(), t.LastPrice.String(),
		t.VolumeETH.String(), t.TradeCount, t.UniqueHolders,
		t.CreationBlock, t.CreationTxHash, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

const tokenColumns = `
	address, name, symbol, image_url, creator, burn_manager,
	state, funding_goal::text, collateral::text, virtual_supply::text, total_supply::text, last_price::text,
	volume_eth::text, trade_count, unique_holders,
	last_trade_type, last_trade_fee::text, last_trade_at,
	halted_at, halt_block, resumed_at, resume_block, auto_resumed_at, auto_resume_block,
	creation_block, creation_tx_hash, created_at
`

// GetByAddress retrieves a token. Returns ErrNotFound if absent.
func (s *TokenStore) GetByAddress(ctx context.Context, address string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE address = $1`

	row := s.pool.QueryRow(ctx, query, domain.NormalizeAddress(address))
	t, err := scanToken(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by address: %w", err)
	}
	return t, nil
}

// ApplyTrade updates aggregate statistics for one trade in a single
// transaction: holder tracking, counters, last-trade snapshot and
// collateral/price (authoritative values when reconciled, delta
// arithmetic otherwise).
func (s *TokenStore) ApplyTrade(ctx context.Context, upd *storage.TokenTradeUpdate) error {
	if upd == nil || upd.Token == "" {
		return storage.ErrInvalidInput
	}

	addr := domain.NormalizeAddress(upd.Token)
	trader := domain.NormalizeAddress(upd.Trader)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO token_holders (token_address, holder)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, addr, trader)
	if err != nil {
		return fmt.Errorf("record holder: %w", err)
	}
	newHolder := tag.RowsAffected()

	var cmd pgconnCommandTag
	if upd.Reconciled != nil {
		cmd, err = tx.Exec(ctx, `
			UPDATE tokens SET
				trade_count = trade_count + 1,
				unique_holders = unique_holders + $2,
				volume_eth = volume_eth + $3,
				last_trade_type = $4,
				last_trade_fee = $5,
				last_trade_at = $6,
				collateral = $7,
				virtual_supply = $8,
				last_price = $9
			WHERE address = $1
		`, addr, newHolder, upd.EthAmount.String(),
			upd.Direction, upd.Fee.String(), upd.Timestamp,
			upd.Reconciled.Collateral.String(),
			upd.Reconciled.VirtualSupply.String(),
			upd.Reconciled.LastPrice.String(),
		)
	} else {
		delta := upd.EthAmount
		if upd.Direction == domain.TradeSell {
			delta = delta.Neg()
		}
		cmd, err = tx.Exec(ctx, `
			UPDATE tokens SET
				trade_count = trade_count + 1,
				unique_holders = unique_holders + $2,
				volume_eth = volume_eth + $3,
				last_trade_type = $4,
				last_trade_fee = $5,
				last_trade_at = $6,
				collateral = collateral + $7,
				last_price = $8
			WHERE address = $1
		`, addr, newHolder, upd.EthAmount.String(),
			upd.Direction, upd.Fee.String(), upd.Timestamp,
			delta.String(), upd.Price.String(),
		)
	}
	if err != nil {
		return fmt.Errorf("apply trade: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// pgconnCommandTag narrows the pgconn result for the two exec branches.
type pgconnCommandTag interface {
	RowsAffected() int64
}

// TransitionState moves the lifecycle state forward. The rank guard in
// the WHERE clause makes backward transitions no-ops.
func (s *TokenStore) TransitionState(ctx context.Context, tr *storage.StateTransition) error {
	if tr == nil || tr.Token == "" {
		return storage.ErrInvalidInput
	}

	addr := domain.NormalizeAddress(tr.Token)

	var query string
	args := []interface{}{addr, string(tr.State), tr.At, tr.Block}
	switch tr.State {
	case domain.StateGoalReached, domain.StateHalted:
		query = `
			UPDATE tokens SET state = $2, halted_at = $3, halt_block = $4
			WHERE address = $1 AND token_state_rank($2) >= token_state_rank(state)
		`
	case domain.StateResumed:
		if tr.ResumeTime != nil {
			query = `
				UPDATE tokens SET state = $2, auto_resumed_at = $5, auto_resume_block = $4
				WHERE address = $1 AND token_state_rank($2) >= token_state_rank(state)
			`
			args = append(args, *tr.ResumeTime)
		} else {
			query = `
				UPDATE tokens SET state = $2, resumed_at = $3, resume_block = $4
				WHERE address = $1 AND token_state_rank($2) >= token_state_rank(state)
			`
		}
	default:
		query = `
			UPDATE tokens SET state = $2
			WHERE address = $1 AND token_state_rank($2) >= token_state_rank(state)
		`
		args = args[:2]
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the token is absent or the guard rejected a backward
		// move; distinguish for the caller.
		exists, err := s.exists(ctx, addr)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
	}
	return nil
}

func (s *TokenStore) exists(ctx context.Context, addr string) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tokens WHERE address = $1)`, addr).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("token exists: %w", err)
	}
	return found, nil
}

// ListAddresses returns all known token addresses.
func (s *TokenStore) ListAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT address FROM tokens ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list token addresses: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan token address: %w", err)
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// scanToken scans one token row in tokenColumns order.
func scanToken(row pgx.Row) (*domain.Token, error) {
	var (
		t                                            domain.Token
		fundingGoal, collateral, virtualSupply       string
		totalSupply, lastPrice, volumeETH, tradeFee  string
		lastTradeAt                                  *time.Time
	)

	err := row.Scan(
		&t.Address, &t.Name, &t.Symbol, &t.ImageURL, &t.Creator, &t.BurnManager,
		&t.State, &fundingGoal, &collateral, &virtualSupply, &totalSupply, &lastPrice,
		&volumeETH, &t.TradeCount, &t.UniqueHolders,
		&t.LastTradeType, &tradeFee, &lastTradeAt,
		&t.HaltedAt, &t.HaltBlock, &t.ResumedAt, &t.ResumeBlock, &t.AutoResumedAt, &t.AutoResumeBlock,
		&t.CreationBlock, &t.CreationTxHash, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.FundingGoal, err = decimal.NewFromString(fundingGoal); err != nil {
		return nil, fmt.Errorf("parse funding_goal: %w", err)
	}
	if t.Collateral, err = decimal.NewFromString(collateral); err != nil {
		return nil, fmt.Errorf("parse collateral: %w", err)
	}
	if t.VirtualSupply, err = decimal.NewFromString(virtualSupply); err != nil {
		return nil, fmt.Errorf("parse virtual_supply: %w", err)
	}
	if t.TotalSupply, err = decimal.NewFromString(totalSupply); err != nil {
		return nil, fmt.Errorf("parse total_supply: %w", err)
	}
	if t.LastPrice, err = decimal.NewFromString(lastPrice); err != nil {
		return nil, fmt.Errorf("parse last_price: %w", err)
	}
	if t.VolumeETH, err = decimal.NewFromString(volumeETH); err != nil {
		return nil, fmt.Errorf("parse volume_eth: %w", err)
	}
	if t.LastTradeFee, err = decimal.NewFromString(tradeFee); err != nil {
		return nil, fmt.Errorf("parse last_trade_fee: %w", err)
	}
	if lastTradeAt != nil {
		t.LastTradeAt = *lastTradeAt
	}
	return &t, nil
}
