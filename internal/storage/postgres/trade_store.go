package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a trade. Returns ErrDuplicateKey if the trade ID exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			trade_id, token_address, trader, trade_type,
			token_amount, eth_amount, fee, price,
			block_number, tx_hash, ts
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, domain.NormalizeAddress(t.Token), domain.NormalizeAddress(t.Trader), t.Type,
		t.TokenAmount.String(), t.EthAmount.String(), t.Fee.String(), t.Price.String(),
		t.BlockNumber, strings.ToLower(t.TxHash), t.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Exists reports whether a trade with the ID is already stored.
func (s *TradeStore) Exists(ctx context.Context, tradeID string) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM trades WHERE trade_id = $1)`, tradeID,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("trade exists: %w", err)
	}
	return found, nil
}

// ExistsByTxHash reports whether any trade from the transaction is
// already stored.
func (s *TradeStore) ExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM trades WHERE tx_hash = $1)`, strings.ToLower(txHash),
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("trade exists by tx hash: %w", err)
	}
	return found, nil
}

// GetByToken retrieves all trades for a token, ordered by block number
// then trade ID.
func (s *TradeStore) GetByToken(ctx context.Context, token string) ([]*domain.Trade, error) {
	query := `
		SELECT
			trade_id, token_address, trader, trade_type,
			token_amount::text, eth_amount::text, fee::text, price::text,
			block_number, tx_hash, ts
		FROM trades
		WHERE token_address = $1
		ORDER BY block_number ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, domain.NormalizeAddress(token))
	if err != nil {
		return nil, fmt.Errorf("get trades by token: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// scanTrade scans one trade row.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var (
		t                                  domain.Trade
		tokenAmount, ethAmount, fee, price string
	)

	err := row.Scan(
		&t.TradeID, &t.Token, &t.Trader, &t.Type,
		&tokenAmount, &ethAmount, &fee, &price,
		&t.BlockNumber, &t.TxHash, &t.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	if t.TokenAmount, err = decimal.NewFromString(tokenAmount); err != nil {
		return nil, fmt.Errorf("parse token_amount: %w", err)
	}
	if t.EthAmount, err = decimal.NewFromString(ethAmount); err != nil {
		return nil, fmt.Errorf("parse eth_amount: %w", err)
	}
	if t.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parse fee: %w", err)
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	return &t, nil
}
