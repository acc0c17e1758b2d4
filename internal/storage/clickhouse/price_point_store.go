package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// PricePointStore implements storage.PricePointStore using ClickHouse.
// Points are append-only chart samples; the MergeTree table does not
// enforce uniqueness, so replayed blocks may produce duplicate rows.
// Chart reads tolerate that: identical samples collapse visually.
type PricePointStore struct {
	conn *Conn
}

// NewPricePointStore creates a new PricePointStore.
func NewPricePointStore(conn *Conn) *PricePointStore {
	return &PricePointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PricePointStore = (*PricePointStore)(nil)

// InsertBulk appends price points in one batch.
func (s *PricePointStore) InsertBulk(ctx context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_points (
			token_address, ts, price, eth_volume, side
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			domain.NormalizeAddress(p.Token), p.Timestamp,
			p.Price.String(), p.EthVolume.String(), p.Side,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves points for a token within [from, to] (inclusive),
// ordered by timestamp ASC.
func (s *PricePointStore) GetByTimeRange(ctx context.Context, token string, from, to time.Time) ([]*domain.PricePoint, error) {
	query := `
		SELECT token_address, ts, price, eth_volume, side
		FROM price_points
		WHERE token_address = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, domain.NormalizeAddress(token), from, to)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanPricePoints scans multiple rows into a slice.
func scanPricePoints(rows chRows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint

	for rows.Next() {
		var p domain.PricePoint
		var price, ethVolume string

		err := rows.Scan(&p.Token, &p.Timestamp, &price, &ethVolume, &p.Side)
		if err != nil {
			return nil, fmt.Errorf("scan price point row: %w", err)
		}

		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if p.EthVolume, err = decimal.NewFromString(ethVolume); err != nil {
			return nil, fmt.Errorf("parse eth_volume: %w", err)
		}
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price point rows: %w", err)
	}

	return points, nil
}
