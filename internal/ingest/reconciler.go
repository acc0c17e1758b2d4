// Package ingest implements the event pipeline: block payloads are
// decoded into typed factory events, routed per log in array order, and
// applied to the stores with per-log error recovery.
package ingest

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/itripleg/motherhaven-sub003/internal/observability"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// StateReader reads authoritative token state from the factory contract.
type StateReader interface {
	Collateral(ctx context.Context, token string) (decimal.Decimal, error)
	VirtualSupply(ctx context.Context, token string) (decimal.Decimal, error)
	LastPrice(ctx context.Context, token string) (decimal.Decimal, error)
}

// Reconciler enriches trade handling with authoritative contract state.
// Best-effort only: a failed read is logged and reported as nil, and
// callers fall back to arithmetic derived from the trade itself.
type Reconciler struct {
	reader StateReader
	logger zerolog.Logger
}

// NewReconciler creates a Reconciler. reader may be nil, which makes
// every Read report a fallback (used by tests and offline replays).
func NewReconciler(reader StateReader, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		reader: reader,
		logger: logger.With().Str("component", "reconciler").Logger(),
	}
}

// Read attempts the three authoritative reads in parallel. Returns nil
// if any read fails; the error is logged, never propagated.
func (r *Reconciler) Read(ctx context.Context, token string) *storage.ReconciledState {
	if r.reader == nil {
		observability.DefaultMetrics.ReconcilerFallbacks.Inc()
		return nil
	}

	var (
		wg    sync.WaitGroup
		state storage.ReconciledState
		errs  [3]error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		state.Collateral, errs[0] = r.reader.Collateral(ctx, token)
	}()
	go func() {
		defer wg.Done()
		state.VirtualSupply, errs[1] = r.reader.VirtualSupply(ctx, token)
	}()
	go func() {
		defer wg.Done()
		state.LastPrice, errs[2] = r.reader.LastPrice(ctx, token)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			r.logger.Warn().Err(err).Str("token", token).
				Msg("contract state read failed, falling back to trade arithmetic")
			observability.DefaultMetrics.ReconcilerFallbacks.Inc()
			return nil
		}
	}

	observability.DefaultMetrics.ReconcilerReads.Inc()
	return &state
}
