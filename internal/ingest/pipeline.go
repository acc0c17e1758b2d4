package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/evm"
	"github.com/itripleg/motherhaven-sub003/internal/factory"
	"github.com/itripleg/motherhaven-sub003/internal/observability"
)

// Pipeline decodes and routes factory logs. Logs are handled strictly
// sequentially in array order; one bad log never stops the rest of the
// delivery.
type Pipeline struct {
	decoder  *factory.Decoder
	handlers *Handlers
	logger   zerolog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(decoder *factory.Decoder, handlers *Handlers, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		decoder:  decoder,
		handlers: handlers,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Decoder returns the pipeline's log decoder.
func (p *Pipeline) Decoder() *factory.Decoder {
	return p.decoder
}

// ProcessLogs runs every log through decode and route. Returns the
// number of factory events applied without error.
func (p *Pipeline) ProcessLogs(ctx context.Context, logs []evm.Log, blockTime time.Time) int {
	handled := 0
	for i := range logs {
		observability.DefaultMetrics.LogsProcessed.Inc()
		if p.processLog(ctx, &logs[i], blockTime) {
			handled++
		}
	}
	return handled
}

// processLog decodes and dispatches one log. All failures are recovered
// here: decode misses are expected conditions, handler errors are
// logged and dropped.
func (p *Pipeline) processLog(ctx context.Context, log *evm.Log, blockTime time.Time) bool {
	ev, err := p.decoder.DecodeLog(log, blockTime)
	if err != nil {
		switch {
		case errors.Is(err, factory.ErrForeignAddress):
			observability.DefaultMetrics.ForeignLogsSkipped.Inc()
		case errors.Is(err, factory.ErrUnknownEvent):
			p.logger.Debug().
				Str("tx", log.TxHash).
				Str("topic0", firstTopic(log)).
				Msg("unrecognized factory event, skipping")
		default:
			observability.DefaultMetrics.DecodeFailures.Inc()
			p.logger.Warn().Err(err).Str("tx", log.TxHash).Msg("log decode failed, skipping")
		}
		return false
	}

	observability.RecordEventDecoded(ev.Name())

	if err := p.route(ctx, ev); err != nil {
		observability.RecordHandlerError(ev.Name())
		p.logger.Error().Err(err).
			Str("event", ev.Name()).
			Str("tx", ev.Meta().TxHash).
			Msg("handler failed, event dropped")
		return false
	}
	return true
}

// route dispatches one decoded event to its handler.
func (p *Pipeline) route(ctx context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case *domain.TokenCreated:
		return p.handlers.HandleTokenCreated(ctx, e)
	case *domain.TokensPurchased:
		return p.handlers.HandleTokensPurchased(ctx, e)
	case *domain.TokensSold:
		return p.handlers.HandleTokensSold(ctx, e)
	case *domain.TradingHalted:
		return p.handlers.HandleTradingHalted(ctx, e)
	case *domain.TradingResumed:
		return p.handlers.HandleTradingResumed(ctx, e)
	case *domain.TradingAutoResumed:
		return p.handlers.HandleTradingAutoResumed(ctx, e)
	default:
		// The decoder never emits variants outside the union; a new
		// variant added there must be wired here.
		p.logger.Warn().Str("event", ev.Name()).Msg("no handler for event, skipping")
		return nil
	}
}

func firstTopic(log *evm.Log) string {
	if len(log.Topics) == 0 {
		return ""
	}
	return log.Topics[0]
}
