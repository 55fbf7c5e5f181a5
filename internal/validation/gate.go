package validation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"market-candle-lab/internal/boundary"
	"market-candle-lab/internal/logger"
	"market-candle-lab/internal/observability"
	"market-candle-lab/internal/storage"
)

// Gate loads the registry and availability report for a day and validates them.
type Gate struct {
	registry     storage.InstrumentRegistry
	availability storage.AvailabilityStore
	requirements Requirements
	log          *logger.Logger
	metrics      *observability.Metrics
}

// NewGate creates a gate. log and metrics may be nil.
func NewGate(registry storage.InstrumentRegistry, availability storage.AvailabilityStore, req Requirements, log *logger.Logger, metrics *observability.Metrics) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	return &Gate{
		registry:     registry,
		availability: availability,
		requirements: req,
		log:          log.Named("validation"),
		metrics:      metrics,
	}
}

// Check returns the gating result for the exchange's instruments on the day.
// Registry and report read failures are returned; an empty registry yields an
// empty result.
func (g *Gate) Check(ctx context.Context, exchange string, dayStartUs int64) (*Result, error) {
	instruments, err := g.registry.ListInstruments(ctx, exchange, dayStartUs)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	report, err := g.availability.GetReport(ctx, exchange, dayStartUs)
	if err != nil {
		return nil, fmt.Errorf("availability report: %w", err)
	}

	res := Validate(BuildGroups(instruments), report, g.requirements)

	date := boundary.FormatDate(dayStartUs)
	for _, out := range res.Groups {
		if out.Valid {
			continue
		}
		first := out.Missing[0]
		g.log.Warn("underlying group skipped",
			zap.String("exchange", exchange),
			zap.String("date", date),
			zap.String("underlying", out.UnderlyingKey),
			zap.Strings("members", out.Members),
			zap.Int("missing_pairs", len(out.Missing)),
			zap.String("instrument", first.InstrumentKey),
			zap.String("data_type", string(first.DataType)),
		)
		if g.metrics != nil {
			g.metrics.GroupsSkipped.Inc()
		}
	}
	g.log.Info("instrument gate",
		zap.String("exchange", exchange),
		zap.String("date", date),
		zap.Int("groups", len(res.Groups)),
		zap.Int("valid", len(res.Valid)),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}
