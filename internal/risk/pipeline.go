// Package risk implements the ordered chain of filters and adjusters that
// turns a raw strategy signal into an approved, sized order draft. Stages
// are independent and composable; the pipeline threads one draft through
// them and stops at the first veto.
package risk

import (
	"context"

	"github.com/rs/zerolog"

	"paper-trading-engine/internal/strategy"
)

// MarketSnapshot carries the per-cycle market context stages need beyond
// the signal itself.
type MarketSnapshot struct {
	TrendLabel string  // UPTREND, DOWNTREND or SIDEWAYS
	RSI        float64 // entry-timeframe RSI at the latest bar
	ATR        float64 // current ATR
	AvgATR     float64 // trailing average ATR
}

// OrderDraft accumulates the pipeline output. It is ephemeral and consumed
// immediately by the ledger.
type OrderDraft struct {
	Symbol     string
	Direction  strategy.Direction
	Confidence float64

	Approved   bool
	VetoStage  string
	VetoReason string

	StopLossPct    float64
	TakeProfitPct  float64
	Leverage       int
	SizeMultiplier float64
	Notional       float64 // quote-currency amount before leverage

	Market MarketSnapshot
}

// Defaults seeds an order draft before any stage has run.
type Defaults struct {
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	Leverage      int     `json:"leverage"`
	BaseNotional  float64 `json:"base_notional"`
}

// NewDraft builds a draft from a signal and the configured defaults.
func NewDraft(symbol string, signal *strategy.Signal, defaults Defaults, snapshot MarketSnapshot) *OrderDraft {
	return &OrderDraft{
		Symbol:         symbol,
		Direction:      signal.Direction,
		Confidence:     signal.Confidence,
		Approved:       signal.Direction != strategy.DirectionHold,
		VetoReason:     "",
		StopLossPct:    defaults.StopLossPct,
		TakeProfitPct:  defaults.TakeProfitPct,
		Leverage:       defaults.Leverage,
		SizeMultiplier: 1.0,
		Notional:       defaults.BaseNotional,
		Market:         snapshot,
	}
}

// Veto marks the draft rejected. Vetoes are data, not errors.
func (d *OrderDraft) Veto(stage, reason string) {
	d.Approved = false
	d.VetoStage = stage
	d.VetoReason = reason
}

// Stage is one step of the risk pipeline. A stage either transforms the
// draft or vetoes it; external-data failures degrade to a pass-through,
// never an aborted cycle.
type Stage interface {
	Name() string
	Apply(ctx context.Context, draft *OrderDraft) error
}

// Pipeline runs stages in their configured order, short-circuiting on the
// first veto.
type Pipeline struct {
	stages []Stage
	logger zerolog.Logger
}

// NewPipeline creates a pipeline. Stage order matters and is preserved.
func NewPipeline(logger zerolog.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{
		stages: stages,
		logger: logger.With().Str("component", "RiskPipeline").Logger(),
	}
}

// Run threads the draft through every stage until one vetoes it. Stage
// errors are logged and treated as a pass-through so one degraded data
// source cannot abort the cycle.
func (p *Pipeline) Run(ctx context.Context, draft *OrderDraft) *OrderDraft {
	if !draft.Approved {
		return draft
	}

	for _, stage := range p.stages {
		if err := stage.Apply(ctx, draft); err != nil {
			p.logger.Warn().Err(err).Str("stage", stage.Name()).Str("symbol", draft.Symbol).
				Msg("stage degraded, continuing")
		}
		if !draft.Approved {
			p.logger.Info().Str("stage", draft.VetoStage).Str("symbol", draft.Symbol).
				Str("reason", draft.VetoReason).Msg("signal vetoed")
			return draft
		}
	}
	return draft
}
