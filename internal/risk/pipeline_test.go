package risk

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"paper-trading-engine/internal/strategy"
)

func testDraft(direction strategy.Direction, confidence float64) *OrderDraft {
	signal := &strategy.Signal{Direction: direction, Confidence: confidence}
	return NewDraft("ETHUSDT", signal, Defaults{
		StopLossPct:   2.0,
		TakeProfitPct: 4.0,
		Leverage:      5,
		BaseNotional:  100,
	}, MarketSnapshot{TrendLabel: "UPTREND", RSI: 40, ATR: 1.0, AvgATR: 1.0})
}

// recordingStage counts invocations and optionally vetoes.
type recordingStage struct {
	name    string
	calls   int
	vetoes  bool
	mutates func(*OrderDraft)
}

func (s *recordingStage) Name() string { return s.name }
func (s *recordingStage) Apply(ctx context.Context, draft *OrderDraft) error {
	s.calls++
	if s.mutates != nil {
		s.mutates(draft)
	}
	if s.vetoes {
		draft.Veto(s.name, "test veto")
	}
	return nil
}

func TestPipeline_ShortCircuitsOnVeto(t *testing.T) {
	first := &recordingStage{name: "first", vetoes: true}
	second := &recordingStage{name: "second", mutates: func(d *OrderDraft) { d.Notional *= 10 }}

	pipeline := NewPipeline(zerolog.Nop(), first, second)
	draft := testDraft(strategy.DirectionBuy, 80)
	result := pipeline.Run(context.Background(), draft)

	if result.Approved {
		t.Error("draft should be vetoed")
	}
	if result.VetoStage != "first" {
		t.Errorf("expected veto from first, got %s", result.VetoStage)
	}
	if second.calls != 0 {
		t.Errorf("vetoed pipeline must not invoke later stages, second ran %d times", second.calls)
	}
	if result.Notional != 100 {
		t.Errorf("later stage mutated a vetoed draft: notional %f", result.Notional)
	}
}

func TestPipeline_RunsAllStagesWhenApproved(t *testing.T) {
	first := &recordingStage{name: "first"}
	second := &recordingStage{name: "second"}

	pipeline := NewPipeline(zerolog.Nop(), first, second)
	result := pipeline.Run(context.Background(), testDraft(strategy.DirectionBuy, 80))

	if !result.Approved {
		t.Errorf("draft should remain approved, veto: %s", result.VetoReason)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("expected one call per stage, got %d and %d", first.calls, second.calls)
	}
}

func TestPipeline_HoldSignalNeverRuns(t *testing.T) {
	stage := &recordingStage{name: "stage"}
	pipeline := NewPipeline(zerolog.Nop(), stage)

	result := pipeline.Run(context.Background(), testDraft(strategy.DirectionHold, 0))
	if result.Approved {
		t.Error("hold draft must not be approved")
	}
	if stage.calls != 0 {
		t.Error("hold draft must not reach any stage")
	}
}
