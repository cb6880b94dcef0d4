package strategy

import (
	"errors"
	"fmt"
	"time"

	"paper-trading-engine/internal/market"
)

// Direction is the terminal outcome of a signal evaluation.
type Direction string

const (
	DirectionBuy   Direction = "BUY"
	DirectionShort Direction = "SHORT"
	DirectionHold  Direction = "HOLD"
)

// Opposite returns the opposing trade direction. Hold has no opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBuy:
		return DirectionShort
	case DirectionShort:
		return DirectionBuy
	default:
		return DirectionHold
	}
}

// Signal is the output of one strategy evaluation. Signals are produced
// fresh every cycle and never persisted.
type Signal struct {
	Direction  Direction
	Rationale  string
	Confidence float64 // 0-100
	Indicators map[string]float64
	Timestamp  time.Time
}

// Hold builds a hold signal with a diagnostic rationale.
func Hold(reason string) *Signal {
	return &Signal{
		Direction:  DirectionHold,
		Rationale:  reason,
		Confidence: 0,
		Indicators: map[string]float64{},
		Timestamp:  time.Now(),
	}
}

// Strategy defines the interface for signal generators.
type Strategy interface {
	// Name returns the strategy name.
	Name() string

	// Evaluate derives a signal from the candle set. Insufficient data
	// yields a Hold signal, never an error.
	Evaluate(data *market.MultiTimeframeCandles) (*Signal, error)
}

// ErrUnknownStrategy is returned when a configured strategy name has no
// registered constructor.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Registry maps configured strategy names to constructors. Strategies are
// resolved once at startup, not re-dispatched per call.
type Registry struct {
	constructors map[string]func() Strategy
}

// NewRegistry creates a registry with the built-in strategies registered.
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]func() Strategy)}
	r.Register("multi_timeframe", func() Strategy {
		return NewMultiTimeframe(DefaultMultiTimeframeConfig())
	})
	r.Register("rsi_ma_crossover", func() Strategy {
		return NewRSIMACrossover(DefaultRSIMACrossoverConfig())
	})
	return r
}

// Register adds a constructor under a name.
func (r *Registry) Register(name string, constructor func() Strategy) {
	r.constructors[name] = constructor
}

// Resolve builds the strategy registered under name.
func (r *Registry) Resolve(name string) (Strategy, error) {
	constructor, ok := r.constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return constructor(), nil
}
