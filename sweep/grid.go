// Package sweep enumerates the strategy parameter grid and searches it for
// the most profitable cell of every (symbol, timeframe) pair.
package sweep

import (
	"context"
	"math"

	"github.com/evdnx/trendsweep/config"
	"github.com/evdnx/trendsweep/risk"
	"github.com/evdnx/trendsweep/types"
)

// Cell is one grid point tagged with its position in enumeration order.
type Cell struct {
	Index  int
	Params types.ParameterSet
}

// Grid is the cartesian product of the parameter axes. Stop axes are only
// present once DeriveStops has been called.
type Grid struct {
	SuperTrendPeriod     []int
	SuperTrendMultiplier []float64
	ADXPeriod            []int
	ADXThreshold         []float64
	RSIPeriod            []int
	RSIOversold          []float64
	RSIOverbought        []float64

	Stops *risk.StopGrid

	deriveStops  bool
	stepMoney    float64
	riskPerTrade float64
}

// NewGrid expands the configured ranges.
func NewGrid(c config.GridConfig) Grid {
	return Grid{
		SuperTrendPeriod:     ints(c.SuperTrendPeriod),
		SuperTrendMultiplier: floats(c.SuperTrendMultiplier),
		ADXPeriod:            ints(c.ADXPeriod),
		ADXThreshold:         floats(c.ADXThreshold),
		RSIPeriod:            ints(c.RSIPeriod),
		RSIOversold:          floats(c.RSIOversold),
		RSIOverbought:        floats(c.RSIOverbought),
		deriveStops:          c.DeriveStops,
		stepMoney:            c.StopStepMoney,
		riskPerTrade:         c.RiskPerTradePercent,
	}
}

func ints(r config.IntRange) []int {
	if r.Step <= 0 {
		return []int{r.Min}
	}
	var out []int
	for v := r.Min; v <= r.Max; v += r.Step {
		out = append(out, v)
	}
	return out
}

// floats steps by index so rounding error cannot add or drop a value.
func floats(r config.FloatRange) []float64 {
	if r.Step <= 0 {
		return []float64{r.Min}
	}
	n := int(math.Floor((r.Max-r.Min)/r.Step + 1e-9))
	out := make([]float64, 0, n+1)
	for k := 0; k <= n; k++ {
		out = append(out, r.Min+float64(k)*r.Step)
	}
	return out
}

// DeriveStops returns a copy of g with stop-loss and trailing axes computed
// from the instrument tick economics. Without derive_stops it returns g.
func (g Grid) DeriveStops(inst types.Instrument, lot, startBalance float64) (Grid, error) {
	if !g.deriveStops {
		return g, nil
	}
	sg, err := risk.DeriveStopGrid(inst, lot, startBalance, g.riskPerTrade, g.stepMoney)
	if err != nil {
		return Grid{}, err
	}
	g.Stops = &sg
	return g, nil
}

// Size returns the number of cells Each visits.
func (g Grid) Size() int {
	n := len(g.SuperTrendPeriod) * len(g.SuperTrendMultiplier) * len(g.ADXPeriod) *
		len(g.ADXThreshold) * len(g.RSIPeriod) * len(g.RSIOversold) * len(g.RSIOverbought)
	if g.Stops == nil {
		return n
	}
	s := *g.Stops
	stops := (s.Max-s.Min)/s.Step + 1
	triggers := s.Max / s.Step
	// the k-th trigger (k*step) admits k trailing distances
	return n * stops * triggers * (triggers + 1) / 2
}

// Each calls fn for every cell in nested-loop order. It stops at the first
// error from fn or when ctx is done.
func (g Grid) Each(ctx context.Context, fn func(Cell) error) error {
	idx := 0
	emit := func(p types.ParameterSet) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(Cell{Index: idx, Params: p})
		idx++
		return err
	}
	for _, stp := range g.SuperTrendPeriod {
		for _, stm := range g.SuperTrendMultiplier {
			for _, ap := range g.ADXPeriod {
				for _, at := range g.ADXThreshold {
					for _, rp := range g.RSIPeriod {
						for _, lo := range g.RSIOversold {
							for _, hi := range g.RSIOverbought {
								p := types.ParameterSet{
									SuperTrendPeriod:     stp,
									SuperTrendMultiplier: stm,
									ADXPeriod:            ap,
									ADXThreshold:         at,
									RSIPeriod:            rp,
									RSIOversold:          lo,
									RSIOverbought:        hi,
								}
								if err := g.eachStop(p, emit); err != nil {
									return err
								}
							}
						}
					}
				}
			}
		}
	}
	return nil
}

func (g Grid) eachStop(p types.ParameterSet, emit func(types.ParameterSet) error) error {
	if g.Stops == nil {
		return emit(p)
	}
	s := *g.Stops
	for sl := s.Min; sl <= s.Max; sl += s.Step {
		for trig := s.Step; trig <= s.Max; trig += s.Step {
			for dist := s.Step; dist <= trig; dist += s.Step {
				p.StopLossPoints = sl
				p.TrailingTriggerPoints = trig
				p.TrailingDistancePoints = dist
				if err := emit(p); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
