package risk

import (
	"fmt"
	"math"

	"github.com/evdnx/trendsweep/types"
)

// StopGrid is the range of stop distances, in points, worth sweeping for an
// instrument at a given position size.
type StopGrid struct {
	Min  int // smallest stop the broker accepts
	Max  int // stop that risks the configured share of the balance
	Step int // points that move the position value by stepMoney
}

// DeriveStopGrid turns instrument tick economics into a stop grid.
//
//	pointValue = lot × contractSize × point      (money per point)
//	Step       = max(1, round(stepMoney / pointValue))
//	Max        = floor(balance × riskPercent/100 / pointValue)
//	Min        = stopsLevel + 1, and Max is raised to Min if needed
func DeriveStopGrid(inst types.Instrument, lot, balance, riskPercent, stepMoney float64) (StopGrid, error) {
	if err := inst.Validate(); err != nil {
		return StopGrid{}, err
	}
	pointValue := lot * inst.ContractSize * inst.Point
	if pointValue <= 0 {
		return StopGrid{}, fmt.Errorf("point value for %s must be positive (lot %v)", inst.Symbol, lot)
	}
	step := int(stepMoney/pointValue + 0.5)
	if step < 1 {
		step = 1
	}
	maxSL := int(math.Floor(balance * riskPercent / 100 / pointValue))
	minSL := inst.StopsLevel + 1
	if maxSL < minSL {
		maxSL = minSL
	}
	return StopGrid{Min: minSL, Max: maxSL, Step: step}, nil
}

// CalcPnL is the monetary result of moving qty lots by delta price.
// Positive delta means the position gained.
func CalcPnL(qty, contractSize, delta float64) float64 {
	return qty * contractSize * delta
}
