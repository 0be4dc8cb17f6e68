package types

import "fmt"

// ParameterSet is one cell of the strategy grid. It is passed by value and
// never modified once produced.
type ParameterSet struct {
	SuperTrendPeriod     int     `json:"supertrend_period" yaml:"supertrend_period"`
	SuperTrendMultiplier float64 `json:"supertrend_multiplier" yaml:"supertrend_multiplier"`
	ADXPeriod            int     `json:"adx_period" yaml:"adx_period"`
	ADXThreshold         float64 `json:"adx_threshold" yaml:"adx_threshold"`
	RSIPeriod            int     `json:"rsi_period" yaml:"rsi_period"`
	RSIOversold          float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	RSIOverbought        float64 `json:"rsi_overbought" yaml:"rsi_overbought"`

	// Trade management distances in points. Zero means "use the
	// configured default".
	StopLossPoints         int `json:"stop_loss_pts,omitempty" yaml:"stop_loss_pts"`
	TrailingTriggerPoints  int `json:"trailing_trigger_pts,omitempty" yaml:"trailing_trigger_pts"`
	TrailingDistancePoints int `json:"trailing_dist_pts,omitempty" yaml:"trailing_dist_pts"`
}

// Validate checks the indicator part of the set.
func (p ParameterSet) Validate() error {
	if p.SuperTrendPeriod <= 0 {
		return fmt.Errorf("supertrend_period must be positive, got %d", p.SuperTrendPeriod)
	}
	if p.SuperTrendMultiplier <= 0 {
		return fmt.Errorf("supertrend_multiplier must be positive, got %v", p.SuperTrendMultiplier)
	}
	if p.ADXPeriod <= 0 {
		return fmt.Errorf("adx_period must be positive, got %d", p.ADXPeriod)
	}
	if p.RSIPeriod <= 0 {
		return fmt.Errorf("rsi_period must be positive, got %d", p.RSIPeriod)
	}
	if p.RSIOversold > p.RSIOverbought {
		return fmt.Errorf("rsi_oversold (%v) above rsi_overbought (%v)", p.RSIOversold, p.RSIOverbought)
	}
	if p.StopLossPoints < 0 || p.TrailingTriggerPoints < 0 || p.TrailingDistancePoints < 0 {
		return fmt.Errorf("point distances cannot be negative")
	}
	return nil
}

// MomentumInBand reports whether v lies inside [RSIOversold, RSIOverbought].
func (p ParameterSet) MomentumInBand(v float64) bool {
	return p.RSIOversold <= v && v <= p.RSIOverbought
}

func (p ParameterSet) String() string {
	return fmt.Sprintf("st=%d/%.2f adx=%d>=%.1f rsi=%d[%.0f,%.0f] sl=%d trig=%d trail=%d",
		p.SuperTrendPeriod, p.SuperTrendMultiplier, p.ADXPeriod, p.ADXThreshold,
		p.RSIPeriod, p.RSIOversold, p.RSIOverbought,
		p.StopLossPoints, p.TrailingTriggerPoints, p.TrailingDistancePoints)
}
