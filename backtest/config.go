package backtest

import (
	"fmt"

	"github.com/evdnx/trendsweep/config"
	"github.com/evdnx/trendsweep/session"
)

// Config is the immutable view of the configuration a Simulator needs.
type Config struct {
	FundedMode          bool
	StartBalance        float64
	DailyLossPercent    float64
	MaxTotalLossPercent float64
	Lot                 float64
	Session             session.Filter

	StopSource             string // config.StopFromParams or config.StopFixed
	DefaultStopPoints      int
	TrailingTriggerPoints  int
	TrailingDistancePoints int

	CommissionPerLot float64 // charged on every fill
	SpreadPoints     float64 // buys fill this many points above close

	Journal bool // keep the closed trades in Result.Journal
}

// ConfigFrom derives the simulator view from the loaded configuration.
func ConfigFrom(c *config.Config) (Config, error) {
	filter, err := session.NewFilter(c.Trading.Sessions, c.Trading.WeekendDays)
	if err != nil {
		return Config{}, fmt.Errorf("session filter: %w", err)
	}
	return Config{
		FundedMode:             c.Account.FundedMode,
		StartBalance:           c.Account.StartBalance,
		DailyLossPercent:       c.Account.DailyMaxLossPercent,
		MaxTotalLossPercent:    c.Account.MaxTotalLossPercent,
		Lot:                    c.Account.LotSize,
		Session:                filter,
		StopSource:             c.Trading.StopSource,
		DefaultStopPoints:      c.Trading.DefaultStopPoints,
		TrailingTriggerPoints:  c.Trading.TrailingTriggerPoints,
		TrailingDistancePoints: c.Trading.TrailingDistancePoints,
		CommissionPerLot:       c.Trading.CommissionPerLot,
		SpreadPoints:           c.Trading.SpreadPoints,
	}, nil
}
