package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evdnx/trendsweep/types"
)

// Config holds every tunable of the sweep and the live loop. It is loaded
// once and then only read; components take the sub-sections they need.
type Config struct {
	LogLevel    string                      `yaml:"log_level"`
	Account     AccountConfig               `yaml:"account"`
	Trading     TradingConfig               `yaml:"trading"`
	Backtest    BacktestConfig              `yaml:"backtest"`
	Instruments map[string]types.Instrument `yaml:"instruments"`
	Grid        GridConfig                  `yaml:"grid"`
	Output      OutputConfig                `yaml:"output"`
	ClickHouse  ClickHouseConfig            `yaml:"clickhouse"`
	Live        LiveConfig                  `yaml:"live"`
}

// AccountConfig describes the simulated (or funded) account.
type AccountConfig struct {
	StartBalance        float64 `yaml:"start_balance"`
	LotSize             float64 `yaml:"lot_size"`
	FundedMode          bool    `yaml:"funded_mode"`
	DailyMaxLossPercent float64 `yaml:"daily_max_loss_percent"`
	MaxTotalLossPercent float64 `yaml:"max_total_loss_percent"`
}

// Stop distance sources for the simulator.
const (
	StopFromParams = "params"
	StopFixed      = "fixed"
)

// TradingConfig holds trade-management defaults and the session calendar.
type TradingConfig struct {
	TrailingTriggerPoints  int      `yaml:"trailing_trigger_pts"`
	TrailingDistancePoints int      `yaml:"trailing_dist_pts"`
	DefaultStopPoints      int      `yaml:"default_stop_pts"`
	StopSource             string   `yaml:"stop_source"`
	CommissionPerLot       float64  `yaml:"commission_per_lot"`
	SpreadPoints           float64  `yaml:"spread_pts"`
	Sessions               []string `yaml:"sessions"`     // "HH:MM-HH:MM", inclusive
	WeekendDays            []string `yaml:"weekend_days"` // weekday names
}

// Data source and indicator provider names.
const (
	SourceCSV        = "csv"
	SourceClickHouse = "clickhouse"

	IndicatorStandard  = "standard"
	IndicatorMoneyFlow = "mfi"
)

// BacktestConfig selects what the sweep runs over.
type BacktestConfig struct {
	Symbols    []string `yaml:"symbols"`
	Timeframes []string `yaml:"timeframes"`
	Start      string   `yaml:"start"` // YYYY-MM-DD
	End        string   `yaml:"end"`   // YYYY-MM-DD, inclusive of midnight
	Workers    int      `yaml:"workers"`
	Source     string   `yaml:"source"`
	DataDir    string   `yaml:"data_dir"`
	Indicator  string   `yaml:"indicator"`
}

// IntRange is an inclusive integer axis.
type IntRange struct {
	Min  int `yaml:"min"`
	Max  int `yaml:"max"`
	Step int `yaml:"step"`
}

// FloatRange is an inclusive float axis.
type FloatRange struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
}

// GridConfig lists the parameter axes of the sweep.
type GridConfig struct {
	SuperTrendPeriod     IntRange   `yaml:"supertrend_period"`
	SuperTrendMultiplier FloatRange `yaml:"supertrend_multiplier"`
	ADXPeriod            IntRange   `yaml:"adx_period"`
	ADXThreshold         FloatRange `yaml:"adx_threshold"`
	RSIPeriod            IntRange   `yaml:"rsi_period"`
	RSIOversold          FloatRange `yaml:"rsi_oversold"`
	RSIOverbought        FloatRange `yaml:"rsi_overbought"`

	// DeriveStops adds stop-loss / trailing axes computed from the
	// instrument tick economics.
	DeriveStops         bool    `yaml:"derive_stops"`
	StopStepMoney       float64 `yaml:"stop_step_money"`
	RiskPerTradePercent float64 `yaml:"risk_per_trade_percent"`
}

// OutputConfig controls where results go.
type OutputConfig struct {
	BestParamsPath string `yaml:"best_params_path"`
	SQLitePath     string `yaml:"sqlite_path"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// ClickHouseConfig configures the ClickHouse bar source.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// LiveConfig configures the live loop.
type LiveConfig struct {
	UseManual     bool               `yaml:"use_manual"`
	Symbol        string             `yaml:"symbol"`
	Timeframe     string             `yaml:"timeframe"`
	Params        types.ParameterSet `yaml:"params"`
	Bars          int                `yaml:"bars"`
	PollEvery     time.Duration      `yaml:"poll_every"`
	StopFlag      string             `yaml:"stop_flag"`
	Timezone      string             `yaml:"timezone"`
	DefaultStop   int                `yaml:"default_stop_pts"`
	OrderRetries  int                `yaml:"order_retries"`
	TrailingOn    bool               `yaml:"trailing_enabled"`
	RetryInterval time.Duration      `yaml:"retry_interval"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TRENDSWEEP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TRENDSWEEP_SYMBOLS"); v != "" {
		c.Backtest.Symbols = splitList(v)
	}
	if v := os.Getenv("TRENDSWEEP_TIMEFRAMES"); v != "" {
		c.Backtest.Timeframes = splitList(v)
	}
	if v := os.Getenv("TRENDSWEEP_START"); v != "" {
		c.Backtest.Start = v
	}
	if v := os.Getenv("TRENDSWEEP_END"); v != "" {
		c.Backtest.End = v
	}
	if v := os.Getenv("TRENDSWEEP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRENDSWEEP_WORKERS: %w", err)
		}
		c.Backtest.Workers = n
	}
	if v := os.Getenv("TRENDSWEEP_FUNDED_MODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRENDSWEEP_FUNDED_MODE: %w", err)
		}
		c.Account.FundedMode = b
	}
	if v := os.Getenv("TRENDSWEEP_SQLITE_PATH"); v != "" {
		c.Output.SQLitePath = v
	}
	if v := os.Getenv("TRENDSWEEP_CLICKHOUSE_ADDR"); v != "" {
		c.ClickHouse.Addr = v
	}
	if v := os.Getenv("TRENDSWEEP_CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ApplyDefaults fills every zero field with the stock value.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	a := &c.Account
	if a.StartBalance == 0 {
		a.StartBalance = 10_000
	}
	if a.LotSize == 0 {
		a.LotSize = 0.9
	}
	if a.DailyMaxLossPercent == 0 {
		a.DailyMaxLossPercent = 4.5
	}
	if a.MaxTotalLossPercent == 0 {
		a.MaxTotalLossPercent = 10
	}

	t := &c.Trading
	if t.TrailingTriggerPoints == 0 {
		t.TrailingTriggerPoints = 50
	}
	if t.TrailingDistancePoints == 0 {
		t.TrailingDistancePoints = 30
	}
	if t.DefaultStopPoints == 0 {
		t.DefaultStopPoints = 50
	}
	if t.StopSource == "" {
		t.StopSource = StopFromParams
	}
	if t.Sessions == nil {
		t.Sessions = []string{"07:00-11:59", "13:00-17:00"}
	}
	if t.WeekendDays == nil {
		t.WeekendDays = []string{"saturday", "sunday"}
	}

	b := &c.Backtest
	if len(b.Symbols) == 0 {
		b.Symbols = []string{"EURUSD"}
	}
	if len(b.Timeframes) == 0 {
		b.Timeframes = []string{"M5"}
	}
	if b.Workers <= 0 {
		b.Workers = runtime.NumCPU() / 2
		if b.Workers < 1 {
			b.Workers = 1
		}
	}
	if b.Source == "" {
		b.Source = SourceCSV
	}
	if b.DataDir == "" {
		b.DataDir = "data"
	}
	if b.Indicator == "" {
		b.Indicator = IndicatorStandard
	}

	if c.Instruments == nil {
		c.Instruments = map[string]types.Instrument{
			"EURUSD": {Symbol: "EURUSD", Point: 0.00001, ContractSize: 100_000, Digits: 5, VolumeMin: 0.01, VolumeMax: 100},
		}
	}

	g := &c.Grid
	setInt(&g.SuperTrendPeriod, IntRange{5, 14, 1})
	setFloat(&g.SuperTrendMultiplier, FloatRange{2, 5, 1})
	setInt(&g.ADXPeriod, IntRange{10, 15, 5})
	setFloat(&g.ADXThreshold, FloatRange{20, 30, 5})
	setInt(&g.RSIPeriod, IntRange{10, 15, 5})
	setFloat(&g.RSIOversold, FloatRange{25, 35, 5})
	setFloat(&g.RSIOverbought, FloatRange{60, 70, 5})
	if g.StopStepMoney == 0 {
		g.StopStepMoney = 10
	}
	if g.RiskPerTradePercent == 0 {
		g.RiskPerTradePercent = 1
	}

	o := &c.Output
	if o.BestParamsPath == "" {
		o.BestParamsPath = "results/best_params.json"
	}

	ch := &c.ClickHouse
	if ch.Database == "" {
		ch.Database = "backtest"
	}
	if ch.Table == "" {
		ch.Table = "ohlcv"
	}

	l := &c.Live
	if l.Bars == 0 {
		l.Bars = 10_000
	}
	if l.PollEvery == 0 {
		l.PollEvery = 30 * time.Second
	}
	if l.StopFlag == "" {
		l.StopFlag = "stop.flag"
	}
	if l.Timezone == "" {
		l.Timezone = "Europe/Berlin"
	}
	if l.DefaultStop == 0 {
		l.DefaultStop = 50
	}
	if l.OrderRetries == 0 {
		l.OrderRetries = 3
	}
	if l.RetryInterval == 0 {
		l.RetryInterval = 2 * time.Second
	}
}

func setInt(r *IntRange, def IntRange) {
	if *r == (IntRange{}) {
		*r = def
	}
}

func setFloat(r *FloatRange, def FloatRange) {
	if *r == (FloatRange{}) {
		*r = def
	}
}

// Validate checks that all numeric fields are within sensible bounds.
// It returns the first encountered error, allowing the caller to surface a
// clear configuration problem before any simulation starts.
func (c *Config) Validate() error {
	a := c.Account
	if a.StartBalance <= 0 {
		return fmt.Errorf("account.start_balance (%f) must be positive", a.StartBalance)
	}
	if a.LotSize <= 0 {
		return fmt.Errorf("account.lot_size (%f) must be positive", a.LotSize)
	}
	if a.DailyMaxLossPercent <= 0 || a.DailyMaxLossPercent > 100 {
		return fmt.Errorf("account.daily_max_loss_percent (%f) must be >0 and <=100", a.DailyMaxLossPercent)
	}
	if a.MaxTotalLossPercent <= 0 || a.MaxTotalLossPercent > 100 {
		return fmt.Errorf("account.max_total_loss_percent (%f) must be >0 and <=100", a.MaxTotalLossPercent)
	}

	t := c.Trading
	if t.TrailingTriggerPoints < 0 || t.TrailingDistancePoints < 0 || t.DefaultStopPoints <= 0 {
		return errors.New("trading point distances must be positive")
	}
	if t.StopSource != StopFromParams && t.StopSource != StopFixed {
		return fmt.Errorf("trading.stop_source %q must be %q or %q", t.StopSource, StopFromParams, StopFixed)
	}
	if t.CommissionPerLot < 0 || t.SpreadPoints < 0 {
		return errors.New("trading commission and spread cannot be negative")
	}

	b := c.Backtest
	if _, _, err := b.Range(); err != nil {
		return err
	}
	if b.Source != SourceCSV && b.Source != SourceClickHouse {
		return fmt.Errorf("backtest.source %q is not supported", b.Source)
	}
	if b.Indicator != IndicatorStandard && b.Indicator != IndicatorMoneyFlow {
		return fmt.Errorf("backtest.indicator %q is not supported", b.Indicator)
	}
	if b.Source == SourceClickHouse && c.ClickHouse.Addr == "" {
		return errors.New("clickhouse.addr is required when backtest.source is clickhouse")
	}

	if err := c.Grid.validate(); err != nil {
		return err
	}
	for sym, inst := range c.Instruments {
		if inst.Symbol == "" {
			inst.Symbol = sym
		}
		if err := inst.Validate(); err != nil {
			return err
		}
	}
	if c.Live.PollEvery < time.Second {
		return fmt.Errorf("live.poll_every (%s) must be at least 1s", c.Live.PollEvery)
	}
	if c.Live.UseManual {
		if c.Live.Symbol == "" || c.Live.Timeframe == "" {
			return errors.New("live.symbol and live.timeframe are required in manual mode")
		}
		if err := c.Live.Params.Validate(); err != nil {
			return fmt.Errorf("live.params: %w", err)
		}
	}
	return nil
}

func (g GridConfig) validate() error {
	ints := []struct {
		name string
		r    IntRange
	}{
		{"supertrend_period", g.SuperTrendPeriod},
		{"adx_period", g.ADXPeriod},
		{"rsi_period", g.RSIPeriod},
	}
	for _, a := range ints {
		if a.r.Min <= 0 || a.r.Max < a.r.Min || a.r.Step <= 0 {
			return fmt.Errorf("grid.%s: need 0 < min <= max and step > 0, got %+v", a.name, a.r)
		}
	}
	floats := []struct {
		name string
		r    FloatRange
	}{
		{"supertrend_multiplier", g.SuperTrendMultiplier},
		{"adx_threshold", g.ADXThreshold},
		{"rsi_oversold", g.RSIOversold},
		{"rsi_overbought", g.RSIOverbought},
	}
	for _, a := range floats {
		if a.r.Max < a.r.Min || a.r.Step <= 0 {
			return fmt.Errorf("grid.%s: need min <= max and step > 0, got %+v", a.name, a.r)
		}
	}
	if g.RSIOversold.Max > g.RSIOverbought.Min {
		return fmt.Errorf("grid.rsi_oversold max %v is above grid.rsi_overbought min %v", g.RSIOversold.Max, g.RSIOverbought.Min)
	}
	if g.SuperTrendMultiplier.Min <= 0 {
		return errors.New("grid.supertrend_multiplier must be positive")
	}
	if g.DeriveStops && (g.StopStepMoney <= 0 || g.RiskPerTradePercent <= 0) {
		return errors.New("grid.stop_step_money and grid.risk_per_trade_percent must be positive")
	}
	return nil
}

// Range parses the backtest window. End is inclusive of its midnight bar.
func (b BacktestConfig) Range() (from, to time.Time, err error) {
	if b.Start == "" || b.End == "" {
		return time.Time{}, time.Time{}, errors.New("backtest.start and backtest.end are required")
	}
	from, err = time.Parse(time.DateOnly, b.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.start: %w", err)
	}
	to, err = time.Parse(time.DateOnly, b.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.end: %w", err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.end %s before start %s", b.End, b.Start)
	}
	return from, to, nil
}

// Instrument returns the configured metadata for symbol.
func (c *Config) Instrument(symbol string) (types.Instrument, bool) {
	inst, ok := c.Instruments[symbol]
	if ok && inst.Symbol == "" {
		inst.Symbol = symbol
	}
	return inst, ok
}
