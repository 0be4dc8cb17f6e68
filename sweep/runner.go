package sweep

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evdnx/trendsweep/backtest"
	"github.com/evdnx/trendsweep/config"
	"github.com/evdnx/trendsweep/feed"
	"github.com/evdnx/trendsweep/indicator"
	"github.com/evdnx/trendsweep/logger"
	"github.com/evdnx/trendsweep/metrics"
	"github.com/evdnx/trendsweep/types"
)

// Pair is one (symbol, timeframe) combination of a sweep.
type Pair struct {
	Symbol    string
	Timeframe string
}

// Pairs returns the cross product of symbols and timeframes, symbols outer.
func Pairs(symbols, timeframes []string) []Pair {
	out := make([]Pair, 0, len(symbols)*len(timeframes))
	for _, s := range symbols {
		for _, tf := range timeframes {
			out = append(out, Pair{Symbol: s, Timeframe: tf})
		}
	}
	return out
}

// PairResult is the outcome of searching one pair.
type PairResult struct {
	Symbol    string
	Timeframe string
	Best      backtest.Result // Journal holds the replayed trades of the winner
	BestIndex int             // enumeration index of Best, -1 for an empty grid
	Tested    int
	Rejected  int
	Duration  time.Duration
}

// Report is the outcome of a whole sweep.
type Report struct {
	Pairs   []PairResult
	Skipped []Pair
	Best    PairResult // global winner across Pairs
	HasBest bool
}

// Tested sums the cells simulated over every pair.
func (r Report) Tested() int {
	n := 0
	for _, p := range r.Pairs {
		n += p.Tested
	}
	return n
}

// Rejected sums the rejected cells over every pair.
func (r Report) Rejected() int {
	n := 0
	for _, p := range r.Pairs {
		n += p.Rejected
	}
	return n
}

// Runner searches the grid with a fixed pool of workers.
type Runner struct {
	provider indicator.Provider
	sim      *backtest.Simulator
	log      logger.Logger
	grid     Grid
	workers  int
	lot      float64
	balance  float64
}

// NewRunner wires a runner from the loaded configuration.
func NewRunner(cfg *config.Config, provider indicator.Provider, sim *backtest.Simulator, log logger.Logger) *Runner {
	workers := cfg.Backtest.Workers
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		provider: provider,
		sim:      sim,
		log:      log,
		grid:     NewGrid(cfg.Grid),
		workers:  workers,
		lot:      cfg.Account.LotSize,
		balance:  cfg.Account.StartBalance,
	}
}

// Grid returns the configured grid before stop derivation.
func (r *Runner) Grid() Grid { return r.grid }

// Run searches every pair in order. A pair whose data cannot be loaded is
// logged and skipped. Cancellation is honoured between pairs; the report
// then holds the pairs finished so far.
func (r *Runner) Run(ctx context.Context, src feed.Source, pairs []Pair, from, to time.Time) (Report, error) {
	var (
		rep    Report
		global Best
	)
	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			r.log.Warn("sweep_cancelled", logger.Int("pairs_done", len(rep.Pairs)), logger.Err(err))
			return rep, err
		}
		pr, err := r.runSource(ctx, src, pair, from, to)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Warn("sweep_cancelled", logger.Int("pairs_done", len(rep.Pairs)), logger.Err(err))
				return rep, ctx.Err()
			}
			r.log.Warn("pair_skipped",
				logger.String("symbol", pair.Symbol),
				logger.String("timeframe", pair.Timeframe),
				logger.Err(err),
			)
			rep.Skipped = append(rep.Skipped, pair)
			continue
		}
		rep.Pairs = append(rep.Pairs, pr)
		if global.Offer(i, pr.Best) {
			rep.Best = pr
		}
	}
	rep.HasBest = global.Found()
	r.log.Info("sweep_done",
		logger.Int("pairs", len(rep.Pairs)),
		logger.Int("skipped", len(rep.Skipped)),
		logger.Int("cells_tested", rep.Tested()),
		logger.Int("cells_rejected", rep.Rejected()),
		logger.Float64("best_profit", rep.Best.Best.Profit),
	)
	return rep, nil
}

func (r *Runner) runSource(ctx context.Context, src feed.Source, pair Pair, from, to time.Time) (PairResult, error) {
	inst, err := src.Instrument(ctx, pair.Symbol)
	if err != nil {
		return PairResult{}, fmt.Errorf("instrument: %w", err)
	}
	bars, err := src.Bars(ctx, pair.Symbol, pair.Timeframe, from, to)
	if err != nil {
		return PairResult{}, fmt.Errorf("bars: %w", err)
	}
	return r.RunPair(ctx, bars, inst, pair.Symbol, pair.Timeframe)
}

type scored struct {
	index  int
	result backtest.Result
}

// RunPair simulates every grid cell over bars and returns the best one.
// Cells stream from a generator goroutine through a bounded channel, so
// memory stays flat however large the grid is.
func (r *Runner) RunPair(ctx context.Context, bars []types.Bar, inst types.Instrument, symbol, timeframe string) (PairResult, error) {
	start := time.Now()
	if len(bars) == 0 {
		return PairResult{}, fmt.Errorf("%w: %s %s", feed.ErrNoData, symbol, timeframe)
	}
	if err := types.ValidateSeries(bars); err != nil {
		return PairResult{}, err
	}
	grid, err := r.grid.DeriveStops(inst, r.lot, r.balance)
	if err != nil {
		return PairResult{}, fmt.Errorf("derive stops: %w", err)
	}
	log := r.log.With(logger.String("symbol", symbol), logger.String("timeframe", timeframe))
	log.Info("pair_started",
		logger.Int("cells", grid.Size()),
		logger.Int("bars", len(bars)),
		logger.Int("workers", r.workers),
	)

	cells := make(chan Cell, r.workers*4)
	results := make(chan scored, r.workers*4)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(cells)
		return grid.Each(gctx, func(c Cell) error {
			select {
			case cells <- c:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})
	for i := 0; i < r.workers; i++ {
		w := &worker{r: r, bars: bars, inst: inst, log: log}
		g.Go(func() error {
			for c := range cells {
				results <- scored{index: c.Index, result: w.run(c)}
			}
			return nil
		})
	}
	var waitErr error
	go func() {
		waitErr = g.Wait()
		close(results)
	}()

	pr := PairResult{Symbol: symbol, Timeframe: timeframe, BestIndex: -1}
	var best Best
	for s := range results {
		pr.Tested++
		if s.result.Rejected {
			pr.Rejected++
		}
		best.Offer(s.index, s.result)
	}
	if waitErr != nil {
		return pr, waitErr
	}

	if best.Found() {
		pr.Best, pr.BestIndex = best.Result, best.Index
		r.replay(&pr, bars, inst, log)
	} else {
		pr.Best = backtest.Reject(types.ParameterSet{}, backtest.ReasonNoData)
	}
	pr.Duration = time.Since(start)

	metrics.CellsTested.WithLabelValues(symbol, timeframe).Add(float64(pr.Tested))
	metrics.CellsRejected.WithLabelValues(symbol, timeframe).Add(float64(pr.Rejected))
	metrics.PairDuration.WithLabelValues(symbol, timeframe).Observe(pr.Duration.Seconds())
	if !backtest.IsSentinel(pr.Best.Profit) {
		metrics.BestProfit.WithLabelValues(symbol, timeframe).Set(pr.Best.Profit)
	}
	log.Info("pair_done",
		logger.Int("cells_tested", pr.Tested),
		logger.Int("cells_rejected", pr.Rejected),
		logger.Float64("best_profit", pr.Best.Profit),
		logger.String("best_params", pr.Best.Params.String()),
		logger.Duration("took", pr.Duration),
	)
	return pr, nil
}

// replay re-runs the winner with the journal on. Runs are deterministic,
// so the replayed profit must match the searched one.
func (r *Runner) replay(pr *PairResult, bars []types.Bar, inst types.Instrument, log logger.Logger) {
	if backtest.IsSentinel(pr.Best.Profit) {
		return
	}
	frame, err := r.provider.Compute(bars, pr.Best.Params)
	if err != nil {
		log.Warn("replay_failed", logger.Err(err))
		return
	}
	res := r.sim.WithJournal().Run(frame, inst, pr.Best.Params)
	if math.Float64bits(res.Profit) != math.Float64bits(pr.Best.Profit) {
		log.Error("replay_mismatch",
			logger.Float64("searched", pr.Best.Profit),
			logger.Float64("replayed", res.Profit),
		)
		return
	}
	pr.Best.Journal = res.Journal
}

// worker owns the state of one pool goroutine. It keeps the last frame it
// computed, since consecutive cells mostly share indicator settings.
type worker struct {
	r     *Runner
	bars  []types.Bar
	inst  types.Instrument
	log   logger.Logger
	key   indicator.Key
	frame *indicator.Frame
}

func (w *worker) run(c Cell) (res backtest.Result) {
	defer func() {
		if v := recover(); v != nil {
			w.frame = nil
			w.log.Error("cell_panic", logger.Int("cell", c.Index), logger.Any("panic", v))
			res = backtest.Reject(c.Params, backtest.ReasonPanic)
		}
	}()
	frame, err := w.frameFor(c.Params)
	if err != nil {
		w.log.Debug("cell_frame_failed", logger.Int("cell", c.Index), logger.Err(err))
		return backtest.Reject(c.Params, backtest.ReasonInvalidFrame)
	}
	return w.r.sim.Run(frame, w.inst, c.Params)
}

func (w *worker) frameFor(p types.ParameterSet) (*indicator.Frame, error) {
	k := indicator.KeyOf(p)
	if w.frame != nil && k == w.key {
		return w.frame, nil
	}
	f, err := w.r.provider.Compute(w.bars, p)
	if err != nil {
		w.frame = nil
		return nil, err
	}
	w.key, w.frame = k, f
	return f, nil
}
