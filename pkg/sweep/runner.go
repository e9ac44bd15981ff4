package sweep

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/dbehnke/fecsim/pkg/ber"
	"github.com/dbehnke/fecsim/pkg/logger"
	"github.com/dbehnke/fecsim/pkg/modem"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Runner executes sweeps on a bounded worker pool and fans progress out to
// the registered sinks.
type Runner struct {
	sim    Trialer
	logger *logger.Logger
	sinks  []Sink
	newID  func() string
	now    func() time.Time

	mu     sync.RWMutex
	active map[string]*Result
}

// Option configures a Runner
type Option func(*Runner)

// WithSink registers a progress sink
func WithSink(s Sink) Option {
	return func(r *Runner) {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
}

// WithIDGenerator overrides the run ID source
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		r.newID = fn
	}
}

// NewRunner creates a sweep runner
func NewRunner(sim Trialer, log *logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		sim:    sim,
		logger: log.WithComponent("sweep"),
		newID:  uuid.NewString,
		now:    time.Now,
		active: make(map[string]*Result),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Active returns a snapshot of the sweeps currently running
func (r *Runner) Active() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Result, 0, len(r.active))
	for _, res := range r.active {
		snap := *res
		snap.Points = append([]Point(nil), res.Points...)
		out = append(out, snap)
	}
	return out
}

// Run executes cfg: modulation x Eb/N0 x {uncoded, coded}. When ctx is
// cancelled the points completed so far are returned along with ctx.Err().
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	res := &Result{
		RunID:     r.newID(),
		Status:    StatusRunning,
		Config:    cfg,
		StartedAt: r.now(),
	}

	r.mu.Lock()
	r.active[res.RunID] = res
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, res.RunID)
		r.mu.Unlock()
	}()

	r.logger.Info("Sweep started",
		logger.String("run_id", res.RunID),
		logger.Int("modulations", len(cfg.Modulations)),
		logger.Int("points", len(cfg.Grid())),
		logger.Int("trials", cfg.Trials),
		logger.Bool("coded", cfg.Coded),
		logger.Bool("uncoded", cfg.Uncoded),
		logger.Uint64("seed", cfg.Seed),
		logger.Int("workers", cfg.Workers))

	for _, s := range r.sinks {
		if err := s.RunStarted(ctx, res); err != nil {
			r.logger.Warn("Sink failed on run start", logger.Error(err))
		}
	}

	runErr := r.sweep(ctx, cfg, res)

	r.mu.Lock()
	res.FinishedAt = r.now()
	switch {
	case runErr == nil:
		res.Status = StatusCompleted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		res.Status = StatusCancelled
	default:
		res.Status = StatusFailed
	}
	r.mu.Unlock()

	// Sinks still get the final state after cancellation
	finishCtx := context.WithoutCancel(ctx)
	for _, s := range r.sinks {
		if err := s.RunFinished(finishCtx, res); err != nil {
			r.logger.Warn("Sink failed on run finish", logger.Error(err))
		}
	}

	r.logger.Info("Sweep finished",
		logger.String("run_id", res.RunID),
		logger.String("status", res.Status),
		logger.Int("points", len(res.Points)),
		logger.String("elapsed", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String()))

	return res, runErr
}

func (r *Runner) sweep(ctx context.Context, cfg Config, res *Result) error {
	var modes []bool
	if cfg.Uncoded {
		modes = append(modes, false)
	}
	if cfg.Coded {
		modes = append(modes, true)
	}

	for _, m := range cfg.Modulations {
		for _, snr := range cfg.Grid() {
			for _, coded := range modes {
				if err := ctx.Err(); err != nil {
					return err
				}

				p, err := r.runPoint(ctx, cfg, m, snr, coded)
				if err != nil {
					return err
				}
				p.RunID = res.RunID

				r.mu.Lock()
				res.Points = append(res.Points, p)
				r.mu.Unlock()

				r.logger.Debug("Point complete",
					logger.String("curve", p.Label()),
					logger.Float64("ebn0_db", p.EbN0dB),
					logger.Int("errors", p.Errors),
					logger.Float64("ber", p.BER))

				for _, s := range r.sinks {
					if err := s.PointCompleted(ctx, p); err != nil {
						r.logger.Warn("Sink failed on point", logger.Error(err))
					}
				}
			}
		}
		r.logger.Info("Completed modulation", logger.String("modulation", m.String()))
	}
	return nil
}

func (r *Runner) runPoint(ctx context.Context, cfg Config, m modem.Modulation, snr float64, coded bool) (Point, error) {
	start := r.now()
	results := make([]ber.TrialResult, cfg.Trials)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i := 0; i < cfg.Trials; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var (
				tr  ber.TrialResult
				err error
			)
			if coded {
				tr, err = r.sim.CodedTrial(m, snr, cfg.InfoBits, cfg.TrialSeed(i))
			} else {
				tr, err = r.sim.UncodedTrial(m, snr, cfg.InfoBits, cfg.TrialSeed(i))
			}
			if err != nil {
				return fmt.Errorf("%s at %.2f dB trial %d: %w", m, snr, i, err)
			}
			results[i] = tr
			r.observe(tr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Point{}, err
	}
	// A cancellation between launches leaves later trials unrun
	if err := ctx.Err(); err != nil {
		return Point{}, err
	}

	p := Point{
		Modulation: m,
		EbN0dB:     snr,
		Coded:      coded,
		Trials:     cfg.Trials,
		TheoryBER:  ber.Theoretical(m, snr),
		Duration:   r.now().Sub(start),
	}
	for _, tr := range results {
		p.Bits += tr.Bits
		p.Errors += tr.Errors
	}
	if p.Bits > 0 {
		p.BER = float64(p.Errors) / float64(p.Bits)
	}
	return p, nil
}

func (r *Runner) observe(tr ber.TrialResult) {
	for _, s := range r.sinks {
		if o, ok := s.(TrialObserver); ok {
			o.ObserveTrial(tr)
		}
	}
}
