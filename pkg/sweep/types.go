package sweep

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dbehnke/fecsim/pkg/ber"
	"github.com/dbehnke/fecsim/pkg/fecerr"
	"github.com/dbehnke/fecsim/pkg/modem"
)

// SeedStride separates the seeds of consecutive trials at a point
const SeedStride = 997

// Run status values
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Config describes one Eb/N0 sweep
type Config struct {
	Modulations []modem.Modulation
	EbN0Start   float64
	EbN0Stop    float64
	EbN0Step    float64
	InfoBits    int // bits per trial
	Trials      int // trials per point
	Coded       bool
	Uncoded     bool
	Seed        uint64
	Workers     int
}

// Validate checks the sweep grid and trial sizing
func (c Config) Validate() error {
	if len(c.Modulations) == 0 {
		return fmt.Errorf("%w: no modulations selected", fecerr.ErrInvalidArgument)
	}
	for _, m := range c.Modulations {
		if !m.Valid() {
			return fmt.Errorf("%w: unsupported modulation order %d", fecerr.ErrInvalidArgument, int(m))
		}
	}
	if !c.Coded && !c.Uncoded {
		return fmt.Errorf("%w: neither coded nor uncoded trials enabled", fecerr.ErrInvalidArgument)
	}
	if !(c.EbN0Step > 0) {
		return fmt.Errorf("%w: Eb/N0 step must be positive", fecerr.ErrInvalidArgument)
	}
	if c.EbN0Stop < c.EbN0Start {
		return fmt.Errorf("%w: Eb/N0 stop %v is below start %v", fecerr.ErrInvalidArgument, c.EbN0Stop, c.EbN0Start)
	}
	if c.InfoBits <= 0 || c.InfoBits > ber.MaxBits {
		return fmt.Errorf("%w: info bits %d outside (0, %d]", fecerr.ErrInvalidArgument, c.InfoBits, ber.MaxBits)
	}
	if c.Trials <= 0 {
		return fmt.Errorf("%w: trials must be positive", fecerr.ErrInvalidArgument)
	}
	return nil
}

// Grid returns the Eb/N0 points from start to stop inclusive
func (c Config) Grid() []float64 {
	if !(c.EbN0Step > 0) || c.EbN0Stop < c.EbN0Start {
		return nil
	}
	n := int(math.Floor((c.EbN0Stop-c.EbN0Start)/c.EbN0Step+1e-9)) + 1
	grid := make([]float64, n)
	for i := range grid {
		// Round away accumulated float noise so 0.1 steps print cleanly
		grid[i] = math.Round((c.EbN0Start+float64(i)*c.EbN0Step)*1e9) / 1e9
	}
	return grid
}

// TrialSeed returns the seed of trial i
func (c Config) TrialSeed(i int) uint64 {
	return c.Seed + uint64(i)*SeedStride
}

// Point is the aggregate of all trials at one operating point
type Point struct {
	RunID      string
	Modulation modem.Modulation
	EbN0dB     float64
	Coded      bool
	Trials     int
	Bits       int
	Errors     int
	BER        float64
	TheoryBER  float64
	Duration   time.Duration
}

// Label is a short human readable name for the point's curve
func (p Point) Label() string {
	if p.Coded {
		return p.Modulation.String() + " coded"
	}
	return p.Modulation.String() + " uncoded"
}

// Result is a finished or interrupted sweep
type Result struct {
	RunID      string
	Status     string
	Config     Config
	StartedAt  time.Time
	FinishedAt time.Time
	Points     []Point
}

// Sink receives sweep progress. Errors returned by a sink are logged by the
// runner and never abort the sweep.
type Sink interface {
	RunStarted(ctx context.Context, res *Result) error
	PointCompleted(ctx context.Context, p Point) error
	RunFinished(ctx context.Context, res *Result) error
}

// TrialObserver is implemented by sinks that want every individual trial
type TrialObserver interface {
	ObserveTrial(res ber.TrialResult)
}

// Trialer runs single link trials
type Trialer interface {
	CodedTrial(m modem.Modulation, ebn0dB float64, numInfoBits int, seed uint64) (ber.TrialResult, error)
	UncodedTrial(m modem.Modulation, ebn0dB float64, numBits int, seed uint64) (ber.TrialResult, error)
}
