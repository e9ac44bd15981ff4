package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dbehnke/fecsim/pkg/logger"
	"github.com/dbehnke/fecsim/pkg/sweep"
)

// Sink persists sweep progress as runs and points
type Sink struct {
	runs      *RunRepository
	points    *PointRepository
	retention time.Duration
	logger    *logger.Logger
}

// NewSink creates a sweep sink over an open database. A positive retention
// prunes runs older than that when each run finishes.
func NewSink(db *DB, retention time.Duration, log *logger.Logger) *Sink {
	return &Sink{
		runs:      NewRunRepository(db.GetDB()),
		points:    NewPointRepository(db.GetDB()),
		retention: retention,
		logger:    log.WithComponent("database.sink"),
	}
}

// RunStarted stores the new run
func (s *Sink) RunStarted(_ context.Context, res *sweep.Result) error {
	names := make([]string, len(res.Config.Modulations))
	for i, m := range res.Config.Modulations {
		names[i] = m.String()
	}

	run := &Run{
		ID:          res.RunID,
		Status:      res.Status,
		Modulations: strings.Join(names, ","),
		SNRStart:    res.Config.EbN0Start,
		SNRStop:     res.Config.EbN0Stop,
		SNRStep:     res.Config.EbN0Step,
		InfoBits:    res.Config.InfoBits,
		Trials:      res.Config.Trials,
		Seed:        Seed(res.Config.Seed),
		StartedAt:   res.StartedAt,
	}
	if err := s.runs.Create(run); err != nil {
		return fmt.Errorf("failed to store run %s: %w", res.RunID, err)
	}
	return nil
}

// PointCompleted stores one aggregated point
func (s *Sink) PointCompleted(_ context.Context, p sweep.Point) error {
	if err := s.points.Create(FromSweepPoint(p)); err != nil {
		return fmt.Errorf("failed to store point: %w", err)
	}
	return nil
}

// RunFinished records the final status and stored point count, then
// applies retention
func (s *Sink) RunFinished(_ context.Context, res *sweep.Result) error {
	stored, err := s.points.CountByRun(res.RunID)
	if err != nil {
		return fmt.Errorf("failed to count points of run %s: %w", res.RunID, err)
	}
	if err := s.runs.Finish(res.RunID, res.Status, res.FinishedAt, int(stored)); err != nil {
		return fmt.Errorf("failed to finish run %s: %w", res.RunID, err)
	}

	if s.retention > 0 {
		deleted, err := s.runs.DeleteOlderThan(time.Now().Add(-s.retention))
		if err != nil {
			return fmt.Errorf("failed to prune old runs: %w", err)
		}
		if deleted > 0 {
			s.logger.Info("Pruned old runs", logger.Int64("deleted", deleted))
		}
	}
	return nil
}

// FromSweepPoint converts a sweep point into its stored form
func FromSweepPoint(p sweep.Point) *Point {
	return &Point{
		RunID:      p.RunID,
		Modulation: p.Modulation.String(),
		EbN0dB:     p.EbN0dB,
		Coded:      p.Coded,
		Trials:     p.Trials,
		Bits:       int64(p.Bits),
		Errors:     int64(p.Errors),
		BER:        p.BER,
		TheoryBER:  p.TheoryBER,
		DurationMS: p.Duration.Milliseconds(),
	}
}
