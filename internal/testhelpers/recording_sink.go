package testhelpers

import (
	"context"
	"sync"

	"github.com/dbehnke/fecsim/pkg/ber"
	"github.com/dbehnke/fecsim/pkg/sweep"
)

// RecordingSink is a sweep sink and trial observer that keeps everything it
// is sent, for assertions in tests
type RecordingSink struct {
	mu       sync.Mutex
	started  []string
	points   []sweep.Point
	finished []sweep.Result
	trials   []ber.TrialResult
	err      error
}

// NewRecordingSink creates an empty sink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// FailWith makes every sink method return err
func (s *RecordingSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// RunStarted records a run id
func (s *RecordingSink) RunStarted(_ context.Context, res *sweep.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, res.RunID)
	return s.err
}

// PointCompleted records a point
func (s *RecordingSink) PointCompleted(_ context.Context, p sweep.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
	return s.err
}

// RunFinished records a copy of the final result
func (s *RecordingSink) RunFinished(_ context.Context, res *sweep.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, *res)
	return s.err
}

// ObserveTrial records a trial
func (s *RecordingSink) ObserveTrial(res ber.TrialResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trials = append(s.trials, res)
}

// Started returns the ids of started runs
func (s *RecordingSink) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...)
}

// Points returns the points received so far
func (s *RecordingSink) Points() []sweep.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sweep.Point(nil), s.points...)
}

// Finished returns the final results received so far
func (s *RecordingSink) Finished() []sweep.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sweep.Result(nil), s.finished...)
}

// Trials returns the number of trials observed
func (s *RecordingSink) Trials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trials)
}
