package sweep

import (
	"context"
	"errors"
	"testing"

	"github.com/dbehnke/fecsim/pkg/ber"
	"github.com/dbehnke/fecsim/pkg/fecerr"
	"github.com/dbehnke/fecsim/pkg/modem"
	"github.com/dbehnke/fecsim/pkg/trellis"
)

// stepTrialer is error free at or above a fixed Eb/N0 and fully wrong below it
type stepTrialer struct {
	edge  float64
	calls int
}

func (s *stepTrialer) CodedTrial(m modem.Modulation, snr float64, n int, seed uint64) (ber.TrialResult, error) {
	return s.UncodedTrial(m, snr, n, seed)
}

func (s *stepTrialer) UncodedTrial(m modem.Modulation, snr float64, n int, _ uint64) (ber.TrialResult, error) {
	s.calls++
	res := ber.TrialResult{Modulation: m, EbN0dB: snr, Bits: n}
	if snr < s.edge {
		res.Errors = n
		res.BER = 1
	}
	return res, nil
}

func TestChooseModulation(t *testing.T) {
	tests := []struct {
		snr  float64
		want string
	}{
		{5, ChoiceNone},
		{9.99, ChoiceNone},
		{10, ChoiceQPSK},
		{15, ChoiceQPSK},
		{17, Choice16QAM},
		{30, Choice16QAM},
	}
	for _, tt := range tests {
		if got := ChooseModulation(tt.snr, 10, 17); got != tt.want {
			t.Errorf("ChooseModulation(%v) = %s, want %s", tt.snr, got, tt.want)
		}
	}
}

func TestFindMinSNRConverges(t *testing.T) {
	st := &stepTrialer{edge: 12.3}
	search := ThresholdSearch{TargetBER: 1e-5, Bits: 100, Runs: 2, Low: 0, High: 30, Tolerance: 0.1, Seed: 1}

	got, err := FindMinSNR(context.Background(), st, modem.QPSK, search)
	if err != nil {
		t.Fatalf("FindMinSNR failed: %v", err)
	}
	if got < 12.3 || got > 12.3+0.1 {
		t.Errorf("threshold %v, want within 0.1 dB above 12.3", got)
	}
	if st.calls == 0 || st.calls%2 != 0 {
		t.Errorf("expected whole groups of 2 runs per bisection step, got %d calls", st.calls)
	}
}

func TestFindMinSNRValidation(t *testing.T) {
	good := ThresholdSearch{TargetBER: 1e-3, Bits: 100, Runs: 1, Low: 0, High: 30, Tolerance: 0.1}
	tests := map[string]func(*ThresholdSearch){
		"zero target":   func(s *ThresholdSearch) { s.TargetBER = 0 },
		"no bits":       func(s *ThresholdSearch) { s.Bits = 0 },
		"no runs":       func(s *ThresholdSearch) { s.Runs = 0 },
		"no tolerance":  func(s *ThresholdSearch) { s.Tolerance = 0 },
		"empty range":   func(s *ThresholdSearch) { s.High = s.Low },
		"out of bounds": func(s *ThresholdSearch) { s.High = 80 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			s := good
			mutate(&s)
			if _, err := FindMinSNR(context.Background(), &stepTrialer{}, modem.QPSK, s); !errors.Is(err, fecerr.ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestFindMinSNRHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	search := ThresholdSearch{TargetBER: 1e-3, Bits: 100, Runs: 1, Low: 0, High: 30, Tolerance: 0.1}
	if _, err := FindMinSNR(ctx, &stepTrialer{}, modem.QPSK, search); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRunAMC(t *testing.T) {
	sim := ber.NewSimulator(trellis.New(), testLogger())
	r := NewRunner(sim, testLogger())

	report, err := r.RunAMC(context.Background(), AMCConfig{
		Search:     ThresholdSearch{TargetBER: 1e-2, Bits: 20000, Runs: 1, Low: 0, High: 30, Tolerance: 0.5, Seed: 3},
		Pilots:     1000,
		SampleSNRs: []float64{0, 25},
	})
	if err != nil {
		t.Fatalf("RunAMC failed: %v", err)
	}

	// QPSK needs about 4.3 dB for 1e-2, 16-QAM about 2-3 dB more
	if report.ThresholdQPSK < 2 || report.ThresholdQPSK > 7 {
		t.Errorf("QPSK threshold %.2f dB out of range", report.ThresholdQPSK)
	}
	if report.Threshold16QAM <= report.ThresholdQPSK {
		t.Errorf("16QAM threshold %.2f not above QPSK %.2f", report.Threshold16QAM, report.ThresholdQPSK)
	}
	if len(report.Decisions) != 2 {
		t.Fatalf("got %d decisions, want 2", len(report.Decisions))
	}
	if report.Decisions[0].Choice != ChoiceNone {
		t.Errorf("0 dB link chose %s, want NONE", report.Decisions[0].Choice)
	}
	if report.Decisions[1].Choice != Choice16QAM {
		t.Errorf("25 dB link chose %s, want 16QAM", report.Decisions[1].Choice)
	}
}
