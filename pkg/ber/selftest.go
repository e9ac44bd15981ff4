package ber

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/dbehnke/fecsim/pkg/channel"
	"github.com/dbehnke/fecsim/pkg/fecerr"
	"github.com/dbehnke/fecsim/pkg/logger"
	"github.com/dbehnke/fecsim/pkg/modem"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Check is the outcome of one self test step
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// ErrSelfTest is returned when any self test check fails
var ErrSelfTest = errors.New("self test failed")

// SelfTest runs the built-in sanity checks in order and stops at the first
// failure. The returned slice holds every check that ran.
func (s *Simulator) SelfTest() ([]Check, error) {
	steps := []struct {
		name string
		fn   func() (string, error)
	}{
		{"coding", s.checkCoding},
		{"mod-demod", checkModDemod},
		{"ber-edge", s.checkEdges},
		{"ber-accuracy", s.checkAccuracy},
		{"snr-estimation", checkSNREstimation},
	}

	var checks []Check
	for _, step := range steps {
		detail, err := step.fn()
		c := Check{Name: step.name, Passed: err == nil, Detail: detail}
		if err != nil {
			c.Detail = err.Error()
		}
		checks = append(checks, c)

		if err != nil {
			s.logger.Error("Self test check failed", logger.String("check", step.name), logger.Error(err))
			return checks, fmt.Errorf("%w: %s: %v", ErrSelfTest, step.name, err)
		}
		s.logger.Info("Self test check passed", logger.String("check", step.name), logger.String("detail", detail))
	}
	return checks, nil
}

func (s *Simulator) checkCoding() (string, error) {
	info := []uint8{1, 0, 1, 1, 0, 1, 0, 0, 1, 1}
	coded, err := s.enc.Encode(info)
	if err != nil {
		return "", err
	}
	if len(coded) != 32 {
		return "", fmt.Errorf("coded length %d, want 32", len(coded))
	}
	llrs := make([]float64, len(coded))
	for i, b := range coded {
		llrs[i] = -10
		if b == 1 {
			llrs[i] = 10
		}
	}
	decoded, err := s.dec.Decode(llrs)
	if err != nil {
		return "", err
	}
	if !slices.Equal(decoded, info) {
		return "", fmt.Errorf("decoded %v, want %v", decoded, info)
	}
	return "10 bits encoded to 32 and decoded exactly", nil
}

func checkModDemod() (string, error) {
	cases := []struct {
		m    modem.Modulation
		bits []uint8
	}{
		{modem.BPSK, []uint8{0, 1}},
		{modem.QPSK, []uint8{0, 0, 1, 1}},
		{modem.QAM16, []uint8{0, 0, 0, 0, 1, 0, 1, 1}},
	}
	for _, c := range cases {
		syms, err := modem.Modulate(c.bits, c.m)
		if err != nil {
			return "", err
		}
		rx, err := modem.Demodulate(syms, c.m)
		if err != nil {
			return "", err
		}
		if !slices.Equal(rx, c.bits) {
			return "", fmt.Errorf("%s round trip returned %v, want %v", c.m, rx, c.bits)
		}
	}
	return "all mod/demod round trips passed", nil
}

func (s *Simulator) checkEdges() (string, error) {
	res, err := s.UncodedTrial(modem.BPSK, 0, 0, 1)
	if err != nil {
		return "", err
	}
	if res.BER != 0 || res.Bits != 0 {
		return "", fmt.Errorf("zero bit trial returned BER %v over %d bits", res.BER, res.Bits)
	}
	if _, err := s.UncodedTrial(modem.Modulation(3), 0, 100, 1); !errors.Is(err, fecerr.ErrInvalidArgument) {
		return "", fmt.Errorf("invalid order accepted: %v", err)
	}
	return "edge cases passed", nil
}

const (
	accuracySNR       = 7.0
	accuracyRuns      = 5
	accuracyMinErrors = 1000.0
	accuracyMaxBits   = 5_000_000
	accuracyTolerance = 0.15
)

func (s *Simulator) checkAccuracy() (string, error) {
	theory := Theoretical(modem.BPSK, accuracySNR)

	numBits := 200_000
	for theory*float64(numBits)*accuracyRuns < accuracyMinErrors && numBits < accuracyMaxBits {
		numBits *= 2
	}

	var errs, bits int
	for r := 0; r < accuracyRuns; r++ {
		res, err := s.UncodedTrial(modem.BPSK, accuracySNR, numBits, uint64(1+r*997))
		if err != nil {
			return "", err
		}
		errs += res.Errors
		bits += res.Bits
	}
	sim := float64(errs) / float64(bits)

	if math.Abs(sim-theory)/theory > accuracyTolerance {
		return "", fmt.Errorf("BPSK at %.1f dB: simulated %.3e, theory %.3e", accuracySNR, sim, theory)
	}
	return fmt.Sprintf("BPSK at %.1f dB: simulated %.3e, theory %.3e", accuracySNR, sim, theory), nil
}

func checkSNREstimation() (string, error) {
	const (
		runs    = 20
		pilots  = 100
		trueSNR = 10.0
	)
	ests := make([]float64, runs)
	for r := range ests {
		est, err := channel.EstimateSNR(trueSNR, pilots, uint64(1+r*997))
		if err != nil {
			return "", err
		}
		ests[r] = est
	}
	mean, spread := estimateSpread(ests, trueSNR)
	if math.Abs(mean-trueSNR) > 0.5 || spread > 1 {
		return "", fmt.Errorf("estimate mean %.2f dB spread %.2f dB (true %.1f)", mean, spread, trueSNR)
	}
	return fmt.Sprintf("estimate mean %.2f dB spread %.2f dB", mean, spread), nil
}

// estimateSpread returns the mean of ests and their RMS error about truth
func estimateSpread(ests []float64, truth float64) (mean, rms float64) {
	if len(ests) == 0 {
		return 0, 0
	}
	dev := make([]float64, len(ests))
	copy(dev, ests)
	floats.AddConst(-truth, dev)
	return stat.Mean(ests, nil), floats.Norm(dev, 2) / math.Sqrt(float64(len(dev)))
}
