package sweep

import (
	"context"
	"fmt"

	"github.com/dbehnke/fecsim/pkg/channel"
	"github.com/dbehnke/fecsim/pkg/fecerr"
	"github.com/dbehnke/fecsim/pkg/logger"
	"github.com/dbehnke/fecsim/pkg/modem"
)

// Modulation choices made by the adaptive controller
const (
	ChoiceNone  = "NONE"
	ChoiceQPSK  = "QPSK"
	Choice16QAM = "16QAM"
)

// ThresholdSearch bounds a bisection for the minimum Eb/N0 meeting a BER target
type ThresholdSearch struct {
	TargetBER float64
	Bits      int
	Runs      int
	Low       float64
	High      float64
	Tolerance float64
	Seed      uint64
}

func (s ThresholdSearch) validate() error {
	if !(s.TargetBER > 0) || s.TargetBER >= 1 {
		return fmt.Errorf("%w: target BER %v outside (0, 1)", fecerr.ErrInvalidArgument, s.TargetBER)
	}
	if s.Bits <= 0 || s.Runs <= 0 {
		return fmt.Errorf("%w: bits and runs must be positive", fecerr.ErrInvalidArgument)
	}
	if !(s.Tolerance > 0) {
		return fmt.Errorf("%w: tolerance must be positive", fecerr.ErrInvalidArgument)
	}
	if s.High <= s.Low {
		return fmt.Errorf("%w: search interval [%v, %v] is empty", fecerr.ErrInvalidArgument, s.Low, s.High)
	}
	if err := channel.CheckSNR(s.Low); err != nil {
		return err
	}
	return channel.CheckSNR(s.High)
}

// FindMinSNR bisects on uncoded BER until the interval is narrower than the
// tolerance and returns its upper edge, the lowest Eb/N0 known to meet the
// target.
func FindMinSNR(ctx context.Context, sim Trialer, m modem.Modulation, s ThresholdSearch) (float64, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}

	low, high := s.Low, s.High
	for high-low > s.Tolerance {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		mid := 0.5 * (low + high)

		var errs, bits int
		for i := 0; i < s.Runs; i++ {
			res, err := sim.UncodedTrial(m, mid, s.Bits, s.Seed+uint64(i)*SeedStride)
			if err != nil {
				return 0, err
			}
			errs += res.Errors
			bits += res.Bits
		}
		ber := 0.0
		if bits > 0 {
			ber = float64(errs) / float64(bits)
		}

		if ber <= s.TargetBER {
			high = mid
		} else {
			low = mid
		}
	}
	return high, nil
}

// ChooseModulation picks the densest constellation whose threshold the
// estimated SNR reaches.
func ChooseModulation(estSNR, thresholdQPSK, threshold16QAM float64) string {
	switch {
	case estSNR < thresholdQPSK:
		return ChoiceNone
	case estSNR < threshold16QAM:
		return ChoiceQPSK
	default:
		return Choice16QAM
	}
}

// AMCConfig drives a full adaptive modulation study
type AMCConfig struct {
	Search     ThresholdSearch
	Pilots     int
	SampleSNRs []float64
}

// AMCDecision is the controller's choice for one simulated link
type AMCDecision struct {
	TrueSNR      float64 `json:"true_snr_db" yaml:"true_snr_db"`
	EstimatedSNR float64 `json:"estimated_snr_db" yaml:"estimated_snr_db"`
	Choice       string  `json:"choice" yaml:"choice"`
}

// AMCReport holds the derived thresholds and sample decisions
type AMCReport struct {
	TargetBER      float64       `json:"target_ber" yaml:"target_ber"`
	ThresholdQPSK  float64       `json:"threshold_qpsk_db" yaml:"threshold_qpsk_db"`
	Threshold16QAM float64       `json:"threshold_16qam_db" yaml:"threshold_16qam_db"`
	Decisions      []AMCDecision `json:"decisions" yaml:"decisions"`
}

// RunAMC finds the QPSK and 16-QAM thresholds, then estimates the SNR of
// each sample link from pilots and records the chosen modulation.
func (r *Runner) RunAMC(ctx context.Context, cfg AMCConfig) (*AMCReport, error) {
	log := r.logger.WithComponent("amc")

	qpsk, err := FindMinSNR(ctx, r.sim, modem.QPSK, cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("QPSK threshold: %w", err)
	}
	qam, err := FindMinSNR(ctx, r.sim, modem.QAM16, cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("16QAM threshold: %w", err)
	}
	log.Info("Thresholds found",
		logger.Float64("target_ber", cfg.Search.TargetBER),
		logger.Float64("qpsk_db", qpsk),
		logger.Float64("16qam_db", qam))

	report := &AMCReport{
		TargetBER:      cfg.Search.TargetBER,
		ThresholdQPSK:  qpsk,
		Threshold16QAM: qam,
	}

	for i, snr := range cfg.SampleSNRs {
		est, err := channel.EstimateSNR(snr, cfg.Pilots, cfg.Search.Seed+uint64(i)*SeedStride)
		if err != nil {
			return nil, fmt.Errorf("estimate SNR at %.1f dB: %w", snr, err)
		}
		d := AMCDecision{TrueSNR: snr, EstimatedSNR: est, Choice: ChooseModulation(est, qpsk, qam)}
		report.Decisions = append(report.Decisions, d)

		log.Info("Link decision",
			logger.Float64("true_snr_db", d.TrueSNR),
			logger.Float64("estimated_snr_db", d.EstimatedSNR),
			logger.String("choice", d.Choice))
	}

	return report, nil
}
