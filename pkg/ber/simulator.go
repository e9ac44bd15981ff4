package ber

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dbehnke/fecsim/pkg/channel"
	"github.com/dbehnke/fecsim/pkg/conv"
	"github.com/dbehnke/fecsim/pkg/fecerr"
	"github.com/dbehnke/fecsim/pkg/logger"
	"github.com/dbehnke/fecsim/pkg/modem"
	"github.com/dbehnke/fecsim/pkg/trellis"
)

const (
	// CodeRate of the convolutional code
	CodeRate = 0.5
	// MaxBits bounds the payload of a single trial
	MaxBits = 100_000_000
)

// TrialResult is the outcome of one Monte-Carlo trial
type TrialResult struct {
	Modulation modem.Modulation
	EbN0dB     float64
	Coded      bool
	Bits       int // information bits compared
	Errors     int
	BER        float64
	Duration   time.Duration
}

// Simulator runs single coded or uncoded link trials. It holds no mutable
// state and may be shared between goroutines.
type Simulator struct {
	enc    *conv.Encoder
	dec    *conv.Decoder
	logger *logger.Logger
}

// NewSimulator creates a simulator over a shared trellis
func NewSimulator(t *trellis.Trellis, log *logger.Logger) *Simulator {
	return &Simulator{
		enc:    conv.NewEncoder(t),
		dec:    conv.NewDecoder(t),
		logger: log.WithComponent("ber"),
	}
}

func checkArgs(m modem.Modulation, ebn0dB float64, numBits int) error {
	if !m.Valid() {
		return fmt.Errorf("%w: unsupported modulation order %d", fecerr.ErrInvalidArgument, int(m))
	}
	if err := channel.CheckSNR(ebn0dB); err != nil {
		return err
	}
	if numBits > MaxBits {
		return fmt.Errorf("%w: %d bits exceeds the limit of %d", fecerr.ErrInvalidArgument, numBits, MaxBits)
	}
	return nil
}

// CodedTrial encodes numInfoBits random bits, sends them over AWGN at
// Es/N0 = R*k*Eb/N0 and decodes them from soft LLRs.
// For 16-QAM an odd payload is reduced by one bit so the coded block fills
// whole symbols.
func (s *Simulator) CodedTrial(m modem.Modulation, ebn0dB float64, numInfoBits int, seed uint64) (TrialResult, error) {
	start := time.Now()
	res := TrialResult{Modulation: m, EbN0dB: ebn0dB, Coded: true}

	if err := checkArgs(m, ebn0dB, numInfoBits); err != nil {
		return res, err
	}
	if m == modem.QAM16 && numInfoBits%2 != 0 {
		numInfoBits--
	}
	if numInfoBits <= 0 {
		return res, fmt.Errorf("%w: coded trial needs at least one information bit", fecerr.ErrInvalidArgument)
	}

	rng := rand.New(channel.NewSource(seed))
	info := channel.RandomBitsFrom(numInfoBits, rng)

	coded, err := s.enc.Encode(info)
	if err != nil {
		return res, fmt.Errorf("encode: %w", err)
	}

	symbols, err := modem.Modulate(coded, m)
	if err != nil {
		return res, fmt.Errorf("modulate: %w", err)
	}

	ch, err := channel.NewAWGNFromSource(channel.EsN0(ebn0dB, CodeRate, m.BitsPerSymbol()), rng)
	if err != nil {
		return res, err
	}
	rx := ch.Apply(symbols)

	llrs, err := modem.DemodulateLLR(rx, m, ch.NoiseVariance())
	if err != nil {
		return res, fmt.Errorf("demodulate: %w", err)
	}

	decoded, err := s.dec.Decode(llrs)
	if err != nil {
		return res, fmt.Errorf("decode: %w", err)
	}

	res.Bits = numInfoBits
	res.Errors = countErrors(info, decoded)
	res.BER = float64(res.Errors) / float64(res.Bits)
	res.Duration = time.Since(start)

	s.logger.Debug("Coded trial complete",
		logger.String("modulation", m.String()),
		logger.Float64("ebn0_db", ebn0dB),
		logger.Float64("sigma", ch.Sigma()),
		logger.Int("bits", res.Bits),
		logger.Int("errors", res.Errors))

	return res, nil
}

// UncodedTrial sends numBits random bits without coding and makes hard
// decisions. numBits is truncated to whole symbols; a payload that
// truncates to nothing yields a zero BER result.
func (s *Simulator) UncodedTrial(m modem.Modulation, ebn0dB float64, numBits int, seed uint64) (TrialResult, error) {
	start := time.Now()
	res := TrialResult{Modulation: m, EbN0dB: ebn0dB}

	if err := checkArgs(m, ebn0dB, numBits); err != nil {
		return res, err
	}
	k := m.BitsPerSymbol()
	numBits -= numBits % k
	if numBits <= 0 {
		return res, nil
	}

	rng := rand.New(channel.NewSource(seed))
	bits := channel.RandomBitsFrom(numBits, rng)

	symbols, err := modem.Modulate(bits, m)
	if err != nil {
		return res, fmt.Errorf("modulate: %w", err)
	}

	ch, err := channel.NewAWGNFromSource(channel.EsN0(ebn0dB, 1, k), rng)
	if err != nil {
		return res, err
	}

	rxBits, err := modem.Demodulate(ch.Apply(symbols), m)
	if err != nil {
		return res, fmt.Errorf("demodulate: %w", err)
	}

	res.Bits = numBits
	res.Errors = countErrors(bits, rxBits)
	res.BER = float64(res.Errors) / float64(res.Bits)
	res.Duration = time.Since(start)

	return res, nil
}

func countErrors(want, got []uint8) int {
	n := len(want)
	if len(got) < n {
		n = len(got)
	}
	errs := 0
	for i := 0; i < n; i++ {
		if want[i] != got[i] {
			errs++
		}
	}
	return errs
}
