package modem

import (
	"fmt"
	"math"

	"github.com/dbehnke/fecsim/pkg/fecerr"
	"gonum.org/v1/gonum/floats"
)

// LLRPolarity converts the textbook log P(0)/P(1) into the decoder
// convention, where a positive LLR favors a coded 1.
const LLRPolarity = -1.0

// minNoiseVar is the smallest normal float64. Below it the 16-QAM level
// metrics overflow to -Inf and the partitions cancel to NaN.
const minNoiseVar = 0x1p-1022

// DemodulateLLR computes one soft value per coded bit. noiseVar is the
// noise variance per real dimension (sigma^2), i.e. N0/2.
//
// Output order follows Modulate: for 16-QAM each symbol yields I-MSB, Q-MSB,
// I-LSB, Q-LSB.
func DemodulateLLR(symbols []complex128, m Modulation, noiseVar float64) ([]float64, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: unsupported modulation order %d", fecerr.ErrInvalidArgument, int(m))
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols to demodulate", fecerr.ErrInvalidArgument)
	}
	if !(noiseVar >= minNoiseVar) || math.IsInf(noiseVar, 1) {
		return nil, fmt.Errorf("%w: noise variance %v must be positive, normal and finite", fecerr.ErrInvalidArgument, noiseVar)
	}

	llrs := make([]float64, len(symbols)*m.BitsPerSymbol())

	switch m {
	case BPSK:
		for i, s := range symbols {
			llrs[i] = antipodalLLR(real(s), 1, noiseVar)
		}
	case QPSK:
		for i, s := range symbols {
			llrs[2*i] = antipodalLLR(real(s), scaleQPSK, noiseVar)
			llrs[2*i+1] = antipodalLLR(imag(s), scaleQPSK, noiseVar)
		}
	case QAM16:
		// Work on the integer level grid
		varX := noiseVar / (scaleQAM16 * scaleQAM16)
		for i, s := range symbols {
			iMSB, iLSB := pamLLR(real(s)/scaleQAM16, varX)
			qMSB, qLSB := pamLLR(imag(s)/scaleQAM16, varX)
			llrs[4*i] = iMSB
			llrs[4*i+1] = qMSB
			llrs[4*i+2] = iLSB
			llrs[4*i+3] = qLSB
		}
	}

	return llrs, nil
}

// antipodalLLR is 2*a*y/sigma^2 for a dimension carrying +-a
func antipodalLLR(y, amplitude, noiseVar float64) float64 {
	return LLRPolarity * 2 * amplitude * y / noiseVar
}

// pamLLR returns the exact MSB and LSB LLRs of one Gray coded 4-PAM axis
func pamLLR(x, varX float64) (msb, lsb float64) {
	var metric [4]float64
	for idx, level := range qamLevels {
		d := x - level
		metric[idx] = -(d * d) / (2 * varX)
	}

	// index = (msb<<1)|lsb
	msb0, msb1 := logSumExp2(metric[0], metric[1]), logSumExp2(metric[2], metric[3])
	lsb0, lsb1 := logSumExp2(metric[0], metric[2]), logSumExp2(metric[1], metric[3])

	return LLRPolarity * (msb0 - msb1), LLRPolarity * (lsb0 - lsb1)
}

func logSumExp2(a, b float64) float64 {
	pair := [2]float64{a, b}
	return floats.LogSumExp(pair[:])
}
