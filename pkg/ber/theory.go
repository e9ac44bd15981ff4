package ber

import (
	"math"

	"github.com/dbehnke/fecsim/pkg/channel"
	"github.com/dbehnke/fecsim/pkg/modem"
)

// qfunc is the Gaussian tail probability
func qfunc(x float64) float64 {
	return 0.5 * math.Erfc(x/math.Sqrt2)
}

// Theoretical returns the uncoded AWGN bit error rate of m at ebn0dB.
// BPSK and Gray QPSK share Q(sqrt(2 Eb/N0)); Gray 16-QAM uses the nearest
// neighbour approximation 3/8 erfc(sqrt(0.4 Eb/N0)). NaN for unsupported
// orders.
func Theoretical(m modem.Modulation, ebn0dB float64) float64 {
	ebn0 := channel.DBToLinear(ebn0dB)
	switch m {
	case modem.BPSK, modem.QPSK:
		return qfunc(math.Sqrt(2 * ebn0))
	case modem.QAM16:
		return 0.375 * math.Erfc(math.Sqrt(0.4*ebn0))
	}
	return math.NaN()
}
