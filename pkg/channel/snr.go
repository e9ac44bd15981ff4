package channel

import (
	"fmt"
	"math/cmplx"

	"github.com/dbehnke/fecsim/pkg/fecerr"
	"gonum.org/v1/gonum/stat"
)

// EstimateSNR sends numPilots unit pilots (1+0j) through AWGN at the true
// Eb/N0 (one bit per symbol) and returns the data-aided estimate in dB,
// computed as 1/mean(|rx-tx|^2).
func EstimateSNR(trueEbN0dB float64, numPilots int, seed uint64) (float64, error) {
	if err := CheckSNR(trueEbN0dB); err != nil {
		return 0, err
	}
	if numPilots <= 0 || numPilots > MaxPilots {
		return 0, fmt.Errorf("%w: pilot count %d outside (0, %d]", fecerr.ErrInvalidArgument, numPilots, MaxPilots)
	}

	ch, err := NewAWGN(DBToLinear(trueEbN0dB), seed)
	if err != nil {
		return 0, err
	}

	tx := make([]complex128, numPilots)
	for i := range tx {
		tx[i] = 1
	}
	rx := ch.Apply(tx)

	power := make([]float64, numPilots)
	for i := range rx {
		d := cmplx.Abs(rx[i] - tx[i])
		power[i] = d * d
	}
	noiseVar := stat.Mean(power, nil)

	return LinearToDB(1 / noiseVar), nil
}
