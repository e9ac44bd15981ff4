package channel

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/dbehnke/fecsim/pkg/fecerr"
	"gonum.org/v1/gonum/stat/distuv"
)

// Limits accepted by the simulation entry points
const (
	MinSNRdB  = -50.0
	MaxSNRdB  = 50.0
	MaxPilots = 1_000_000
)

// DBToLinear converts decibels to a power ratio
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/10)
}

// LinearToDB converts a power ratio to decibels
func LinearToDB(lin float64) float64 {
	return 10 * math.Log10(lin)
}

// EsN0 returns the linear symbol energy to noise density ratio for a link
// running at ebn0dB with code rate `rate` and k bits per symbol.
func EsN0(ebn0dB, rate float64, k int) float64 {
	return rate * float64(k) * DBToLinear(ebn0dB)
}

// CheckSNR validates an Eb/N0 value in dB
func CheckSNR(db float64) error {
	if math.IsNaN(db) || db < MinSNRdB || db > MaxSNRdB {
		return fmt.Errorf("%w: SNR %v dB outside [%v, %v]", fecerr.ErrInvalidArgument, db, MinSNRdB, MaxSNRdB)
	}
	return nil
}

// NewSource returns the deterministic generator used for a trial seed
func NewSource(seed uint64) *rand.PCG {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// AWGN adds complex white Gaussian noise for unit energy symbols
type AWGN struct {
	sigma float64
	dist  distuv.Normal
}

// NewAWGN creates a channel at the given linear Es/N0. N0 = 1/EsN0 and each
// real dimension receives noise with variance N0/2.
func NewAWGN(esn0Lin float64, seed uint64) (*AWGN, error) {
	return NewAWGNFromSource(esn0Lin, NewSource(seed))
}

// NewAWGNFromSource is NewAWGN over a caller supplied random source, so one
// generator can drive both the payload and the noise of a trial.
func NewAWGNFromSource(esn0Lin float64, src rand.Source) (*AWGN, error) {
	if !(esn0Lin > 0) || math.IsInf(esn0Lin, 1) {
		return nil, fmt.Errorf("%w: Es/N0 %v must be positive and finite", fecerr.ErrInvalidArgument, esn0Lin)
	}
	n0 := 1 / esn0Lin
	sigma := math.Sqrt(n0 / 2)
	return &AWGN{
		sigma: sigma,
		dist:  distuv.Normal{Mu: 0, Sigma: sigma, Src: src},
	}, nil
}

// NoiseVariance returns sigma^2 per real dimension
func (a *AWGN) NoiseVariance() float64 {
	return a.sigma * a.sigma
}

// Sigma returns the per dimension standard deviation
func (a *AWGN) Sigma() float64 {
	return a.sigma
}

// Apply returns a noisy copy of symbols
func (a *AWGN) Apply(symbols []complex128) []complex128 {
	out := make([]complex128, len(symbols))
	for i, s := range symbols {
		out[i] = s + complex(a.dist.Rand(), a.dist.Rand())
	}
	return out
}

// RandomBits returns n uniformly distributed bits drawn from seed
func RandomBits(n int, seed uint64) []uint8 {
	return RandomBitsFrom(n, rand.New(NewSource(seed)))
}

// RandomBitsFrom draws n bits from an existing generator
func RandomBitsFrom(n int, rng *rand.Rand) []uint8 {
	if n <= 0 {
		return nil
	}
	bits := make([]uint8, n)
	var word uint64
	for i := range bits {
		if i%64 == 0 {
			word = rng.Uint64()
		}
		bits[i] = uint8(word & 1)
		word >>= 1
	}
	return bits
}
