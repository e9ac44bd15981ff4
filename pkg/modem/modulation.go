package modem

import (
	"fmt"
	"math"

	"github.com/dbehnke/fecsim/pkg/fecerr"
)

// Modulation identifies a constellation by its order
type Modulation int

const (
	BPSK  Modulation = 2
	QPSK  Modulation = 4
	QAM16 Modulation = 16
)

// Scale factors normalizing average symbol energy to 1
var (
	scaleQPSK  = 1 / math.Sqrt2
	scaleQAM16 = 1 / math.Sqrt(10)
)

// qamLevels is indexed by (msb<<1)|lsb. Stored in index order, not amplitude
// order, so neighbouring amplitudes differ in exactly one bit.
var qamLevels = [4]float64{3, 1, -3, -1}

// Modulations lists every supported constellation in ascending order
var Modulations = []Modulation{BPSK, QPSK, QAM16}

// Parse converts a modulation order into a Modulation
func Parse(order int) (Modulation, error) {
	m := Modulation(order)
	if !m.Valid() {
		return 0, fmt.Errorf("%w: unsupported modulation order %d", fecerr.ErrInvalidArgument, order)
	}
	return m, nil
}

// ParseName accepts the names printed by String as well as the bare order
func ParseName(name string) (Modulation, error) {
	switch name {
	case "BPSK", "bpsk", "2":
		return BPSK, nil
	case "QPSK", "qpsk", "4":
		return QPSK, nil
	case "16QAM", "16qam", "QAM16", "qam16", "16":
		return QAM16, nil
	}
	return 0, fmt.Errorf("%w: unknown modulation %q", fecerr.ErrInvalidArgument, name)
}

// Valid reports whether m is a supported order
func (m Modulation) Valid() bool {
	switch m {
	case BPSK, QPSK, QAM16:
		return true
	}
	return false
}

// BitsPerSymbol returns log2 of the order, or 0 for unsupported orders
func (m Modulation) BitsPerSymbol() int {
	switch m {
	case BPSK:
		return 1
	case QPSK:
		return 2
	case QAM16:
		return 4
	}
	return 0
}

func (m Modulation) String() string {
	switch m {
	case BPSK:
		return "BPSK"
	case QPSK:
		return "QPSK"
	case QAM16:
		return "16QAM"
	}
	return fmt.Sprintf("Modulation(%d)", int(m))
}

func qamLevel(msb, lsb uint8) float64 {
	return qamLevels[(msb&1)<<1|lsb&1]
}

// qamBits inverts qamLevel with decision thresholds at 0 and +-2
func qamBits(x float64) (msb, lsb uint8) {
	switch {
	case x > 2:
		return 0, 0
	case x > 0:
		return 0, 1
	case x > -2:
		return 1, 1
	default:
		return 1, 0
	}
}

func antipodal(b uint8) float64 {
	if b == 1 {
		return -1
	}
	return 1
}

func checkBits(bits []uint8, m Modulation) error {
	if !m.Valid() {
		return fmt.Errorf("%w: unsupported modulation order %d", fecerr.ErrInvalidArgument, int(m))
	}
	k := m.BitsPerSymbol()
	if len(bits) == 0 || len(bits)%k != 0 {
		return fmt.Errorf("%w: %d bits is not a positive multiple of %d for %s",
			fecerr.ErrInvalidArgument, len(bits), k, m)
	}
	for i, b := range bits {
		if b > 1 {
			return fmt.Errorf("%w: bit %d has value %d", fecerr.ErrInvalidArgument, i, b)
		}
	}
	return nil
}

// Modulate maps bits onto unit average energy constellation points.
// BPSK and each QPSK axis send 0 as +1 and 1 as -1. 16-QAM takes
// b0..b3 as I=(b0,b2) and Q=(b1,b3) over Gray coded 4-PAM levels.
func Modulate(bits []uint8, m Modulation) ([]complex128, error) {
	if err := checkBits(bits, m); err != nil {
		return nil, err
	}

	k := m.BitsPerSymbol()
	symbols := make([]complex128, len(bits)/k)

	switch m {
	case BPSK:
		for i, b := range bits {
			symbols[i] = complex(antipodal(b), 0)
		}
	case QPSK:
		for i := range symbols {
			re := antipodal(bits[2*i]) * scaleQPSK
			im := antipodal(bits[2*i+1]) * scaleQPSK
			symbols[i] = complex(re, im)
		}
	case QAM16:
		for i := range symbols {
			b := bits[4*i : 4*i+4]
			re := qamLevel(b[0], b[2]) * scaleQAM16
			im := qamLevel(b[1], b[3]) * scaleQAM16
			symbols[i] = complex(re, im)
		}
	}

	return symbols, nil
}

// Demodulate makes hard bit decisions on received symbols
func Demodulate(symbols []complex128, m Modulation) ([]uint8, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: unsupported modulation order %d", fecerr.ErrInvalidArgument, int(m))
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols to demodulate", fecerr.ErrInvalidArgument)
	}

	bits := make([]uint8, len(symbols)*m.BitsPerSymbol())

	switch m {
	case BPSK:
		for i, s := range symbols {
			bits[i] = negative(real(s))
		}
	case QPSK:
		for i, s := range symbols {
			bits[2*i] = negative(real(s))
			bits[2*i+1] = negative(imag(s))
		}
	case QAM16:
		for i, s := range symbols {
			iMSB, iLSB := qamBits(real(s) / scaleQAM16)
			qMSB, qLSB := qamBits(imag(s) / scaleQAM16)
			bits[4*i] = iMSB
			bits[4*i+1] = qMSB
			bits[4*i+2] = iLSB
			bits[4*i+3] = qLSB
		}
	}

	return bits, nil
}

func negative(v float64) uint8 {
	if v < 0 {
		return 1
	}
	return 0
}
