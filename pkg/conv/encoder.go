package conv

// Rate 1/2, K=7 convolutional encoder with zero flush termination.
// Every information block is followed by TailBits zero inputs so the
// encoder always finishes in state 0.

import (
	"fmt"

	"github.com/dbehnke/fecsim/pkg/fecerr"
	"github.com/dbehnke/fecsim/pkg/trellis"
)

// Encoder walks the trellis forward over an information block
type Encoder struct {
	t *trellis.Trellis
}

// NewEncoder creates an encoder over a prebuilt trellis
func NewEncoder(t *trellis.Trellis) *Encoder {
	return &Encoder{t: t}
}

// EncodedLen returns the coded length for n information bits
func EncodedLen(n int) int {
	return trellis.OutputsPerInput * (n + trellis.TailBits)
}

// Encode returns 2*(len(info)+6) coded bits
func (e *Encoder) Encode(info []uint8) ([]uint8, error) {
	if e == nil || e.t == nil {
		return nil, fmt.Errorf("%w: encoder has no trellis", fecerr.ErrInvalidArgument)
	}
	if len(info) == 0 {
		return nil, fmt.Errorf("%w: empty information sequence", fecerr.ErrInvalidArgument)
	}
	for i, b := range info {
		if b > 1 {
			return nil, fmt.Errorf("%w: information bit %d has value %d", fecerr.ErrInvalidArgument, i, b)
		}
	}

	out := make([]uint8, 0, EncodedLen(len(info)))
	state := uint8(0)

	emit := func(input uint8) {
		next, symbol := e.t.Step(state, input)
		out = append(out, (symbol>>1)&1, symbol&1)
		state = next
	}

	for _, b := range info {
		emit(b)
	}
	for i := 0; i < trellis.TailBits; i++ {
		emit(0)
	}

	return out, nil
}
