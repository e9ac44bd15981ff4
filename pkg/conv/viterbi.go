package conv

// Soft-decision Viterbi decoder for the K=7 rate 1/2 code.
//
// LLR polarity: a positive value favors a coded 1. The branch metric of an
// edge is the correlation sum(+LLR for output 1, -LLR for output 0) and the
// decoder keeps the path with the largest accumulated metric.

import (
	"fmt"
	"math"

	"github.com/dbehnke/fecsim/pkg/fecerr"
	"github.com/dbehnke/fecsim/pkg/trellis"
)

// unreachable marks states that no path has entered yet
var unreachable = math.Inf(-1)

// Decoder runs the forward pass and traceback over one terminated block
type Decoder struct {
	t *trellis.Trellis
}

// Result is a decoded block with the final metric of the zero state
type Result struct {
	Bits   []uint8
	Metric float64
}

// NewDecoder creates a decoder over a prebuilt trellis
func NewDecoder(t *trellis.Trellis) *Decoder {
	return &Decoder{t: t}
}

// DecodedLen returns the information length carried by n coded LLRs,
// or a non-positive value when n is too short.
func DecodedLen(n int) int {
	return n/trellis.OutputsPerInput - trellis.TailBits
}

// Decode returns len(llrs)/2 - 6 information bits
func (d *Decoder) Decode(llrs []float64) ([]uint8, error) {
	res, err := d.DecodeWithMetric(llrs)
	if err != nil {
		return nil, err
	}
	return res.Bits, nil
}

// DecodeWithMetric decodes and also reports the survivor path metric
func (d *Decoder) DecodeWithMetric(llrs []float64) (Result, error) {
	if d == nil || d.t == nil {
		return Result{}, fmt.Errorf("%w: decoder has no trellis", fecerr.ErrInvalidArgument)
	}
	if len(llrs)%trellis.OutputsPerInput != 0 {
		return Result{}, fmt.Errorf("%w: received length %d is not a multiple of %d",
			fecerr.ErrInvalidArgument, len(llrs), trellis.OutputsPerInput)
	}
	infoLen := DecodedLen(len(llrs))
	if infoLen <= 0 {
		return Result{}, fmt.Errorf("%w: received length %d leaves no information bits after %d tail stages",
			fecerr.ErrInvalidArgument, len(llrs), trellis.TailBits)
	}

	stages := len(llrs) / trellis.OutputsPerInput

	// (stages+1) x NumStates arenas, row = stage
	metrics := make([]float64, (stages+1)*trellis.NumStates)
	history := make([]uint8, (stages+1)*trellis.NumStates)
	for i := range metrics {
		metrics[i] = unreachable
	}
	metrics[0] = 0

	for stage := 0; stage < stages; stage++ {
		llr0 := llrs[2*stage]
		llr1 := llrs[2*stage+1]
		cur := metrics[stage*trellis.NumStates : (stage+1)*trellis.NumStates]
		nxt := metrics[(stage+1)*trellis.NumStates : (stage+2)*trellis.NumStates]
		hist := history[(stage+1)*trellis.NumStates : (stage+2)*trellis.NumStates]

		for state := 0; state < trellis.NumStates; state++ {
			if math.IsInf(cur[state], -1) {
				continue
			}
			for input := uint8(0); input < 2; input++ {
				next, symbol := d.t.Step(uint8(state), input)
				candidate := cur[state] + branchMetric(symbol, llr0, llr1)

				// Strict comparison: the first candidate seen wins a tie
				if candidate > nxt[next] {
					nxt[next] = candidate
					hist[next] = uint8(state)<<1 | input
				}
			}
		}
	}

	final := metrics[stages*trellis.NumStates]
	if math.IsInf(final, -1) || math.IsNaN(final) {
		return Result{}, fmt.Errorf("%w: zero state unreachable after %d stages", fecerr.ErrDegenerate, stages)
	}

	bits := make([]uint8, infoLen)
	state := uint8(0)
	for stage := stages; stage > 0; stage-- {
		h := history[stage*trellis.NumStates+int(state)]
		if stage <= infoLen {
			bits[stage-1] = h & 1
		}
		state = h >> 1
	}

	return Result{Bits: bits, Metric: final}, nil
}

func branchMetric(symbol uint8, llr0, llr1 float64) float64 {
	var m float64
	if symbol&2 != 0 {
		m += llr0
	} else {
		m -= llr0
	}
	if symbol&1 != 0 {
		m += llr1
	} else {
		m -= llr1
	}
	return m
}
