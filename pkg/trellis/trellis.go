package trellis

// Trellis model for the rate 1/2, constraint length K=7 convolutional code
// with generator polynomials 133 and 171 (octal).
//
// The shift register holds the newest input bit in its most significant
// position: reg = input<<(K-1) | state. The next state drops the oldest bit.

import "math/bits"

const (
	ConstraintLength = 7
	NumStates        = 1 << (ConstraintLength - 1)
	TailBits         = ConstraintLength - 1
	OutputsPerInput  = 2

	G1 uint8 = 0o133
	G2 uint8 = 0o171
)

// Predecessor is one (previous state, input bit) pair that leads into a state
type Predecessor struct {
	State uint8
	Input uint8
}

// Entry holds the forward and reverse edges of a single state
type Entry struct {
	Next    [2]uint8 // next state for input 0 and 1
	Output  [2]uint8 // two-bit output symbol (G1 parity << 1 | G2 parity)
	Prev    [2]Predecessor
	NumPrev int
}

// Trellis is the precomputed state machine. It is immutable once returned by
// New and may be shared by any number of encoders and decoders.
type Trellis struct {
	entries [NumStates]Entry
}

// New builds the forward and reverse transition tables
func New() *Trellis {
	t := &Trellis{}

	for state := 0; state < NumStates; state++ {
		for input := 0; input < 2; input++ {
			reg := uint8(input<<(ConstraintLength-1) | state)
			out1 := parity(reg & G1)
			out2 := parity(reg & G2)

			t.entries[state].Next[input] = reg >> 1
			t.entries[state].Output[input] = out1<<1 | out2
		}
	}

	// Reverse edges: first two (state, input) pairs reaching each state
	for state := 0; state < NumStates; state++ {
		for input := 0; input < 2; input++ {
			next := t.entries[state].Next[input]
			e := &t.entries[next]
			if e.NumPrev >= 2 {
				continue
			}
			e.Prev[e.NumPrev] = Predecessor{State: uint8(state), Input: uint8(input)}
			e.NumPrev++
		}
	}

	return t
}

// Step returns the next state and output symbol for an input bit
func (t *Trellis) Step(state, input uint8) (next, output uint8) {
	e := &t.entries[state&(NumStates-1)]
	return e.Next[input&1], e.Output[input&1]
}

// Entry returns a copy of the table entry for a state
func (t *Trellis) Entry(state uint8) Entry {
	return t.entries[state&(NumStates-1)]
}

// Predecessors returns the recorded incoming edges of a state
func (t *Trellis) Predecessors(state uint8) []Predecessor {
	e := t.entries[state&(NumStates-1)]
	out := make([]Predecessor, e.NumPrev)
	copy(out, e.Prev[:e.NumPrev])
	return out
}

func parity(v uint8) uint8 {
	return uint8(bits.OnesCount8(v) & 1)
}
