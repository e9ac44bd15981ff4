package modem

import (
	"errors"
	"math"
	"math/cmplx"
	"reflect"
	"testing"

	"github.com/dbehnke/fecsim/pkg/fecerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	for _, order := range []int{2, 4, 16} {
		m, err := Parse(order)
		if err != nil {
			t.Fatalf("Parse(%d) failed: %v", order, err)
		}
		if int(m) != order {
			t.Errorf("Parse(%d) = %d", order, m)
		}
	}
	for _, order := range []int{0, 1, 3, 8, 64} {
		if _, err := Parse(order); !errors.Is(err, fecerr.ErrInvalidArgument) {
			t.Errorf("Parse(%d) error = %v, want ErrInvalidArgument", order, err)
		}
	}
}

func TestParseName(t *testing.T) {
	tests := map[string]Modulation{
		"BPSK": BPSK, "qpsk": QPSK, "16QAM": QAM16, "qam16": QAM16, "4": QPSK,
	}
	for name, want := range tests {
		got, err := ParseName(name)
		if err != nil || got != want {
			t.Errorf("ParseName(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseName("8PSK"); err == nil {
		t.Error("expected error for unknown modulation name")
	}
}

func TestBitsPerSymbolAndString(t *testing.T) {
	tests := []struct {
		m    Modulation
		k    int
		name string
	}{
		{BPSK, 1, "BPSK"},
		{QPSK, 2, "QPSK"},
		{QAM16, 4, "16QAM"},
		{Modulation(8), 0, "Modulation(8)"},
	}
	for _, tt := range tests {
		if got := tt.m.BitsPerSymbol(); got != tt.k {
			t.Errorf("%v.BitsPerSymbol() = %d, want %d", tt.m, got, tt.k)
		}
		if got := tt.m.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
	}
}

func TestModulateConstellations(t *testing.T) {
	s := 1 / math.Sqrt(10)
	q := 1 / math.Sqrt2

	tests := []struct {
		name string
		bits []uint8
		m    Modulation
		want []complex128
	}{
		{"bpsk", []uint8{0, 1}, BPSK, []complex128{1, -1}},
		{"qpsk", []uint8{0, 1, 1, 0}, QPSK, []complex128{complex(q, -q), complex(-q, q)}},
		{"16qam 0000", []uint8{0, 0, 0, 0}, QAM16, []complex128{complex(3*s, 3*s)}},
		// I=(b0,b2)=(1,0) -> -3, Q=(b1,b3)=(1,1) -> -1
		{"16qam 1110", []uint8{1, 1, 1, 0}, QAM16, []complex128{complex(-1*s, -3*s)}},
		{"16qam 0011", []uint8{0, 0, 1, 1}, QAM16, []complex128{complex(-3*s, -3*s)}},
		{"16qam 0101", []uint8{0, 1, 0, 1}, QAM16, []complex128{complex(3*s, -1*s)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Modulate(tt.bits, tt.m)
			if err != nil {
				t.Fatalf("Modulate failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d symbols, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if cmplx.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("symbol %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestModulateUnitEnergy(t *testing.T) {
	// All 16 points of 16-QAM average to unit energy
	var bits []uint8
	for v := 0; v < 16; v++ {
		bits = append(bits, uint8(v>>3&1), uint8(v>>2&1), uint8(v>>1&1), uint8(v&1))
	}
	syms, err := Modulate(bits, QAM16)
	if err != nil {
		t.Fatal(err)
	}
	var energy float64
	for _, s := range syms {
		energy += real(s)*real(s) + imag(s)*imag(s)
	}
	if got := energy / float64(len(syms)); math.Abs(got-1) > 1e-12 {
		t.Errorf("average 16-QAM energy %v, want 1", got)
	}
}

func TestModulateRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		bits []uint8
		m    Modulation
	}{
		{"empty", nil, BPSK},
		{"partial qpsk symbol", []uint8{1, 0, 1}, QPSK},
		{"partial 16qam symbol", []uint8{1, 0, 1, 1, 0, 0}, QAM16},
		{"non-binary", []uint8{2}, BPSK},
		{"bad order", []uint8{0, 1, 0}, Modulation(8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Modulate(tt.bits, tt.m); !errors.Is(err, fecerr.ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestHardDemodulateThresholds(t *testing.T) {
	s := 1 / math.Sqrt(10)
	tests := []struct {
		x        float64
		msb, lsb uint8
	}{
		{3.4, 0, 0},
		{2.1, 0, 0},
		{1.9, 0, 1},
		{0.1, 0, 1},
		{-0.1, 1, 1},
		{-1.9, 1, 1},
		{-2.1, 1, 0},
		{-5, 1, 0},
	}
	for _, tt := range tests {
		bits, err := Demodulate([]complex128{complex(tt.x*s, -tt.x*s)}, QAM16)
		if err != nil {
			t.Fatal(err)
		}
		if bits[0] != tt.msb || bits[2] != tt.lsb {
			t.Errorf("I=%v: got (%d,%d), want (%d,%d)", tt.x, bits[0], bits[2], tt.msb, tt.lsb)
		}
	}
}

func TestDemodulateRejectsBadInput(t *testing.T) {
	if _, err := Demodulate(nil, QPSK); !errors.Is(err, fecerr.ErrInvalidArgument) {
		t.Errorf("empty input error = %v", err)
	}
	if _, err := Demodulate([]complex128{1}, Modulation(3)); !errors.Is(err, fecerr.ErrInvalidArgument) {
		t.Errorf("bad order error = %v", err)
	}
}

func TestLLRAntipodal(t *testing.T) {
	// y = +a favors bit 0, so the LLR is negative: -2*a*a/sigma^2
	llrs, err := DemodulateLLR([]complex128{1, -1}, BPSK, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(llrs, []float64{-4, 4}) {
		t.Errorf("BPSK LLRs = %v, want [-4 4]", llrs)
	}

	q := 1 / math.Sqrt2
	llrs, err = DemodulateLLR([]complex128{complex(q, -q)}, QPSK, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(llrs) != 2 || math.Abs(llrs[0]+2) > 1e-12 || math.Abs(llrs[1]-2) > 1e-12 {
		t.Errorf("QPSK LLRs = %v, want [-2 2]", llrs)
	}
}

func TestLLR16QAMKnownLevels(t *testing.T) {
	s := 1 / math.Sqrt(10)
	// Grid-domain variance 0.01, so 2*sigma_x^2 = 0.02
	noiseVar := 0.01 * s * s

	// I at +3 (bits 00), Q at -1 (bits 11)
	llrs, err := DemodulateLLR([]complex128{complex(3*s, -1*s)}, QAM16, noiseVar)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{-800, 200, -200, 200}
	for i := range want {
		if math.Abs(llrs[i]-want[i]) > 1e-6 {
			t.Errorf("LLR[%d] = %v, want %v", i, llrs[i], want[i])
		}
	}
}

func TestLLR16QAMSigns(t *testing.T) {
	s := 1 / math.Sqrt(10)
	for idx, level := range qamLevels {
		msb, lsb := uint8(idx>>1), uint8(idx&1)
		llrs, err := DemodulateLLR([]complex128{complex(level*s, level*s)}, QAM16, 0.05)
		if err != nil {
			t.Fatal(err)
		}
		for _, pair := range [][2]int{{0, int(msb)}, {1, int(msb)}, {2, int(lsb)}, {3, int(lsb)}} {
			llr := llrs[pair[0]]
			if (pair[1] == 1) != (llr > 0) {
				t.Errorf("level %v: LLR[%d] = %v disagrees with bit %d", level, pair[0], llr, pair[1])
			}
		}
	}
}

func TestLLR16QAMSymmetry(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Float64Range(-5, 5).Draw(t, "x")
		v := rapid.Float64Range(0.05, 4).Draw(t, "variance")

		pos, err := DemodulateLLR([]complex128{complex(x, 0)}, QAM16, v)
		require.NoError(t, err)
		neg, err := DemodulateLLR([]complex128{complex(-x, 0)}, QAM16, v)
		require.NoError(t, err)

		// MSB is odd in the observation, LSB is even
		assert.InDelta(t, pos[0], -neg[0], 1e-9)
		assert.InDelta(t, pos[2], neg[2], 1e-9)
	})
}

func TestLLRRejectsBadVariance(t *testing.T) {
	for _, v := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := DemodulateLLR([]complex128{1}, BPSK, v); !errors.Is(err, fecerr.ErrInvalidArgument) {
			t.Errorf("noiseVar %v: error = %v, want ErrInvalidArgument", v, err)
		}
	}
	if _, err := DemodulateLLR(nil, BPSK, 1); !errors.Is(err, fecerr.ErrInvalidArgument) {
		t.Errorf("empty input error = %v", err)
	}
	if _, err := DemodulateLLR([]complex128{1}, Modulation(32), 1); !errors.Is(err, fecerr.ErrInvalidArgument) {
		t.Errorf("bad order error = %v", err)
	}
}

func TestPAMLLRDoesNotAllocate(t *testing.T) {
	allocs := testing.AllocsPerRun(100, func() {
		_, _ = pamLLR(0.3, 0.5)
	})
	if allocs != 0 {
		t.Errorf("pamLLR allocates %v times per call", allocs)
	}
}

func TestLLRRejectsSubnormalVariance(t *testing.T) {
	sym := []complex128{complex(3/math.Sqrt(10), 1/math.Sqrt(10))}
	for _, m := range []Modulation{BPSK, QPSK, QAM16} {
		for _, v := range []float64{math.SmallestNonzeroFloat64, 1e-310} {
			_, err := DemodulateLLR(sym, m, v)
			assert.ErrorIs(t, err, fecerr.ErrInvalidArgument, "%s noiseVar %v", m, v)
		}
	}

	// Tiny but normal variances stay finite in sign
	llrs, err := DemodulateLLR(sym, QAM16, 1e-300)
	require.NoError(t, err)
	for i, l := range llrs {
		assert.False(t, math.IsNaN(l), "LLR %d is NaN", i)
	}
	assert.Less(t, llrs[0], 0.0, "I-MSB of level +3 favors 0")
}

func TestNoiselessRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := rapid.SampledFrom(Modulations).Draw(t, "modulation")
		k := m.BitsPerSymbol()
		n := rapid.IntRange(1, 64).Draw(t, "symbols")
		bits := rapid.SliceOfN(rapid.Uint8Range(0, 1), n*k, n*k).Draw(t, "bits")

		syms, err := Modulate(bits, m)
		require.NoError(t, err)
		assert.Len(t, syms, n)

		hard, err := Demodulate(syms, m)
		require.NoError(t, err)
		assert.Equal(t, bits, hard)

		llrs, err := DemodulateLLR(syms, m, 0.1)
		require.NoError(t, err)
		require.Len(t, llrs, len(bits))
		for i, llr := range llrs {
			assert.Equal(t, bits[i] == 1, llr > 0, "bit %d llr %v", i, llr)
		}
	})
}
