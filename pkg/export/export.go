// Package export writes sweep results to files: BER points as CSV,
// optionally compressed, and run summaries as YAML.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dbehnke/fecsim/pkg/sweep"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// Header is the first CSV row
var Header = []string{"modulation", "ebn0_db", "coded", "trials", "bits", "errors", "ber", "theory_ber"}

// WriteCSV writes points to path. A .gz suffix gzips the file and a .zst
// suffix compresses it with zstd.
func WriteCSV(path string, points []sweep.Point) error {
	return writeFile(path, func(w io.Writer) error {
		return EncodeCSV(w, points)
	})
}

// EncodeCSV writes the header and one row per point
func EncodeCSV(w io.Writer, points []sweep.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			p.Modulation.String(),
			strconv.FormatFloat(p.EbN0dB, 'f', -1, 64),
			strconv.FormatBool(p.Coded),
			strconv.Itoa(p.Trials),
			strconv.Itoa(p.Bits),
			strconv.Itoa(p.Errors),
			strconv.FormatFloat(p.BER, 'e', 6, 64),
			strconv.FormatFloat(p.TheoryBER, 'e', 6, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary is the YAML form of a finished sweep
type Summary struct {
	RunID      string        `yaml:"run_id"`
	Status     string        `yaml:"status"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at"`
	Duration   string        `yaml:"duration"`
	Config     SummaryConfig `yaml:"config"`
	Curves     []Curve       `yaml:"curves"`
}

// SummaryConfig records the sweep parameters
type SummaryConfig struct {
	Modulations []string `yaml:"modulations"`
	EbN0Start   float64  `yaml:"ebn0_start"`
	EbN0Stop    float64  `yaml:"ebn0_stop"`
	EbN0Step    float64  `yaml:"ebn0_step"`
	InfoBits    int      `yaml:"info_bits"`
	Trials      int      `yaml:"trials"`
	Seed        uint64   `yaml:"seed"`
}

// Curve is one BER curve, such as coded QPSK
type Curve struct {
	Modulation string       `yaml:"modulation"`
	Coded      bool         `yaml:"coded"`
	Points     []CurvePoint `yaml:"points"`
}

// CurvePoint is one measured point on a curve
type CurvePoint struct {
	EbN0dB    float64 `yaml:"ebn0_db"`
	Bits      int     `yaml:"bits"`
	Errors    int     `yaml:"errors"`
	BER       float64 `yaml:"ber"`
	TheoryBER float64 `yaml:"theory_ber"`
}

// NewSummary groups a result's points into curves in sweep order
func NewSummary(res *sweep.Result) Summary {
	names := make([]string, len(res.Config.Modulations))
	for i, m := range res.Config.Modulations {
		names[i] = m.String()
	}

	s := Summary{
		RunID:      res.RunID,
		Status:     res.Status,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Config: SummaryConfig{
			Modulations: names,
			EbN0Start:   res.Config.EbN0Start,
			EbN0Stop:    res.Config.EbN0Stop,
			EbN0Step:    res.Config.EbN0Step,
			InfoBits:    res.Config.InfoBits,
			Trials:      res.Config.Trials,
			Seed:        res.Config.Seed,
		},
	}
	if !res.FinishedAt.IsZero() {
		s.Duration = res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String()
	}

	index := make(map[string]int)
	for _, p := range res.Points {
		key := p.Label()
		i, ok := index[key]
		if !ok {
			i = len(s.Curves)
			index[key] = i
			s.Curves = append(s.Curves, Curve{Modulation: p.Modulation.String(), Coded: p.Coded})
		}
		s.Curves[i].Points = append(s.Curves[i].Points, CurvePoint{
			EbN0dB:    p.EbN0dB,
			Bits:      p.Bits,
			Errors:    p.Errors,
			BER:       p.BER,
			TheoryBER: p.TheoryBER,
		})
	}
	return s
}

// WriteSummary writes a YAML summary of res to path
func WriteSummary(path string, res *sweep.Result) error {
	return WriteYAML(path, NewSummary(res))
}

// WriteYAML writes any value, such as an AMC report, to path as YAML
func WriteYAML(path string, v interface{}) error {
	return writeFile(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	})
}

// writeFile creates path and its directory, wraps the file in a compressor
// chosen by suffix and runs fn
func writeFile(path string, fn func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	var w io.Writer = f
	var closer io.Closer
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz := gzip.NewWriter(f)
		w, closer = gz, gz
	case strings.HasSuffix(path, ".zst"):
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w, closer = enc, enc
	}

	if err := fn(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to finish %s: %w", path, err)
		}
	}
	return nil
}
