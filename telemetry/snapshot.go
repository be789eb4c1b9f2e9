package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/klauspost/compress/zstd"

	"github.com/pthm-cable/ecmigrate/config"
)

const (
	snapshotPrefix = "positions_day"
	csvExt         = ".csv"
	zstdExt        = ".zst"
)

// PositionRecord is one agent in a position snapshot.
type PositionRecord struct {
	Day          int     `csv:"day"`
	Step         int     `csv:"step"`
	ID           uint32  `csv:"id"`
	Definition   string  `csv:"definition"`
	X            float64 `csv:"x"`
	Y            float64 `csv:"y"`
	Z            float64 `csv:"z"`
	VX           float64 `csv:"vx"`
	VY           float64 `csv:"vy"`
	VZ           float64 `csv:"vz"`
	Speed        float64 `csv:"speed"`
	Viscosity    float64 `csv:"viscosity"`
	Displacement float64 `csv:"displacement"` // y - y0
}

// SnapshotName returns the file name of the snapshot for day.
func SnapshotName(day int, compressed bool) string {
	name := fmt.Sprintf("%s%03d%s", snapshotPrefix, day, csvExt)
	if compressed {
		name += zstdExt
	}
	return name
}

// SavePositions writes records to dir and returns the file path.
// Compressed snapshots are zstd streams of the same CSV.
func SavePositions(dir string, day int, records []PositionRecord, compress bool) (string, error) {
	path := filepath.Join(dir, SnapshotName(day, compress))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating snapshot: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var enc *zstd.Encoder
	if compress {
		enc, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return "", fmt.Errorf("creating zstd encoder: %w", err)
		}
		w = enc
	}

	if err := gocsv.Marshal(records, w); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return "", fmt.Errorf("closing zstd stream: %w", err)
		}
	}
	return path, f.Close()
}

// LoadPositions reads a snapshot written by SavePositions.
func LoadPositions(path string) ([]PositionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, zstdExt) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var records []PositionRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	return records, nil
}

// ListSnapshots maps day to snapshot path for every snapshot in dir.
func ListSnapshots(dir string) (map[int]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, snapshotPrefix+"*"+csvExt+"*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	days := make(map[int]string, len(matches))
	for _, m := range matches {
		var day int
		if _, err := fmt.Sscanf(filepath.Base(m), snapshotPrefix+"%d", &day); err != nil {
			continue
		}
		days[day] = m
	}
	return days, nil
}

// Distance returns the histogram quantity of r: y - y0 for
// config.QuantityDisplacement, the absolute y otherwise.
func (r PositionRecord) Distance(quantity string) float64 {
	if quantity == config.QuantityDisplacement {
		return r.Displacement
	}
	return r.Y
}

// Distances extracts the histogram quantity of every record.
func Distances(records []PositionRecord, quantity string) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Distance(quantity)
	}
	return out
}
