package analysis

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/ecmigrate/config"
)

// ErrMissingDay is returned when a compared day has no simulated data.
var ErrMissingDay = errors.New("no simulated data for day")

// histogramRow is one bin of an experimental histogram file.
type histogramRow struct {
	Weight float64 `csv:"weight"`
}

// ReadHistogram reads a headerless file with one bin weight per line.
func ReadHistogram(r io.Reader) ([]float64, error) {
	var rows []histogramRow
	if err := gocsv.UnmarshalWithoutHeaders(r, &rows); err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = row.Weight
	}
	return out, nil
}

// WriteHistogram writes bins in the format ReadHistogram accepts.
func WriteHistogram(w io.Writer, bins []float64) error {
	rows := make([]histogramRow, len(bins))
	for i, b := range bins {
		rows[i].Weight = b
	}
	return gocsv.MarshalWithoutHeaders(rows, w)
}

// ReferencePath returns the experimental histogram file of day.
func ReferencePath(dir, stem string, day int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.csv", stem, day))
}

// LoadReference reads the experimental histogram of every day.
func LoadReference(dir, stem string, days []int) (map[int][]float64, error) {
	ref := make(map[int][]float64, len(days))
	for _, day := range days {
		path := ReferencePath(dir, stem, day)
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening experimental histogram: %w", err)
		}
		h, err := ReadHistogram(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		ref[day] = h
	}
	return ref, nil
}

// Comparator scores simulated traveled distances against experimental histograms.
type Comparator struct {
	Edges     []float64
	Days      []int
	Reference map[int][]float64
}

// NewComparator loads the experimental histograms named by cfg.
func NewComparator(cfg config.AnalysisConfig) (*Comparator, error) {
	ref, err := LoadReference(cfg.ExperimentalDir, cfg.ExperimentalStem, cfg.Days)
	if err != nil {
		return nil, err
	}
	return &Comparator{
		Edges:     Edges(cfg.Bins, cfg.Range),
		Days:      append([]int(nil), cfg.Days...),
		Reference: ref,
	}, nil
}

// DayScore is the similarity of one day.
type DayScore struct {
	Day       int       `csv:"day"`
	Cells     int       `csv:"cells"`
	BC        float64   `csv:"bc"`
	Histogram []float64 `csv:"-"`
}

// Score holds the per-day coefficients and their mean.
type Score struct {
	Days []DayScore
	Mean float64
}

// Compare histograms the distances of every compared day and returns the
// Bhattacharyya coefficients. distances returns false for a missing day.
func (c *Comparator) Compare(distances func(day int) ([]float64, bool)) (Score, error) {
	days := append([]int(nil), c.Days...)
	sort.Ints(days)

	var s Score
	var sum float64
	for _, day := range days {
		d, ok := distances(day)
		if !ok {
			return Score{}, fmt.Errorf("%w %d", ErrMissingDay, day)
		}
		h := Histogram(d, c.Edges)
		bc := BhattacharyyaCoefficient(h, c.Reference[day])
		s.Days = append(s.Days, DayScore{Day: day, Cells: len(d), BC: bc, Histogram: h})
		sum += bc
	}
	if len(days) > 0 {
		s.Mean = sum / float64(len(days))
	}
	return s, nil
}
