// Package report prints the end of stage summary: how many samples were
// processed, excluded and failed, and how many of their reads survived.
package report

import (
	"fmt"
	"io"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/montanaflynn/stats"
)

const (
	bins     = 10
	barWidth = 40
)

type Summary struct {
	Stage     string
	Processed int
	Excluded  int
	Failed    int

	retention []float64
}

func New(stage string) *Summary {
	return &Summary{Stage: stage}
}

// Observe records the fraction of reads a sample kept through the stage.
// Samples that entered the stage without reads are skipped.
func (s *Summary) Observe(before, after int64) {
	if before <= 0 {
		return
	}
	s.retention = append(s.retention, float64(after)/float64(before))
}

func (s *Summary) Retention() []float64 {
	return append([]float64(nil), s.retention...)
}

// Fprint writes the counts, the median and mean retention and a text
// histogram of the per-sample retention.
func (s *Summary) Fprint(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s: %d processed, %d excluded, %d failed\n", s.Stage, s.Processed, s.Excluded, s.Failed); err != nil {
		return err
	}
	if len(s.retention) == 0 {
		return nil
	}

	data := stats.Float64Data(s.retention)
	median, err := stats.Median(data)
	if err != nil {
		return err
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return err
	}
	min, err := stats.Min(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "Read retention over %d samples: median %.3f, mean %.3f, min %.3f\n", len(s.retention), median, mean, min); err != nil {
		return err
	}

	return histogram.Fprint(w, histogram.Hist(bins, s.retention), histogram.Linear(barWidth))
}
