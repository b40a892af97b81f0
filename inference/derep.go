package inference

import (
	"context"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/benalric/MetaB-pipeline/fastq"
)

// NativeDereplicator collapses identical reads without an external program.
type NativeDereplicator struct {
	Client *storage.Client
}

func (d NativeDereplicator) Dereplicate(ctx context.Context, path string) ([]Unique, error) {
	r, err := fastq.Open(ctx, path, d.Client)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	counts := make(map[string]int64)
	for rec, ok := r.Read(); ok; rec, ok = r.Read() {
		counts[strings.ToUpper(rec.Sequence)]++
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	return SortUniques(counts), nil
}

// SortUniques orders sequences by decreasing count, ties by sequence.
func SortUniques(counts map[string]int64) []Unique {
	out := make([]Unique, 0, len(counts))
	for seq, n := range counts {
		out = append(out, Unique{Sequence: seq, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}
