// Package inference describes the statistical subsystems the pipeline calls
// but does not implement: quality filtering, error model learning,
// dereplication, denoising, pair merging, bimera detection and taxonomic
// classification.
package inference

import (
	"context"
	"errors"

	"github.com/benalric/MetaB-pipeline/config"
)

// ErrSampleFailed marks a failure confined to one sample.
var ErrSampleFailed = errors.New("sample inference failed")

type Strand string

const (
	Forward Strand = "F"
	Reverse Strand = "R"
)

// Unique is a distinct sequence with the number of reads supporting it.
type Unique struct {
	Sequence string `json:"sequence"`
	Count    int64  `json:"count"`
}

// Reads sums the counts of uniques.
func Reads(uniques []Unique) int64 {
	var n int64
	for _, u := range uniques {
		n += u.Count
	}
	return n
}

type FilterRequest struct {
	Sample     string            `json:"sample"`
	ForwardIn  string            `json:"forward_in"`
	ReverseIn  string            `json:"reverse_in"`
	ForwardOut string            `json:"forward_out"`
	ReverseOut string            `json:"reverse_out"`
	Options    map[string]string `json:"options,omitempty"`
}

type FilterResult struct {
	ReadsIn  int64 `json:"reads_in"`
	ReadsOut int64 `json:"reads_out"`
}

type Filterer interface {
	Filter(ctx context.Context, req FilterRequest) (FilterResult, error)
}

type ErrorLearner interface {
	// LearnErrors returns an opaque error model for one run and strand.
	LearnErrors(ctx context.Context, run string, strand Strand, files []string) ([]byte, error)
}

type Dereplicator interface {
	// Dereplicate collapses the reads of one file into uniques sorted by
	// decreasing count.
	Dereplicate(ctx context.Context, path string) ([]Unique, error)
}

type SampleUniques struct {
	Sample  string   `json:"sample"`
	Uniques []Unique `json:"uniques"`
}

type DenoiseRequest struct {
	Run        string            `json:"run"`
	Strand     Strand            `json:"strand"`
	Pool       config.PoolPolicy `json:"pool"`
	ErrorModel []byte            `json:"error_model"`
	Samples    []SampleUniques   `json:"samples"`
}

// Denoised is the inference for one sample. A non-empty Error confines the
// failure to that sample.
type Denoised struct {
	Sample   string   `json:"sample"`
	Variants []Unique `json:"variants"`
	Error    string   `json:"error,omitempty"`
}

type Denoiser interface {
	// Denoise returns one result per requested sample, in any order.
	Denoise(ctx context.Context, req DenoiseRequest) ([]Denoised, error)
}

type MergeRequest struct {
	Sample      string   `json:"sample"`
	Forward     []Unique `json:"forward"`
	Reverse     []Unique `json:"reverse"`
	MinOverlap  int      `json:"min_overlap"`
	MaxMismatch int      `json:"max_mismatch"`
}

type PairMerger interface {
	// MergePairs returns the merged contigs with their read support.
	MergePairs(ctx context.Context, req MergeRequest) ([]Unique, error)
}

// VariantCounts is one variant of a sequence table with its non-zero cells.
type VariantCounts struct {
	Sequence string           `json:"sequence"`
	Counts   map[string]int64 `json:"counts"`
}

type BimeraRequest struct {
	Method   config.ChimeraMethod `json:"method"`
	Threads  int                  `json:"threads"`
	Variants []VariantCounts      `json:"variants"`
}

type BimeraDetector interface {
	// RemoveBimeras returns the sequences flagged as bimeras.
	RemoveBimeras(ctx context.Context, req BimeraRequest) ([]string, error)
}

type ClassifyRequest struct {
	TrainingSet   string   `json:"training_set"`
	MinConfidence float64  `json:"min_confidence"`
	Threads       int      `json:"threads"`
	Sequences     []string `json:"sequences"`
}

// Assignment is a root to leaf taxonomic path with the bootstrap confidence
// of each rank.
type Assignment struct {
	Sequence   string    `json:"sequence"`
	Taxa       []string  `json:"taxa"`
	Ranks      []string  `json:"ranks"`
	Confidence []float64 `json:"confidence"`
}

type Classifier interface {
	// Classify may omit sequences it could not assign.
	Classify(ctx context.Context, req ClassifyRequest) ([]Assignment, error)
}
