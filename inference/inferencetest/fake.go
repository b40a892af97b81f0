// Package inferencetest provides a deterministic stand-in for every
// collaborator in package inference.
package inferencetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/benalric/MetaB-pipeline/inference"
)

// Fake answers from fixed tables:
//
//   - Filter returns Filtered[sample].
//   - Dereplicate returns Reads[path].
//   - Denoise returns each sample's uniques unchanged, or a per-sample error
//     for samples in FailDenoise.
//   - MergePairs concatenates the i-th forward and reverse variants with the
//     smaller of their counts.
//   - RemoveBimeras flags the requested sequences that are in Bimeras.
//   - Classify returns Assignments[sequence] when present.
type Fake struct {
	Filtered    map[string]inference.FilterResult
	Reads       map[string][]inference.Unique
	FailDenoise map[string]bool
	FailLearn   bool
	FailBimera  bool
	Bimeras     map[string]bool
	Assignments map[string]inference.Assignment

	mu           sync.Mutex
	DenoiseCalls []inference.DenoiseRequest
	BimeraCalls  []inference.BimeraRequest
}

func (f *Fake) Filter(ctx context.Context, req inference.FilterRequest) (inference.FilterResult, error) {
	res, ok := f.Filtered[req.Sample]
	if !ok {
		return res, fmt.Errorf("no filter result for %s", req.Sample)
	}
	return res, nil
}

func (f *Fake) LearnErrors(ctx context.Context, run string, strand inference.Strand, files []string) ([]byte, error) {
	if f.FailLearn {
		return nil, fmt.Errorf("error model did not converge")
	}
	return []byte(fmt.Sprintf("model %s %s %s", run, strand, strings.Join(files, ","))), nil
}

func (f *Fake) Dereplicate(ctx context.Context, path string) ([]inference.Unique, error) {
	u, ok := f.Reads[path]
	if !ok {
		return nil, fmt.Errorf("no reads for %s", path)
	}
	return u, nil
}

func (f *Fake) Denoise(ctx context.Context, req inference.DenoiseRequest) ([]inference.Denoised, error) {
	f.mu.Lock()
	f.DenoiseCalls = append(f.DenoiseCalls, req)
	f.mu.Unlock()

	if len(req.ErrorModel) == 0 {
		return nil, fmt.Errorf("missing error model")
	}

	out := make([]inference.Denoised, 0, len(req.Samples))
	for _, s := range req.Samples {
		if f.FailDenoise[s.Sample] {
			out = append(out, inference.Denoised{Sample: s.Sample, Error: "denoising diverged"})
			continue
		}
		out = append(out, inference.Denoised{Sample: s.Sample, Variants: s.Uniques})
	}
	return out, nil
}

func (f *Fake) MergePairs(ctx context.Context, req inference.MergeRequest) ([]inference.Unique, error) {
	n := len(req.Forward)
	if len(req.Reverse) < n {
		n = len(req.Reverse)
	}

	counts := make(map[string]int64)
	for i := 0; i < n; i++ {
		c := req.Forward[i].Count
		if req.Reverse[i].Count < c {
			c = req.Reverse[i].Count
		}
		counts[req.Forward[i].Sequence+req.Reverse[i].Sequence] += c
	}
	return inference.SortUniques(counts), nil
}

func (f *Fake) RemoveBimeras(ctx context.Context, req inference.BimeraRequest) ([]string, error) {
	f.mu.Lock()
	f.BimeraCalls = append(f.BimeraCalls, req)
	f.mu.Unlock()

	if f.FailBimera {
		return nil, fmt.Errorf("bimera detection failed")
	}

	var out []string
	for _, v := range req.Variants {
		if f.Bimeras[v.Sequence] {
			out = append(out, v.Sequence)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *Fake) Classify(ctx context.Context, req inference.ClassifyRequest) ([]inference.Assignment, error) {
	var out []inference.Assignment
	for _, seq := range req.Sequences {
		if a, ok := f.Assignments[seq]; ok {
			a.Sequence = seq
			out = append(out, a)
		}
	}
	return out, nil
}
