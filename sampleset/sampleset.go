// Package sampleset discovers the raw forward/reverse read files, pairs them
// into samples and groups the samples into runs.
package sampleset

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/benalric/MetaB-pipeline/artifact"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/provenance"
)

var (
	ErrPairingMismatch = errors.New("forward and reverse files do not pair up")
	ErrRunPattern      = errors.New("file name does not match the run pattern")
)

// Sample is one row of resolve/samples.tsv. Name is the stable sort key of
// every per-sample record in the pipeline.
type Sample struct {
	Name      string `csv:"sample"`
	Run       string `csv:"run"`
	Logical   string `csv:"logical"`
	Replicate string `csv:"replicate"`
	Forward   string `csv:"forward"`
	Reverse   string `csv:"reverse"`
}

// Set is an immutable, name ordered collection of samples.
type Set struct {
	samples []Sample
	byName  map[string]int
}

// NewSet sorts samples by name and rejects duplicate names.
func NewSet(samples []Sample) (*Set, error) {
	s := &Set{
		samples: append([]Sample(nil), samples...),
		byName:  make(map[string]int, len(samples)),
	}
	sort.SliceStable(s.samples, func(i, j int) bool {
		return s.samples[i].Name < s.samples[j].Name
	})
	for i, sample := range s.samples {
		if sample.Name == "" || sample.Run == "" {
			return nil, fmt.Errorf("sample %+v lacks a name or a run", sample)
		}
		if _, exists := s.byName[sample.Name]; exists {
			return nil, fmt.Errorf("sample name %q is used by more than one file pair", sample.Name)
		}
		s.byName[sample.Name] = i
	}
	return s, nil
}

func (s *Set) Len() int {
	return len(s.samples)
}

func (s *Set) Samples() []Sample {
	return append([]Sample(nil), s.samples...)
}

func (s *Set) Sample(name string) (Sample, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Sample{}, false
	}
	return s.samples[i], true
}

// Runs returns the run tokens in sorted order.
func (s *Set) Runs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, sample := range s.samples {
		if !seen[sample.Run] {
			seen[sample.Run] = true
			out = append(out, sample.Run)
		}
	}
	sort.Strings(out)
	return out
}

// Run returns the samples of one run, ordered by name.
func (s *Set) Run(run string) []Sample {
	var out []Sample
	for _, sample := range s.samples {
		if sample.Run == run {
			out = append(out, sample)
		}
	}
	return out
}

// Logical maps each sample name to the logical sample it belongs to.
func (s *Set) Logical() map[string]string {
	out := make(map[string]string, len(s.samples))
	for _, sample := range s.samples {
		out[sample.Name] = sample.Logical
	}
	return out
}

// Without returns the samples whose names are not in excluded.
func (s *Set) Without(excluded map[string]bool) []Sample {
	var out []Sample
	for _, sample := range s.samples {
		if !excluded[sample.Name] {
			out = append(out, sample)
		}
	}
	return out
}

// Publish commits resolve/samples.tsv and resolve/exclusions.tsv together.
func Publish(ctx context.Context, store checkpoint.Store, set *Set, excluded []provenance.Exclusion) error {
	if excluded == nil {
		excluded = []provenance.Exclusion{}
	}

	batch := checkpoint.NewBatch(store)
	defer batch.Discard(ctx)

	if err := artifact.Publish(ctx, batch, artifact.ResolveExclusions, &excluded); err != nil {
		return err
	}
	samples := set.Samples()
	if err := artifact.Publish(ctx, batch, artifact.Samples, &samples); err != nil {
		return err
	}
	return batch.Commit(ctx)
}

// Load reads the sample set published by the resolve stage.
func Load(ctx context.Context, store checkpoint.Store) (*Set, error) {
	var samples []Sample
	if err := artifact.Load(ctx, store, artifact.Samples, &samples); err != nil {
		return nil, err
	}
	return NewSet(samples)
}
