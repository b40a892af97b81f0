// Package filter drives the external quality filter over the samples of a run
// and applies the minimum read gate.
package filter

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	metab "github.com/benalric/MetaB-pipeline"
	"github.com/benalric/MetaB-pipeline/artifact"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/inference"
	"github.com/benalric/MetaB-pipeline/provenance"
	"github.com/benalric/MetaB-pipeline/sampleset"
	"gopkg.in/guregu/null.v3"
)

// Paths returns where the filtered reads of sample live below dir.
func Paths(dir string, sample sampleset.Sample) (forward, reverse string) {
	return metab.JoinPath(dir, sample.Run, sample.Name+"_F_filt.fastq.gz"),
		metab.JoinPath(dir, sample.Run, sample.Name+"_R_filt.fastq.gz")
}

type Stage struct {
	Filterer    inference.Filterer
	Store       checkpoint.Store
	FilteredDir string
	MinReads    int64
	Options     map[string]string
}

type Result struct {
	Run      string
	Stats    []provenance.FilterStat
	Excluded []provenance.Exclusion
}

// Run filters every sample of one run and publishes filter-stats.tsv and
// exclusions.tsv for it. Any filter failure aborts the run without
// publishing.
func (s *Stage) Run(ctx context.Context, run string, samples []sampleset.Sample) (Result, error) {
	res := Result{
		Run:      run,
		Stats:    []provenance.FilterStat{},
		Excluded: []provenance.Exclusion{},
	}

	for _, sample := range samples {
		if sample.Run != run {
			return res, fmt.Errorf("sample %s belongs to run %s, not %s", sample.Name, sample.Run, run)
		}

		fwd, rev := Paths(s.FilteredDir, sample)
		if !metab.IsGoogleStorage(fwd) {
			if err := os.MkdirAll(filepath.Dir(fwd), 0755); err != nil {
				return res, err
			}
		}

		out, err := s.Filterer.Filter(ctx, inference.FilterRequest{
			Sample:     sample.Name,
			ForwardIn:  sample.Forward,
			ReverseIn:  sample.Reverse,
			ForwardOut: fwd,
			ReverseOut: rev,
			Options:    s.Options,
		})
		if err != nil {
			return res, fmt.Errorf("filtering %s: %w", sample.Name, err)
		}

		stat := provenance.FilterStat{
			Sample:   sample.Name,
			ReadsIn:  null.IntFrom(out.ReadsIn),
			ReadsOut: null.IntFrom(out.ReadsOut),
		}
		check := provenance.FinalStat{Sample: sample.Name, ReadsIn: stat.ReadsIn, ReadsOut: stat.ReadsOut}
		if err := check.Validate(); err != nil {
			return res, err
		}
		res.Stats = append(res.Stats, stat)

		if out.ReadsOut < s.MinReads {
			log.Printf("Excluding %s: %d reads after filtering, below the %d read minimum\n", sample.Name, out.ReadsOut, s.MinReads)
			res.Excluded = append(res.Excluded, provenance.Exclusion{
				Sample: sample.Name,
				Run:    run,
				Stage:  string(checkpoint.StageFilter),
				Reason: fmt.Sprintf("reads.out %d below min_reads %d", out.ReadsOut, s.MinReads),
			})
		}
	}

	batch := checkpoint.NewBatch(s.Store)
	defer batch.Discard(ctx)

	if err := artifact.Publish(ctx, batch, artifact.FilterExclusions(run), &res.Excluded); err != nil {
		return res, err
	}
	if err := artifact.Publish(ctx, batch, artifact.FilterStats(run), &res.Stats); err != nil {
		return res, err
	}

	return res, batch.Commit(ctx)
}

// Load reads the published filter statistics and exclusions of a run.
func Load(ctx context.Context, store checkpoint.Store, run string) (Result, error) {
	res := Result{Run: run}
	if err := artifact.Load(ctx, store, artifact.FilterStats(run), &res.Stats); err != nil {
		return res, err
	}
	if err := artifact.Load(ctx, store, artifact.FilterExclusions(run), &res.Excluded); err != nil {
		return res, err
	}
	return res, nil
}

// ExcludedSet returns the names of the excluded samples.
func (r Result) ExcludedSet() map[string]bool {
	out := make(map[string]bool, len(r.Excluded))
	for _, e := range r.Excluded {
		out[e.Sample] = true
	}
	return out
}

// Retained returns the samples of the run that passed the read gate.
func (r Result) Retained(set *sampleset.Set) []sampleset.Sample {
	excluded := r.ExcludedSet()
	var out []sampleset.Sample
	for _, sample := range set.Run(r.Run) {
		if !excluded[sample.Name] {
			out = append(out, sample)
		}
	}
	return out
}

// ActiveRuns returns the runs of set with at least one sample that passed
// the read gate. Runs whose filter results are not published are an error.
func ActiveRuns(ctx context.Context, store checkpoint.Store, set *sampleset.Set) ([]string, error) {
	var out []string
	for _, run := range set.Runs() {
		res, err := Load(ctx, store, run)
		if err != nil {
			return nil, err
		}
		if len(res.Retained(set)) == 0 {
			log.Printf("Run %s has no samples left after filtering\n", run)
			continue
		}
		out = append(out, run)
	}
	return out, nil
}
