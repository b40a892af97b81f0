// Package runproc denoises and merges the samples of each run. Runs are
// independent and processed in parallel; the samples of one run are processed
// in order, sharing the run's error models.
package runproc

import (
	"context"
	"fmt"
	"log"

	"github.com/benalric/MetaB-pipeline/asv"
	"github.com/benalric/MetaB-pipeline/config"
	"github.com/benalric/MetaB-pipeline/filter"
	"github.com/benalric/MetaB-pipeline/inference"
	"github.com/benalric/MetaB-pipeline/provenance"
	"github.com/benalric/MetaB-pipeline/sampleset"
	"gopkg.in/guregu/null.v3"
)

type Processor struct {
	Dereplicator inference.Dereplicator
	Denoiser     inference.Denoiser
	Merger       inference.PairMerger

	FilteredDir string
	Pool        config.PoolPolicy
	MinOverlap  int
	MaxMismatch int
	OnFailure   config.FailurePolicy
}

func New(cfg config.Config, derep inference.Dereplicator, denoiser inference.Denoiser, merger inference.PairMerger) *Processor {
	return &Processor{
		Dereplicator: derep,
		Denoiser:     denoiser,
		Merger:       merger,
		FilteredDir:  cfg.FilteredDir,
		Pool:         cfg.DenoisePool,
		MinOverlap:   cfg.MinOverlap,
		MaxMismatch:  cfg.MaxMismatch,
		OnFailure:    cfg.OnFailure,
	}
}

// RunResult is the per-run sequence table and one provenance row for every
// sample that entered the run, failed ones included.
type RunResult struct {
	Run    string
	Table  *asv.Table
	Rows   []provenance.RunRow
	Failed int
}

type sampleState struct {
	sample sampleset.Sample
	row    provenance.RunRow
	derep  map[inference.Strand][]inference.Unique
	den    map[inference.Strand][]inference.Unique
	failed bool
}

type runState struct {
	run    string
	policy config.FailurePolicy
	order  []*sampleState
	byName map[string]*sampleState
}

func (rs *runState) alive() []*sampleState {
	var out []*sampleState
	for _, s := range rs.order {
		if !s.failed {
			out = append(out, s)
		}
	}
	return out
}

// fail marks one sample as failed, or aborts the run under the abort policy.
func (rs *runState) fail(s *sampleState, step string, err error) error {
	if rs.policy == config.FailureAbort {
		return fmt.Errorf("%w: %s %s of run %s: %v", inference.ErrSampleFailed, step, s.sample.Name, rs.run, err)
	}
	log.Printf("Sample %s of run %s failed during %s: %v\n", s.sample.Name, rs.run, step, err)
	s.failed = true
	s.row.Status = provenance.StatusFailed
	s.row.Error = fmt.Sprintf("%s: %v", step, err)
	return nil
}

// Process runs dereplication, denoising and pair merging for the samples of
// one run. With the record policy a failing sample keeps its row, marked
// failed, and contributes nothing to the table.
func (p *Processor) Process(ctx context.Context, run string, samples []sampleset.Sample, forwardModel, reverseModel []byte) (RunResult, error) {
	rs := &runState{run: run, policy: p.OnFailure, byName: make(map[string]*sampleState)}
	for _, sample := range samples {
		if sample.Run != run {
			return RunResult{}, fmt.Errorf("sample %s belongs to run %s, not %s", sample.Name, sample.Run, run)
		}
		s := &sampleState{
			sample: sample,
			row:    provenance.RunRow{Sample: sample.Name, Status: provenance.StatusOK},
			derep:  make(map[inference.Strand][]inference.Unique),
			den:    make(map[inference.Strand][]inference.Unique),
		}
		rs.order = append(rs.order, s)
		rs.byName[sample.Name] = s
	}

	for _, s := range rs.order {
		fwd, rev := filter.Paths(p.FilteredDir, s.sample)
		for _, in := range []struct {
			strand inference.Strand
			path   string
		}{{inference.Forward, fwd}, {inference.Reverse, rev}} {
			uniques, err := p.Dereplicator.Dereplicate(ctx, in.path)
			if err != nil {
				if err := rs.fail(s, "dereplication", err); err != nil {
					return RunResult{}, err
				}
				break
			}
			s.derep[in.strand] = uniques
		}
	}

	if err := p.denoise(ctx, rs, inference.Forward, forwardModel); err != nil {
		return RunResult{}, err
	}
	if err := p.denoise(ctx, rs, inference.Reverse, reverseModel); err != nil {
		return RunResult{}, err
	}

	res := RunResult{Run: run, Table: asv.NewTable()}
	for _, s := range rs.alive() {
		merged, err := p.Merger.MergePairs(ctx, inference.MergeRequest{
			Sample:      s.sample.Name,
			Forward:     s.den[inference.Forward],
			Reverse:     s.den[inference.Reverse],
			MinOverlap:  p.MinOverlap,
			MaxMismatch: p.MaxMismatch,
		})
		if err != nil {
			if err := rs.fail(s, "pair merging", err); err != nil {
				return RunResult{}, err
			}
			continue
		}

		res.Table.AddSample(s.sample.Name)
		for _, u := range merged {
			if u.Count <= 0 {
				continue
			}
			if _, err := res.Table.Add(s.sample.Name, u.Sequence, u.Count); err != nil {
				return RunResult{}, err
			}
		}
		s.row.MergedRead = null.IntFrom(inference.Reads(merged))
		s.row.MergedSeq = null.IntFrom(int64(len(merged)))
	}

	for _, s := range rs.order {
		res.Rows = append(res.Rows, s.row)
		if s.failed {
			res.Failed++
		}
	}

	if err := provenance.CheckTableTotals(res.Table, res.Rows); err != nil {
		return RunResult{}, err
	}
	for _, row := range res.Rows {
		check := provenance.FinalStat{Sample: row.Sample, DenoisedFRead: row.DenoisedFRead, DenoisedRRead: row.DenoisedRRead, MergedRead: row.MergedRead}
		if err := check.Validate(); err != nil {
			return RunResult{}, err
		}
	}
	res.Table.Canonicalize()

	return res, nil
}

// denoise submits the surviving samples of the run for one strand, jointly
// unless the pooling policy is independent.
func (p *Processor) denoise(ctx context.Context, rs *runState, strand inference.Strand, model []byte) error {
	alive := rs.alive()
	if len(alive) == 0 {
		return nil
	}

	var batches [][]*sampleState
	if p.Pool == config.PoolIndependent {
		for _, s := range alive {
			batches = append(batches, []*sampleState{s})
		}
	} else {
		batches = append(batches, alive)
	}

	for _, batch := range batches {
		req := inference.DenoiseRequest{
			Run:        rs.run,
			Strand:     strand,
			Pool:       p.Pool,
			ErrorModel: model,
		}
		pending := make(map[string]*sampleState, len(batch))
		for _, s := range batch {
			req.Samples = append(req.Samples, inference.SampleUniques{Sample: s.sample.Name, Uniques: s.derep[strand]})
			pending[s.sample.Name] = s
		}

		results, err := p.Denoiser.Denoise(ctx, req)
		if err != nil {
			for _, s := range batch {
				if err := rs.fail(s, fmt.Sprintf("%s denoising", strand), err); err != nil {
					return err
				}
			}
			continue
		}

		for _, d := range results {
			s, ok := pending[d.Sample]
			if !ok {
				return fmt.Errorf("denoiser returned sample %q which was not requested for run %s", d.Sample, rs.run)
			}
			delete(pending, d.Sample)

			if d.Error != "" {
				if err := rs.fail(s, fmt.Sprintf("%s denoising", strand), fmt.Errorf("%s", d.Error)); err != nil {
					return err
				}
				continue
			}

			s.den[strand] = d.Variants
			reads := null.IntFrom(inference.Reads(d.Variants))
			seqs := null.IntFrom(int64(len(d.Variants)))
			if strand == inference.Forward {
				s.row.DenoisedFRead, s.row.DenoisedFSeq = reads, seqs
			} else {
				s.row.DenoisedRRead, s.row.DenoisedRSeq = reads, seqs
			}
		}

		for _, s := range batch {
			if _, missing := pending[s.sample.Name]; missing {
				if err := rs.fail(s, fmt.Sprintf("%s denoising", strand), fmt.Errorf("no result returned")); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
