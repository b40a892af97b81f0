package runproc

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/benalric/MetaB-pipeline/artifact"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/errmodel"
	"github.com/benalric/MetaB-pipeline/filter"
	"github.com/benalric/MetaB-pipeline/sampleset"
)

// Stage loads the inputs of each run from the store, processes it and
// publishes denoise/<run>/seqtab.tsv and denoise/<run>/provenance.tsv.
type Stage struct {
	Processor   *Processor
	Store       checkpoint.Store
	Concurrency int
}

// RunOne processes and publishes a single run.
func (s *Stage) RunOne(ctx context.Context, set *sampleset.Set, run string) (RunResult, error) {
	filtered, err := filter.Load(ctx, s.Store, run)
	if err != nil {
		return RunResult{}, err
	}
	fwdModel, revModel, err := errmodel.Load(ctx, s.Store, run)
	if err != nil {
		return RunResult{}, err
	}

	res, err := s.Processor.Process(ctx, run, filtered.Retained(set), fwdModel, revModel)
	if err != nil {
		return res, err
	}

	batch := checkpoint.NewBatch(s.Store)
	defer batch.Discard(ctx)

	if err := artifact.Publish(ctx, batch, artifact.RunProvenance(run), &res.Rows); err != nil {
		return res, err
	}
	if err := artifact.PublishTable(ctx, batch, artifact.RunTable(run), res.Table); err != nil {
		return res, err
	}

	return res, batch.Commit(ctx)
}

// RunAll processes the given runs in parallel. A failing run does not stop
// the others; the returned error names every run that failed, and the
// results hold the runs that were published, ordered by run.
func (s *Stage) RunAll(ctx context.Context, set *sampleset.Set, runs []string) ([]RunResult, error) {
	concurrency := s.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []RunResult
		failed  = make(map[string]error)
	)
	sem := make(chan struct{}, concurrency)

	for _, run := range runs {
		wg.Add(1)
		sem <- struct{}{}
		go func(run string) {
			defer func() {
				<-sem
				wg.Done()
			}()

			res, err := s.RunOne(ctx, set, run)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("Run %s failed: %v\n", run, err)
				failed[run] = err
				return
			}
			log.Printf("Run %s: %d samples denoised, %d failed, %d variants\n", run, len(res.Rows)-res.Failed, res.Failed, len(res.Table.Variants()))
			results = append(results, res)
		}(run)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Run < results[j].Run })

	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for run := range failed {
			names = append(names, run)
		}
		sort.Strings(names)
		return results, fmt.Errorf("%d of %d runs failed, first %s: %w", len(failed), len(runs), names[0], failed[names[0]])
	}

	return results, nil
}
