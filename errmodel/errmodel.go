// Package errmodel learns the per-run, per-strand error models consumed by the
// denoiser.
package errmodel

import (
	"context"
	"fmt"
	"log"

	"github.com/benalric/MetaB-pipeline/artifact"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/filter"
	"github.com/benalric/MetaB-pipeline/inference"
	"github.com/benalric/MetaB-pipeline/sampleset"
)

type Stage struct {
	Learner     inference.ErrorLearner
	Store       checkpoint.Store
	FilteredDir string
}

// Run learns both strands of one run from the filtered reads of the retained
// samples. Both models are learned before either is published, so a failure
// on either strand publishes nothing.
func (s *Stage) Run(ctx context.Context, run string, samples []sampleset.Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("run %s has no samples left to learn errors from", run)
	}

	var forward, reverse []string
	for _, sample := range samples {
		f, r := filter.Paths(s.FilteredDir, sample)
		forward = append(forward, f)
		reverse = append(reverse, r)
	}

	models := make(map[inference.Strand][]byte)
	for _, strand := range []inference.Strand{inference.Forward, inference.Reverse} {
		files := forward
		if strand == inference.Reverse {
			files = reverse
		}

		log.Printf("Learning %s error model of run %s from %d files\n", strand, run, len(files))
		model, err := s.Learner.LearnErrors(ctx, run, strand, files)
		if err != nil {
			return fmt.Errorf("learning %s errors of run %s: %w", strand, run, err)
		}
		models[strand] = model
	}

	batch := checkpoint.NewBatch(s.Store)
	defer batch.Discard(ctx)

	for _, strand := range []inference.Strand{inference.Forward, inference.Reverse} {
		if err := artifact.PublishBlob(ctx, batch, artifact.ErrorModel(run, string(strand)), models[strand]); err != nil {
			return err
		}
	}

	return batch.Commit(ctx)
}

// Load returns the published forward and reverse models of run.
func Load(ctx context.Context, store checkpoint.Store, run string) (forward, reverse []byte, err error) {
	forward, err = artifact.LoadBlob(ctx, store, artifact.ErrorModel(run, string(inference.Forward)))
	if err != nil {
		return nil, nil, err
	}
	reverse, err = artifact.LoadBlob(ctx, store, artifact.ErrorModel(run, string(inference.Reverse)))
	if err != nil {
		return nil, nil, err
	}
	return forward, reverse, nil
}
