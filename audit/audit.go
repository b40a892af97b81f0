// Package audit assembles stats/final-stats.tsv from the counters published
// by every earlier stage.
package audit

import (
	"context"
	"log"

	"github.com/benalric/MetaB-pipeline/artifact"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/filter"
	"github.com/benalric/MetaB-pipeline/provenance"
	"github.com/benalric/MetaB-pipeline/sampleset"
)

type Stage struct {
	Store checkpoint.Store
}

// Collect feeds the published counters of every run into a tracker.
func (s *Stage) Collect(ctx context.Context, set *sampleset.Set) (*provenance.Tracker, error) {
	tr := provenance.NewTracker(set.Logical())

	for _, run := range set.Runs() {
		filtered, err := filter.Load(ctx, s.Store, run)
		if err != nil {
			return nil, err
		}
		if err := tr.AddFilterStats(filtered.Stats...); err != nil {
			return nil, err
		}
		if err := tr.AddExclusions(filtered.Excluded...); err != nil {
			return nil, err
		}

		if len(filtered.Retained(set)) == 0 {
			continue
		}

		var rows []provenance.RunRow
		if err := artifact.Load(ctx, s.Store, artifact.RunProvenance(run), &rows); err != nil {
			return nil, err
		}
		if err := tr.AddRunRows(rows...); err != nil {
			return nil, err
		}
	}

	merged, err := artifact.LoadTable(ctx, s.Store, artifact.MergedTable)
	if err != nil {
		return nil, err
	}
	tr.AddMergedTable(merged)

	var nochim []provenance.NochimStat
	if err := artifact.Load(ctx, s.Store, artifact.NochimStats, &nochim); err != nil {
		return nil, err
	}
	if err := tr.AddNochim(nochim...); err != nil {
		return nil, err
	}

	return tr, nil
}

// Run validates the attrition of every logical sample and publishes the
// final statistics.
func (s *Stage) Run(ctx context.Context, set *sampleset.Set) ([]provenance.FinalStat, error) {
	tr, err := s.Collect(ctx, set)
	if err != nil {
		return nil, err
	}

	rows, err := tr.Final()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, row := range rows {
		counts[row.Status]++
	}
	log.Printf("Final statistics for %d logical samples: %d ok, %d excluded, %d failed, %d partial\n",
		len(rows), counts[provenance.StatusOK], counts[provenance.StatusExcluded], counts[provenance.StatusFailed], counts[provenance.StatusPartial])

	batch := checkpoint.NewBatch(s.Store)
	defer batch.Discard(ctx)

	if err := artifact.Publish(ctx, batch, artifact.FinalStats, &rows); err != nil {
		return nil, err
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}
