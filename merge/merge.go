// Package merge unions the per-run sequence tables into the global table and
// collapses replicate halves into logical samples.
package merge

import (
	"context"
	"fmt"
	"log"

	"github.com/benalric/MetaB-pipeline/artifact"
	"github.com/benalric/MetaB-pipeline/asv"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/provenance"
	"github.com/benalric/MetaB-pipeline/sampleset"
)

type Stage struct {
	Store checkpoint.Store
}

// Tables merges already loaded run tables and collapses replicates through
// the resolved sample to logical sample mapping.
func Tables(set *sampleset.Set, tables ...*asv.Table) (*asv.Table, error) {
	merged, err := asv.Merge(tables...)
	if err != nil {
		return nil, err
	}

	logical := set.Logical()
	for _, sample := range merged.Samples() {
		if _, ok := logical[sample]; !ok {
			return nil, fmt.Errorf("sequence table column %s is not a resolved sample", sample)
		}
	}

	return asv.CollapseReplicates(merged, logical), nil
}

// Run loads the table and provenance of every run, checks them against each
// other and publishes merge/seqtab.tsv.
func (s *Stage) Run(ctx context.Context, set *sampleset.Set, runs []string) (*asv.Table, error) {
	tables := make([]*asv.Table, 0, len(runs))
	for _, run := range runs {
		tab, err := artifact.LoadTable(ctx, s.Store, artifact.RunTable(run))
		if err != nil {
			return nil, err
		}

		var rows []provenance.RunRow
		if err := artifact.Load(ctx, s.Store, artifact.RunProvenance(run), &rows); err != nil {
			return nil, err
		}
		if err := provenance.CheckTableTotals(tab, rows); err != nil {
			return nil, fmt.Errorf("run %s: %w", run, err)
		}

		log.Printf("Run %s: %d samples, %d variants\n", run, len(tab.Samples()), len(tab.Variants()))
		tables = append(tables, tab)
	}

	merged, err := Tables(set, tables...)
	if err != nil {
		return nil, err
	}
	log.Printf("Merged %d runs into %d logical samples and %d variants\n", len(runs), len(merged.Samples()), len(merged.Variants()))

	batch := checkpoint.NewBatch(s.Store)
	defer batch.Discard(ctx)

	if err := artifact.PublishTable(ctx, batch, artifact.MergedTable, merged); err != nil {
		return nil, err
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}

	return merged, nil
}
