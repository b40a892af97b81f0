// Package chimera removes bimeric variants from the merged sequence table and
// records the per-sample counters that remain.
package chimera

import (
	"context"
	"fmt"
	"log"

	"github.com/benalric/MetaB-pipeline/artifact"
	"github.com/benalric/MetaB-pipeline/asv"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/config"
	"github.com/benalric/MetaB-pipeline/inference"
	"github.com/benalric/MetaB-pipeline/provenance"
)

// Removed is one row of chimera/removed.tsv.
type Removed struct {
	Amplicon string `csv:"amplicon"`
	Sequence string `csv:"sequence"`
	Total    int64  `csv:"total"`
}

type Stage struct {
	Detector inference.BimeraDetector
	Store    checkpoint.Store
	Method   config.ChimeraMethod
	Threads  int
}

type Result struct {
	Table   *asv.Table
	Removed []Removed
	Stats   []provenance.NochimStat
}

// Filter asks the detector which variants of tab are bimeras and returns the
// table without them. A detector failure is returned as is; there is no
// partial result.
func (s *Stage) Filter(ctx context.Context, tab *asv.Table) (Result, error) {
	if s.Method != config.ChimeraPooled {
		log.Printf("Using the %s bimera method instead of pooled\n", s.Method)
	}

	req := inference.BimeraRequest{Method: s.Method, Threads: s.Threads}
	bySequence := make(map[string]asv.ID, len(tab.Variants()))
	for _, v := range tab.Variants() {
		counts := make(map[string]int64)
		for _, sample := range tab.Samples() {
			if c := tab.Count(v.ID, sample); c > 0 {
				counts[sample] = c
			}
		}
		req.Variants = append(req.Variants, inference.VariantCounts{Sequence: v.Sequence, Counts: counts})
		bySequence[v.Sequence] = v.ID
	}

	flagged, err := s.Detector.RemoveBimeras(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("bimera detection: %w", err)
	}

	drop := make(map[asv.ID]bool, len(flagged))
	for _, seq := range flagged {
		id, ok := bySequence[asv.NormalizeSequence(seq)]
		if !ok {
			return Result{}, fmt.Errorf("bimera detection flagged %q, which is not in the table", seq)
		}
		drop[id] = true
	}

	res := Result{Table: tab.Without(drop), Removed: []Removed{}}
	for _, v := range tab.Variants() {
		if drop[v.ID] {
			res.Removed = append(res.Removed, Removed{Amplicon: string(v.ID), Sequence: v.Sequence, Total: tab.Total(v.ID)})
		}
	}
	res.Stats = provenance.NochimFromTable(res.Table)

	return res, nil
}

// Run filters the published merged table and publishes the filtered table,
// the nochim counters and the removal record.
func (s *Stage) Run(ctx context.Context) (Result, error) {
	tab, err := artifact.LoadTable(ctx, s.Store, artifact.MergedTable)
	if err != nil {
		return Result{}, err
	}

	res, err := s.Filter(ctx, tab)
	if err != nil {
		return res, err
	}

	var removedReads int64
	for _, r := range res.Removed {
		removedReads += r.Total
	}
	log.Printf("Removed %d of %d variants as bimeras (%d reads)\n", len(res.Removed), len(tab.Variants()), removedReads)

	batch := checkpoint.NewBatch(s.Store)
	defer batch.Discard(ctx)

	if err := artifact.Publish(ctx, batch, artifact.ChimeraRemoved, &res.Removed); err != nil {
		return res, err
	}
	if err := artifact.Publish(ctx, batch, artifact.NochimStats, &res.Stats); err != nil {
		return res, err
	}
	if err := artifact.PublishTable(ctx, batch, artifact.NochimTable, res.Table); err != nil {
		return res, err
	}

	return res, batch.Commit(ctx)
}
