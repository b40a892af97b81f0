// Package provenance carries the per-sample read counters through every stage
// and assembles them into the final audit table.
//
// Counters are nullable: a counter that a stage never produced for a sample
// (because the sample was excluded or failed) is written as an empty cell,
// which is distinct from a stage that produced zero reads.
package provenance

import (
	"errors"
	"fmt"

	"gopkg.in/guregu/null.v3"
)

// ErrAttrition reports a later stage holding more reads than an earlier one.
var ErrAttrition = errors.New("read attrition invariant violated")

const (
	StatusOK       = "ok"
	StatusExcluded = "excluded"
	StatusFailed   = "failed"
	StatusPartial  = "partial"
)

// FilterStat is one row of filter/<run>/filter-stats.tsv.
type FilterStat struct {
	Sample   string   `csv:"sample"`
	ReadsIn  null.Int `csv:"reads.in"`
	ReadsOut null.Int `csv:"reads.out"`
}

// Exclusion records a sample, or a raw file, that later stages skip.
type Exclusion struct {
	Sample string `csv:"sample"`
	Run    string `csv:"run"`
	Stage  string `csv:"stage"`
	Reason string `csv:"reason"`
}

// RunRow is one row of denoise/<run>/provenance.tsv. A failed sample keeps its
// row with Status failed and empty counters.
type RunRow struct {
	Sample        string   `csv:"sample"`
	DenoisedFRead null.Int `csv:"denoisedF.read"`
	DenoisedRRead null.Int `csv:"denoisedR.read"`
	MergedRead    null.Int `csv:"merged.read"`
	DenoisedFSeq  null.Int `csv:"denoisedF.seq"`
	DenoisedRSeq  null.Int `csv:"denoisedR.seq"`
	MergedSeq     null.Int `csv:"merged.seq"`
	Status        string   `csv:"status"`
	Error         string   `csv:"error"`
}

// NochimStat is one row of chimera/nochim.tsv, keyed by logical sample.
type NochimStat struct {
	Sample     string   `csv:"sample"`
	NochimRead null.Int `csv:"nochim.read"`
	NochimSeq  null.Int `csv:"nochim.seq"`
}

// FinalStat is one row of stats/final-stats.tsv.
type FinalStat struct {
	Sample        string   `csv:"sample"`
	ReadsIn       null.Int `csv:"reads.in"`
	ReadsOut      null.Int `csv:"reads.out"`
	DenoisedFRead null.Int `csv:"denoisedF.read"`
	DenoisedRRead null.Int `csv:"denoisedR.read"`
	MergedRead    null.Int `csv:"merged.read"`
	NochimRead    null.Int `csv:"nochim.read"`
	DenoisedFSeq  null.Int `csv:"denoisedF.seq"`
	DenoisedRSeq  null.Int `csv:"denoisedR.seq"`
	MergedSeq     null.Int `csv:"merged.seq"`
	NochimSeq     null.Int `csv:"nochim.seq"`
	Status        string   `csv:"status"`
}

// Validate checks reads.in >= reads.out >= max(denoisedF, denoisedR) >=
// merged >= nochim over the counters that are present.
func (s FinalStat) Validate() error {
	levels := []struct {
		names  []string
		values []null.Int
	}{
		{[]string{"reads.in"}, []null.Int{s.ReadsIn}},
		{[]string{"reads.out"}, []null.Int{s.ReadsOut}},
		{[]string{"denoisedF.read", "denoisedR.read"}, []null.Int{s.DenoisedFRead, s.DenoisedRRead}},
		{[]string{"merged.read"}, []null.Int{s.MergedRead}},
		{[]string{"nochim.read"}, []null.Int{s.NochimRead}},
	}

	bound := null.Int{}
	boundName := ""
	for _, level := range levels {
		levelMax := null.Int{}
		levelName := ""
		for i, v := range level.values {
			if !v.Valid {
				continue
			}
			if v.Int64 < 0 {
				return fmt.Errorf("%w: sample %s has negative %s (%d)", ErrAttrition, s.Sample, level.names[i], v.Int64)
			}
			if bound.Valid && v.Int64 > bound.Int64 {
				return fmt.Errorf("%w: sample %s has %s=%d above %s=%d", ErrAttrition, s.Sample, level.names[i], v.Int64, boundName, bound.Int64)
			}
			if !levelMax.Valid || v.Int64 > levelMax.Int64 {
				levelMax = v
				levelName = level.names[i]
			}
		}
		if levelMax.Valid {
			bound = levelMax
			boundName = levelName
		}
	}

	return nil
}

func nullInt(v int64) null.Int {
	return null.IntFrom(v)
}

func sum(a, b null.Int) null.Int {
	switch {
	case !a.Valid:
		return b
	case !b.Valid:
		return a
	}
	return null.IntFrom(a.Int64 + b.Int64)
}
