package provenance

import (
	"fmt"
	"sort"

	"github.com/benalric/MetaB-pipeline/asv"
	"gopkg.in/guregu/null.v3"
)

// Tracker accumulates the counters of every stage. Filter and per-run rows are
// keyed by sample; chimera rows are keyed by logical sample, since replicate
// halves are collapsed before chimera removal.
type Tracker struct {
	logical  map[string]string
	filter   map[string]FilterStat
	run      map[string]RunRow
	nochim   map[string]NochimStat
	excluded map[string]Exclusion

	// mergedSeq is the richness of each logical sample in the collapsed
	// merged table.
	mergedSeq map[string]int64
}

// NewTracker takes the sample to logical sample mapping of the resolved sample
// set. Samples that are not halves of a replicate map to themselves.
func NewTracker(logical map[string]string) *Tracker {
	return &Tracker{
		logical:  logical,
		filter:   make(map[string]FilterStat),
		run:      make(map[string]RunRow),
		nochim:   make(map[string]NochimStat),
		excluded: make(map[string]Exclusion),

		mergedSeq: make(map[string]int64),
	}
}

func (t *Tracker) known(sample string) error {
	if _, ok := t.logical[sample]; !ok {
		return fmt.Errorf("provenance for unknown sample %q", sample)
	}
	return nil
}

func (t *Tracker) AddFilterStats(rows ...FilterStat) error {
	for _, row := range rows {
		if err := t.known(row.Sample); err != nil {
			return err
		}
		if _, exists := t.filter[row.Sample]; exists {
			return fmt.Errorf("duplicate filter statistics for sample %q", row.Sample)
		}
		t.filter[row.Sample] = row
	}
	return nil
}

func (t *Tracker) AddExclusions(rows ...Exclusion) error {
	for _, row := range rows {
		if err := t.known(row.Sample); err != nil {
			return err
		}
		t.excluded[row.Sample] = row
	}
	return nil
}

func (t *Tracker) AddRunRows(rows ...RunRow) error {
	for _, row := range rows {
		if err := t.known(row.Sample); err != nil {
			return err
		}
		if _, exists := t.run[row.Sample]; exists {
			return fmt.Errorf("duplicate denoising provenance for sample %q", row.Sample)
		}
		if _, excluded := t.excluded[row.Sample]; excluded {
			return fmt.Errorf("excluded sample %q has denoising provenance", row.Sample)
		}
		t.run[row.Sample] = row
	}
	return nil
}

func (t *Tracker) AddNochim(rows ...NochimStat) error {
	logicals := make(map[string]bool)
	for _, l := range t.logical {
		logicals[l] = true
	}
	for _, row := range rows {
		if !logicals[row.Sample] {
			return fmt.Errorf("chimera statistics for unknown logical sample %q", row.Sample)
		}
		if _, exists := t.nochim[row.Sample]; exists {
			return fmt.Errorf("duplicate chimera statistics for sample %q", row.Sample)
		}
		t.nochim[row.Sample] = row
	}
	return nil
}

// AddMergedTable records the richness of every logical sample in the merged
// table, after replicate halves were collapsed.
func (t *Tracker) AddMergedTable(tab *asv.Table) {
	for _, sample := range tab.Samples() {
		t.mergedSeq[sample] = tab.SampleRichness(sample)
	}
}

func (t *Tracker) member(sample string) FinalStat {
	out := FinalStat{Sample: sample, Status: StatusOK}

	if f, ok := t.filter[sample]; ok {
		out.ReadsIn = f.ReadsIn
		out.ReadsOut = f.ReadsOut
	}
	if _, ok := t.excluded[sample]; ok {
		out.Status = StatusExcluded
	}
	if r, ok := t.run[sample]; ok {
		out.DenoisedFRead = r.DenoisedFRead
		out.DenoisedRRead = r.DenoisedRRead
		out.MergedRead = r.MergedRead
		out.DenoisedFSeq = r.DenoisedFSeq
		out.DenoisedRSeq = r.DenoisedRSeq
		out.MergedSeq = r.MergedSeq
		if r.Status == StatusFailed {
			out.Status = StatusFailed
		}
	}

	return out
}

// Members returns one row per sample, before replicate halves are collapsed,
// sorted by sample name. Chimera counters are absent at this level.
func (t *Tracker) Members() ([]FinalStat, error) {
	samples := make([]string, 0, len(t.logical))
	for s := range t.logical {
		samples = append(samples, s)
	}
	sort.Strings(samples)

	out := make([]FinalStat, 0, len(samples))
	for _, s := range samples {
		row := t.member(s)
		if err := row.Validate(); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Final returns one validated row per logical sample, sorted by name. The read
// counters of replicate halves are summed; a counter that no member produced
// stays empty. Distinct sequence counts do not add up across halves that share
// sequences: when more than one half was denoised, merged.seq is taken from
// the merged table and the denoised sequence counts are left empty.
func (t *Tracker) Final() ([]FinalStat, error) {
	members, err := t.Members()
	if err != nil {
		return nil, err
	}

	byLogical := make(map[string]*FinalStat)
	denoised := make(map[string]int)
	var names []string
	for _, m := range members {
		name := t.logical[m.Sample]
		agg, ok := byLogical[name]
		if !ok {
			agg = &FinalStat{Sample: name, Status: m.Status}
			byLogical[name] = agg
			names = append(names, name)
		} else if agg.Status != m.Status {
			agg.Status = StatusPartial
		}
		agg.ReadsIn = sum(agg.ReadsIn, m.ReadsIn)
		agg.ReadsOut = sum(agg.ReadsOut, m.ReadsOut)
		agg.DenoisedFRead = sum(agg.DenoisedFRead, m.DenoisedFRead)
		agg.DenoisedRRead = sum(agg.DenoisedRRead, m.DenoisedRRead)
		agg.MergedRead = sum(agg.MergedRead, m.MergedRead)
		agg.DenoisedFSeq = sum(agg.DenoisedFSeq, m.DenoisedFSeq)
		agg.DenoisedRSeq = sum(agg.DenoisedRSeq, m.DenoisedRSeq)
		agg.MergedSeq = sum(agg.MergedSeq, m.MergedSeq)
		if m.DenoisedFSeq.Valid || m.DenoisedRSeq.Valid || m.MergedSeq.Valid {
			denoised[name]++
		}
	}
	sort.Strings(names)

	out := make([]FinalStat, 0, len(names))
	for _, name := range names {
		agg := byLogical[name]
		if denoised[name] > 1 {
			agg.DenoisedFSeq = null.Int{}
			agg.DenoisedRSeq = null.Int{}
			agg.MergedSeq = null.Int{}
			if n, ok := t.mergedSeq[name]; ok {
				agg.MergedSeq = nullInt(n)
			}
		}
		if n, ok := t.nochim[name]; ok {
			agg.NochimRead = n.NochimRead
			agg.NochimSeq = n.NochimSeq
		}
		if err := agg.Validate(); err != nil {
			return nil, err
		}
		out = append(out, *agg)
	}

	return out, nil
}
