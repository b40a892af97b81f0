package asv

import (
	"errors"
	"fmt"
	"sort"

	"github.com/willf/bitset"
)

// ErrConflictingCell means two inputs disagree about the counts of the same
// sample, which happens when a sample was assigned to two runs.
var ErrConflictingCell = errors.New("conflicting counts for the same sample")

type Variant struct {
	ID       ID
	Sequence string
}

// Table is a sparse samples x variants count matrix. Only non-zero cells are
// stored; every sample column is kept even if it has no reads, so a sample
// with zero retained reads is distinguishable from an absent one.
type Table struct {
	samples   []string
	sampleIdx map[string]int

	variants   []Variant
	variantIdx map[ID]int

	// counts[variant index][sample] for non-zero cells
	counts []map[string]int64
}

func NewTable(samples ...string) *Table {
	t := &Table{
		sampleIdx:  make(map[string]int),
		variantIdx: make(map[ID]int),
	}
	for _, s := range samples {
		t.AddSample(s)
	}

	return t
}

// AddSample adds an (empty) sample column if it is not present yet.
func (t *Table) AddSample(sample string) {
	if _, exists := t.sampleIdx[sample]; exists {
		return
	}
	t.sampleIdx[sample] = len(t.samples)
	t.samples = append(t.samples, sample)
}

func (t *Table) HasSample(sample string) bool {
	_, exists := t.sampleIdx[sample]
	return exists
}

// addVariant returns the index of the variant, appending it in discovery
// order if it is new.
func (t *Table) addVariant(v Variant) int {
	if i, exists := t.variantIdx[v.ID]; exists {
		return i
	}
	t.variantIdx[v.ID] = len(t.variants)
	t.variants = append(t.variants, v)
	t.counts = append(t.counts, make(map[string]int64))

	return len(t.variants) - 1
}

// Add accumulates count reads of sequence into sample.
func (t *Table) Add(sample, sequence string, count int64) (ID, error) {
	if count < 0 {
		return "", fmt.Errorf("negative count %d for sample %s", count, sample)
	}
	sequence = NormalizeSequence(sequence)
	if sequence == "" {
		return "", fmt.Errorf("empty sequence for sample %s", sample)
	}

	v := Variant{ID: NewID(sequence), Sequence: sequence}
	t.AddSample(sample)
	i := t.addVariant(v)
	if count > 0 {
		t.counts[i][sample] += count
	}

	return v.ID, nil
}

// Samples returns the sample columns in table order.
func (t *Table) Samples() []string {
	out := make([]string, len(t.samples))
	copy(out, t.samples)
	return out
}

// Variants returns the variants in table order.
func (t *Table) Variants() []Variant {
	out := make([]Variant, len(t.variants))
	copy(out, t.variants)
	return out
}

func (t *Table) Variant(id ID) (Variant, bool) {
	i, exists := t.variantIdx[id]
	if !exists {
		return Variant{}, false
	}
	return t.variants[i], true
}

func (t *Table) Count(id ID, sample string) int64 {
	i, exists := t.variantIdx[id]
	if !exists {
		return 0
	}
	return t.counts[i][sample]
}

// Total is the abundance of a variant summed over samples.
func (t *Table) Total(id ID) int64 {
	i, exists := t.variantIdx[id]
	if !exists {
		return 0
	}
	var total int64
	for _, c := range t.counts[i] {
		total += c
	}
	return total
}

// OccurrenceSet marks, by sample column index, the samples where the variant
// has non-zero abundance.
func (t *Table) OccurrenceSet(id ID) *bitset.BitSet {
	set := bitset.New(uint(len(t.samples)))
	i, exists := t.variantIdx[id]
	if !exists {
		return set
	}
	for sample, c := range t.counts[i] {
		if c > 0 {
			set.Set(uint(t.sampleIdx[sample]))
		}
	}
	return set
}

// Occurrence is the number of samples with non-zero abundance of the variant.
func (t *Table) Occurrence(id ID) int64 {
	return int64(t.OccurrenceSet(id).Count())
}

// SampleTotal is the number of reads assigned to any variant in sample.
func (t *Table) SampleTotal(sample string) int64 {
	var total int64
	for _, col := range t.counts {
		total += col[sample]
	}
	return total
}

// SampleRichness is the number of variants with non-zero abundance in sample.
func (t *Table) SampleRichness(sample string) int64 {
	var n int64
	for _, col := range t.counts {
		if col[sample] > 0 {
			n++
		}
	}
	return n
}

// column returns the non-zero cells of sample keyed by variant ID.
func (t *Table) column(sample string) map[ID]int64 {
	out := make(map[ID]int64)
	for i, col := range t.counts {
		if c := col[sample]; c > 0 {
			out[t.variants[i].ID] = c
		}
	}
	return out
}

// Without returns a copy of the table with the given variants removed. Sample
// columns and the order of the remaining variants are kept.
func (t *Table) Without(ids map[ID]bool) *Table {
	out := NewTable(t.samples...)
	for i, v := range t.variants {
		if ids[v.ID] {
			continue
		}
		j := out.addVariant(v)
		for sample, c := range t.counts[i] {
			out.counts[j][sample] = c
		}
	}
	return out
}

// Canonicalize orders samples by name and variants by decreasing total
// abundance, ties broken by sequence. The result depends only on the cells,
// not on the order in which they were added.
func (t *Table) Canonicalize() {
	sort.Strings(t.samples)
	for i, s := range t.samples {
		t.sampleIdx[s] = i
	}

	totals := make(map[ID]int64, len(t.variants))
	for _, v := range t.variants {
		totals[v.ID] = t.Total(v.ID)
	}

	order := make([]int, len(t.variants))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := t.variants[order[a]], t.variants[order[b]]
		if totals[va.ID] != totals[vb.ID] {
			return totals[va.ID] > totals[vb.ID]
		}
		return va.Sequence < vb.Sequence
	})

	variants := make([]Variant, len(order))
	counts := make([]map[string]int64, len(order))
	for newPos, oldPos := range order {
		variants[newPos] = t.variants[oldPos]
		counts[newPos] = t.counts[oldPos]
		t.variantIdx[variants[newPos].ID] = newPos
	}
	t.variants = variants
	t.counts = counts
}

// Equal reports whether both tables hold the same samples, variants and
// cells in the same order.
func (t *Table) Equal(other *Table) bool {
	if len(t.samples) != len(other.samples) || len(t.variants) != len(other.variants) {
		return false
	}
	for i := range t.samples {
		if t.samples[i] != other.samples[i] {
			return false
		}
	}
	for i := range t.variants {
		if t.variants[i] != other.variants[i] {
			return false
		}
		if len(t.counts[i]) != len(other.counts[i]) {
			return false
		}
		for s, c := range t.counts[i] {
			if other.counts[i][s] != c {
				return false
			}
		}
	}
	return true
}
