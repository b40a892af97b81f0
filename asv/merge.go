package asv

import "fmt"

// Merge unions per-run tables into one table keyed by variant ID. A sample
// that appears in several inputs must carry identical counts in each, which
// makes merging idempotent: the same run table supplied twice is counted once.
// Cells absent from an input are zero. The result is canonical, so the order
// of the inputs does not matter.
func Merge(tables ...*Table) (*Table, error) {
	reg := NewRegistry()
	out := NewTable()
	seen := make(map[string]map[ID]int64)

	for n, t := range tables {
		for _, v := range t.variants {
			if err := reg.AddWithID(v.ID, v.Sequence); err != nil {
				return nil, err
			}
		}

		for _, sample := range t.samples {
			col := t.column(sample)

			if prior, exists := seen[sample]; exists {
				if !sameColumn(prior, col) {
					return nil, fmt.Errorf("%w: sample %s differs in input table %d", ErrConflictingCell, sample, n)
				}
				continue
			}
			seen[sample] = col

			out.AddSample(sample)
			for id, c := range col {
				v, _ := t.Variant(id)
				out.counts[out.addVariant(v)][sample] = c
			}
		}

		// Variants with no reads in any sample are still part of the union
		for _, v := range t.variants {
			out.addVariant(v)
		}
	}

	out.Canonicalize()

	return out, nil
}

func sameColumn(a, b map[ID]int64) bool {
	if len(a) != len(b) {
		return false
	}
	for id, c := range a {
		if b[id] != c {
			return false
		}
	}
	return true
}

// CollapseReplicates sums the columns of replicate halves into their logical
// sample. logical maps a sample column to its logical sample; samples not in
// the map keep their own name. It must run after Merge so that a variant seen
// in only one half is still carried over.
func CollapseReplicates(t *Table, logical map[string]string) *Table {
	out := NewTable()
	for _, sample := range t.samples {
		out.AddSample(logicalName(logical, sample))
	}

	for i, v := range t.variants {
		j := out.addVariant(v)
		for sample, c := range t.counts[i] {
			out.counts[j][logicalName(logical, sample)] += c
		}
	}

	out.Canonicalize()

	return out
}

func logicalName(logical map[string]string, sample string) string {
	if name, exists := logical[sample]; exists && name != "" {
		return name
	}
	return sample
}
