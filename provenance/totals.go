package provenance

import (
	"fmt"

	"github.com/benalric/MetaB-pipeline/asv"
)

// CheckTableTotals verifies that no sample of tab holds more reads than its
// merged counter. Samples without a merged counter must have an empty column.
func CheckTableTotals(tab *asv.Table, rows []RunRow) error {
	merged := make(map[string]RunRow, len(rows))
	for _, row := range rows {
		merged[row.Sample] = row
	}

	for _, sample := range tab.Samples() {
		total := tab.SampleTotal(sample)
		row, ok := merged[sample]
		if !ok || !row.MergedRead.Valid {
			if total > 0 {
				return fmt.Errorf("%w: sample %s has %d reads in the sequence table but no merged counter", ErrAttrition, sample, total)
			}
			continue
		}
		if total > row.MergedRead.Int64 {
			return fmt.Errorf("%w: sample %s has %d reads in the sequence table above merged.read=%d", ErrAttrition, sample, total, row.MergedRead.Int64)
		}
	}

	return nil
}

// NochimFromTable derives the chimera stage counters from the filtered table.
func NochimFromTable(tab *asv.Table) []NochimStat {
	out := make([]NochimStat, 0, len(tab.Samples()))
	for _, sample := range tab.Samples() {
		out = append(out, NochimStat{
			Sample:     sample,
			NochimRead: nullInt(tab.SampleTotal(sample)),
			NochimSeq:  nullInt(tab.SampleRichness(sample)),
		})
	}
	return out
}
