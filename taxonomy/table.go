package taxonomy

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/benalric/MetaB-pipeline/asv"
	"github.com/carbocation/pfx"
)

// Record is one row of the final ASV table.
type Record struct {
	ID         asv.ID
	Taxonomy   string
	Rank       string
	Identity   Identity
	Sequence   string
	Total      int64
	Occurrence int64
	Counts     []int64
}

// Thresholds are inclusive minimums on total abundance and occurrence.
type Thresholds struct {
	MinAbundance  int64
	MinOccurrence int64
}

func (th Thresholds) Keep(total, occurrence int64) bool {
	return total >= th.MinAbundance && occurrence >= th.MinOccurrence
}

// Build joins annotations onto the variants of tab, drops the variants below
// the thresholds and orders the rest by decreasing total abundance. Ties keep
// the variant order of tab. Variants without an annotation are kept
// unclassified.
func Build(tab *asv.Table, annotations map[asv.ID]Annotation, th Thresholds) []Record {
	samples := tab.Samples()

	var out []Record
	for _, v := range tab.Variants() {
		total := tab.Total(v.ID)
		occurrence := tab.Occurrence(v.ID)
		if !th.Keep(total, occurrence) {
			continue
		}

		rec := Record{
			ID:         v.ID,
			Sequence:   v.Sequence,
			Total:      total,
			Occurrence: occurrence,
			Counts:     make([]int64, len(samples)),
		}
		if a, ok := annotations[v.ID]; ok {
			rec.Taxonomy = a.Taxonomy
			rec.Rank = a.Rank
			rec.Identity = a.Identity
		}
		for i, sample := range samples {
			rec.Counts[i] = tab.Count(v.ID, sample)
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total > out[j].Total
	})

	return out
}

var finalColumns = []string{"amplicon", "taxonomy", "rank", "identity", "sequence", "total", "occurrence"}

// WriteTable writes the final ASV table with one count column per sample.
func WriteTable(w io.Writer, samples []string, records []Record) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	header := append(append([]string{}, finalColumns...), samples...)
	if err := cw.Write(header); err != nil {
		return pfx.Err(err)
	}

	row := make([]string, len(header))
	for _, rec := range records {
		row[0] = string(rec.ID)
		row[1] = rec.Taxonomy
		row[2] = rec.Rank
		row[3] = rec.Identity.String()
		row[4] = rec.Sequence
		row[5] = strconv.FormatInt(rec.Total, 10)
		row[6] = strconv.FormatInt(rec.Occurrence, 10)
		for i, c := range rec.Counts {
			row[len(finalColumns)+i] = strconv.FormatInt(c, 10)
		}
		if err := cw.Write(row); err != nil {
			return pfx.Err(err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

// ReadTable parses a table written by WriteTable.
func ReadTable(r io.Reader) ([]string, []Record, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'

	header, err := cr.Read()
	if err != nil {
		return nil, nil, pfx.Err(err)
	}
	if len(header) < len(finalColumns) {
		return nil, nil, fmt.Errorf("final table header has %d columns, expected at least %d", len(header), len(finalColumns))
	}
	for i, col := range finalColumns {
		if header[i] != col {
			return nil, nil, fmt.Errorf("final table column %d is %q, expected %q", i+1, header[i], col)
		}
	}
	samples := header[len(finalColumns):]

	var out []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, nil, pfx.Err(err)
		}

		rec := Record{
			ID:       asv.ID(row[0]),
			Taxonomy: row[1],
			Rank:     row[2],
			Sequence: row[4],
			Counts:   make([]int64, len(samples)),
		}
		if err := rec.Identity.UnmarshalCSV(row[3]); err != nil {
			return nil, nil, fmt.Errorf("line %d: identity: %v", line, err)
		}
		if rec.Total, err = strconv.ParseInt(row[5], 10, 64); err != nil {
			return nil, nil, fmt.Errorf("line %d: total: %v", line, err)
		}
		if rec.Occurrence, err = strconv.ParseInt(row[6], 10, 64); err != nil {
			return nil, nil, fmt.Errorf("line %d: occurrence: %v", line, err)
		}
		for i := range samples {
			if rec.Counts[i], err = strconv.ParseInt(row[len(finalColumns)+i], 10, 64); err != nil {
				return nil, nil, fmt.Errorf("line %d, sample %s: %v", line, samples[i], err)
			}
		}
		out = append(out, rec)
	}

	return samples, out, nil
}
