package asv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/carbocation/pfx"
)

const (
	ColAmplicon = "amplicon"
	ColSequence = "sequence"
)

// WriteTSV writes the wide form: one row per variant with its ID, sequence
// and one count column per sample.
func (t *Table) WriteTSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	header := append([]string{ColAmplicon, ColSequence}, t.samples...)
	if err := cw.Write(header); err != nil {
		return pfx.Err(err)
	}

	row := make([]string, len(header))
	for i, v := range t.variants {
		row[0] = string(v.ID)
		row[1] = v.Sequence
		for j, sample := range t.samples {
			row[j+2] = strconv.FormatInt(t.counts[i][sample], 10)
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

// ReadTable parses the wide form written by WriteTSV. Every amplicon ID is
// checked against the digest of its sequence, so a table from a different
// hashing scheme or a hand-edited sequence is rejected here rather than
// silently merged downstream.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("sequence table is empty")
	} else if err != nil {
		return nil, pfx.Err(err)
	}
	if len(header) < 2 || header[0] != ColAmplicon || header[1] != ColSequence {
		return nil, fmt.Errorf("sequence table header must start with %s, %s; got %v", ColAmplicon, ColSequence, header)
	}

	samples := header[2:]
	t := NewTable()
	for _, s := range samples {
		if t.HasSample(s) {
			return nil, fmt.Errorf("sequence table lists sample %s twice", s)
		}
		t.AddSample(s)
	}

	reg := NewRegistry()
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, pfx.Err(err)
		}

		id, seq := ID(row[0]), NormalizeSequence(row[1])
		if err := reg.AddWithID(id, seq); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, exists := t.variantIdx[id]; exists {
			return nil, fmt.Errorf("line %d: amplicon %s is listed twice", line, id)
		}

		i := t.addVariant(Variant{ID: id, Sequence: seq})
		for j, sample := range samples {
			c, err := strconv.ParseInt(row[j+2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, sample %s: %v", line, sample, err)
			}
			if c < 0 {
				return nil, fmt.Errorf("line %d, sample %s: negative count %d", line, sample, c)
			}
			if c > 0 {
				t.counts[i][sample] = c
			}
		}
	}

	return t, nil
}
