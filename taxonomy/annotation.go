// Package taxonomy attaches taxonomic calls to variants and builds the final,
// threshold-filtered ASV table.
package taxonomy

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	metab "github.com/benalric/MetaB-pipeline"
	"github.com/benalric/MetaB-pipeline/asv"
	"github.com/benalric/MetaB-pipeline/inference"
	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"gopkg.in/guregu/null.v3"
)

// PathSeparator joins taxon and rank paths.
const PathSeparator = "|"

// Identity is a confidence percentage written with one decimal, or an empty
// cell for unclassified variants.
type Identity struct {
	null.Float
}

func IdentityFrom(v float64) Identity {
	return Identity{null.FloatFrom(v)}
}

func (i Identity) MarshalCSV() (string, error) {
	if !i.Valid {
		return "", nil
	}
	return strconv.FormatFloat(i.Float64, 'f', 1, 64), nil
}

func (i *Identity) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" {
		*i = Identity{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*i = IdentityFrom(v)
	return nil
}

func (i Identity) String() string {
	s, _ := i.MarshalCSV()
	return s
}

// Annotation is one row of taxonomy/taxonomy.tsv. Unclassified variants have
// empty Taxonomy, Rank and Identity.
type Annotation struct {
	Amplicon string   `csv:"amplicon"`
	Taxonomy string   `csv:"taxonomy"`
	Rank     string   `csv:"rank"`
	Identity Identity `csv:"identity"`
}

func unassigned(taxon string) bool {
	switch strings.TrimSpace(taxon) {
	case "", "NA", "unclassified":
		return true
	}
	return false
}

// FromAssignment flattens a classifier call. Ranks below the deepest assigned
// one are dropped and the identity is the confidence at that rank.
func FromAssignment(a inference.Assignment) (Annotation, error) {
	if len(a.Ranks) != len(a.Taxa) || len(a.Confidence) != len(a.Taxa) {
		return Annotation{}, fmt.Errorf("assignment of %s has %d taxa, %d ranks and %d confidences", a.Sequence, len(a.Taxa), len(a.Ranks), len(a.Confidence))
	}

	out := Annotation{Amplicon: string(asv.NewID(a.Sequence))}

	depth := 0
	for depth < len(a.Taxa) && !unassigned(a.Taxa[depth]) {
		depth++
	}
	if depth == 0 {
		return out, nil
	}

	out.Taxonomy = strings.Join(a.Taxa[:depth], PathSeparator)
	out.Rank = strings.Join(a.Ranks[:depth], PathSeparator)
	out.Identity = IdentityFrom(a.Confidence[depth-1])

	return out, nil
}

// Index keys annotations by amplicon and rejects duplicates.
func Index(rows []Annotation) (map[asv.ID]Annotation, error) {
	out := make(map[asv.ID]Annotation, len(rows))
	for _, row := range rows {
		id := asv.ID(row.Amplicon)
		if _, exists := out[id]; exists {
			return nil, fmt.Errorf("amplicon %s is annotated more than once", row.Amplicon)
		}
		out[id] = row
	}
	return out, nil
}

// ReadExternal reads a taxonomy result produced outside the pipeline, either
// tab or comma separated, with the columns amplicon, taxonomy, rank and
// identity.
func ReadExternal(r io.ReadSeeker) ([]Annotation, error) {
	delim, err := metab.DetermineDelimiter(r)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.LazyQuotes = true

	var rows []Annotation
	if err := gocsv.UnmarshalCSV(cr, &rows); err != nil {
		return nil, pfx.Err(err)
	}
	return rows, nil
}
