// Package artifact names the artifacts each stage publishes and reads and
// writes them as TSV. Reading a file whose columns do not match the row type
// is an error.
package artifact

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/benalric/MetaB-pipeline/asv"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
)

func init() {
	// A missing column is schema drift, not a zero value
	gocsv.FailIfUnmatchedStructTags = true
	gocsv.FailIfDoubleHeaderNames = true
}

var (
	Samples           = checkpoint.Key{Stage: checkpoint.StageResolve, Name: "samples.tsv"}
	ResolveExclusions = checkpoint.Key{Stage: checkpoint.StageResolve, Name: "exclusions.tsv"}
	MergedTable       = checkpoint.Key{Stage: checkpoint.StageMerge, Name: "seqtab.tsv"}
	NochimTable       = checkpoint.Key{Stage: checkpoint.StageChimera, Name: "seqtab_nochim.tsv"}
	NochimStats       = checkpoint.Key{Stage: checkpoint.StageChimera, Name: "nochim.tsv"}
	ChimeraRemoved    = checkpoint.Key{Stage: checkpoint.StageChimera, Name: "removed.tsv"}
	Taxonomy          = checkpoint.Key{Stage: checkpoint.StageTaxonomy, Name: "taxonomy.tsv"}
	FinalStats        = checkpoint.Key{Stage: checkpoint.StageStats, Name: "final-stats.tsv"}
	FinalTable        = checkpoint.Key{Stage: checkpoint.StageTable, Name: "asv-table.tsv"}
)

func FilterStats(run string) checkpoint.Key {
	return checkpoint.Key{Stage: checkpoint.StageFilter, Run: run, Name: "filter-stats.tsv"}
}

func FilterExclusions(run string) checkpoint.Key {
	return checkpoint.Key{Stage: checkpoint.StageFilter, Run: run, Name: "exclusions.tsv"}
}

// Strand is F or R.
func ErrorModel(run, strand string) checkpoint.Key {
	return checkpoint.Key{Stage: checkpoint.StageErrors, Run: run, Name: strand + ".err"}
}

func RunTable(run string) checkpoint.Key {
	return checkpoint.Key{Stage: checkpoint.StageDenoise, Run: run, Name: "seqtab.tsv"}
}

func RunProvenance(run string) checkpoint.Key {
	return checkpoint.Key{Stage: checkpoint.StageDenoise, Run: run, Name: "provenance.tsv"}
}

// WriteTSV writes a slice of tagged structs as a tab separated table.
func WriteTSV(w io.Writer, rows interface{}) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(cw)); err != nil {
		return pfx.Err(err)
	}
	return nil
}

// ReadTSV fills out, a pointer to a slice of tagged structs.
func ReadTSV(r io.Reader, out interface{}) error {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	if err := gocsv.UnmarshalCSV(cr, out); err != nil {
		return pfx.Err(err)
	}
	return nil
}

// Publish writes rows under key as part of batch.
func Publish(ctx context.Context, batch *checkpoint.Batch, key checkpoint.Key, rows interface{}) error {
	if err := batch.Publish(ctx, key, func(w io.Writer) error {
		return WriteTSV(w, rows)
	}); err != nil {
		return fmt.Errorf("publishing %s: %w", key, err)
	}
	return nil
}

// Load reads the committed artifact under key into out.
func Load(ctx context.Context, store checkpoint.Store, key checkpoint.Key, out interface{}) error {
	rc, err := checkpoint.Open(ctx, store, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := ReadTSV(rc, out); err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	return nil
}

// PublishBlob stores opaque bytes, such as an error model.
func PublishBlob(ctx context.Context, batch *checkpoint.Batch, key checkpoint.Key, blob []byte) error {
	if err := batch.Publish(ctx, key, func(w io.Writer) error {
		_, err := w.Write(blob)
		return err
	}); err != nil {
		return fmt.Errorf("publishing %s: %w", key, err)
	}
	return nil
}

func LoadBlob(ctx context.Context, store checkpoint.Store, key checkpoint.Key) ([]byte, error) {
	rc, err := checkpoint.Open(ctx, store, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return b, nil
}

// PublishTable writes a sequence table in its wide format.
func PublishTable(ctx context.Context, batch *checkpoint.Batch, key checkpoint.Key, tab *asv.Table) error {
	if err := batch.Publish(ctx, key, tab.WriteTSV); err != nil {
		return fmt.Errorf("publishing %s: %w", key, err)
	}
	return nil
}

func LoadTable(ctx context.Context, store checkpoint.Store, key checkpoint.Key) (*asv.Table, error) {
	rc, err := checkpoint.Open(ctx, store, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	tab, err := asv.ReadTable(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return tab, nil
}
