// Package bqexport flattens the final ASV table into one row per non-zero
// (amplicon, sample) cell, the shape BigQuery tables are queried in.
package bqexport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"cloud.google.com/go/bigquery"
	"github.com/benalric/MetaB-pipeline/taxonomy"
	"github.com/carbocation/pfx"
)

var header = []string{"amplicon", "sample", "count", "taxonomy", "rank", "identity"}

// Schema of the long table. identity is NULL for unclassified amplicons.
func Schema() bigquery.Schema {
	return bigquery.Schema{
		{Name: "amplicon", Type: bigquery.StringFieldType, Required: true},
		{Name: "sample", Type: bigquery.StringFieldType, Required: true},
		{Name: "count", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "taxonomy", Type: bigquery.StringFieldType},
		{Name: "rank", Type: bigquery.StringFieldType},
		{Name: "identity", Type: bigquery.FloatFieldType},
	}
}

// WriteLong writes the long table as TSV with a header line. It returns the
// number of data rows.
func WriteLong(w io.Writer, samples []string, records []taxonomy.Record) (int, error) {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write(header); err != nil {
		return 0, pfx.Err(err)
	}

	n := 0
	row := make([]string, len(header))
	for _, rec := range records {
		if len(rec.Counts) != len(samples) {
			return n, fmt.Errorf("amplicon %s has %d counts for %d samples", rec.ID, len(rec.Counts), len(samples))
		}
		for i, c := range rec.Counts {
			if c == 0 {
				continue
			}
			row[0] = string(rec.ID)
			row[1] = samples[i]
			row[2] = strconv.FormatInt(c, 10)
			row[3] = rec.Taxonomy
			row[4] = rec.Rank
			row[5] = rec.Identity.String()
			if err := cw.Write(row); err != nil {
				return n, pfx.Err(err)
			}
			n++
		}
	}

	cw.Flush()
	return n, pfx.Err(cw.Error())
}

// Destination names the BigQuery table to load into.
type Destination struct {
	Project string
	Dataset string
	Table   string

	// Replace truncates the table instead of appending to it.
	Replace bool
}

// Load streams the TSV produced by WriteLong into BigQuery and waits for
// the load job to finish.
func Load(ctx context.Context, client *bigquery.Client, dst Destination, r io.Reader) error {
	src := bigquery.NewReaderSource(r)
	src.SourceFormat = bigquery.CSV
	src.FieldDelimiter = "\t"
	src.SkipLeadingRows = 1
	src.Schema = Schema()

	loader := client.DatasetInProject(dst.Project, dst.Dataset).Table(dst.Table).LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.WriteAppend
	if dst.Replace {
		loader.WriteDisposition = bigquery.WriteTruncate
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return pfx.Err(err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return pfx.Err(err)
	}
	if err := status.Err(); err != nil {
		return pfx.Err(fmt.Errorf("loading %s.%s.%s: %v", dst.Project, dst.Dataset, dst.Table, err))
	}

	return nil
}
