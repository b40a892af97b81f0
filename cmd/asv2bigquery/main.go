// asv2bigquery converts the final ASV table to one row per (amplicon, sample)
// pair. The rows are printed as TSV, or loaded straight into BigQuery when a
// destination table is given.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/benalric/MetaB-pipeline/bqexport"
	"github.com/benalric/MetaB-pipeline/pipeline"
	"github.com/benalric/MetaB-pipeline/taxonomy"

	_ "github.com/benalric/MetaB-pipeline/compileinfoprint"
)

// Buffered STDOUT
var STDOUT = bufio.NewWriterSize(os.Stdout, 4096*32)

func main() {
	defer STDOUT.Flush()

	fmt.Fprintf(os.Stderr, "%q\n", os.Args)

	flags := pipeline.RegisterFlags(flag.CommandLine)
	var dst bqexport.Destination
	flag.StringVar(&dst.Project, "project", "", "Optional. BigQuery project to load into. Without it the rows are printed to STDOUT.")
	flag.StringVar(&dst.Dataset, "dataset", "", "BigQuery dataset, required with -project.")
	flag.StringVar(&dst.Table, "table", "", "BigQuery table, required with -project.")
	flag.BoolVar(&dst.Replace, "replace", false, "Truncate the BigQuery table instead of appending to it.")
	flag.Parse()

	if dst.Project != "" && (dst.Dataset == "" || dst.Table == "") {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(flags, dst); err != nil {
		STDOUT.Flush()
		log.Fatalln(err)
	}
}

func run(flags *pipeline.Flags, dst bqexport.Destination) error {
	ctx := context.Background()

	cfg, err := flags.Config()
	if err != nil {
		return err
	}

	env, err := pipeline.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	samples, records, err := taxonomy.LoadTable(ctx, env.Store)
	if err != nil {
		return err
	}

	if dst.Project == "" {
		n, err := bqexport.WriteLong(STDOUT, samples, records)
		if err != nil {
			return err
		}
		log.Printf("Printed %d rows\n", n)
		return nil
	}

	var buf bytes.Buffer
	n, err := bqexport.WriteLong(&buf, samples, records)
	if err != nil {
		return err
	}

	client, err := bigquery.NewClient(ctx, dst.Project)
	if err != nil {
		return err
	}
	defer client.Close()

	log.Printf("Loading %d rows into %s:%s.%s\n", n, dst.Project, dst.Dataset, dst.Table)
	return bqexport.Load(ctx, client, dst, &buf)
}
