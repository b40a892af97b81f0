// metab-stats joins the counters of every stage into the final per-sample
// statistics and checks that no stage gained reads.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/benalric/MetaB-pipeline/audit"
	"github.com/benalric/MetaB-pipeline/pipeline"
	"github.com/benalric/MetaB-pipeline/provenance"
	"github.com/benalric/MetaB-pipeline/report"
	"github.com/benalric/MetaB-pipeline/sampleset"

	_ "github.com/benalric/MetaB-pipeline/compileinfoprint"
)

func main() {
	fmt.Fprintf(os.Stderr, "%q\n", os.Args)

	flags := pipeline.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := run(flags); err != nil {
		log.Fatalln(err)
	}
}

func run(flags *pipeline.Flags) error {
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

	set, err := sampleset.Load(ctx, env.Store)
	if err != nil {
		return err
	}

	stage := &audit.Stage{Store: env.Store}
	rows, err := stage.Run(ctx, set)
	if err != nil {
		return err
	}

	summary := report.New("stats")
	for _, row := range rows {
		switch row.Status {
		case provenance.StatusExcluded:
			summary.Excluded++
		case provenance.StatusFailed:
			summary.Failed++
		default:
			summary.Processed++
		}
		if row.ReadsIn.Valid && row.NochimRead.Valid {
			summary.Observe(row.ReadsIn.Int64, row.NochimRead.Int64)
		}
	}
	return summary.Fprint(os.Stderr)
}
