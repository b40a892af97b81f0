// metab-table joins the chimera-free sequence table with its taxonomy and
// writes the final ASV table, keeping the variants that pass the abundance and
// occurrence thresholds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	metab "github.com/benalric/MetaB-pipeline"
	"github.com/benalric/MetaB-pipeline/pipeline"
	"github.com/benalric/MetaB-pipeline/report"
	"github.com/benalric/MetaB-pipeline/taxonomy"

	_ "github.com/benalric/MetaB-pipeline/compileinfoprint"
)

func main() {
	fmt.Fprintf(os.Stderr, "%q\n", os.Args)

	flags := pipeline.RegisterFlags(flag.CommandLine)
	var external string
	flag.StringVar(&external, "taxonomy", "", "Optional. Tab or comma delimited annotations (amplicon, taxonomy, rank, identity) to use instead of the classify stage's result. May be a gs:// path.")
	flag.Parse()

	if err := run(flags, external); err != nil {
		log.Fatalln(err)
	}
}

func run(flags *pipeline.Flags, external string) error {
	ctx := context.Background()

	cfg, err := flags.Config()
	if err != nil {
		return err
	}

	env, err := pipeline.Open(ctx, cfg, external)
	if err != nil {
		return err
	}
	defer env.Close()

	stage := &taxonomy.TableStage{
		Store: env.Store,
		Thresholds: taxonomy.Thresholds{
			MinAbundance:  cfg.MinAbundance,
			MinOccurrence: cfg.MinOccurrence,
		},
	}

	if external != "" {
		rs, err := metab.OpenSeeker(ctx, external, env.Client)
		if err != nil {
			return err
		}
		defer rs.Close()
		log.Printf("Reading annotations from %s\n", external)
		stage.External = rs
	}

	samples, records, err := stage.Run(ctx)
	if err != nil {
		return err
	}

	summary := report.New("table")
	summary.Processed = len(samples)
	log.Printf("Final table: %d samples, %d variants\n", len(samples), len(records))
	return summary.Fprint(os.Stderr)
}
