// metab-filter quality-filters and trims the reads of every run and publishes
// the per-sample read counts and the samples excluded for too few reads.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/benalric/MetaB-pipeline/filter"
	"github.com/benalric/MetaB-pipeline/pipeline"
	"github.com/benalric/MetaB-pipeline/report"
	"github.com/benalric/MetaB-pipeline/sampleset"

	_ "github.com/benalric/MetaB-pipeline/compileinfoprint"
)

func main() {
	fmt.Fprintf(os.Stderr, "%q\n", os.Args)

	flags := pipeline.RegisterFlags(flag.CommandLine)
	var only string
	flag.StringVar(&only, "run", "", "Optional. Filter only this run.")
	flag.Parse()

	if err := run(flags, only); err != nil {
		log.Fatalln(err)
	}
}

func run(flags *pipeline.Flags, only string) error {
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

	filterer, err := pipeline.Command("filter", cfg.Commands.Filter)
	if err != nil {
		return err
	}

	set, err := sampleset.Load(ctx, env.Store)
	if err != nil {
		return err
	}
	runs, err := pipeline.SelectRuns(set.Runs(), only)
	if err != nil {
		return err
	}

	stage := &filter.Stage{
		Filterer:    filterer,
		Store:       env.Store,
		FilteredDir: cfg.FilteredDir,
		MinReads:    cfg.MinReads,
		Options:     cfg.FilterOptions,
	}

	summary := report.New("filter")
	for _, r := range runs {
		log.Printf("Filtering run %s\n", r)
		res, err := stage.Run(ctx, r, set.Run(r))
		if err != nil {
			return fmt.Errorf("run %s: %w", r, err)
		}
		for _, stat := range res.Stats {
			if stat.ReadsIn.Valid && stat.ReadsOut.Valid {
				summary.Observe(stat.ReadsIn.Int64, stat.ReadsOut.Int64)
			}
		}
		summary.Processed += len(res.Stats)
		summary.Excluded += len(res.Excluded)
	}

	return summary.Fprint(os.Stderr)
}
