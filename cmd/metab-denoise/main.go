// metab-denoise dereplicates, denoises and merges the read pairs of every run
// and publishes one sequence table and one provenance table per run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/benalric/MetaB-pipeline/filter"
	"github.com/benalric/MetaB-pipeline/pipeline"
	"github.com/benalric/MetaB-pipeline/provenance"
	"github.com/benalric/MetaB-pipeline/report"
	"github.com/benalric/MetaB-pipeline/runproc"
	"github.com/benalric/MetaB-pipeline/sampleset"

	_ "github.com/benalric/MetaB-pipeline/compileinfoprint"
)

func main() {
	fmt.Fprintf(os.Stderr, "%q\n", os.Args)

	flags := pipeline.RegisterFlags(flag.CommandLine)
	var only string
	flag.StringVar(&only, "run", "", "Optional. Process only this run.")
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

	derep, err := env.Dereplicator()
	if err != nil {
		return err
	}
	denoiser, err := pipeline.Command("denoise", cfg.Commands.Denoise)
	if err != nil {
		return err
	}
	merger, err := pipeline.Command("merge_pairs", cfg.Commands.MergePairs)
	if err != nil {
		return err
	}

	set, err := sampleset.Load(ctx, env.Store)
	if err != nil {
		return err
	}
	active, err := filter.ActiveRuns(ctx, env.Store, set)
	if err != nil {
		return err
	}
	runs, err := pipeline.SelectRuns(active, only)
	if err != nil {
		return err
	}

	stage := &runproc.Stage{
		Processor:   runproc.New(cfg, derep, denoiser, merger),
		Store:       env.Store,
		Concurrency: cfg.RunConcurrency,
	}

	results, runErr := stage.RunAll(ctx, set, runs)

	summary := report.New("denoise")
	for _, res := range results {
		for _, row := range res.Rows {
			summary.Processed++
			if row.Status == provenance.StatusFailed {
				continue
			}
			before := row.DenoisedFRead
			if row.DenoisedRRead.Valid && (!before.Valid || row.DenoisedRRead.Int64 > before.Int64) {
				before = row.DenoisedRRead
			}
			if before.Valid && row.MergedRead.Valid {
				summary.Observe(before.Int64, row.MergedRead.Int64)
			}
		}
		summary.Failed += res.Failed
	}
	if err := summary.Fprint(os.Stderr); err != nil {
		return err
	}

	return runErr
}
