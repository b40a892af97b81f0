// metab-errors learns the forward and reverse error models of every run from
// its filtered reads.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/benalric/MetaB-pipeline/errmodel"
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
	flag.StringVar(&only, "run", "", "Optional. Learn the error models of only this run.")
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

	learner, err := pipeline.Command("learn_errors", cfg.Commands.LearnErrors)
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

	stage := &errmodel.Stage{
		Learner:     learner,
		Store:       env.Store,
		FilteredDir: cfg.FilteredDir,
	}

	summary := report.New("errors")
	for _, r := range runs {
		res, err := filter.Load(ctx, env.Store, r)
		if err != nil {
			return err
		}
		retained := res.Retained(set)

		log.Printf("Learning error models of run %s from %d samples\n", r, len(retained))
		if err := stage.Run(ctx, r, retained); err != nil {
			return fmt.Errorf("run %s: %w", r, err)
		}
		summary.Processed += len(retained)
		summary.Excluded += len(res.Excluded)
	}

	return summary.Fprint(os.Stderr)
}
