// metab-merge combines the per-run sequence tables into one table, summing the
// replicate halves of every logical sample.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/benalric/MetaB-pipeline/filter"
	"github.com/benalric/MetaB-pipeline/merge"
	"github.com/benalric/MetaB-pipeline/pipeline"
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
	runs, err := filter.ActiveRuns(ctx, env.Store, set)
	if err != nil {
		return err
	}

	stage := &merge.Stage{Store: env.Store}
	tab, err := stage.Run(ctx, set, runs)
	if err != nil {
		return err
	}
	log.Printf("Merged %d runs into %d samples and %d variants\n", len(runs), len(tab.Samples()), len(tab.Variants()))

	summary := report.New("merge")
	summary.Processed = len(tab.Samples())
	return summary.Fprint(os.Stderr)
}
