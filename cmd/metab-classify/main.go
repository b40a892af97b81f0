// metab-classify assigns a taxonomy to every variant of the chimera-free
// sequence table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/benalric/MetaB-pipeline/pipeline"
	"github.com/benalric/MetaB-pipeline/report"
	"github.com/benalric/MetaB-pipeline/taxonomy"

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
	if cfg.TrainingSet == "" {
		return fmt.Errorf("training_set must be configured")
	}

	env, err := pipeline.Open(ctx, cfg, cfg.TrainingSet)
	if err != nil {
		return err
	}
	defer env.Close()

	classifier, err := pipeline.Command("classify", cfg.Commands.Classify)
	if err != nil {
		return err
	}

	stage := &taxonomy.ClassifyStage{
		Classifier:    classifier,
		Store:         env.Store,
		TrainingSet:   cfg.TrainingSet,
		MinConfidence: cfg.MinConfidence,
		Threads:       cfg.Threads,
	}
	rows, err := stage.Run(ctx)
	if err != nil {
		return err
	}

	summary := report.New("classify")
	for _, row := range rows {
		if row.Taxonomy == "" {
			summary.Failed++
			continue
		}
		summary.Processed++
	}
	return summary.Fprint(os.Stderr)
}
