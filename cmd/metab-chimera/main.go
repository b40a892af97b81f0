// metab-chimera removes bimeric variants from the merged sequence table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/benalric/MetaB-pipeline/artifact"
	"github.com/benalric/MetaB-pipeline/chimera"
	"github.com/benalric/MetaB-pipeline/pipeline"
	"github.com/benalric/MetaB-pipeline/report"

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

	detector, err := pipeline.Command("remove_bimeras", cfg.Commands.RemoveBimeras)
	if err != nil {
		return err
	}

	merged, err := artifact.LoadTable(ctx, env.Store, artifact.MergedTable)
	if err != nil {
		return err
	}

	stage := &chimera.Stage{
		Detector: detector,
		Store:    env.Store,
		Method:   cfg.ChimeraMethod,
		Threads:  cfg.Threads,
	}
	res, err := stage.Run(ctx)
	if err != nil {
		return err
	}

	summary := report.New("chimera")
	for _, stat := range res.Stats {
		summary.Processed++
		if stat.NochimRead.Valid {
			summary.Observe(merged.SampleTotal(stat.Sample), stat.NochimRead.Int64)
		}
	}
	return summary.Fprint(os.Stderr)
}
