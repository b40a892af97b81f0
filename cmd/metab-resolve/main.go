// metab-resolve pairs the forward and reverse read files, assigns every pair
// to its sequencing run and publishes the resolved sample set.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

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
	if cfg.ForwardDir == "" {
		flag.Usage()
		return fmt.Errorf("forward_dir must be configured")
	}

	env, err := pipeline.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	resolver, err := sampleset.NewResolver(cfg, env.Client)
	if err != nil {
		return err
	}

	set, excluded, err := resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	for _, ex := range excluded {
		log.Printf("Excluding %s: %s\n", ex.Sample, ex.Reason)
	}

	if err := sampleset.Publish(ctx, env.Store, set, excluded); err != nil {
		return err
	}

	for _, r := range set.Runs() {
		log.Printf("Run %s: %d samples\n", r, len(set.Run(r)))
	}

	summary := report.New("resolve")
	summary.Processed = set.Len()
	summary.Excluded = len(excluded)
	return summary.Fprint(os.Stderr)
}
