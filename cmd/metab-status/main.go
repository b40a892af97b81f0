// metab-status prints what the ledger knows about the published artifacts:
// the latest publication of each, or the full history of one stage.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/benalric/MetaB-pipeline/ledger"
	"github.com/benalric/MetaB-pipeline/pipeline"

	_ "github.com/benalric/MetaB-pipeline/compileinfoprint"
)

// Buffered STDOUT
var STDOUT = bufio.NewWriterSize(os.Stdout, 4096*8)

func main() {
	defer STDOUT.Flush()

	fmt.Fprintf(os.Stderr, "%q\n", os.Args)

	flags := pipeline.RegisterFlags(flag.CommandLine)
	var stage string
	flag.StringVar(&stage, "stage", "", "Optional. Print every publication of this stage instead of the latest of each artifact.")
	flag.Parse()

	if err := run(flags, stage); err != nil {
		STDOUT.Flush()
		log.Fatalln(err)
	}
}

func run(flags *pipeline.Flags, stage string) error {
	ctx := context.Background()

	cfg, err := flags.Config()
	if err != nil {
		return err
	}
	if cfg.LedgerPath == "" {
		flag.Usage()
		return fmt.Errorf("a ledger is required: pass -ledger or set ledger_path")
	}

	env, err := pipeline.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	var entries []ledger.Entry
	if stage != "" {
		entries, err = env.Ledger.History(stage)
	} else {
		entries, err = env.Ledger.Latest()
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(STDOUT, "stage\trun\tname\tgeneration\tbytes\tdigest\tbuild_commit\tpublished\tinvocation\tcurrent")
	for _, e := range entries {
		current, err := ledger.Current(ctx, env.Store, e)
		if err != nil {
			return err
		}
		fmt.Fprintf(STDOUT, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%t\n",
			e.Stage, e.Run, e.Name, e.Generation, e.Bytes, e.Digest, e.BuildCommit, e.PublishedAt().Format(time.RFC3339), e.Invocation, current)
	}

	return nil
}
