// Package pipeline holds the set-up shared by every stage command: flags
// common to all stages, the configuration, the storage client, the checkpoint
// store and the optional ledger.
package pipeline

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/storage"
	metab "github.com/benalric/MetaB-pipeline"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/compileinfo"
	"github.com/benalric/MetaB-pipeline/config"
	"github.com/benalric/MetaB-pipeline/inference"
	"github.com/benalric/MetaB-pipeline/ledger"
	"github.com/davecgh/go-spew/spew"
)

// Flags are the options every stage command accepts. Non-empty values
// override the configuration file.
type Flags struct {
	ConfigPath string
	StoreRoot  string
	LedgerPath string
	Verbose    bool
}

func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "YAML configuration file. Defaults apply to every key it omits.")
	fs.StringVar(&f.StoreRoot, "store", "", "Checkpoint store root, a local directory or gs://bucket/prefix. Overrides store_root.")
	fs.StringVar(&f.LedgerPath, "ledger", "", "Optional sqlite file recording every published artifact. Overrides ledger_path.")
	fs.BoolVar(&f.Verbose, "verbose", false, "Print the resolved configuration before running.")
	return f
}

// Config loads the configuration file, applies the flag overrides and
// validates the result.
func (f *Flags) Config() (config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if f.StoreRoot != "" {
		cfg.StoreRoot = f.StoreRoot
	}
	if f.LedgerPath != "" {
		cfg.LedgerPath = f.LedgerPath
	}

	if cfg.StoreRoot, err = metab.ExpandHome(cfg.StoreRoot); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	if f.Verbose {
		spew.Fdump(os.Stderr, cfg)
	}

	return cfg, nil
}

// Env is what a stage needs besides its own collaborators.
type Env struct {
	Config config.Config
	Client *storage.Client
	Store  checkpoint.Store
	Ledger *ledger.Ledger
}

// Open creates the storage client if any configured path lives in Google
// Storage, opens the checkpoint store and wraps it with the ledger when one is
// configured. extraPaths are stage specific inputs that may need the client.
func Open(ctx context.Context, cfg config.Config, extraPaths ...string) (*Env, error) {
	env := &Env{Config: cfg}

	paths := append([]string{cfg.ForwardDir, cfg.ReverseDir, cfg.FilteredDir, cfg.StoreRoot}, extraPaths...)
	if metab.NeedsStorageClient(paths...) {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		env.Client = client
	}

	store, err := checkpoint.New(cfg.StoreRoot, env.Client)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Store = store

	if cfg.LedgerPath != "" {
		path, err := metab.ExpandHome(cfg.LedgerPath)
		if err != nil {
			env.Close()
			return nil, err
		}
		l, err := ledger.Open(path)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Ledger = l
		rec := ledger.NewRecorder(store, l, compileinfo.Get().Revision())
		log.Printf("Recording publications in %s as invocation %s\n", path, rec.Invocation())
		env.Store = rec
	}

	return env, nil
}

func (e *Env) Close() {
	if e.Ledger != nil {
		if err := e.Ledger.Close(); err != nil {
			log.Println(err)
		}
	}
	if e.Client != nil {
		if err := e.Client.Close(); err != nil {
			log.Println(err)
		}
	}
}

// Command builds the collaborator for one configured argv, naming the
// configuration key when it is missing.
func Command(key string, argv []string) (*inference.Command, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("commands.%s must be configured for this stage", key)
	}
	return inference.NewCommand(argv)
}

// Dereplicator returns the configured external dereplicator, or the built-in
// one when none is configured.
func (e *Env) Dereplicator() (inference.Dereplicator, error) {
	if len(e.Config.Commands.Dereplicate) == 0 {
		return inference.NativeDereplicator{Client: e.Client}, nil
	}
	return Command("dereplicate", e.Config.Commands.Dereplicate)
}

// SelectRuns narrows runs to only, if set. Asking for a run that is not
// among runs is an error.
func SelectRuns(runs []string, only string) ([]string, error) {
	if only == "" {
		return runs, nil
	}
	for _, run := range runs {
		if run == only {
			return []string{run}, nil
		}
	}
	return nil, fmt.Errorf("run %q is not among the runs %v", only, runs)
}
