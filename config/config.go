// Package config holds the single, immutable parameter set shared by every
// stage of the pipeline.
package config

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strings"

	metab "github.com/benalric/MetaB-pipeline"
	"github.com/carbocation/pfx"
	"gopkg.in/yaml.v3"
)

type PoolPolicy string

const (
	PoolPooled      PoolPolicy = "pooled"
	PoolPseudo      PoolPolicy = "pseudo"
	PoolIndependent PoolPolicy = "independent"
)

type ChimeraMethod string

const (
	ChimeraPooled    ChimeraMethod = "pooled"
	ChimeraConsensus ChimeraMethod = "consensus"
)

// FailurePolicy decides what happens to a run when one of its samples cannot
// be denoised.
type FailurePolicy string

const (
	FailureAbort  FailurePolicy = "abort"
	FailureRecord FailurePolicy = "record"
)

// Commands lists the argv of each external collaborator. An empty Dereplicate
// selects the built-in dereplicator.
type Commands struct {
	Filter        []string `yaml:"filter"`
	LearnErrors   []string `yaml:"learn_errors"`
	Dereplicate   []string `yaml:"dereplicate"`
	Denoise       []string `yaml:"denoise"`
	MergePairs    []string `yaml:"merge_pairs"`
	RemoveBimeras []string `yaml:"remove_bimeras"`
	Classify      []string `yaml:"classify"`
}

type Config struct {
	ForwardDir    string `yaml:"forward_dir"`
	ReverseDir    string `yaml:"reverse_dir"`
	ForwardSuffix string `yaml:"forward_suffix"`
	ReverseSuffix string `yaml:"reverse_suffix"`
	MinFileBytes  int64  `yaml:"min_file_bytes"`

	// RunPattern must carry a named group "run". SamplePattern, if set, must
	// carry a named group "sample"; otherwise the sample name is the file name
	// without its suffix.
	RunPattern    string `yaml:"run_pattern"`
	SamplePattern string `yaml:"sample_pattern"`

	// ReplicatePattern, if set, must carry the named groups "logical" and
	// "rep". Sample names matching it are halves of the logical sample.
	ReplicatePattern string `yaml:"replicate_pattern"`

	FilteredDir string `yaml:"filtered_dir"`
	StoreRoot   string `yaml:"store_root"`
	LedgerPath  string `yaml:"ledger_path"`

	MinReads      int64             `yaml:"min_reads"`
	FilterOptions map[string]string `yaml:"filter_options"`

	DenoisePool   PoolPolicy    `yaml:"denoise_pool"`
	ChimeraMethod ChimeraMethod `yaml:"chimera_method"`
	MinOverlap    int           `yaml:"min_overlap"`
	MaxMismatch   int           `yaml:"max_mismatch"`
	OnFailure     FailurePolicy `yaml:"on_sample_failure"`

	MinAbundance  int64 `yaml:"min_abundance"`
	MinOccurrence int64 `yaml:"min_occurrence"`

	RunConcurrency int `yaml:"run_concurrency"`

	TrainingSet   string  `yaml:"training_set"`
	MinConfidence float64 `yaml:"min_confidence"`
	Threads       int     `yaml:"threads"`

	Commands Commands `yaml:"commands"`
}

// Default returns the parameters used when no configuration file overrides
// them.
func Default() Config {
	return Config{
		ForwardSuffix:  "_R1.fastq.gz",
		ReverseSuffix:  "_R2.fastq.gz",
		MinFileBytes:   100,
		RunPattern:     `^(?P<run>[^_]+)_`,
		StoreRoot:      "checkpoints",
		FilteredDir:    "filtered",
		MinReads:       1000,
		DenoisePool:    PoolPooled,
		ChimeraMethod:  ChimeraPooled,
		MinOverlap:     12,
		MaxMismatch:    0,
		OnFailure:      FailureRecord,
		MinAbundance:   2,
		MinOccurrence:  1,
		RunConcurrency: runtime.NumCPU(),
		MinConfidence:  60,
		Threads:        1,
	}
}

// Load reads a YAML configuration on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	path, err := metab.ExpandHome(path)
	if err != nil {
		return cfg, err
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, pfx.Err(err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, pfx.Err(fmt.Errorf("%s: %v", path, err))
	}

	return cfg, nil
}

// Validate checks the parameters that every stage depends on. Stage specific
// requirements, such as a classifier command, are checked by the stage.
func (c Config) Validate() error {
	var problems []string

	if c.StoreRoot == "" {
		problems = append(problems, "store_root is required")
	}
	if c.MinFileBytes < 0 {
		problems = append(problems, "min_file_bytes must not be negative")
	}
	if c.MinReads < 0 {
		problems = append(problems, "min_reads must not be negative")
	}
	if c.MinAbundance < 0 || c.MinOccurrence < 0 {
		problems = append(problems, "min_abundance and min_occurrence must not be negative")
	}
	if c.MinOverlap < 1 {
		problems = append(problems, "min_overlap must be at least 1")
	}
	if c.RunConcurrency < 1 {
		problems = append(problems, "run_concurrency must be at least 1")
	}

	switch c.DenoisePool {
	case PoolPooled, PoolPseudo, PoolIndependent:
	default:
		problems = append(problems, fmt.Sprintf("unknown denoise_pool %q", c.DenoisePool))
	}
	switch c.ChimeraMethod {
	case ChimeraPooled, ChimeraConsensus:
	default:
		problems = append(problems, fmt.Sprintf("unknown chimera_method %q", c.ChimeraMethod))
	}
	switch c.OnFailure {
	case FailureAbort, FailureRecord:
	default:
		problems = append(problems, fmt.Sprintf("unknown on_sample_failure %q", c.OnFailure))
	}

	if _, err := c.RunRegexp(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.SampleRegexp(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.ReplicateRegexp(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}

func (c Config) RunRegexp() (*regexp.Regexp, error) {
	return compileWithGroups("run_pattern", c.RunPattern, false, "run")
}

// SampleRegexp returns nil if no sample pattern is configured.
func (c Config) SampleRegexp() (*regexp.Regexp, error) {
	return compileWithGroups("sample_pattern", c.SamplePattern, true, "sample")
}

// ReplicateRegexp returns nil if no replicate pattern is configured.
func (c Config) ReplicateRegexp() (*regexp.Regexp, error) {
	return compileWithGroups("replicate_pattern", c.ReplicatePattern, true, "logical", "rep")
}

func compileWithGroups(field, pattern string, optional bool, groups ...string) (*regexp.Regexp, error) {
	if pattern == "" {
		if optional {
			return nil, nil
		}
		return nil, fmt.Errorf("%s is required", field)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", field, err)
	}

	for _, group := range groups {
		if re.SubexpIndex(group) < 0 {
			return nil, fmt.Errorf("%s %q lacks the named group %q", field, pattern, group)
		}
	}

	return re, nil
}
