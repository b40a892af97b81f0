package sampleset

import (
	"context"
	"fmt"
	"log"
	"path"
	"regexp"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	metab "github.com/benalric/MetaB-pipeline"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/config"
	"github.com/benalric/MetaB-pipeline/provenance"
)

const ReasonEmptyFile = "empty-file"

type Resolver struct {
	ForwardDir    string
	ReverseDir    string
	ForwardSuffix string
	ReverseSuffix string

	// Files of MinFileBytes or fewer bytes are treated as failed sequencing
	// output and excluded.
	MinFileBytes int64

	RunPattern       *regexp.Regexp
	SamplePattern    *regexp.Regexp
	ReplicatePattern *regexp.Regexp

	Client *storage.Client
}

func NewResolver(cfg config.Config, client *storage.Client) (*Resolver, error) {
	runRe, err := cfg.RunRegexp()
	if err != nil {
		return nil, err
	}
	sampleRe, err := cfg.SampleRegexp()
	if err != nil {
		return nil, err
	}
	repRe, err := cfg.ReplicateRegexp()
	if err != nil {
		return nil, err
	}

	reverse := cfg.ReverseDir
	if reverse == "" {
		reverse = cfg.ForwardDir
	}

	return &Resolver{
		ForwardDir:       cfg.ForwardDir,
		ReverseDir:       reverse,
		ForwardSuffix:    cfg.ForwardSuffix,
		ReverseSuffix:    cfg.ReverseSuffix,
		MinFileBytes:     cfg.MinFileBytes,
		RunPattern:       runRe,
		SamplePattern:    sampleRe,
		ReplicatePattern: repRe,
		Client:           client,
	}, nil
}

// Resolve lists both directories and pairs the surviving files by position.
func (r *Resolver) Resolve(ctx context.Context) (*Set, []provenance.Exclusion, error) {
	if r.ForwardSuffix == r.ReverseSuffix && r.ForwardDir == r.ReverseDir {
		return nil, nil, fmt.Errorf("forward and reverse files cannot share both directory and suffix")
	}

	forward, err := metab.ListFiles(ctx, r.ForwardDir, r.Client)
	if err != nil {
		return nil, nil, err
	}
	reverse, err := metab.ListFiles(ctx, r.ReverseDir, r.Client)
	if err != nil {
		return nil, nil, err
	}

	return r.Pair(forward, reverse)
}

// Pair builds the sample set from already listed files.
func (r *Resolver) Pair(forwardFiles, reverseFiles []metab.FileInfo) (*Set, []provenance.Exclusion, error) {
	var excluded []provenance.Exclusion
	forward := r.keep(forwardFiles, r.ForwardSuffix, &excluded)
	reverse := r.keep(reverseFiles, r.ReverseSuffix, &excluded)

	if len(forward) != len(reverse) {
		return nil, excluded, fmt.Errorf("%w: %d forward files and %d reverse files", ErrPairingMismatch, len(forward), len(reverse))
	}

	samples := make([]Sample, 0, len(forward))
	for i := range forward {
		fname := r.sampleName(forward[i].Name, r.ForwardSuffix)
		rname := r.sampleName(reverse[i].Name, r.ReverseSuffix)
		if fname != rname {
			return nil, excluded, fmt.Errorf("%w: position %d pairs %s with %s", ErrPairingMismatch, i, forward[i].Name, reverse[i].Name)
		}

		run, err := r.run(strings.TrimSuffix(forward[i].Name, r.ForwardSuffix))
		if err != nil {
			return nil, excluded, err
		}

		logical, rep := fname, ""
		if r.ReplicatePattern != nil {
			if m := r.ReplicatePattern.FindStringSubmatch(fname); m != nil {
				logical = m[r.ReplicatePattern.SubexpIndex("logical")]
				rep = m[r.ReplicatePattern.SubexpIndex("rep")]
			}
		}

		samples = append(samples, Sample{
			Name:      fname,
			Run:       run,
			Logical:   logical,
			Replicate: rep,
			Forward:   forward[i].Path,
			Reverse:   reverse[i].Path,
		})
	}

	set, err := NewSet(samples)
	if err != nil {
		return nil, excluded, err
	}

	for _, sample := range set.samples {
		if other, ok := set.Sample(sample.Logical); ok && other.Name != sample.Name {
			return nil, excluded, fmt.Errorf("logical sample %s of %s is also the name of another sample", sample.Logical, sample.Name)
		}
	}

	return set, excluded, nil
}

// keep returns the files carrying suffix that are larger than MinFileBytes,
// sorted by sample name, and records the ones that were too small.
func (r *Resolver) keep(files []metab.FileInfo, suffix string, excluded *[]provenance.Exclusion) []metab.FileInfo {
	var out []metab.FileInfo
	for _, f := range files {
		if !strings.HasSuffix(f.Name, suffix) {
			continue
		}
		if f.Size <= r.MinFileBytes {
			run, _ := r.run(strings.TrimSuffix(f.Name, suffix))
			log.Printf("Excluding %s: %d bytes is at or below the %d byte minimum\n", f.Path, f.Size, r.MinFileBytes)
			*excluded = append(*excluded, provenance.Exclusion{
				Sample: r.sampleName(f.Name, suffix),
				Run:    run,
				Stage:  string(checkpoint.StageResolve),
				Reason: fmt.Sprintf("%s: %s has %d bytes", ReasonEmptyFile, path.Base(f.Path), f.Size),
			})
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.sampleName(out[i].Name, suffix) < r.sampleName(out[j].Name, suffix)
	})
	return out
}

func (r *Resolver) sampleName(file, suffix string) string {
	base := strings.TrimSuffix(file, suffix)
	if r.SamplePattern != nil {
		if m := r.SamplePattern.FindStringSubmatch(base); m != nil {
			return m[r.SamplePattern.SubexpIndex("sample")]
		}
	}
	return base
}

// run extracts the run token from a file name stripped of its read suffix.
func (r *Resolver) run(stem string) (string, error) {
	m := r.RunPattern.FindStringSubmatch(stem)
	if m == nil {
		return "", fmt.Errorf("%w: %s does not match %s", ErrRunPattern, stem, r.RunPattern)
	}
	run := m[r.RunPattern.SubexpIndex("run")]
	if run == "" {
		return "", fmt.Errorf("%w: %s yields an empty run token", ErrRunPattern, stem)
	}
	return run, nil
}
