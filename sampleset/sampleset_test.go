package sampleset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	metab "github.com/benalric/MetaB-pipeline"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/config"
)

func testResolver() *Resolver {
	return &Resolver{
		ForwardSuffix:    "_R1.fastq.gz",
		ReverseSuffix:    "_R2.fastq.gz",
		MinFileBytes:     100,
		RunPattern:       regexp.MustCompile(`^(?P<run>[^_]+)_`),
		ReplicatePattern: regexp.MustCompile(`^(?P<logical>.+)_(?P<rep>[AB])$`),
	}
}

func files(suffix string, names ...string) []metab.FileInfo {
	var out []metab.FileInfo
	for _, n := range names {
		out = append(out, metab.FileInfo{Path: "/raw/" + n + suffix, Name: n + suffix, Size: 1000})
	}
	return out
}

func TestPairingMismatch(t *testing.T) {
	r := testResolver()
	_, _, err := r.Pair(files("_R1.fastq.gz", "P1_A", "P1_B", "P1_C"), files("_R2.fastq.gz", "P1_A", "P1_B"))
	if !errors.Is(err, ErrPairingMismatch) {
		t.Errorf("Expected ErrPairingMismatch, got %v", err)
	}
}

func TestPairingNamesMustAgree(t *testing.T) {
	r := testResolver()
	_, _, err := r.Pair(files("_R1.fastq.gz", "P1_A", "P1_B"), files("_R2.fastq.gz", "P1_A", "P1_C"))
	if !errors.Is(err, ErrPairingMismatch) {
		t.Errorf("Expected ErrPairingMismatch, got %v", err)
	}
}

func TestRunPatternFailure(t *testing.T) {
	r := testResolver()
	_, _, err := r.Pair(files("_R1.fastq.gz", "norun"), files("_R2.fastq.gz", "norun"))
	if !errors.Is(err, ErrRunPattern) {
		t.Errorf("Expected ErrRunPattern, got %v", err)
	}
}

func TestRunPatternAppliesToTheStem(t *testing.T) {
	r := testResolver()
	// "norun_R1.fastq.gz" only matches the run pattern through its read suffix.
	_, _, err := r.Pair(files("_R1.fastq.gz", "P1_S1", "norun"), files("_R2.fastq.gz", "P1_S1", "norun"))
	if !errors.Is(err, ErrRunPattern) {
		t.Errorf("Expected ErrRunPattern, got %v", err)
	}
}

func TestPairSortsBySampleNameAcrossSuffixes(t *testing.T) {
	r := testResolver()
	r.ForwardSuffix = "_1.fq"
	r.ReverseSuffix = ".2.fq"
	r.ReplicatePattern = nil

	// Sorted as whole file names the two directories disagree:
	// "P1_A2_1.fq" < "P1_A_1.fq" but "P1_A.2.fq" < "P1_A2.2.fq".
	set, _, err := r.Pair(files("_1.fq", "P1_A", "P1_A2"), files(".2.fq", "P1_A2", "P1_A"))
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"P1_A", "P1_A2"} {
		s, ok := set.Sample(name)
		if !ok {
			t.Fatalf("Missing sample %s", name)
		}
		if s.Forward != "/raw/"+name+"_1.fq" || s.Reverse != "/raw/"+name+".2.fq" {
			t.Errorf("Sample %s paired %s with %s", name, s.Forward, s.Reverse)
		}
		if s.Run != "P1" {
			t.Errorf("Sample %s: expected run P1, got %q", name, s.Run)
		}
	}
}

func TestPairGroupsRunsAndReplicates(t *testing.T) {
	r := testResolver()
	fw := files("_R1.fastq.gz", "P2_S1", "P1_S1_B", "P1_S1_A", "P1_S2")
	rv := files("_R2.fastq.gz", "P1_S2", "P1_S1_A", "P2_S1", "P1_S1_B")
	fw = append(fw, metab.FileInfo{Path: "/raw/notes.txt", Name: "notes.txt", Size: 5000})

	set, excluded, err := r.Pair(fw, rv)
	if err != nil {
		t.Fatal(err)
	}
	if len(excluded) != 0 {
		t.Errorf("Expected no exclusions, got %+v", excluded)
	}

	var names []string
	for _, s := range set.Samples() {
		names = append(names, s.Name)
	}
	if got := strings.Join(names, ","); got != "P1_S1_A,P1_S1_B,P1_S2,P2_S1" {
		t.Errorf("Unexpected sample order %s", got)
	}

	if runs := set.Runs(); len(runs) != 2 || runs[0] != "P1" || runs[1] != "P2" {
		t.Errorf("Unexpected runs %v", runs)
	}
	if len(set.Run("P1")) != 3 {
		t.Errorf("Expected 3 samples in P1, got %d", len(set.Run("P1")))
	}

	s, _ := set.Sample("P1_S1_B")
	if s.Logical != "P1_S1" || s.Replicate != "B" || s.Reverse != "/raw/P1_S1_B_R2.fastq.gz" {
		t.Errorf("Unexpected sample %+v", s)
	}
	if set.Logical()["P1_S2"] != "P1_S2" {
		t.Errorf("A sample without replicate suffix should be its own logical sample")
	}
}

func TestSmallFilesAreExcluded(t *testing.T) {
	r := testResolver()
	fw := files("_R1.fastq.gz", "P1_A", "P1_B")
	rv := files("_R2.fastq.gz", "P1_A", "P1_B")
	fw[1].Size = 100
	rv[1].Size = 20

	set, excluded, err := r.Pair(fw, rv)
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 1 {
		t.Errorf("Expected 1 sample, got %d", set.Len())
	}
	if len(excluded) != 2 || excluded[0].Sample != "P1_B" || !strings.HasPrefix(excluded[0].Reason, ReasonEmptyFile) {
		t.Errorf("Unexpected exclusions %+v", excluded)
	}
}

func TestResolveAndReload(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"P1_S1_R1.fastq.gz", "P1_S1_R2.fastq.gz", "P1_S2_R1.fastq.gz", "P1_S2_R2.fastq.gz"} {
		if err := os.WriteFile(filepath.Join(dir, n), make([]byte, 200), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.ForwardDir = dir
	r, err := NewResolver(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	set, excluded, err := r.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 2 {
		t.Fatalf("Expected 2 samples, got %d", set.Len())
	}

	store, err := checkpoint.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := Publish(ctx, store, set, excluded); err != nil {
		t.Fatal(err)
	}
	back, err := Load(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if back.Len() != 2 {
		t.Fatalf("Expected 2 reloaded samples, got %d", back.Len())
	}
	s, ok := back.Sample("P1_S2")
	if !ok || s.Forward != filepath.Join(dir, "P1_S2_R1.fastq.gz") || s.Run != "P1" {
		t.Errorf("Unexpected reloaded sample %+v", s)
	}
}

func TestNewSetRejectsDuplicates(t *testing.T) {
	_, err := NewSet([]Sample{{Name: "a", Run: "r"}, {Name: "a", Run: "r"}})
	if err == nil {
		t.Error("Expected an error for duplicate sample names")
	}
}
