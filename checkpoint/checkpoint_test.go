package checkpoint

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func readAll(t *testing.T, s Store, key Key) string {
	t.Helper()
	rc, err := s.Open(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestPublishAndOpen(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	key := Key{Stage: StageDenoise, Run: "run1", Name: "seqtab.tsv"}
	if err := s.Publish(ctx, key, func(w io.Writer) error {
		_, err := io.WriteString(w, "first")
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, s, key); got != "first" {
		t.Errorf("Got %q", got)
	}

	// Re-running a stage replaces its artifact
	if err := s.Publish(ctx, key, func(w io.Writer) error {
		_, err := io.WriteString(w, "second")
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, s, key); got != "second" {
		t.Errorf("Got %q", got)
	}
}

func TestFailedPublishLeavesPriorArtifact(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStore(root)
	if err != nil {
		t.Fatal(err)
	}

	key := Key{Stage: StageMerge, Name: "seqtab.tsv"}
	if err := s.Publish(ctx, key, func(w io.Writer) error {
		_, err := io.WriteString(w, "good")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err = s.Publish(ctx, key, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the write error, got %v", err)
	}
	if got := readAll(t, s, key); got != "good" {
		t.Errorf("Prior artifact was replaced by %q", got)
	}

	entries, err := os.ReadDir(filepath.Join(root, string(StageMerge)))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Temporary files were left behind: %v", entries)
	}
}

func TestFailedFirstPublishLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	key := Key{Stage: StageChimera, Name: "seqtab_nochim.tsv"}
	_ = s.Publish(ctx, key, func(w io.Writer) error { return errors.New("detector failed") })

	if ok, err := s.Exists(ctx, key); err != nil || ok {
		t.Errorf("Expected no artifact, got exists=%v err=%v", ok, err)
	}
	if _, err := s.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestKeyValidate(t *testing.T) {
	for _, key := range []Key{
		{Stage: StageMerge},
		{Stage: StageMerge, Run: "..", Name: "x"},
		{Stage: StageMerge, Run: "a/b", Name: "x"},
	} {
		if err := key.Validate(); err == nil {
			t.Errorf("Expected %+v to be rejected", key)
		}
	}

	if p := (Key{Stage: StageErrors, Run: "run1", Name: "F.err"}).Path(); p != "errors/run1/F.err" {
		t.Errorf("Got path %s", p)
	}
}
