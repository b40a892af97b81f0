package artifact

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/provenance"
	"gopkg.in/guregu/null.v3"
)

func TestTSVKeepsMissingCountersDistinctFromZero(t *testing.T) {
	rows := []provenance.RunRow{
		{Sample: "S1", DenoisedFRead: null.IntFrom(0), MergedRead: null.IntFrom(7), Status: provenance.StatusOK},
		{Sample: "S2", Status: provenance.StatusFailed, Error: "denoiser exited with status 1"},
	}

	var buf bytes.Buffer
	if err := WriteTSV(&buf, &rows); err != nil {
		t.Fatal(err)
	}

	header := strings.SplitN(buf.String(), "\n", 2)[0]
	if header != "sample\tdenoisedF.read\tdenoisedR.read\tmerged.read\tdenoisedF.seq\tdenoisedR.seq\tmerged.seq\tstatus\terror" {
		t.Errorf("Unexpected header %q", header)
	}

	var back []provenance.RunRow
	if err := ReadTSV(&buf, &back); err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(back))
	}
	if !back[0].DenoisedFRead.Valid || back[0].DenoisedFRead.Int64 != 0 {
		t.Errorf("Zero counter was not preserved: %v", back[0].DenoisedFRead)
	}
	if back[1].MergedRead.Valid {
		t.Errorf("Missing counter came back as %v", back[1].MergedRead)
	}
	if back[1].Error != rows[1].Error {
		t.Errorf("Expected error %q, got %q", rows[1].Error, back[1].Error)
	}
}

func TestReadTSVRejectsSchemaDrift(t *testing.T) {
	in := "sample\treads.in\nS1\t10\n"
	var rows []provenance.FilterStat
	if err := ReadTSV(strings.NewReader(in), &rows); err == nil {
		t.Error("Expected an error for a missing reads.out column")
	}
}

func TestEmptyArtifactHasHeader(t *testing.T) {
	store, err := checkpoint.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	batch := checkpoint.NewBatch(store)
	if err := Publish(ctx, batch, FilterExclusions("P1"), &[]provenance.Exclusion{}); err != nil {
		t.Fatal(err)
	}
	if err := batch.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	var rows []provenance.Exclusion
	if err := Load(ctx, store, FilterExclusions("P1"), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}
}

func TestLoadMissing(t *testing.T) {
	store, err := checkpoint.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var rows []provenance.FilterStat
	if err := Load(context.Background(), store, FilterStats("P1"), &rows); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	store, err := checkpoint.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	key := ErrorModel("P1", "F")

	batch := checkpoint.NewBatch(store)
	if err := PublishBlob(ctx, batch, key, []byte("model")); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadBlob(ctx, store, key); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Errorf("Expected an uncommitted blob to be invisible, got %v", err)
	}
	if err := batch.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	b, err := LoadBlob(ctx, store, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "model" {
		t.Errorf("Expected model, got %q", b)
	}
	if key.Path() != "errors/P1/F.err" {
		t.Errorf("Unexpected path %s", key.Path())
	}
}
