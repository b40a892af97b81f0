package merge

import (
	"context"
	"testing"

	"github.com/benalric/MetaB-pipeline/artifact"
	"github.com/benalric/MetaB-pipeline/asv"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/provenance"
	"github.com/benalric/MetaB-pipeline/sampleset"
	"gopkg.in/guregu/null.v3"
)

func publishRun(t *testing.T, store checkpoint.Store, run string, cells map[string]map[string]int64) {
	t.Helper()
	ctx := context.Background()

	tab := asv.NewTable()
	var rows []provenance.RunRow
	for sample, col := range cells {
		tab.AddSample(sample)
		var total int64
		for seq, c := range col {
			if _, err := tab.Add(sample, seq, c); err != nil {
				t.Fatal(err)
			}
			total += c
		}
		rows = append(rows, provenance.RunRow{Sample: sample, MergedRead: null.IntFrom(total), Status: provenance.StatusOK})
	}
	tab.Canonicalize()

	batch := checkpoint.NewBatch(store)
	if err := artifact.PublishTable(ctx, batch, artifact.RunTable(run), tab); err != nil {
		t.Fatal(err)
	}
	if err := artifact.Publish(ctx, batch, artifact.RunProvenance(run), &rows); err != nil {
		t.Fatal(err)
	}
	if err := batch.Commit(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestSameSequenceFromTwoRuns(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	set, err := sampleset.NewSet([]sampleset.Sample{
		{Name: "sample1", Run: "run1", Logical: "sample1"},
		{Name: "sample2", Run: "run2", Logical: "sample2"},
	})
	if err != nil {
		t.Fatal(err)
	}

	publishRun(t, store, "run1", map[string]map[string]int64{"sample1": {"ACGT": 5}})
	publishRun(t, store, "run2", map[string]map[string]int64{"sample2": {"ACGT": 3}})

	if _, err := (&Stage{Store: store}).Run(ctx, set, []string{"run1", "run2"}); err != nil {
		t.Fatal(err)
	}

	tab, err := artifact.LoadTable(ctx, store, artifact.MergedTable)
	if err != nil {
		t.Fatal(err)
	}
	if len(tab.Variants()) != 1 {
		t.Fatalf("Expected one variant, got %d", len(tab.Variants()))
	}
	id := asv.NewID("ACGT")
	if tab.Count(id, "sample1") != 5 || tab.Count(id, "sample2") != 3 || tab.Total(id) != 8 || tab.Occurrence(id) != 2 {
		t.Errorf("Unexpected ACGT row: sample1=%d sample2=%d total=%d occurrence=%d",
			tab.Count(id, "sample1"), tab.Count(id, "sample2"), tab.Total(id), tab.Occurrence(id))
	}
}

func TestReplicateHalvesAreSummed(t *testing.T) {
	set, err := sampleset.NewSet([]sampleset.Sample{
		{Name: "P1_S1_A", Run: "P1", Logical: "P1_S1", Replicate: "A"},
		{Name: "P1_S1_B", Run: "P1", Logical: "P1_S1", Replicate: "B"},
		{Name: "P2_S1", Run: "P2", Logical: "P2_S1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	p1 := asv.NewTable("P1_S1_A", "P1_S1_B")
	for _, cell := range []struct {
		s, seq string
		c      int64
	}{{"P1_S1_A", "AAAA", 4}, {"P1_S1_B", "AAAA", 6}, {"P1_S1_B", "CCCC", 2}} {
		if _, err := p1.Add(cell.s, cell.seq, cell.c); err != nil {
			t.Fatal(err)
		}
	}
	p2 := asv.NewTable("P2_S1")
	if _, err := p2.Add("P2_S1", "CCCC", 1); err != nil {
		t.Fatal(err)
	}

	ab, err := Tables(set, p1, p2)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := Tables(set, p2, p1)
	if err != nil {
		t.Fatal(err)
	}
	if !ab.Equal(ba) {
		t.Error("Merging in a different order produced a different table")
	}

	if got := ab.Samples(); len(got) != 2 || got[0] != "P1_S1" || got[1] != "P2_S1" {
		t.Errorf("Unexpected samples %v", got)
	}
	if ab.Count(asv.NewID("AAAA"), "P1_S1") != 10 {
		t.Errorf("Expected 10 AAAA reads, got %d", ab.Count(asv.NewID("AAAA"), "P1_S1"))
	}
	if ab.Count(asv.NewID("CCCC"), "P1_S1") != 2 {
		t.Errorf("A variant seen in one half only should be kept, got %d", ab.Count(asv.NewID("CCCC"), "P1_S1"))
	}
}

func TestUnknownColumnIsRejected(t *testing.T) {
	set, err := sampleset.NewSet([]sampleset.Sample{{Name: "a", Run: "r", Logical: "a"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Tables(set, asv.NewTable("b")); err == nil {
		t.Error("Expected an error for a column that is not a resolved sample")
	}
}
