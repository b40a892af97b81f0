package provenance

import (
	"errors"
	"testing"

	"github.com/benalric/MetaB-pipeline/asv"
	"gopkg.in/guregu/null.v3"
)

func n(v int64) null.Int { return null.IntFrom(v) }

func TestValidateAttrition(t *testing.T) {
	cases := []struct {
		name string
		row  FinalStat
		ok   bool
	}{
		{"complete chain", FinalStat{Sample: "a", ReadsIn: n(100), ReadsOut: n(90), DenoisedFRead: n(80), DenoisedRRead: n(85), MergedRead: n(70), NochimRead: n(60)}, true},
		{"equal counters", FinalStat{Sample: "a", ReadsIn: n(10), ReadsOut: n(10), DenoisedFRead: n(10), DenoisedRRead: n(10), MergedRead: n(10), NochimRead: n(10)}, true},
		{"merged between denoised strands", FinalStat{Sample: "a", ReadsIn: n(100), ReadsOut: n(90), DenoisedFRead: n(50), DenoisedRRead: n(80), MergedRead: n(60)}, true},
		{"only filter counters", FinalStat{Sample: "a", ReadsIn: n(100), ReadsOut: n(5)}, true},
		{"nothing present", FinalStat{Sample: "a"}, true},
		{"out above in", FinalStat{Sample: "a", ReadsIn: n(10), ReadsOut: n(11)}, false},
		{"denoised above out", FinalStat{Sample: "a", ReadsIn: n(100), ReadsOut: n(50), DenoisedRRead: n(51)}, false},
		{"merged above both strands", FinalStat{Sample: "a", ReadsOut: n(100), DenoisedFRead: n(50), DenoisedRRead: n(60), MergedRead: n(61)}, false},
		{"nochim above merged", FinalStat{Sample: "a", MergedRead: n(10), NochimRead: n(11)}, false},
		{"missing counters do not hide a violation", FinalStat{Sample: "a", ReadsIn: n(10), NochimRead: n(11)}, false},
		{"negative", FinalStat{Sample: "a", ReadsIn: n(-1)}, false},
	}

	for _, c := range cases {
		err := c.row.Validate()
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && !errors.Is(err, ErrAttrition) {
			t.Errorf("%s: expected ErrAttrition, got %v", c.name, err)
		}
	}
}

func TestTrackerCollapsesReplicates(t *testing.T) {
	tr := NewTracker(map[string]string{
		"P1_S1_A": "P1_S1",
		"P1_S1_B": "P1_S1",
		"P1_S2":   "P1_S2",
	})

	if err := tr.AddFilterStats(
		FilterStat{Sample: "P1_S1_A", ReadsIn: n(100), ReadsOut: n(90)},
		FilterStat{Sample: "P1_S1_B", ReadsIn: n(50), ReadsOut: n(40)},
		FilterStat{Sample: "P1_S2", ReadsIn: n(30), ReadsOut: n(3)},
	); err != nil {
		t.Fatal(err)
	}
	if err := tr.AddExclusions(Exclusion{Sample: "P1_S2", Run: "P1", Stage: "filter", Reason: "reads.out below 10"}); err != nil {
		t.Fatal(err)
	}
	if err := tr.AddRunRows(
		RunRow{Sample: "P1_S1_A", DenoisedFRead: n(80), DenoisedRRead: n(80), MergedRead: n(70), MergedSeq: n(4), Status: StatusOK},
		RunRow{Sample: "P1_S1_B", Status: StatusFailed, Error: "boom"},
	); err != nil {
		t.Fatal(err)
	}
	if err := tr.AddNochim(NochimStat{Sample: "P1_S1", NochimRead: n(60), NochimSeq: n(3)}); err != nil {
		t.Fatal(err)
	}

	rows, err := tr.Final()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 logical samples, got %d", len(rows))
	}

	s1 := rows[0]
	if s1.Sample != "P1_S1" || s1.ReadsIn.Int64 != 150 || s1.ReadsOut.Int64 != 130 {
		t.Errorf("Unexpected filter counters %+v", s1)
	}
	if s1.MergedRead.Int64 != 70 || s1.NochimRead.Int64 != 60 {
		t.Errorf("Unexpected downstream counters %+v", s1)
	}
	if s1.Status != StatusPartial {
		t.Errorf("Expected partial status, got %s", s1.Status)
	}
	if s1.DenoisedFSeq.Valid {
		t.Errorf("A counter that no member produced should stay empty, got %v", s1.DenoisedFSeq)
	}

	s2 := rows[1]
	if s2.Status != StatusExcluded || s2.MergedRead.Valid || !s2.ReadsOut.Valid {
		t.Errorf("Unexpected excluded row %+v", s2)
	}
}

func TestTrackerDoesNotSumSequenceCounts(t *testing.T) {
	tr := NewTracker(map[string]string{"S1_A": "S1", "S1_B": "S1", "S2": "S2"})
	if err := tr.AddRunRows(
		RunRow{Sample: "S1_A", DenoisedFRead: n(10), DenoisedRRead: n(10), MergedRead: n(8), DenoisedFSeq: n(3), DenoisedRSeq: n(3), MergedSeq: n(2), Status: StatusOK},
		RunRow{Sample: "S1_B", DenoisedFRead: n(10), DenoisedRRead: n(10), MergedRead: n(9), DenoisedFSeq: n(2), DenoisedRSeq: n(2), MergedSeq: n(2), Status: StatusOK},
		RunRow{Sample: "S2", DenoisedFRead: n(5), DenoisedRRead: n(5), MergedRead: n(5), DenoisedFSeq: n(2), DenoisedRSeq: n(1), MergedSeq: n(1), Status: StatusOK},
	); err != nil {
		t.Fatal(err)
	}

	merged := asv.NewTable("S1", "S2")
	for _, cell := range []struct {
		s, seq string
		c      int64
	}{{"S1", "AAAA", 10}, {"S1", "CCCC", 5}, {"S1", "GGGG", 2}, {"S2", "AAAA", 5}} {
		if _, err := merged.Add(cell.s, cell.seq, cell.c); err != nil {
			t.Fatal(err)
		}
	}
	tr.AddMergedTable(merged)

	rows, err := tr.Final()
	if err != nil {
		t.Fatal(err)
	}

	s1 := rows[0]
	if s1.MergedRead.Int64 != 17 || s1.MergedSeq.Int64 != 3 {
		t.Errorf("Expected 17 merged reads in 3 sequences, got %+v", s1)
	}
	if s1.DenoisedFSeq.Valid || s1.DenoisedRSeq.Valid {
		t.Errorf("Expected empty denoised sequence counts for collapsed halves, got %+v", s1)
	}

	s2 := rows[1]
	if s2.DenoisedFSeq.Int64 != 2 || s2.DenoisedRSeq.Int64 != 1 || s2.MergedSeq.Int64 != 1 {
		t.Errorf("Unexpected single sample counts %+v", s2)
	}
}

func TestTrackerRejectsDownstreamRowsForExcludedSample(t *testing.T) {
	tr := NewTracker(map[string]string{"S1": "S1"})
	if err := tr.AddExclusions(Exclusion{Sample: "S1", Stage: "filter"}); err != nil {
		t.Fatal(err)
	}
	if err := tr.AddRunRows(RunRow{Sample: "S1", MergedRead: n(1)}); err == nil {
		t.Error("Expected an error for an excluded sample with denoising provenance")
	}
}

func TestTrackerSurfacesViolation(t *testing.T) {
	tr := NewTracker(map[string]string{"S1": "S1"})
	if err := tr.AddFilterStats(FilterStat{Sample: "S1", ReadsIn: n(10), ReadsOut: n(10)}); err != nil {
		t.Fatal(err)
	}
	if err := tr.AddRunRows(RunRow{Sample: "S1", DenoisedFRead: n(20)}); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Final(); !errors.Is(err, ErrAttrition) {
		t.Errorf("Expected ErrAttrition, got %v", err)
	}
}

func TestCheckTableTotals(t *testing.T) {
	tab := asv.NewTable("S1", "S2")
	if _, err := tab.Add("S1", "ACGT", 5); err != nil {
		t.Fatal(err)
	}

	rows := []RunRow{{Sample: "S1", MergedRead: n(5)}, {Sample: "S2"}}
	if err := CheckTableTotals(tab, rows); err != nil {
		t.Errorf("Unexpected error %v", err)
	}

	rows[0].MergedRead = n(4)
	if err := CheckTableTotals(tab, rows); !errors.Is(err, ErrAttrition) {
		t.Errorf("Expected ErrAttrition, got %v", err)
	}
}

func TestNochimFromTable(t *testing.T) {
	tab := asv.NewTable("S1", "S2")
	for _, cell := range []struct {
		s, seq string
		c      int64
	}{{"S1", "AAAA", 3}, {"S1", "CCCC", 2}, {"S2", "AAAA", 1}} {
		if _, err := tab.Add(cell.s, cell.seq, cell.c); err != nil {
			t.Fatal(err)
		}
	}

	got := NochimFromTable(tab)
	if len(got) != 2 || got[0].NochimRead.Int64 != 5 || got[0].NochimSeq.Int64 != 2 || got[1].NochimRead.Int64 != 1 {
		t.Errorf("Unexpected nochim rows %+v", got)
	}
}
