package taxonomy

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/benalric/MetaB-pipeline/artifact"
	"github.com/benalric/MetaB-pipeline/asv"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/chimera"
	"github.com/benalric/MetaB-pipeline/config"
	"github.com/benalric/MetaB-pipeline/inference"
	"github.com/benalric/MetaB-pipeline/inference/inferencetest"
)

type cell struct {
	sample, seq string
	count       int64
}

func table(t *testing.T, samples []string, cells []cell) *asv.Table {
	t.Helper()
	tab := asv.NewTable(samples...)
	for _, c := range cells {
		if _, err := tab.Add(c.sample, c.seq, c.count); err != nil {
			t.Fatal(err)
		}
	}
	tab.Canonicalize()
	return tab
}

func TestFromAssignment(t *testing.T) {
	a := inference.Assignment{
		Sequence:   "ACGT",
		Taxa:       []string{"Eukaryota", "Opisthokonta", "NA", "NA"},
		Ranks:      []string{"domain", "supergroup", "division", "class"},
		Confidence: []float64{100, 87.26, 40, 10},
	}
	ann, err := FromAssignment(a)
	if err != nil {
		t.Fatal(err)
	}
	if ann.Taxonomy != "Eukaryota|Opisthokonta" || ann.Rank != "domain|supergroup" || ann.Identity.String() != "87.3" {
		t.Errorf("Unexpected annotation %+v", ann)
	}
	if ann.Amplicon != string(asv.NewID("ACGT")) {
		t.Errorf("Unexpected amplicon %s", ann.Amplicon)
	}

	a.Taxa[0] = "NA"
	if ann, err = FromAssignment(a); err != nil || ann.Taxonomy != "" || ann.Identity.Valid {
		t.Errorf("Expected an unclassified annotation, got %+v (%v)", ann, err)
	}

	a.Ranks = a.Ranks[:1]
	if _, err := FromAssignment(a); err == nil {
		t.Error("Expected an error for mismatched path lengths")
	}
}

func TestBuildThresholdBoundary(t *testing.T) {
	tab := table(t, []string{"S1", "S2"}, []cell{
		{"S1", "AAAA", 3}, {"S2", "AAAA", 2},
		{"S1", "CCCC", 4},
		{"S1", "GGGG", 2}, {"S2", "GGGG", 2},
		{"S1", "TTTT", 1}, {"S2", "TTTT", 1},
	})

	records := Build(tab, nil, Thresholds{MinAbundance: 4, MinOccurrence: 2})

	var got []string
	for _, r := range records {
		got = append(got, r.Sequence)
	}
	if strings.Join(got, ",") != "AAAA,GGGG" {
		t.Errorf("Expected AAAA,GGGG, got %v", got)
	}
	if records[1].Total != 4 || records[1].Occurrence != 2 {
		t.Errorf("Unexpected GGGG record %+v", records[1])
	}
}

func TestBuildOrderAndJoin(t *testing.T) {
	tab := table(t, []string{"S1"}, []cell{
		{"S1", "TTTT", 5}, {"S1", "AAAA", 5}, {"S1", "CCCC", 9},
	})
	ann := map[asv.ID]Annotation{
		asv.NewID("CCCC"): {Amplicon: string(asv.NewID("CCCC")), Taxonomy: "Eukaryota", Rank: "domain", Identity: IdentityFrom(99)},
	}

	records := Build(tab, ann, Thresholds{})
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].Sequence != "CCCC" || records[0].Taxonomy != "Eukaryota" {
		t.Errorf("Unexpected first record %+v", records[0])
	}
	// Ties keep the table's order
	if records[1].Sequence != "AAAA" || records[2].Sequence != "TTTT" {
		t.Errorf("Unexpected tie order %s, %s", records[1].Sequence, records[2].Sequence)
	}
	if records[1].Taxonomy != "" || records[1].Identity.Valid {
		t.Errorf("A variant without annotation should be unclassified, got %+v", records[1])
	}
}

func TestWriteReadTable(t *testing.T) {
	records := []Record{{
		ID: asv.NewID("ACGT"), Taxonomy: "Eukaryota", Rank: "domain", Identity: IdentityFrom(97.04),
		Sequence: "ACGT", Total: 8, Occurrence: 2, Counts: []int64{5, 3},
	}}

	var buf bytes.Buffer
	if err := WriteTable(&buf, []string{"sample1", "sample2"}, records); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "amplicon\ttaxonomy\trank\tidentity\tsequence\ttotal\toccurrence\tsample1\tsample2" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "\t97.0\tACGT\t8\t2\t5\t3") {
		t.Errorf("Unexpected row %q", lines[1])
	}

	samples, back, err := ReadTable(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 || len(back) != 1 || back[0].Counts[1] != 3 || back[0].Identity.String() != "97.0" {
		t.Errorf("Unexpected round trip %v %+v", samples, back)
	}
}

func TestReadExternalComma(t *testing.T) {
	in := "amplicon,taxonomy,rank,identity\nabc,Eukaryota|Alveolata,domain|supergroup,88.5\ndef,,,\n"
	rows, err := ReadExternal(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Taxonomy != "Eukaryota|Alveolata" || rows[0].Identity.Float64 != 88.5 || rows[1].Identity.Valid {
		t.Errorf("Unexpected rows %+v", rows)
	}
}

func TestChimeraIsAbsentFromFinalTable(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	const v9 = "GGGGTTTT"
	merged := table(t, []string{"S1", "S2"}, []cell{
		{"S1", v9, 500}, {"S2", v9, 400},
		{"S1", "AAAA", 10}, {"S2", "AAAA", 3},
	})
	batch := checkpoint.NewBatch(store)
	if err := artifact.PublishTable(ctx, batch, artifact.MergedTable, merged); err != nil {
		t.Fatal(err)
	}
	if err := batch.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	fake := &inferencetest.Fake{
		Bimeras: map[string]bool{v9: true},
		Assignments: map[string]inference.Assignment{
			"AAAA": {Taxa: []string{"Eukaryota"}, Ranks: []string{"domain"}, Confidence: []float64{100}},
			v9:     {Taxa: []string{"Bacteria"}, Ranks: []string{"domain"}, Confidence: []float64{100}},
		},
	}

	ch := &chimera.Stage{Detector: fake, Store: store, Method: config.ChimeraPooled}
	res, err := ch.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range res.Stats {
		if (s.Sample == "S1" && s.NochimRead.Int64 != 10) || (s.Sample == "S2" && s.NochimRead.Int64 != 3) {
			t.Errorf("The bimera's reads are still counted: %+v", s)
		}
		if s.NochimSeq.Int64 != 1 {
			t.Errorf("The bimera is still counted in %s's occurrence", s.Sample)
		}
	}

	cl := &ClassifyStage{Classifier: fake, Store: store}
	if _, err := cl.Run(ctx); err != nil {
		t.Fatal(err)
	}

	tb := &TableStage{Store: store, Thresholds: Thresholds{MinAbundance: 2, MinOccurrence: 1}}
	if _, _, err := tb.Run(ctx); err != nil {
		t.Fatal(err)
	}

	samples, records, err := LoadTable(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 || len(records) != 1 {
		t.Fatalf("Expected one record over two samples, got %v %+v", samples, records)
	}
	if records[0].Sequence != "AAAA" || records[0].Taxonomy != "Eukaryota" || records[0].Total != 13 {
		t.Errorf("Unexpected record %+v", records[0])
	}
}
