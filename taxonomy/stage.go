package taxonomy

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/benalric/MetaB-pipeline/artifact"
	"github.com/benalric/MetaB-pipeline/asv"
	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/benalric/MetaB-pipeline/inference"
)

// ClassifyStage calls the classifier on every variant of the chimera-free
// table and publishes taxonomy/taxonomy.tsv.
type ClassifyStage struct {
	Classifier    inference.Classifier
	Store         checkpoint.Store
	TrainingSet   string
	MinConfidence float64
	Threads       int
}

// Classify returns one annotation per variant of tab, in table order.
func (s *ClassifyStage) Classify(ctx context.Context, tab *asv.Table) ([]Annotation, error) {
	req := inference.ClassifyRequest{
		TrainingSet:   s.TrainingSet,
		MinConfidence: s.MinConfidence,
		Threads:       s.Threads,
	}
	for _, v := range tab.Variants() {
		req.Sequences = append(req.Sequences, v.Sequence)
	}

	assignments, err := s.Classifier.Classify(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("classification: %w", err)
	}

	byID := make(map[asv.ID]Annotation, len(assignments))
	for _, a := range assignments {
		ann, err := FromAssignment(a)
		if err != nil {
			return nil, err
		}
		id := asv.ID(ann.Amplicon)
		if _, ok := tab.Variant(id); !ok {
			return nil, fmt.Errorf("classifier returned %q, which is not in the table", a.Sequence)
		}
		byID[id] = ann
	}

	out := make([]Annotation, 0, len(tab.Variants()))
	unclassified := 0
	for _, v := range tab.Variants() {
		ann, ok := byID[v.ID]
		if !ok {
			ann = Annotation{Amplicon: string(v.ID)}
		}
		if ann.Taxonomy == "" {
			unclassified++
		}
		out = append(out, ann)
	}
	log.Printf("Classified %d of %d variants\n", len(out)-unclassified, len(out))

	return out, nil
}

func (s *ClassifyStage) Run(ctx context.Context) ([]Annotation, error) {
	tab, err := artifact.LoadTable(ctx, s.Store, artifact.NochimTable)
	if err != nil {
		return nil, err
	}

	rows, err := s.Classify(ctx, tab)
	if err != nil {
		return nil, err
	}

	batch := checkpoint.NewBatch(s.Store)
	defer batch.Discard(ctx)

	if err := artifact.Publish(ctx, batch, artifact.Taxonomy, &rows); err != nil {
		return nil, err
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// TableStage builds the final table from the chimera-free table and its
// annotations. If External is set, the annotations are read from it instead
// of the published taxonomy result.
type TableStage struct {
	Store      checkpoint.Store
	Thresholds Thresholds
	External   io.ReadSeeker
}

func (s *TableStage) Run(ctx context.Context) ([]string, []Record, error) {
	tab, err := artifact.LoadTable(ctx, s.Store, artifact.NochimTable)
	if err != nil {
		return nil, nil, err
	}

	var rows []Annotation
	if s.External != nil {
		if rows, err = ReadExternal(s.External); err != nil {
			return nil, nil, err
		}
	} else if err := artifact.Load(ctx, s.Store, artifact.Taxonomy, &rows); err != nil {
		return nil, nil, err
	}

	annotations, err := Index(rows)
	if err != nil {
		return nil, nil, err
	}

	records := Build(tab, annotations, s.Thresholds)
	log.Printf("Kept %d of %d variants with total >= %d and occurrence >= %d\n", len(records), len(tab.Variants()), s.Thresholds.MinAbundance, s.Thresholds.MinOccurrence)

	samples := tab.Samples()
	batch := checkpoint.NewBatch(s.Store)
	defer batch.Discard(ctx)

	if err := batch.Publish(ctx, artifact.FinalTable, func(w io.Writer) error {
		return WriteTable(w, samples, records)
	}); err != nil {
		return nil, nil, fmt.Errorf("publishing %s: %w", artifact.FinalTable, err)
	}
	if err := batch.Commit(ctx); err != nil {
		return nil, nil, err
	}

	return samples, records, nil
}

// LoadTable reads the published final table.
func LoadTable(ctx context.Context, store checkpoint.Store) ([]string, []Record, error) {
	rc, err := checkpoint.Open(ctx, store, artifact.FinalTable)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	return ReadTable(rc)
}
