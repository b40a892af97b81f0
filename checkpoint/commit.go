package checkpoint

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
)

// CommitName is the record, one per (stage, run) namespace, naming the
// objects that hold the artifacts of the last successful stage invocation.
const CommitName = "commit.tsv"

const generationSeparator = "@"

// Part is one row of a commit record.
type Part struct {
	Name   string `csv:"name"`
	Object string `csv:"object"`
}

// ObjectName is the stored name of artifact name in one generation.
func ObjectName(name, generation string) string {
	return name + generationSeparator + generation
}

// SplitObjectName undoes ObjectName. Names without a generation, such as the
// commit record, come back with an empty generation.
func SplitObjectName(object string) (name, generation string) {
	i := strings.LastIndex(object, generationSeparator)
	if i < 0 {
		return object, ""
	}
	return object[:i], object[i+1:]
}

func commitKey(key Key) Key {
	return Key{Stage: key.Stage, Run: key.Run, Name: CommitName}
}

// Batch collects the artifacts one stage invocation publishes into a single
// namespace. Each artifact is written to its own generation object as it is
// published, but none is visible to Open until Commit replaces the commit
// record of the namespace.
type Batch struct {
	store      Store
	generation string

	namespace Key
	parts     []Part
	committed bool
}

func NewBatch(store Store) *Batch {
	return &Batch{
		store:      store,
		generation: strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}

func (b *Batch) Generation() string {
	return b.generation
}

// Publish writes one artifact of the batch. Every artifact of a batch must
// share the stage and run of the first one.
func (b *Batch) Publish(ctx context.Context, key Key, write func(w io.Writer) error) error {
	if b.committed {
		return fmt.Errorf("publishing %s: batch already committed", key)
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if key.Name == CommitName {
		return fmt.Errorf("%s is reserved for the commit record", CommitName)
	}

	ns := commitKey(key)
	if len(b.parts) == 0 {
		b.namespace = ns
	} else if ns != b.namespace {
		return fmt.Errorf("%s is outside the namespace %s of this batch", key, b.namespace)
	}
	for _, p := range b.parts {
		if p.Name == key.Name {
			return fmt.Errorf("%s was already published in this batch", key)
		}
	}

	object := Key{Stage: key.Stage, Run: key.Run, Name: ObjectName(key.Name, b.generation)}
	if err := b.store.Publish(ctx, object, write); err != nil {
		return err
	}
	b.parts = append(b.parts, Part{Name: key.Name, Object: object.Name})

	return nil
}

// Commit makes every artifact of the batch visible at once and removes the
// objects of the generation it replaces.
func (b *Batch) Commit(ctx context.Context) error {
	if b.committed {
		return nil
	}
	if len(b.parts) == 0 {
		return fmt.Errorf("nothing to commit")
	}

	previous, err := readCommit(ctx, b.store, b.namespace)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := b.store.Publish(ctx, b.namespace, func(w io.Writer) error {
		return writeCommit(w, b.parts)
	}); err != nil {
		return fmt.Errorf("committing %s: %w", b.namespace, err)
	}
	b.committed = true

	current := make(map[string]bool, len(b.parts))
	for _, p := range b.parts {
		current[p.Object] = true
	}
	for _, p := range previous {
		if current[p.Object] {
			continue
		}
		stale := Key{Stage: b.namespace.Stage, Run: b.namespace.Run, Name: p.Object}
		if err := b.store.Remove(ctx, stale); err != nil {
			log.Printf("Could not remove superseded artifact %s: %v\n", stale, err)
		}
	}

	return nil
}

// Discard removes the objects of a batch that was not committed. It does
// nothing after a successful Commit, so it can be deferred.
func (b *Batch) Discard(ctx context.Context) {
	if b.committed {
		return
	}
	for _, p := range b.parts {
		key := Key{Stage: b.namespace.Stage, Run: b.namespace.Run, Name: p.Object}
		if err := b.store.Remove(ctx, key); err != nil {
			log.Printf("Could not remove uncommitted artifact %s: %v\n", key, err)
		}
	}
	b.parts = nil
}

func writeCommit(w io.Writer, parts []Part) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return pfx.Err(gocsv.MarshalCSV(&parts, gocsv.NewSafeCSVWriter(cw)))
}

func readCommit(ctx context.Context, store Store, namespace Key) ([]Part, error) {
	rc, err := store.Open(ctx, namespace)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	cr := csv.NewReader(rc)
	cr.Comma = '\t'
	var parts []Part
	if err := gocsv.UnmarshalCSV(cr, &parts); err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %v", namespace, err))
	}
	return parts, nil
}

// Resolve returns the key of the object holding the committed artifact key.
func Resolve(ctx context.Context, store Store, key Key) (Key, error) {
	if err := key.Validate(); err != nil {
		return Key{}, err
	}

	parts, err := readCommit(ctx, store, commitKey(key))
	if errors.Is(err, ErrNotFound) {
		return Key{}, fmt.Errorf("%w: %s (nothing committed)", ErrNotFound, key)
	} else if err != nil {
		return Key{}, err
	}

	for _, p := range parts {
		if p.Name == key.Name {
			return Key{Stage: key.Stage, Run: key.Run, Name: p.Object}, nil
		}
	}

	return Key{}, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Open opens the committed artifact key.
func Open(ctx context.Context, store Store, key Key) (io.ReadCloser, error) {
	object, err := Resolve(ctx, store, key)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, object)
}

// Exists reports whether key is part of the committed artifacts of its
// namespace.
func Exists(ctx context.Context, store Store, key Key) (bool, error) {
	_, err := Resolve(ctx, store, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
