package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"time"

	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/google/uuid"
	"github.com/minio/blake2b-simd"
)

// Recorder is a checkpoint store that records every successful publication
// in a ledger. Failed publications are not recorded.
type Recorder struct {
	checkpoint.Store

	ledger     *Ledger
	invocation string
	commit     string
	now        func() time.Time
}

// NewRecorder wraps store. Every publication made through the recorder shares
// one invocation ID.
func NewRecorder(store checkpoint.Store, l *Ledger, commit string) *Recorder {
	return &Recorder{
		Store:      store,
		ledger:     l,
		invocation: uuid.New().String(),
		commit:     commit,
		now:        time.Now,
	}
}

func (r *Recorder) Invocation() string {
	return r.invocation
}

type countingHash struct {
	h hash.Hash
	n int64
}

func (c *countingHash) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return c.h.Write(p)
}

func (r *Recorder) Publish(ctx context.Context, key checkpoint.Key, write func(w io.Writer) error) error {
	h, err := blake2b.New(&blake2b.Config{Size: 32})
	if err != nil {
		return err
	}
	sum := &countingHash{h: h}

	if err := r.Store.Publish(ctx, key, func(w io.Writer) error {
		return write(io.MultiWriter(w, sum))
	}); err != nil {
		return err
	}

	name, generation := checkpoint.SplitObjectName(key.Name)
	if err := r.ledger.Record(Entry{
		Invocation:    r.invocation,
		Stage:         string(key.Stage),
		Run:           key.Run,
		Name:          name,
		Generation:    generation,
		Bytes:         sum.n,
		Digest:        hex.EncodeToString(sum.h.Sum(nil)),
		BuildCommit:   r.commit,
		PublishedUnix: r.now().Unix(),
	}); err != nil {
		return fmt.Errorf("%s was published but could not be recorded: %w", key, err)
	}

	return nil
}

// Current reports whether the object e describes is still the committed
// version of its artifact. A commit record entry is current while it exists.
func Current(ctx context.Context, store checkpoint.Store, e Entry) (bool, error) {
	if e.Generation == "" {
		return store.Exists(ctx, e.Object())
	}

	committed, err := checkpoint.Resolve(ctx, store, checkpoint.Key{Stage: checkpoint.Stage(e.Stage), Run: e.Run, Name: e.Name})
	if errors.Is(err, checkpoint.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return committed == e.Object(), nil
}
