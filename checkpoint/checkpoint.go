// Package checkpoint persists stage artifacts so that any stage can be re-run
// or resumed from the output of the previous one.
//
// A Store publishes single objects: an object only becomes visible under its
// final name once every byte has been written. A stage writes all of its
// artifacts through a Batch, and readers go through Open, so the artifacts of
// one stage invocation become visible together or not at all.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	metab "github.com/benalric/MetaB-pipeline"
)

var ErrNotFound = errors.New("artifact not found")

type Stage string

const (
	StageResolve  Stage = "resolve"
	StageFilter   Stage = "filter"
	StageErrors   Stage = "errors"
	StageDenoise  Stage = "denoise"
	StageMerge    Stage = "merge"
	StageChimera  Stage = "chimera"
	StageTaxonomy Stage = "taxonomy"
	StageStats    Stage = "stats"
	StageTable    Stage = "table"
)

// Key names one artifact. Run is empty for artifacts that span all runs.
type Key struct {
	Stage Stage
	Run   string
	Name  string
}

func (k Key) String() string {
	return k.Path()
}

// Path is the slash separated location of the artifact below the store root.
func (k Key) Path() string {
	if k.Run == "" {
		return path.Join(string(k.Stage), k.Name)
	}
	return path.Join(string(k.Stage), k.Run, k.Name)
}

// Validate rejects keys that could escape the store root or collide with
// another run's namespace.
func (k Key) Validate() error {
	if k.Stage == "" || k.Name == "" {
		return fmt.Errorf("incomplete artifact key %+v", k)
	}
	for _, part := range []string{string(k.Stage), k.Run, k.Name} {
		if part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return fmt.Errorf("invalid artifact key component %q in %+v", part, k)
		}
	}
	return nil
}

// Store is the artifact contract shared by every stage.
type Store interface {
	// Publish calls write with a destination for the artifact and publishes
	// it under key only if write returns nil. Re-publishing replaces the
	// previous artifact.
	Publish(ctx context.Context, key Key, write func(w io.Writer) error) error

	// Open returns ErrNotFound (possibly wrapped) if the artifact was never
	// published.
	Open(ctx context.Context, key Key) (io.ReadCloser, error)

	Exists(ctx context.Context, key Key) (bool, error)

	// Remove deletes an artifact. Removing a missing artifact is not an error.
	Remove(ctx context.Context, key Key) error
}

// New opens a store rooted at root, which may be a local directory or a
// gs:// prefix.
func New(root string, client *storage.Client) (Store, error) {
	if metab.IsGoogleStorage(root) {
		if client == nil {
			return nil, fmt.Errorf("%s is a google storage path but no storage client was configured", root)
		}
		bucket, prefix, err := metab.SplitGSPath(strings.TrimSuffix(root, "/") + "/")
		if err != nil {
			return nil, err
		}
		return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
	}

	root, err := metab.ExpandHome(root)
	if err != nil {
		return nil, err
	}

	return NewLocalStore(root)
}
