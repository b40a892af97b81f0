package checkpoint

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/carbocation/pfx"
)

type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, pfx.Err(err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) path(key Key) string {
	return filepath.Join(s.root, filepath.FromSlash(key.Path()))
}

// Publish writes into a temporary file in the destination directory and
// renames it over the final name once it has been synced.
func (s *LocalStore) Publish(ctx context.Context, key Key, write func(w io.Writer) error) (err error) {
	if err := key.Validate(); err != nil {
		return err
	}

	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return pfx.Err(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-"+key.Name+"-*")
	if err != nil {
		return pfx.Err(err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriterSize(tmp, 64*1024)
	if err = write(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return pfx.Err(err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return pfx.Err(err)
	}
	if err = tmp.Close(); err != nil {
		return pfx.Err(err)
	}
	if err = os.Chmod(tmpPath, 0644); err != nil {
		return pfx.Err(err)
	}
	if err = os.Rename(tmpPath, dest); err != nil {
		return pfx.Err(err)
	}

	return nil
}

func (s *LocalStore) Open(ctx context.Context, key Key) (io.ReadCloser, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	return f, nil
}

func (s *LocalStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}

	_, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, pfx.Err(err)
	}

	return true, nil
}

func (s *LocalStore) Remove(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return pfx.Err(err)
	}

	return nil
}
