package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

// GCSStore keeps artifacts in a Google Storage bucket. An object only becomes
// visible once its writer is closed successfully, so cancelling the write
// context on failure is enough to publish nothing.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

func (s *GCSStore) object(key Key) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + key.Path())
}

func (s *GCSStore) Publish(ctx context.Context, key Key, write func(w io.Writer) error) error {
	if err := key.Validate(); err != nil {
		return err
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.object(key).NewWriter(wctx)
	w.ContentType = "text/tab-separated-values"

	if err := write(w); err != nil {
		cancel()
		w.Close()
		return err
	}

	if err := w.Close(); err != nil {
		return pfx.Err(fmt.Errorf("gs://%s/%s%s: %v", s.bucket, s.prefix, key.Path(), err))
	}

	return nil
}

func (s *GCSStore) Open(ctx context.Context, key Key) (io.ReadCloser, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	rdr, err := s.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	return rdr, nil
}

func (s *GCSStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}

	_, err := s.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	} else if err != nil {
		return false, pfx.Err(err)
	}

	return true, nil
}

func (s *GCSStore) Remove(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	err := s.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return pfx.Err(err)
	}

	return nil
}
