package metab

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// GSReadSeekCloser reads a Google Storage object and supports rewinding it.
// Google Storage readers cannot seek, so a seek closes the current range
// reader and the next Read opens a new one at the requested offset.
type GSReadSeekCloser struct {
	handle *storage.ObjectHandle
	ctx    context.Context
	size   int64
	r      *storage.Reader
	offset int64
}

func (s *GSReadSeekCloser) Read(buf []byte) (int, error) {
	if s.offset >= s.size {
		return 0, io.EOF
	}
	if s.r == nil {
		var err error
		s.r, err = s.handle.NewRangeReader(s.ctx, s.offset, -1)
		if err != nil {
			return 0, err
		}
	}

	n, err := s.r.Read(buf)
	s.offset += int64(n)
	return n, err
}

func (s *GSReadSeekCloser) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.offset + offset
	case io.SeekEnd:
		target = s.size + offset
	default:
		return 0, fmt.Errorf("io.Seeker 'whence' value %d is not implemented", whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("seek to negative offset %d", target)
	}

	if target != s.offset && s.r != nil {
		s.r.Close()
		s.r = nil
	}
	s.offset = target

	return s.offset, nil
}

func (s *GSReadSeekCloser) Close() error {
	if s.r == nil {
		return nil
	}
	err := s.r.Close()
	s.r = nil
	return err
}

// OpenSeeker opens a local file or a Google Storage object for reads that may
// need to rewind, such as delimiter detection followed by parsing.
func OpenSeeker(ctx context.Context, p string, client *storage.Client) (ReadSeekCloser, error) {
	if !IsGoogleStorage(p) {
		f, err := os.Open(p)
		if err != nil {
			return nil, pfx.Err(err)
		}
		return f, nil
	}

	if client == nil {
		return nil, fmt.Errorf("%s is a google storage path but no storage client was configured", p)
	}

	bucketName, objectName, err := SplitGSPath(p)
	if err != nil {
		return nil, err
	}

	handle := client.Bucket(bucketName).Object(objectName)
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %s", p, err))
	}

	return &GSReadSeekCloser{handle: handle, ctx: ctx, size: attrs.Size}, nil
}
