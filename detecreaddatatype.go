package metab

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"

	"github.com/carbocation/pfx"
	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeBZip2
)

// Byte code signatures from https://stackoverflow.com/a/19127748/199475
var byteCodeSigs = map[DataType][]byte{
	DataTypeGzip:  {0x1f, 0x8b, 0x08},
	DataTypeZip:   {0x50, 0x4b, 0x03, 0x04},
	DataTypeXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	DataTypeBZip2: {0x42, 0x5a, 0x68},
}

// DetectDataType peeks at the head of br without consuming it. Sequencing
// output arrives from object storage as well as from disk, so we cannot rely
// on being able to seek back.
func DetectDataType(br *bufio.Reader) (DataType, error) {
	head, err := br.Peek(6)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return DataTypeInvalid, err
	}

	for dt, sig := range byteCodeSigs {
		if len(head) >= len(sig) && bytes.Equal(head[:len(sig)], sig) {
			return dt, nil
		}
	}

	return DataTypeNoCompression, nil
}

// MaybeDecompress wraps rc so that reads yield decompressed bytes. Closing the
// returned ReadCloser closes rc.
func MaybeDecompress(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	dt, err := DetectDataType(br)
	if err != nil {
		rc.Close()
		return nil, pfx.Err(err)
	}

	var r io.Reader
	switch dt {
	case DataTypeGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			rc.Close()
			return nil, pfx.Err(err)
		}
		// Some sequencers emit concatenated gzip members
		gz.Multistream(true)
		r = gz
	case DataTypeZip:
		// Only the first member of an archive is read
		zr := zipstream.NewReader(br)
		if _, err := zr.Next(); err != nil {
			rc.Close()
			return nil, pfx.Err(err)
		}
		r = zr
	case DataTypeBZip2:
		r = bzip2.NewReader(br)
	case DataTypeXZ:
		xr, err := xz.NewReader(br, 0)
		if err != nil {
			rc.Close()
			return nil, pfx.Err(err)
		}
		r = xr
	default:
		r = br
	}

	return &chainedReadCloser{Reader: r, closer: rc}, nil
}

type chainedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (c *chainedReadCloser) Close() error {
	return c.closer.Close()
}
