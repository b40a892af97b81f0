// Package fastq streams four-line FASTQ records from plain or compressed
// files, on local disk or in Google Storage.
package fastq

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	metab "github.com/benalric/MetaB-pipeline"
	"github.com/carbocation/pfx"
)

const maxLine = 1 << 20

type Record struct {
	Name     string
	Sequence string
	Quality  string
}

type Reader struct {
	path    string
	rc      io.ReadCloser
	scanner *bufio.Scanner
	line    int
	err     error
}

// Open detects the compression of the file at path and returns a reader
// positioned on the first record.
func Open(ctx context.Context, path string, client *storage.Client) (*Reader, error) {
	rc, err := metab.OpenDecompressed(ctx, path, client)
	if err != nil {
		return nil, err
	}

	r := NewReader(rc)
	r.path = path
	r.rc = rc
	return r, nil
}

func NewReader(src io.Reader) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	return &Reader{path: "<stream>", scanner: scanner}
}

func (r *Reader) Close() error {
	if r.rc == nil {
		return nil
	}
	return r.rc.Close()
}

func (r *Reader) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.scanner.Err()
}

func (r *Reader) next() (string, bool) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimRight(r.scanner.Text(), "\r")
		if text == "" && r.line%4 == 1 {
			// Blank lines between records, typically at the end of file
			r.line--
			continue
		}
		return text, true
	}
	return "", false
}

// Read returns the next record, or false at the end of the input or on error.
// Check Err afterwards.
func (r *Reader) Read() (Record, bool) {
	if r.err != nil {
		return Record{}, false
	}

	header, ok := r.next()
	if !ok {
		return Record{}, false
	}
	start := r.line

	var lines [3]string
	for i := range lines {
		if lines[i], ok = r.next(); !ok {
			r.err = pfx.Err(fmt.Errorf("%s: truncated record starting on line %d", r.path, start))
			return Record{}, false
		}
	}

	if !strings.HasPrefix(header, "@") {
		r.err = pfx.Err(fmt.Errorf("%s: line %d: expected a header starting with @, got %q", r.path, start, header))
		return Record{}, false
	}
	if !strings.HasPrefix(lines[1], "+") {
		r.err = pfx.Err(fmt.Errorf("%s: line %d: expected a separator starting with +", r.path, start+2))
		return Record{}, false
	}
	if len(lines[0]) != len(lines[2]) {
		r.err = pfx.Err(fmt.Errorf("%s: line %d: sequence has %d bases but quality has %d", r.path, start+1, len(lines[0]), len(lines[2])))
		return Record{}, false
	}

	return Record{
		Name:     strings.TrimPrefix(header, "@"),
		Sequence: lines[0],
		Quality:  lines[2],
	}, true
}
