package fastq

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const twoRecords = "@r1\nACGT\n+\nIIII\n@r2 extra\nAC\n+r2\nII\n\n"

func TestRead(t *testing.T) {
	r := NewReader(strings.NewReader(twoRecords))

	var got []Record
	for rec, ok := r.Read(); ok; rec, ok = r.Read() {
		got = append(got, rec)
	}
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(got))
	}
	if got[0].Name != "r1" || got[0].Sequence != "ACGT" || got[1].Name != "r2 extra" || got[1].Quality != "II" {
		t.Errorf("Unexpected records %+v", got)
	}
}

func TestReadErrors(t *testing.T) {
	for _, in := range []string{
		"@r1\nACGT\n+\n",
		"r1\nACGT\n+\nIIII\n",
		"@r1\nACGT\n-\nIIII\n",
		"@r1\nACGT\n+\nIII\n",
	} {
		r := NewReader(strings.NewReader(in))
		for _, ok := r.Read(); ok; _, ok = r.Read() {
		}
		if r.Err() == nil {
			t.Errorf("Expected an error for %q", in)
		}
	}
}

func TestOpenGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reads.fastq.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(twoRecords)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	n := 0
	for _, ok := r.Read(); ok; _, ok = r.Read() {
		n++
	}
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Expected 2 records, got %d", n)
	}
}
