package metab

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMaybeDecompress(t *testing.T) {
	payload := "@r1\nACGT\n+\nIIII\n"

	var gzBuf bytes.Buffer
	gz := gzip.NewWriter(&gzBuf)
	if _, err := gz.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	for name, input := range map[string][]byte{
		"plain": []byte(payload),
		"gzip":  gzBuf.Bytes(),
	} {
		rc, err := MaybeDecompress(io.NopCloser(bytes.NewReader(input)))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		rc.Close()
		if string(got) != payload {
			t.Errorf("%s: got %q, expected %q", name, got, payload)
		}
	}
}

func TestMaybeDecompressShortInput(t *testing.T) {
	rc, err := MaybeDecompress(io.NopCloser(strings.NewReader("AC")))
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(rc)
	if string(got) != "AC" {
		t.Errorf("got %q", got)
	}
}

func TestDetermineDelimiter(t *testing.T) {
	for _, v := range []struct {
		Input    string
		Expected rune
	}{
		{"amplicon\ttaxonomy\trank\nabc\tBacteria\tdomain\n", '\t'},
		{"amplicon,taxonomy,rank\nabc,Bacteria,domain\n", ','},
	} {
		r := strings.NewReader(v.Input)
		got, err := DetermineDelimiter(r)
		if err != nil {
			t.Fatal(err)
		}
		if got != v.Expected {
			t.Errorf("Got delimiter %q, expected %q", got, v.Expected)
		}
		if pos, _ := r.Seek(0, io.SeekCurrent); pos != 0 {
			t.Errorf("Reader was not rewound, at %d", pos)
		}
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.fastq"), []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}

	files, err := ListFiles(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("Expected 1 file, got %d: %+v", len(files), files)
	}
	if files[0].Name != "a.fastq" || files[0].Size != 5 {
		t.Errorf("Unexpected file info %+v", files[0])
	}
}

func TestGoogleStorageWithoutClient(t *testing.T) {
	if _, err := ListFiles(context.Background(), "gs://bucket/raw", nil); err == nil {
		t.Error("Expected an error listing google storage without a client")
	}
	if _, _, err := SplitGSPath("gs://bucketonly"); err == nil {
		t.Error("Expected an error splitting a path with no object")
	}
}

func TestOpenSeekerLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.csv")
	if err := os.WriteFile(path, []byte("amplicon,taxonomy\nabc,Eukaryota\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rs, err := OpenSeeker(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Close()

	delim, err := DetermineDelimiter(rs)
	if err != nil {
		t.Fatal(err)
	}
	if delim != ',' {
		t.Errorf("Expected comma, got %q", delim)
	}

	all, err := io.ReadAll(rs)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(all), "amplicon,") {
		t.Errorf("Expected the reader to be rewound, got %q", all)
	}

	if _, err := OpenSeeker(context.Background(), "gs://bucket/taxonomy.csv", nil); err == nil {
		t.Error("Expected an error opening google storage without a client")
	}
}
