package metab

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"google.golang.org/api/iterator"
)

// FileInfo is the subset of file metadata the pipeline needs, whether the file
// lives on local disk or in a Google Storage bucket.
type FileInfo struct {
	Path string
	Name string
	Size int64
}

func IsGoogleStorage(p string) bool {
	return strings.HasPrefix(p, "gs://")
}

// SplitGSPath detects the bucket and the path to the actual object.
func SplitGSPath(p string) (bucket, object string, err error) {
	pathParts := strings.SplitN(strings.TrimPrefix(p, "gs://"), "/", 2)
	if len(pathParts) != 2 {
		return "", "", fmt.Errorf("Tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
	}

	return pathParts[0], pathParts[1], nil
}

// ListFiles lists the regular files directly within dir. Subdirectories are
// not descended into.
func ListFiles(ctx context.Context, dir string, client *storage.Client) ([]FileInfo, error) {
	if IsGoogleStorage(dir) {
		return listGoogleStorage(ctx, dir, client)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, pfx.Err(err)
		}
		out = append(out, FileInfo{
			Path: filepath.Join(dir, entry.Name()),
			Name: entry.Name(),
			Size: info.Size(),
		})
	}

	return out, nil
}

func listGoogleStorage(ctx context.Context, dir string, client *storage.Client) ([]FileInfo, error) {
	if client == nil {
		return nil, fmt.Errorf("%s is a google storage path but no storage client was configured", dir)
	}

	bucketName, prefix, err := SplitGSPath(strings.TrimSuffix(dir, "/") + "/")
	if err != nil {
		return nil, err
	}

	out := make([]FileInfo, 0)
	it := client.Bucket(bucketName).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		} else if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %s", dir, err))
		}

		// Synthetic directory entries carry only a Prefix
		if attrs.Name == "" || strings.HasSuffix(attrs.Name, "/") {
			continue
		}

		out = append(out, FileInfo{
			Path: "gs://" + bucketName + "/" + attrs.Name,
			Name: path.Base(attrs.Name),
			Size: attrs.Size,
		})
	}

	return out, nil
}

// Open opens a local file or a Google Storage object for streaming reads.
func Open(ctx context.Context, p string, client *storage.Client) (io.ReadCloser, error) {
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

	rdr, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %s", p, err))
	}

	return rdr, nil
}

// OpenDecompressed is Open followed by transparent decompression.
func OpenDecompressed(ctx context.Context, p string, client *storage.Client) (io.ReadCloser, error) {
	rc, err := Open(ctx, p, client)
	if err != nil {
		return nil, err
	}

	return MaybeDecompress(rc)
}

// NeedsStorageClient reports whether any of the paths points at Google
// Storage.
func NeedsStorageClient(paths ...string) bool {
	for _, p := range paths {
		if IsGoogleStorage(p) {
			return true
		}
	}

	return false
}

// JoinPath joins path elements with slashes for Google Storage paths and with
// the OS separator otherwise.
func JoinPath(base string, elem ...string) string {
	if IsGoogleStorage(base) {
		return strings.TrimSuffix(base, "/") + "/" + path.Join(elem...)
	}
	return filepath.Join(append([]string{base}, elem...)...)
}
