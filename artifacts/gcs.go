// Package artifacts fetches experiment trees kept in object storage, so they
// can be parsed like any local directory.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	acerrors "github.com/scttfrdmn/acbench/errors"
)

// DefaultConcurrency is the number of parallel downloads.
const DefaultConcurrency = 8

// ParseURI splits "gs://bucket/prefix" into bucket and prefix. The prefix
// has no leading slash and, unless empty, a trailing one.
func ParseURI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", acerrors.NewArgumentError("ParseURI", fmt.Sprintf("not a gs:// URI: %q", uri))
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", acerrors.NewArgumentError("ParseURI", fmt.Sprintf("missing bucket in %q", uri))
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// object is what mirroring needs to know about a remote file.
type object struct {
	Name string
	Size int64
}

// bucket lists and opens objects.
type bucket interface {
	objects(ctx context.Context, prefix string) ([]object, error)
	open(ctx context.Context, name string) (io.ReadCloser, error)
}

type gcsBucket struct {
	handle *storage.BucketHandle
}

func (b gcsBucket) objects(ctx context.Context, prefix string) ([]object, error) {
	var out []object
	it := b.handle.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		out = append(out, object{Name: attrs.Name, Size: attrs.Size})
	}
	return out, nil
}

func (b gcsBucket) open(ctx context.Context, name string) (io.ReadCloser, error) {
	return b.handle.Object(name).NewReader(ctx)
}

// MirrorStats summarizes one Mirror call.
type MirrorStats struct {
	Downloaded int
	// Skipped counts files already present locally with the same size.
	Skipped int
	Bytes   int64
}

// GCSSource mirrors a gs://bucket/prefix tree into a local directory.
//
// Example:
//
//	src, err := artifacts.NewGCSSource(ctx, "gs://ac-runs/2024", "")
//	stats, err := src.Mirror(ctx, "/tmp/ac-runs")
//	// parse /tmp/ac-runs/<scenario>/<configurator>/run-<id>/...
type GCSSource struct {
	client *storage.Client
	bucket bucket
	name   string
	prefix string
	// Concurrency bounds parallel downloads. Zero uses DefaultConcurrency.
	Concurrency int
	// Filter, when set, selects the relative paths to download.
	Filter func(rel string) bool
	// Retry controls retries of failed downloads. The zero value uses
	// DefaultRetryConfig.
	Retry  RetryConfig
	Logger *slog.Logger
}

// NewGCSSource creates a source for uri. credentialsFile selects a service
// account key; empty uses the application default credentials.
func NewGCSSource(ctx context.Context, uri, credentialsFile string) (*GCSSource, error) {
	name, prefix, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &GCSSource{
		client: client,
		bucket: gcsBucket{handle: client.Bucket(name)},
		name:   name,
		prefix: prefix,
	}, nil
}

// URI returns the mirrored location.
func (s *GCSSource) URI() string {
	return "gs://" + s.name + "/" + s.prefix
}

// Mirror downloads every object below the prefix to dest, keeping the
// relative layout. Files that already exist with the remote size are kept.
func (s *GCSSource) Mirror(ctx context.Context, dest string) (MirrorStats, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	objs, err := s.bucket.objects(ctx, s.prefix)
	if err != nil {
		return MirrorStats{}, err
	}

	var downloaded, skipped atomic.Int64
	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())

	for _, obj := range objs {
		rel := strings.TrimPrefix(obj.Name, s.prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			logger.Warn("skipping object outside the mirror", "object", obj.Name)
			continue
		}
		if s.Filter != nil && !s.Filter(rel) {
			continue
		}
		local := filepath.Join(dest, filepath.FromSlash(rel))
		if info, err := os.Stat(local); err == nil && info.Size() == obj.Size {
			skipped.Add(1)
			continue
		}

		obj := obj
		g.Go(func() error {
			n, err := s.download(gctx, obj.Name, local)
			if err != nil {
				return err
			}
			downloaded.Add(1)
			total.Add(n)
			return nil
		})
	}
	err = g.Wait()

	stats := MirrorStats{Downloaded: int(downloaded.Load()), Skipped: int(skipped.Load()), Bytes: total.Load()}
	logger.Info("mirrored artifacts", "source", s.URI(), "dest", dest,
		"downloaded", stats.Downloaded, "skipped", stats.Skipped, "bytes", stats.Bytes)
	return stats, err
}

func (s *GCSSource) download(ctx context.Context, name, local string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", local, err)
	}
	var n int64
	err := retry(ctx, s.Retry, func() error {
		var err error
		n, err = s.fetch(ctx, name, local)
		return err
	})
	return n, err
}

// fetch copies one object to a temporary file and renames it into place.
func (s *GCSSource) fetch(ctx context.Context, name, local string) (int64, error) {
	r, err := s.bucket.open(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to open gs://%s: %w", path.Join(s.name, name), err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to download gs://%s: %w", path.Join(s.name, name), err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to move %s into place: %w", local, err)
	}
	return n, nil
}

// Close releases the storage client.
func (s *GCSSource) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *GCSSource) concurrency() int {
	if s.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return s.Concurrency
}
