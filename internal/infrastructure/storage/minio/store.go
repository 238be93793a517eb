package minio

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/afero"

	"github.com/turtacn/dockpipe/internal/domain/docking"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/internal/infrastructure/storage/archive"
	"github.com/turtacn/dockpipe/pkg/errors"
)

const archiveContentType = "application/zstd"

var ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")

// ObjectMetadata describes one stored archive.
type ObjectMetadata struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	Metadata     map[string]string
}

// ArchiveStore uploads run archives to the bucket, one object per run under
// <prefix><run id>.tar.zst.
type ArchiveStore struct {
	client *MinIOClient
	fs     afero.Fs
	logger logging.Logger
}

// NewArchiveStore reads local archives through fs.
func NewArchiveStore(client *MinIOClient, fs afero.Fs, log logging.Logger) *ArchiveStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ArchiveStore{client: client, fs: fs, logger: log}
}

func (s *ArchiveStore) Name() string { return "minio" }

// ObjectKey returns the object name for a run.
func (s *ArchiveStore) ObjectKey(runID string) string {
	return s.client.config.Prefix + runID + archive.Extension
}

// Publish uploads the run's archive.  A run without an archive is skipped.
func (s *ArchiveStore) Publish(ctx context.Context, sum *docking.RunSummary) error {
	if sum.ArchivePath == "" {
		s.logger.Debug("No archive to upload", logging.String("run_id", sum.ID))
		return nil
	}
	f, err := s.fs.Open(sum.ArchivePath)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "open archive").WithDetail(sum.ArchivePath)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "stat archive").WithDetail(sum.ArchivePath)
	}

	meta := map[string]string{
		"run-id":   sum.ID,
		"receptor": sum.Receptor,
		"status":   string(sum.Status),
	}
	if best, ok := sum.Best(); ok {
		meta["best-ligand"] = best.Name
		meta["best-score"] = docking.FormatScore(best.Score)
	}
	_, err = s.Upload(ctx, s.ObjectKey(sum.ID), f, info.Size(), meta)
	return err
}

// Upload stores r under key.  size may be -1 for a stream of unknown length.
func (s *ArchiveStore) Upload(ctx context.Context, key string, r io.Reader, size int64, meta map[string]string) (*ObjectMetadata, error) {
	if s.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	if key == "" {
		return nil, errors.New(errors.ErrCodeValidation, "object key required")
	}
	opts := minio.PutObjectOptions{
		ContentType:  archiveContentType,
		UserMetadata: meta,
	}
	if size < 0 {
		opts.PartSize = uint64(s.client.config.PartSize)
	}

	start := time.Now()
	info, err := s.client.GetClient().PutObject(ctx, s.client.Bucket(), key, r, size, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "upload failed").WithDetail(key)
	}
	s.logger.Info("Archive uploaded",
		logging.String("bucket", s.client.Bucket()),
		logging.String("key", key),
		logging.Int64("size", info.Size),
		logging.Duration("took", time.Since(start)))
	return &ObjectMetadata{Key: key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified, Metadata: meta}, nil
}

// Stat returns the metadata of one object.
func (s *ArchiveStore) Stat(ctx context.Context, key string) (*ObjectMetadata, error) {
	info, err := s.client.GetClient().StatObject(ctx, s.client.Bucket(), key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "stat failed").WithDetail(key)
	}
	return &ObjectMetadata{
		Key: key, Size: info.Size, ETag: info.ETag,
		LastModified: info.LastModified, Metadata: info.UserMetadata,
	}, nil
}

// Exists reports whether key is stored.
func (s *ArchiveStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Stat(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	return err == nil, err
}

// List returns up to limit archives, in key order.  limit <= 0 lists all.
func (s *ArchiveStore) List(ctx context.Context, limit int) ([]ObjectMetadata, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := s.client.GetClient().ListObjects(ctx, s.client.Bucket(), minio.ListObjectsOptions{
		Prefix:    s.client.config.Prefix,
		Recursive: true,
	})
	var out []ObjectMetadata
	for obj := range ch {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "list failed")
		}
		if path.Ext(obj.Key) != path.Ext(archive.Extension) {
			continue
		}
		out = append(out, ObjectMetadata{Key: obj.Key, Size: obj.Size, ETag: obj.ETag, LastModified: obj.LastModified})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Delete removes the archive of a run.
func (s *ArchiveStore) Delete(ctx context.Context, runID string) error {
	key := s.ObjectKey(runID)
	if err := s.client.GetClient().RemoveObject(ctx, s.client.Bucket(), key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "delete failed").WithDetail(key)
	}
	return nil
}

// DownloadURL returns a presigned URL for the archive of a run.
func (s *ArchiveStore) DownloadURL(ctx context.Context, runID string, expiry time.Duration) (string, error) {
	return s.client.GeneratePresignedGetURL(ctx, s.ObjectKey(runID), expiry)
}
