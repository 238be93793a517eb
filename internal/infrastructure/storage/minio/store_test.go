package minio

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/dockpipe/internal/domain/docking"
	apperrors "github.com/turtacn/dockpipe/pkg/errors"
)

type MockMinIOAPI struct {
	mock.Mock
}

func (m *MockMinIOAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockMinIOAPI) SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error {
	return m.Called(ctx, bucketName, config).Error(0)
}

func (m *MockMinIOAPI) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	return args.Get(0).(<-chan minio.ObjectInfo)
}

func (m *MockMinIOAPI) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expiry, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

func (m *MockMinIOAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockMinIOAPI) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucketName, objectName, opts).Error(0)
}

func (m *MockMinIOAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func newTestStore(t *testing.T, cfg *MinIOConfig) (*ArchiveStore, *MockMinIOAPI, afero.Fs) {
	t.Helper()
	api := new(MockMinIOAPI)
	fs := afero.NewMemMapFs()
	if cfg == nil {
		cfg = &MinIOConfig{Bucket: "archives", Prefix: "runs"}
	}
	return NewArchiveStore(newClientWithAPI(api, cfg, nil), fs, nil), api, fs
}

func TestApplyDefaults_PrefixSlash(t *testing.T) {
	cfg := &MinIOConfig{Prefix: "runs"}
	applyDefaults(cfg)
	assert.Equal(t, "runs/", cfg.Prefix)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, time.Hour, cfg.PresignExpiry)
}

func TestArchiveStore_Publish(t *testing.T) {
	store, api, fs := newTestStore(t, nil)
	require.NoError(t, afero.WriteFile(fs, "/work/backup/run-1.tar.zst", []byte("archive-bytes"), 0o644))

	var uploaded []byte
	api.On("PutObject", mock.Anything, "archives", "runs/run-1.tar.zst", mock.Anything, int64(13),
		mock.MatchedBy(func(o minio.PutObjectOptions) bool {
			return o.ContentType == archiveContentType &&
				o.UserMetadata["run-id"] == "run-1" &&
				o.UserMetadata["best-ligand"] == "a_out.pdbqt" &&
				o.UserMetadata["best-score"] == "-9.0"
		})).
		Run(func(args mock.Arguments) {
			uploaded, _ = io.ReadAll(args.Get(3).(io.Reader))
		}).
		Return(minio.UploadInfo{Key: "runs/run-1.tar.zst", Size: 13, ETag: "e"}, nil)

	sum := &docking.RunSummary{
		ID:          "run-1",
		Receptor:    "rec.pdbqt",
		Status:      docking.StatusSucceeded,
		ArchivePath: "/work/backup/run-1.tar.zst",
		Ranking:     docking.Ranking{{Rank: 1, Name: "a_out.pdbqt", Score: -9}},
	}
	require.NoError(t, store.Publish(context.Background(), sum))
	assert.Equal(t, "archive-bytes", string(uploaded))
	assert.Equal(t, "minio", store.Name())
	api.AssertExpectations(t)
}

func TestArchiveStore_PublishWithoutArchive(t *testing.T) {
	store, api, _ := newTestStore(t, nil)
	require.NoError(t, store.Publish(context.Background(), &docking.RunSummary{ID: "x"}))
	api.AssertNotCalled(t, "PutObject")
}

func TestArchiveStore_PublishMissingFile(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	err := store.Publish(context.Background(), &docking.RunSummary{ID: "x", ArchivePath: "/nope.tar.zst"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStorageError))
}

func TestArchiveStore_UploadError(t *testing.T) {
	store, api, _ := newTestStore(t, nil)
	api.On("PutObject", mock.Anything, "archives", "k", mock.Anything, int64(-1), mock.Anything).
		Return(minio.UploadInfo{}, errors.New("connection reset"))

	_, err := store.Upload(context.Background(), "k", nil, -1, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStorageError))

	_, err = store.Upload(context.Background(), "", nil, 0, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestArchiveStore_ClosedClient(t *testing.T) {
	store, _, _ := newTestStore(t, nil)
	require.NoError(t, store.client.Close())
	_, err := store.Upload(context.Background(), "k", nil, 0, nil)
	assert.Equal(t, ErrMinIOClientClosed, err)
}

func TestArchiveStore_Exists(t *testing.T) {
	store, api, _ := newTestStore(t, nil)
	api.On("StatObject", mock.Anything, "archives", "runs/a.tar.zst", mock.Anything).
		Return(minio.ObjectInfo{Key: "runs/a.tar.zst", Size: 10}, nil)
	api.On("StatObject", mock.Anything, "archives", "runs/b.tar.zst", mock.Anything).
		Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"})

	ok, err := store.Exists(context.Background(), store.ObjectKey("a"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), store.ObjectKey("b"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArchiveStore_List(t *testing.T) {
	store, api, _ := newTestStore(t, nil)
	ch := make(chan minio.ObjectInfo, 4)
	ch <- minio.ObjectInfo{Key: "runs/a.tar.zst", Size: 1}
	ch <- minio.ObjectInfo{Key: "runs/notes.txt", Size: 2}
	ch <- minio.ObjectInfo{Key: "runs/b.tar.zst", Size: 3}
	ch <- minio.ObjectInfo{Key: "runs/c.tar.zst", Size: 4}
	close(ch)
	api.On("ListObjects", mock.Anything, "archives", minio.ListObjectsOptions{Prefix: "runs/", Recursive: true}).
		Return((<-chan minio.ObjectInfo)(ch))

	objs, err := store.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "runs/a.tar.zst", objs[0].Key)
	assert.Equal(t, "runs/b.tar.zst", objs[1].Key)
}

func TestArchiveStore_DeleteAndURL(t *testing.T) {
	store, api, _ := newTestStore(t, nil)
	api.On("RemoveObject", mock.Anything, "archives", "runs/r.tar.zst", mock.Anything).Return(nil)
	u, _ := url.Parse("http://minio/archives/runs/r.tar.zst?sig=1")
	api.On("PresignedGetObject", mock.Anything, "archives", "runs/r.tar.zst", time.Hour, url.Values(nil)).Return(u, nil)

	require.NoError(t, store.Delete(context.Background(), "r"))
	got, err := store.DownloadURL(context.Background(), "r", 0)
	require.NoError(t, err)
	assert.Equal(t, u.String(), got)
}

func TestEnsureBucketAndLifecycle(t *testing.T) {
	api := new(MockMinIOAPI)
	c := newClientWithAPI(api, &MinIOConfig{Bucket: "archives", Prefix: "runs/", RetentionDays: 30}, nil)

	api.On("BucketExists", mock.Anything, "archives").Return(false, nil).Once()
	api.On("MakeBucket", mock.Anything, "archives", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)
	api.On("SetBucketLifecycle", mock.Anything, "archives", mock.MatchedBy(func(cfg *lifecycle.Configuration) bool {
		return len(cfg.Rules) == 1 && cfg.Rules[0].RuleFilter.Prefix == "runs/" && int(cfg.Rules[0].Expiration.Days) == 30
	})).Return(errors.New("not implemented"))

	require.NoError(t, c.EnsureBucket(context.Background()))
	assert.NoError(t, c.SetupLifecycleRules(context.Background()), "lifecycle failure is only logged")
	api.AssertExpectations(t)

	api.On("BucketExists", mock.Anything, "archives").Return(true, nil)
	status, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}

func TestNewMinIOClient_Validation(t *testing.T) {
	_, err := NewMinIOClient(context.Background(), &MinIOConfig{Endpoint: "localhost:9000"}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}
