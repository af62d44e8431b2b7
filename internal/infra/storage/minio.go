package storage

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

const (
	DefaultUploadExpiry = 15 * time.Minute
	// S3 caps presigned URLs at seven days.
	DefaultURLExpiry = 7 * 24 * time.Hour
)

// Options for New. Zero expiries fall back to the defaults.
type Options struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string
	UploadExpiry  time.Duration
	URLExpiry     time.Duration
}

// objectAPI is the subset of *minio.Client the store uses.
type objectAPI interface {
	PresignedPutObject(ctx context.Context, bucket, object string, expires time.Duration) (*url.URL, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

type Store struct {
	client     objectAPI
	bucketName string
	publicBase string
	uploadTTL  time.Duration
	urlTTL     time.Duration
	now        func() time.Time
}

// New buat koneksi MinIO and makes sure the bucket exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "minio: client")
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, eris.Wrap(err, "minio: bucket exists")
	}
	if !exists {
		if err := cli.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, eris.Wrapf(err, "minio: make bucket %s", opts.Bucket)
		}
	}

	return newStore(cli, opts), nil
}

func newStore(cli objectAPI, opts Options) *Store {
	s := &Store{
		client:     cli,
		bucketName: opts.Bucket,
		publicBase: strings.TrimRight(opts.PublicBaseURL, "/"),
		uploadTTL:  opts.UploadExpiry,
		urlTTL:     opts.URLExpiry,
		now:        time.Now,
	}
	if s.uploadTTL <= 0 {
		s.uploadTTL = DefaultUploadExpiry
	}
	if s.urlTTL <= 0 || s.urlTTL > DefaultURLExpiry {
		s.urlTTL = DefaultURLExpiry
	}
	return s
}

// IssueUploadTarget presigns a PUT for a fresh key in the owner's namespace.
func (s *Store) IssueUploadTarget(ctx context.Context, owner string) (domain.UploadTarget, error) {
	key := domain.StoragePrefix(owner) + uuid.New().String()
	u, err := s.client.PresignedPutObject(ctx, s.bucketName, key, s.uploadTTL)
	if err != nil {
		return domain.UploadTarget{}, eris.Wrap(err, "minio: presign put")
	}
	return domain.UploadTarget{
		StorageID: key,
		URL:       u.String(),
		Method:    http.MethodPut,
		ExpiresAt: s.now().Add(s.uploadTTL).UTC(),
	}, nil
}

// ResolveURL checks the object exists and returns a retrievable URL for it.
func (s *Store) ResolveURL(ctx context.Context, handle string) (string, error) {
	if _, err := s.client.StatObject(ctx, s.bucketName, handle, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return "", eris.Wrapf(domain.ErrNotFound, "object %s", handle)
		}
		return "", eris.Wrapf(err, "minio: stat %s", handle)
	}

	// URL publik (jika bucket public), kalau private harus generate presigned URL
	if s.publicBase != "" {
		return s.publicBase + "/" + s.bucketName + "/" + handle, nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, handle, s.urlTTL, nil)
	if err != nil {
		return "", eris.Wrapf(err, "minio: presign get %s", handle)
	}
	return u.String(), nil
}

// Delete removes the object. Removing a missing key is not an error.
func (s *Store) Delete(ctx context.Context, handle string) error {
	err := s.client.RemoveObject(ctx, s.bucketName, handle, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return eris.Wrapf(err, "minio: remove %s", handle)
	}
	return nil
}

// Check reports whether the bucket is reachable; used by the health endpoint.
func (s *Store) Check(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Errorf("bucket %s missing", s.bucketName)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchObject", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}
