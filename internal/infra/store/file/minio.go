package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/you-humble/pdftrack/internal/domain"
	mio "github.com/you-humble/pdftrack/internal/libs/minio"

	"github.com/minio/minio-go/v7"
)

const hashMetaKey = "Sha256"

// bucketStore mirrors artifacts into a MinIO bucket under a common prefix.
type bucketStore struct {
	db     *minio.Client
	bucket string
	prefix string
}

func NewBucketStore(ctx context.Context, cfg mio.Config) (*bucketStore, error) {
	client, err := mio.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &bucketStore{
		db:     client,
		bucket: cfg.Bucket,
		prefix: normalizePrefix(cfg.BasePath),
	}, nil
}

// Put uploads r as artifact a. When a carries a hash the upload is checked
// against it and removed again on mismatch.
func (s *bucketStore) Put(ctx context.Context, r io.Reader, a domain.Artifact) (domain.Artifact, error) {
	key, err := objectKey(s.prefix, a.Name)
	if err != nil {
		return domain.Artifact{}, err
	}

	opts := minio.PutObjectOptions{ContentType: contentType(a)}
	if a.SHA256 != "" {
		opts.UserMetadata = map[string]string{hashMetaKey: a.SHA256}
	}

	size := a.Size
	if size <= 0 {
		size = -1
	}

	h := sha256.New()
	info, err := s.db.PutObject(ctx, s.bucket, key, io.TeeReader(r, h), size, opts)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("put object %s: %w", key, err)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if a.SHA256 != "" && a.SHA256 != sum {
		_ = s.db.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
		return domain.Artifact{}, fmt.Errorf("hash mismatch for %s: local=%s remote=%s", a.Name, a.SHA256, sum)
	}

	return domain.Artifact{
		Name:     a.Name,
		Size:     info.Size,
		SHA256:   sum,
		MIMEType: opts.ContentType,
		Path:     s.url(key),
		ModTime:  info.LastModified,
	}, nil
}

func (s *bucketStore) Get(ctx context.Context, name string) (io.ReadCloser, domain.Artifact, error) {
	key, err := objectKey(s.prefix, name)
	if err != nil {
		return nil, domain.Artifact{}, err
	}

	obj, err := s.db.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, domain.Artifact{}, fmt.Errorf("get object %s: %w", key, err)
	}

	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == minio.NoSuchKey {
			return nil, domain.Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, domain.Artifact{}, fmt.Errorf("stat object %s: %w", key, err)
	}

	return obj, s.artifact(st), nil
}

func (s *bucketStore) Remove(ctx context.Context, name string) error {
	key, err := objectKey(s.prefix, name)
	if err != nil {
		return err
	}

	err = s.db.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		var merr minio.ErrorResponse
		if errors.As(err, &merr) && merr.Code == minio.NoSuchKey {
			return nil
		}
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func (s *bucketStore) List(ctx context.Context) ([]domain.Artifact, error) {
	var out []domain.Artifact
	for obj := range s.db.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:       s.prefix,
		WithMetadata: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		out = append(out, s.artifact(obj))
	}
	return out, nil
}

func (s *bucketStore) artifact(info minio.ObjectInfo) domain.Artifact {
	return domain.Artifact{
		Name:     strings.TrimPrefix(info.Key, s.prefix),
		Size:     info.Size,
		SHA256:   metaValue(info.UserMetadata, hashMetaKey),
		MIMEType: info.ContentType,
		Path:     s.url(info.Key),
		ModTime:  info.LastModified,
	}
}

func (s *bucketStore) url(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func contentType(a domain.Artifact) string {
	if a.MIMEType != "" {
		return a.MIMEType
	}
	if t := mime.TypeByExtension(path.Ext(a.Name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// metaValue looks a user metadata key up regardless of how the server
// canonicalised it.
func metaValue(meta map[string]string, key string) string {
	for k, v := range meta {
		k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if k == strings.ToLower(key) {
			return v
		}
	}
	return ""
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p != "" {
		p += "/"
	}
	return p
}

func objectKey(prefix, name string) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return prefix + name, nil
}
