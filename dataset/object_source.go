package dataset

import (
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pivolan/textile_dashboard/domain/models"
)

// ObjectSource reads datasets from an S3-compatible bucket.
type ObjectSource struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewObjectSource(client *minio.Client, bucket, prefix string) *ObjectSource {
	return &ObjectSource{client: client, bucket: bucket, prefix: prefix}
}

// DialObjectSource connects to endpoint with static credentials.
func DialObjectSource(endpoint, accessKey, secretKey, bucket, prefix string, secure bool) (*ObjectSource, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}
	return NewObjectSource(client, bucket, prefix), nil
}

func (s *ObjectSource) Name() string { return "s3" }

func (s *ObjectSource) Load(ctx context.Context, name string) (*models.Table, error) {
	for _, key := range candidateKeys(name) {
		full := path.Join(s.prefix, key)
		if _, err := s.client.StatObject(ctx, s.bucket, full, minio.StatObjectOptions{}); err != nil {
			if isMissingObject(err) {
				continue
			}
			return nil, err
		}
		obj, err := s.client.GetObject(ctx, s.bucket, full, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		t, err := readTable(key, obj, name)
		obj.Close()
		return t, err
	}
	return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, path.Join(s.prefix, name), models.ErrNotFound)
}

func isMissingObject(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
