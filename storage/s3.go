package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/ecotrace-srl/rentri-client/interfaces"
)

// S3Store writes artifacts to an S3 or S3-compatible bucket. Intended for
// installations archiving fetched artifacts to shared object storage
// instead of a local folder.
type S3Store struct {
	client      *s3.S3
	bucket      string
	prefix      string
	log         *slog.Logger
	locationURI string
}

var _ interfaces.ArtifactStore = (*S3Store)(nil)

// NewS3Store creates an S3 artifact store. An empty endpoint targets AWS;
// a custom endpoint (MinIO and friends) switches to path-style addressing.
func NewS3Store(bucket, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Store, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("create S3 session: %w", err)
	}

	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucket, prefix, region)
	if endpoint != "" {
		uri += "&endpoint=" + endpoint
	}

	return &S3Store{
		client:      s3.New(sess),
		bucket:      bucket,
		prefix:      prefix,
		log:         log,
		locationURI: uri,
	}, nil
}

// Write uploads data under the store prefix and returns the object URI.
func (s *S3Store) Write(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(s.prefix, SanitizeName(name))

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("upload artifact to S3: %w", err)
	}

	s.log.Debug("Stored artifact in S3",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.Int("size", len(data)))

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Available checks bucket accessibility with a HEAD request.
func (s *S3Store) Available(ctx context.Context) bool {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		s.log.Debug("S3 store unavailable", "bucket", s.bucket, "err", err)
		return false
	}
	return true
}

// LocationURI returns the s3:// URI identifying this store.
func (s *S3Store) LocationURI() string {
	return s.locationURI
}
