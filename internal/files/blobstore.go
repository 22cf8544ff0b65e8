package files

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore issues short-lived download URLs for stored objects.
type ObjectStore interface {
	PresignedURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// S3Store presigns GET requests against a single S3 bucket.
type S3Store struct {
	bucket  string
	presign *s3.PresignClient
}

// NewS3Store loads the default AWS credential chain for the given region.
func NewS3Store(ctx context.Context, bucket, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	return &S3Store{
		bucket:  bucket,
		presign: s3.NewPresignClient(client),
	}, nil
}

// PresignedURL returns a URL that grants read access to objectKey for ttl.
func (s *S3Store) PresignedURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign object %q: %w", objectKey, err)
	}

	return req.URL, nil
}
