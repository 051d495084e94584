package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Compile-time check that S3Archive implements Archiver.
var _ Archiver = (*S3Archive)(nil)

// S3Config holds the configuration for the S3 archive.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Archive uploads delivered videos to an S3 bucket.
type S3Archive struct {
	client   *s3.Client
	bucket   string
	region   string
	endpoint string
}

// ErrBucketRequired is returned when the archive has no bucket or region.
var ErrBucketRequired = errors.New("storage: S3 bucket and region are required")

// NewS3Archive creates a new S3Archive from cfg.
// Static credentials are used when both keys are set, otherwise the default
// AWS credential chain applies. A custom Endpoint switches to path-style
// addressing for S3-compatible stores.
func NewS3Archive(cfg S3Config) (*S3Archive, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrBucketRequired
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		static := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(static))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{
		client:   client,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		endpoint: endpoint,
	}, nil
}

// Archive uploads the file at path under key and returns the object URL.
func (a *S3Archive) Archive(ctx context.Context, key, path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the temp manager
	if err != nil {
		return "", fmt.Errorf("open archive source: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat archive source: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to S3: %w", key, err)
	}

	return a.objectURL(key), nil
}

func (a *S3Archive) objectURL(key string) string {
	if a.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", a.endpoint, a.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key)
}
