package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string // Optional: key prefix for published objects
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Storage publishes blobs to S3 and returns their public URL.
// It embeds LocalStorage so local references still open and release.
type S3Storage struct {
	*LocalStorage
	client *s3.Client
	bucket string
	region string
	prefix string
}

// Compile-time check that S3Storage implements BlobStore.
var _ BlobStore = (*S3Storage)(nil)

// NewS3Storage creates a new S3Storage instance.
// The tempDir parameter specifies where local blobs are stored.
func NewS3Storage(tempDir string, cfg S3Config) (*S3Storage, error) {
	local, err := NewLocalStorage(tempDir)
	if err != nil {
		return nil, err
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Storage{
		LocalStorage: local,
		client:       s3.NewFromConfig(awsCfg, clientOpts...),
		bucket:       cfg.Bucket,
		region:       cfg.Region,
		prefix:       cfg.Prefix,
	}, nil
}

// Put stages data as a local blob, uploads it under
// "<prefix>/<name>-<uuid>.mp4" and returns the object URL.
// The staged copy gives the SDK a seekable body.
func (s *S3Storage) Put(ctx context.Context, name string, data io.Reader) (string, error) {
	ref, err := s.LocalStorage.Put(ctx, name, data)
	if err != nil {
		return "", err
	}
	defer func() { _ = s.LocalStorage.Release(context.WithoutCancel(ctx), []string{ref}) }()

	f, err := s.LocalStorage.Open(ctx, ref)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := path.Join(s.prefix, fmt.Sprintf("%s-%s.mp4", name, uuid.NewString()))
	return s.upload(ctx, key, f)
}

func (s *S3Storage) upload(ctx context.Context, key string, body io.Reader) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}
