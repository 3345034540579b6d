package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"

	"fixit/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// objectClient is the part of the S3 client the store needs.
type objectClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store writes blobs to an S3 compatible bucket.
type S3Store struct {
	client   objectClient
	bucket   string
	maxBytes int64
	logger   *zerolog.Logger
}

func NewS3Store(cfg config.S3Config, maxBytes int64, logger *zerolog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, errors.New("s3 bucket and region are required")
	}

	opts := s3.Options{Region: cfg.Region}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return newS3Store(s3.New(opts), cfg.Bucket, maxBytes, logger), nil
}

func newS3Store(client objectClient, bucket string, maxBytes int64, logger *zerolog.Logger) *S3Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &S3Store{client: client, bucket: bucket, maxBytes: maxBytes, logger: logger}
}

func (s *S3Store) Store(ctx context.Context, name string, data []byte) (string, error) {
	ext, err := Validate(name, data, s.maxBytes)
	if err != nil {
		return "", err
	}

	key := objectKey(name)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.Debug().Str("bucket", s.bucket).Str("key", key).Msg("blob uploaded")
	return key, nil
}

// Delete removes the object. S3 reports success for missing keys.
func (s *S3Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	s.logger.Debug().Str("bucket", s.bucket).Str("key", path).Msg("blob deleted")
	return nil
}
