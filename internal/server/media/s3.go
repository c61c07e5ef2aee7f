// Package media stores uploaded profile images in S3-compatible object
// storage and hands out presigned GET URLs for them.
package media

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/vehiclecheck/internal/server/config"
)

// MaxUploadSize bounds a single upload.
const MaxUploadSize = 5 << 20

// URLValidity is how long a returned image URL stays usable.
const URLValidity = 7 * 24 * time.Hour

var ErrTooLarge = fmt.Errorf("upload exceeds %d bytes", MaxUploadSize)

// objectAPI is the part of the S3 client the store needs.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type S3Store struct {
	objects objectAPI
	presign presignAPI
	bucket  string
}

// NewS3Store connects to the bucket described by cfg using static
// credentials, as MinIO deployments expect.
func NewS3Store(ctx context.Context, cfg *config.Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	})
	return &S3Store{objects: client, presign: s3.NewPresignClient(client), bucket: cfg.S3Bucket}, nil
}

// StorageKey places name under a random prefix so uploads never overwrite
// each other.
func StorageKey(name string, now time.Time) string {
	return fmt.Sprintf("media/%d/%02d/%s/%s", now.Year(), now.Month(), uuid.NewString(), path.Base(name))
}

// Upload stores data and returns a presigned URL for reading it back.
func (s *S3Store) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if len(data) > MaxUploadSize {
		return "", ErrTooLarge
	}
	key := StorageKey(name, time.Now())

	_, err := s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(URLValidity))
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	return req.URL, nil
}
