package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"

	"support-dashboard/internal/logger"
	"support-dashboard/internal/observability"
)

// S3Config locates an S3-compatible bucket.
type S3Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads into a bucket under the uploads/ prefix.
type S3Store struct {
	client    objectPutter
	bucket    string
	publicURL string
}

// NewS3Store builds a client from the default credential chain, overridden by
// static keys and a custom endpoint when configured.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *S3Store) Kind() string { return "s3" }

func (s *S3Store) Save(ctx context.Context, originalName, contentType string, r io.Reader) (string, error) {
	key := "uploads/" + objectName(originalName)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}

	// Seekable bodies keep payload signing possible on plain-HTTP endpoints.
	var size func() int64
	if rs, ok := r.(io.ReadSeeker); ok {
		n, err := seekSize(rs)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUpload, err)
		}
		input.Body = rs
		input.ContentLength = aws.Int64(n)
		size = func() int64 { return n }
	} else {
		counter := &countingReader{r: r}
		input.Body = counter
		size = func() int64 { return counter.n }
	}

	_, err := s.client.PutObject(ctx, input)
	observability.ObserveUpload(s.Kind(), size(), err)
	if err != nil {
		return "", fmt.Errorf("%w: put %s: %v", ErrUpload, key, err)
	}

	logger.Info().
		Str("key", key).
		Str("original", originalName).
		Str("size", humanize.Bytes(uint64(size()))).
		Msg("upload stored in bucket")
	return s.publicURL + "/" + key, nil
}

func seekSize(rs io.ReadSeeker) (int64, error) {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return 0, err
	}
	return end - start, nil
}
