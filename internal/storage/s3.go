package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// S3Options configures an S3Store.
type S3Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// PublicBaseURL is the storage base used to build public object URLs.
	PublicBaseURL string
	Timeout       time.Duration
	Logger        zerolog.Logger
}

// S3API is the part of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store publishes objects through an S3-compatible endpoint, such as the
// one Supabase Storage exposes.
type S3Store struct {
	client        S3API
	bucket        string
	publicBaseURL string
	timeout       time.Duration
	logger        zerolog.Logger
}

// NewS3Client builds a path-style S3 client with static credentials.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewS3Store wraps client for opts.Bucket.
func NewS3Store(client S3API, opts S3Options) (*S3Store, error) {
	if client == nil {
		return nil, errors.New("storage: s3 client is required")
	}
	bucket := strings.Trim(strings.TrimSpace(opts.Bucket), "/")
	if bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/")
	if base == "" {
		return nil, errors.New("storage: public base url is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}
	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: base,
		timeout:       timeout,
		logger:        opts.Logger,
	}, nil
}

// Publish stores data at key: a conditional create (If-None-Match: *) first,
// then an unconditional overwrite if the create fails.
func (s *S3Store) Publish(ctx context.Context, key string, data []byte) error {
	createErr := s.put(ctx, key, data, true)
	if createErr == nil {
		s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("storage: object created")
		return nil
	}
	s.logger.Debug().Err(createErr).Str("key", key).Int("status", statusOf(createErr)).Msg("storage: create failed, overwriting")

	overwriteErr := s.put(ctx, key, data, false)
	if overwriteErr == nil {
		s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("storage: object overwritten")
		return nil
	}
	perr := &PublishError{Key: key, Create: createErr, Overwrite: overwriteErr}
	s.logger.Error().
		Str("key", key).
		Str("bucket", s.bucket).
		Int("bytes", len(data)).
		Ints("status_codes", perr.StatusCodes()).
		Msg("storage: create and overwrite both failed")
	return perr
}

// PublicURL is the address the public site uses for key.
func (s *S3Store) PublicURL(key string) string {
	return s.publicBaseURL + "/object/public/" + s.bucket + "/" + escapeKey(key)
}

func (s *S3Store) put(ctx context.Context, key string, data []byte, createOnly bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentTypeJPEG),
		CacheControl:  aws.String("no-cache"),
	}
	method := "PUT"
	if createOnly {
		input.IfNoneMatch = aws.String("*")
		method = "PUT If-None-Match"
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return s3StatusError(method, key, err)
	}
	return nil
}

// s3StatusError lifts the HTTP status and API error code out of an SDK error.
func s3StatusError(method, key string, err error) error {
	var respErr *awshttp.ResponseError
	if !errors.As(err, &respErr) {
		return fmt.Errorf("storage: %s %s: %w", method, key, err)
	}
	se := &StatusError{Method: method, Key: key, StatusCode: respErr.HTTPStatusCode()}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		se.Code = apiErr.ErrorCode()
		se.Body = apiErr.ErrorMessage()
	}
	return se
}
