package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/gallerysync/api/internal/config"
	"github.com/gallerysync/api/internal/model"
)

// objectHeader is the part of the S3 API used for metadata lookups
type objectHeader interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3MediaStorage resolves gallery paths against an S3 compatible bucket
type S3MediaStorage struct {
	s3Client   objectHeader
	bucketName string
	keyPrefix  string
	logger     zerolog.Logger
}

// NewS3MediaStorage creates a media storage backed by the configured bucket.
// Static credentials are used when both keys are set; otherwise the default
// AWS credential chain applies.
func NewS3MediaStorage(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*S3MediaStorage, error) {
	if cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("S3 configuration incomplete")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3.Region),
	}
	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	})

	return newS3MediaStorage(s3Client, cfg.S3.Bucket, cfg.KeyPrefix, logger), nil
}

func newS3MediaStorage(c objectHeader, bucket, keyPrefix string, logger zerolog.Logger) *S3MediaStorage {
	return &S3MediaStorage{
		s3Client:   c,
		bucketName: bucket,
		keyPrefix:  keyPrefix,
		logger:     logger.With().Str("component", "s3").Logger(),
	}
}

// Stat looks up the object behind path with a single HeadObject call. A
// missing object is reported as not existing, an empty ETag as nil.
func (c *S3MediaStorage) Stat(ctx context.Context, path string) (model.MediaObject, error) {
	out, err := c.head(ctx, path)
	if isNotFound(err) {
		return model.MediaObject{}, nil
	}
	if err != nil {
		return model.MediaObject{}, err
	}
	obj := model.MediaObject{Exists: true}
	if out.ETag != nil && *out.ETag != "" {
		obj.Etag = out.ETag
	}
	return obj, nil
}

// Remote is always true for S3 storage
func (c *S3MediaStorage) Remote() bool {
	return true
}

func (c *S3MediaStorage) head(ctx context.Context, path string) (*s3.HeadObjectOutput, error) {
	key := ObjectKey(c.keyPrefix, ToTail(path))
	out, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if !isNotFound(err) {
			c.logger.Error().Err(err).Str("key", key).Msg("head object failed")
			return nil, fmt.Errorf("failed to head object %s: %w", key, err)
		}
		return nil, err
	}
	return out, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
