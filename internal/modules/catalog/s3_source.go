package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// maxObjectSize bounds how much of a catalog object is read
const maxObjectSize = 32 << 20

// ObjectGetter is the part of the S3 client the source needs
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config locates a catalog object in S3 or an S3-compatible store such as R2
type S3Config struct {
	Bucket    string
	Key       string
	Endpoint  string // empty for AWS
	Region    string
	AccessKey string
	SecretKey string
}

// S3Source reads a catalog document from an object store
type S3Source struct {
	client ObjectGetter
	bucket string
	key    string
	format Format
	log    zerolog.Logger
}

// NewS3Client builds an S3 client. A custom endpoint switches to path-style
// addressing, which R2 and MinIO expect.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Source creates a source for bucket/key; the format follows the key extension
func NewS3Source(client ObjectGetter, bucket, key string, log zerolog.Logger) (*S3Source, error) {
	format, err := FormatFromPath(key)
	if err != nil {
		return nil, err
	}
	return &S3Source{
		client: client,
		bucket: bucket,
		key:    key,
		format: format,
		log:    log.With().Str("component", "s3_catalog_source").Logger(),
	}, nil
}

// Name identifies the source
func (s *S3Source) Name() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

// Load fetches and decodes the object
func (s *S3Source) Load(ctx context.Context) ([]*domain.QPU, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog object %s: %w", s.Name(), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog object %s: %w", s.Name(), err)
	}
	if len(data) > maxObjectSize {
		return nil, fmt.Errorf("catalog object %s exceeds %d bytes", s.Name(), maxObjectSize)
	}

	s.log.Debug().
		Str("etag", aws.ToString(out.ETag)).
		Int("bytes", len(data)).
		Msg("Fetched catalog object")

	return Decode(s.format, data)
}
