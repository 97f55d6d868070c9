package output

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ObjectPutter is the slice of the S3 API the publisher needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher uploads finished output files to an S3 bucket under a key prefix.
type Publisher struct {
	client ObjectPutter
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewPublisher creates an S3-backed publisher using the default AWS credential chain.
func NewPublisher(ctx context.Context, log zerolog.Logger, bucket, prefix, region string) (*Publisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewPublisherWithClient(log, s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewPublisherWithClient wires an existing client.
func NewPublisherWithClient(log zerolog.Logger, client ObjectPutter, bucket, prefix string) *Publisher {
	return &Publisher{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), log: log}
}

// Key returns the object key for a local file.
func (p *Publisher) Key(file string) string {
	if p.prefix == "" {
		return filepath.Base(file)
	}
	return path.Join(p.prefix, filepath.Base(file))
}

// Publish uploads each file and returns the keys written. It stops at the
// first failed upload.
func (p *Publisher) Publish(ctx context.Context, files []string) ([]string, error) {
	var keys []string
	for _, f := range files {
		key := p.Key(f)
		if err := p.upload(ctx, f, key); err != nil {
			return keys, fmt.Errorf("upload %s to s3://%s/%s: %w", f, p.bucket, key, err)
		}
		p.log.Info().Str("file", f).Str("bucket", p.bucket).Str("key", key).Msg("published")
		keys = append(keys, key)
	}
	return keys, nil
}

func (p *Publisher) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(file)),
	})
	return err
}

func contentType(file string) string {
	switch {
	case strings.HasSuffix(file, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(file, ".csv"):
		return "text/csv"
	case strings.HasSuffix(file, ".parquet"):
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
