package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the durable cloud backend.
type S3Config struct {
	Bucket string
	// Prefix is prepended to every object key, e.g. "obt-helper".
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint for compatible stores (R2, MinIO).
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Provider stores each namespace under <prefix>/<namespace>/<key>. S3
// gives read-after-write consistency for single keys, which is all the
// services rely on; there is no cross-key transaction.
type S3Provider struct {
	client *s3.Client
	cfg    S3Config
}

func NewS3Provider(ctx context.Context, cfg S3Config) (*S3Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Provider{client: client, cfg: cfg}, nil
}

func (p *S3Provider) Namespace(name string) Store {
	root := name
	if p.cfg.Prefix != "" {
		root = p.cfg.Prefix + "/" + name
	}
	return &s3Store{provider: p, root: root + "/"}
}

func (p *S3Provider) Close() error {
	return nil
}

type s3Store struct {
	provider *S3Provider
	root     string
}

func (s *s3Store) objectKey(key string) string {
	return s.root + key
}

func (s *s3Store) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := s.provider.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.provider.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", false, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return string(data), true, nil
}

func (s *s3Store) Set(ctx context.Context, key, value string) error {
	_, err := s.provider.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.provider.cfg.Bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        strings.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	_, err := s.provider.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.provider.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.provider.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.provider.cfg.Bucket),
		Prefix: aws.String(s.root + prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects %s*: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.root))
		}
	}
	return keys, nil
}
