package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds configuration for creating an S3 client.
type ClientConfig struct {
	// Region is the AWS region (required).
	Region string

	// Endpoint is an optional custom endpoint URL for S3-compatible
	// services (MinIO, LocalStack, R2), e.g. "http://localhost:4566".
	Endpoint string

	// UsePathStyle enables path-style addressing instead of virtual-hosted
	// style. LocalStack and default MinIO setups need it.
	UsePathStyle bool

	// Credentials are the AWS credentials to use.
	// If nil, uses the default credential chain.
	Credentials aws.CredentialsProvider
}

// NewClient creates a new S3 client with the given configuration.
//
// For AWS S3:
//
//	client, err := s3store.NewClient(ctx, s3store.ClientConfig{Region: "us-east-1"})
//
// For LocalStack, use NewLocalStackClient; for MinIO, NewMinIOClient.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	if cfg.Region == "" {
		return nil, errors.New("s3: region is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Credentials != nil {
		opts = append(opts, config.WithCredentialsProvider(cfg.Credentials))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, clientOptions(cfg)...), nil
}

func clientOptions(cfg ClientConfig) []func(*s3.Options) {
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3Opts
}

// NewLocalStackClient creates an S3 client configured for LocalStack.
// Defaults: endpoint=http://localhost:4566, region=us-east-1, credentials=test/test.
func NewLocalStackClient(ctx context.Context) (*s3.Client, error) {
	return NewClient(ctx, ClientConfig{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:4566",
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
}

// NewMinIOClient creates an S3 client configured for MinIO.
// Defaults: endpoint=http://localhost:9000, region=us-east-1, credentials=minioadmin/minioadmin.
func NewMinIOClient(ctx context.Context) (*s3.Client, error) {
	return NewClient(ctx, ClientConfig{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("minioadmin", "minioadmin", ""),
	})
}

// NewR2Client creates an S3 client configured for Cloudflare R2.
func NewR2Client(ctx context.Context, accountID, accessKeyID, secretAccessKey string) (*s3.Client, error) {
	return NewClient(ctx, ClientConfig{
		Region:      "auto",
		Endpoint:    "https://" + accountID + ".r2.cloudflarestorage.com",
		Credentials: credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
	})
}

// ParseURI splits an "s3://bucket/key" location into a store Config and
// the object key relative to it.
//
//	cfg, key, err := s3store.ParseURI("s3://genomes/refseq/chr1.fa")
//	// cfg.Bucket == "genomes", key == "refseq/chr1.fa"
func ParseURI(uri string) (Config, string, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return Config{}, "", fmt.Errorf("s3: parse %q: %w", uri, err)
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return Config{}, "", fmt.Errorf("s3: unsupported scheme %q in %q", u.Scheme, uri)
	}
	if u.Host == "" {
		return Config{}, "", fmt.Errorf("s3: missing bucket in %q", uri)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return Config{}, "", fmt.Errorf("s3: missing key in %q", uri)
	}
	return Config{Bucket: u.Host}, key, nil
}
