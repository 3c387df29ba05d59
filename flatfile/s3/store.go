// Package s3 stores flatfile objects in an S3-compatible bucket (AWS, MinIO,
// LocalStack, R2).
//
// A stream opened on the store fetches one read-ahead block per ranged
// GetObject, so SetPosition far into a large object costs a single request.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/justapithecus/flatfile/flatfile"
)

// API is the slice of *s3.Client the store calls.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config selects the bucket and key namespace.
type Config struct {
	Bucket string

	// Prefix namespaces every key, e.g. "refseq" stores "chr1.fa" as
	// "refseq/chr1.fa". Keys returned by List have it stripped.
	Prefix string

	// Logger gets one debug line per range request. Nil disables logging.
	Logger *zap.Logger
}

// Store is a flatfile.Store and flatfile.RangeReader over one bucket.
type Store struct {
	client API
	bucket string
	prefix string
	logger *zap.Logger
}

// New wraps an already configured client, typically from NewClient:
//
//	client, err := s3store.NewClient(ctx, s3store.ClientConfig{Region: "us-east-1"})
//	store, err := s3store.New(client, s3store.Config{Bucket: "genomes"})
//	stream, err := flatfile.Open(ctx, store, "refseq/chr1.fa")
func New(client API, cfg Config) (*Store, error) {
	switch {
	case client == nil:
		return nil, errors.New("s3: nil client")
	case cfg.Bucket == "":
		return nil, errors.New("s3: empty bucket name")
	}

	prefix := cfg.Prefix
	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		logger: logger.With(zap.String("bucket", cfg.Bucket)),
	}, nil
}

// objectKey maps a flatfile path to the bucket key. Leading slashes are
// dropped; paths that clean to nothing or climb with ".." are rejected.
func (s *Store) objectKey(p string) (string, error) {
	if p == "" {
		return "", flatfile.ErrInvalidPath
	}
	key := strings.TrimPrefix(path.Clean(p), "/")
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, "../") {
		return "", flatfile.ErrInvalidPath
	}
	return s.prefix + key, nil
}

func (s *Store) listPrefix(p string) (string, error) {
	if p == "" {
		return s.prefix, nil
	}
	key := path.Clean(p)
	switch {
	case key == ".":
		return s.prefix, nil
	case key == "..", strings.HasPrefix(key, "../"):
		return "", flatfile.ErrInvalidPath
	}
	return s.prefix + strings.TrimPrefix(key, "/"), nil
}

// failure turns an SDK error into flatfile's sentinels where one applies and
// otherwise tags it with the operation and key.
func failure(op, key string, err error) error {
	if missing(err) {
		return flatfile.ErrNotFound
	}
	return fmt.Errorf("s3: %s %s: %w", op, key, err)
}

func missing(err error) bool {
	var (
		noKey    *types.NoSuchKey
		notFound *types.NotFound
		noBucket *types.NoSuchBucket
	)
	if errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return true
	}
	switch apiCode(err) {
	case "NotFound", "NoSuchKey", "404":
		return true
	}
	return false
}

func apiCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// Put uploads r under p unless p is already taken, in which case it returns
// flatfile.ErrPathExists. The whole body is read into memory first.
func (s *Store) Put(ctx context.Context, p string, r io.Reader) error {
	key, err := s.objectKey(p)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("s3: buffer %s: %w", key, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		IfNoneMatch: aws.String("*"),
	})
	switch code := apiCode(err); {
	case err == nil:
		return nil
	case code == "PreconditionFailed" || code == "412":
		return flatfile.ErrPathExists
	}
	return fmt.Errorf("s3: put %s: %w", key, err)
}

func (s *Store) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	key, err := s.objectKey(p)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, failure("get", key, err)
	}
	return out.Body, nil
}

func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.Stat(ctx, p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, flatfile.ErrNotFound):
		return false, nil
	}
	return false, err
}

// Stat issues a HEAD request and reports ContentLength.
func (s *Store) Stat(ctx context.Context, p string) (int64, error) {
	key, err := s.objectKey(p)
	if err != nil {
		return 0, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, failure("head", key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// List follows continuation tokens until the listing is complete.
func (s *Store) List(ctx context.Context, p string) ([]string, error) {
	prefix, err := s.listPrefix(p)
	if err != nil {
		return nil, err
	}

	var keys []string
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	for {
		page, err := s.client.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("s3: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, strings.TrimPrefix(*obj.Key, s.prefix))
			}
		}
		if !aws.ToBool(page.IsTruncated) {
			return keys, nil
		}
		in.ContinuationToken = page.NextContinuationToken
	}
}

// Delete is a no-op for keys that do not exist, as in S3 itself.
func (s *Store) Delete(ctx context.Context, p string) error {
	key, err := s.objectKey(p)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}

// ReadRange fetches [offset, offset+length) with a Range header. Ranges that
// start at or past the end come back empty and ranges that cross it are
// clamped by S3. A zero length returns without a request.
func (s *Store) ReadRange(ctx context.Context, p string, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || length > math.MaxInt || offset > math.MaxInt64-length {
		return nil, flatfile.ErrInvalidPath
	}
	if length == 0 {
		return []byte{}, nil
	}
	key, err := s.objectKey(p)
	if err != nil {
		return nil, err
	}

	// HTTP byte ranges are inclusive at both ends.
	byteRange := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	s.logger.Debug("range read", zap.String("key", key), zap.String("range", byteRange))

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  aws.String(byteRange),
	})
	if apiCode(err) == "InvalidRange" {
		return []byte{}, nil
	}
	if err != nil {
		return nil, failure("get range of", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %s %s: %w", key, byteRange, err)
	}
	return data, nil
}

var (
	_ flatfile.Store       = (*Store)(nil)
	_ flatfile.RangeReader = (*Store)(nil)
)
