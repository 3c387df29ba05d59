package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// MockClient is a bucket held in a map. It answers ranged GetObject the way
// S3 does: clamped at the object end, InvalidRange when starting past it.
type MockClient struct {
	mu      sync.Mutex
	objects map[string][]byte

	Gets      int // every GetObject
	RangeGets int // GetObject carrying a Range header
	Heads     int

	// FailGets, if non-nil, is returned from GetObject instead of data.
	FailGets error
}

// NewMockClient returns an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{objects: make(map[string][]byte)}
}

// ResetCalls zeroes Gets, RangeGets and Heads.
func (m *MockClient) ResetCalls() {
	m.mu.Lock()
	m.Gets, m.RangeGets, m.Heads = 0, 0, 0
	m.mu.Unlock()
}

func (m *MockClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.objects[key]; taken && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &apiError{code: "PreconditionFailed", msg: "At least one of the pre-conditions you specified did not hold"}
	}
	m.objects[key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *MockClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	m.Gets++
	if in.Range != nil {
		m.RangeGets++
	}
	data, ok := m.objects[aws.ToString(in.Key)]
	fail := m.FailGets
	m.mu.Unlock()

	switch {
	case fail != nil:
		return nil, fail
	case !ok:
		return nil, &types.NoSuchKey{}
	}

	if in.Range != nil {
		var first, last int64
		if _, err := fmt.Sscanf(*in.Range, "bytes=%d-%d", &first, &last); err != nil {
			return nil, &apiError{code: "InvalidArgument", msg: err.Error()}
		}
		size := int64(len(data))
		if first >= size {
			return nil, &apiError{code: "InvalidRange", msg: "The requested range is not satisfiable"}
		}
		data = data[first:min(last+1, size)]
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *MockClient) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	m.Heads++
	data, ok := m.objects[aws.ToString(in.Key)]
	m.mu.Unlock()

	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (m *MockClient) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objects, aws.ToString(in.Key))
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 returns every match in a single, sorted page.
func (m *MockClient) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)

	m.mu.Lock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()
	slices.Sort(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

// apiError is a smithy.APIError carrying an S3 error code.
type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.code + ": " + e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var _ API = (*MockClient)(nil)
