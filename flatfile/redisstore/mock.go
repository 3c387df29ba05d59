package redisstore

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis"
)

// MockClient is an in-memory API implementation for tests.
// It tracks GETRANGE calls so tests can assert read-ahead behaviour.
type MockClient struct {
	mu   sync.Mutex
	data map[string]string

	// GetRangeCalls counts GETRANGE commands.
	GetRangeCalls int

	// GetRangeErr, when set, fails every GETRANGE command.
	GetRangeErr error
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{data: make(map[string]string)}
}

// ResetCounts zeroes the call counters.
func (m *MockClient) ResetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetRangeCalls = 0
}

func (m *MockClient) Get(key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

// GetRange follows Redis semantics for non-negative bounds: end is
// inclusive and clamped, and a missing key reads as empty.
func (m *MockClient) GetRange(key string, start, end int64) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetRangeCalls++
	if m.GetRangeErr != nil {
		return redis.NewStringResult("", m.GetRangeErr)
	}
	val := m.data[key]
	size := int64(len(val))
	if start >= size || end < start {
		return redis.NewStringResult("", nil)
	}
	if end >= size {
		end = size - 1
	}
	return redis.NewStringResult(val[start:end+1], nil)
}

func (m *MockClient) StrLen(key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	return redis.NewIntResult(int64(len(m.data[key])), nil)
}

func (m *MockClient) SetNX(key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	switch v := value.(type) {
	case string:
		m.data[key] = v
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return redis.NewBoolResult(true, nil)
}

func (m *MockClient) Exists(keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *MockClient) Del(keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Scan supports only "prefix*" patterns, which is all Store.List issues.
// The cursor is an offset into the sorted key set.
func (m *MockClient) Scan(cursor uint64, match string, count int64) *redis.ScanCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := unescapeGlob(strings.TrimSuffix(match, "*"))
	var matched []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)

	if count <= 0 {
		count = 10
	}
	start := int(cursor)
	if start > len(matched) {
		start = len(matched)
	}
	end := start + int(count)
	if end >= len(matched) {
		return redis.NewScanCmdResult(matched[start:], 0, nil)
	}
	return redis.NewScanCmdResult(matched[start:end], uint64(end), nil)
}

func unescapeGlob(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

var _ API = (*MockClient)(nil)
