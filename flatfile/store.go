package flatfile

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// ErrInvalidPath is returned for object keys that are empty, absolute, or
// climb out of the store with "..", and for negative or overflowing ranges.
var ErrInvalidPath = errors.New("flatfile: invalid object path or range")

// maxReadRangeLength keeps a range read addressable as a single []byte.
const maxReadRangeLength = int64(math.MaxInt)

// objectKey cleans an object path into the slash-separated key both local
// stores use. A key always names something below the store root.
func objectKey(p string) (string, error) {
	if p == "" {
		return "", ErrInvalidPath
	}
	key := path.Clean(filepath.ToSlash(p))
	if key == "." || path.IsAbs(key) || key == ".." || strings.HasPrefix(key, "../") {
		return "", ErrInvalidPath
	}
	return key, nil
}

// prefixKey is objectKey for List prefixes, where empty and "." mean
// everything.
func prefixKey(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	key := path.Clean(filepath.ToSlash(p))
	switch {
	case key == ".":
		return "", nil
	case path.IsAbs(key), key == "..", strings.HasPrefix(key, "../"):
		return "", ErrInvalidPath
	}
	return key, nil
}

// checkRange validates a ReadRange request before any I/O.
func checkRange(offset, length int64) error {
	if offset < 0 || length < 0 || length > maxReadRangeLength || offset > math.MaxInt64-length {
		return ErrInvalidPath
	}
	return nil
}

// ---------------------------------------------------------------------------
// Local directory
// ---------------------------------------------------------------------------

// dirStore keeps each object as a file under root. Sources it opens are the
// *os.File itself, so a Stream over it seeks natively.
type dirStore struct {
	root string
}

// NewFS returns a Store over an existing directory.
func NewFS(root string) (Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, os.ErrNotExist
	}
	return &dirStore{root: root}, nil
}

// NewFSFactory defers NewFS until the factory is called.
func NewFSFactory(root string) StoreFactory {
	return func() (Store, error) { return NewFS(root) }
}

func (d *dirStore) file(p string) (string, error) {
	key, err := objectKey(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(key)), nil
}

func (d *dirStore) Put(_ context.Context, p string, r io.Reader) (err error) {
	name, err := d.file(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return ErrPathExists
	}
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			// A half-written object would otherwise block the retry.
			_ = os.Remove(name)
		}
	}()
	_, err = io.Copy(f, r)
	return err
}

func (d *dirStore) openFile(p string) (*os.File, error) {
	name, err := d.file(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (d *dirStore) Get(_ context.Context, p string) (io.ReadCloser, error) {
	f, err := d.openFile(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (d *dirStore) OpenSource(_ context.Context, p string) (Source, error) {
	f, err := d.openFile(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (d *dirStore) Exists(ctx context.Context, p string) (bool, error) {
	_, err := d.Stat(ctx, p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	}
	return false, err
}

func (d *dirStore) Stat(_ context.Context, p string) (int64, error) {
	name, err := d.file(p)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(name)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// List walks the directory the prefix names. Keys come back slash-separated
// and relative to the root.
func (d *dirStore) List(_ context.Context, prefix string) ([]string, error) {
	key, err := prefixKey(prefix)
	if err != nil {
		return nil, err
	}
	start := filepath.Join(d.root, filepath.FromSlash(key))

	var keys []string
	err = filepath.WalkDir(start, func(name string, entry fs.DirEntry, err error) error {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, name)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Delete removes the object. Missing objects are not an error.
func (d *dirStore) Delete(_ context.Context, p string) error {
	name, err := d.file(p)
	if err != nil {
		return err
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *dirStore) ReadRange(_ context.Context, p string, offset, length int64) ([]byte, error) {
	if err := checkRange(offset, length); err != nil {
		return nil, err
	}
	f, err := d.openFile(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if length == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

var (
	_ RangeReader  = (*dirStore)(nil)
	_ SourceOpener = (*dirStore)(nil)
)

// ---------------------------------------------------------------------------
// In-process map
// ---------------------------------------------------------------------------

// mapStore holds objects in memory. It has no native source, so Open streams
// its objects through a RangeSource exactly as it would a remote store.
type mapStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty in-memory Store, safe for concurrent use.
func NewMemory() Store {
	return &mapStore{objects: make(map[string][]byte)}
}

// NewMemoryFactory returns a factory whose every call yields one shared
// in-memory store.
func NewMemoryFactory() StoreFactory {
	store := NewMemory()
	return func() (Store, error) { return store, nil }
}

func (m *mapStore) object(p string) ([]byte, error) {
	key, err := objectKey(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *mapStore) Put(_ context.Context, p string, r io.Reader) error {
	key, err := objectKey(p)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.objects[key]; taken {
		return ErrPathExists
	}
	m.objects[key] = data
	return nil
}

func (m *mapStore) Get(_ context.Context, p string) (io.ReadCloser, error) {
	data, err := m.object(p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (m *mapStore) Exists(_ context.Context, p string) (bool, error) {
	_, err := m.object(p)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *mapStore) Stat(_ context.Context, p string) (int64, error) {
	data, err := m.object(p)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// List matches keys by plain string prefix and returns them sorted.
func (m *mapStore) List(_ context.Context, prefix string) ([]string, error) {
	want, err := prefixKey(prefix)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, want) {
			keys = append(keys, key)
		}
	}
	m.mu.RUnlock()

	slices.Sort(keys)
	return keys, nil
}

func (m *mapStore) Delete(_ context.Context, p string) error {
	key, err := objectKey(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// ReadRange clamps to the object's end and returns a copy.
func (m *mapStore) ReadRange(_ context.Context, p string, offset, length int64) ([]byte, error) {
	if err := checkRange(offset, length); err != nil {
		return nil, err
	}
	data, err := m.object(p)
	if err != nil {
		return nil, err
	}
	size := int64(len(data))
	if offset >= size {
		return []byte{}, nil
	}
	return bytes.Clone(data[offset:min(offset+length, size)]), nil
}

var _ RangeReader = (*mapStore)(nil)
