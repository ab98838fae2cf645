package merge

import (
	"errors"
	"fmt"
	"strconv"

	"example.com/pdfmerge/internal/filecache"
)

type refKind uint8

const (
	cacheRef refKind = iota + 1
	indexRef
)

// SourceRef names the document a FileSpec draws pages from: either a file
// cache key or a position in the list of files uploaded with the request.
// The zero value refers to nothing. SourceRef is comparable.
type SourceRef struct {
	kind  refKind
	key   string
	index int
}

// CacheRef refers to a document stored in the file cache.
func CacheRef(key string) SourceRef { return SourceRef{kind: cacheRef, key: key} }

// IndexRef refers to the i-th (0-based) uploaded file.
func IndexRef(i int) SourceRef { return SourceRef{kind: indexRef, index: i} }

// Key returns the cache key and whether r is a cache reference.
func (r SourceRef) Key() (string, bool) { return r.key, r.kind == cacheRef }

// Index returns the upload position and whether r is an index reference.
func (r SourceRef) Index() (int, bool) { return r.index, r.kind == indexRef }

func (r SourceRef) String() string {
	switch r.kind {
	case cacheRef:
		return "cache:" + r.key
	case indexRef:
		return "file#" + strconv.Itoa(r.index)
	default:
		return "<none>"
	}
}

// Resolver turns a SourceRef into document bytes.
type Resolver interface {
	Resolve(ref SourceRef) ([]byte, error)
}

// CacheResolver resolves cache references against a file cache.
type CacheResolver struct {
	Cache *filecache.Cache
}

func (r CacheResolver) Resolve(ref SourceRef) ([]byte, error) {
	key, ok := ref.Key()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a cached file", ErrNotFound, ref)
	}
	data, err := r.Cache.Get(key)
	if errors.Is(err, filecache.ErrNotFound) {
		return nil, fmt.Errorf("%w: no cached file with id %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read cached file %q: %w", key, err)
	}
	return data, nil
}

// UploadResolver resolves index references against files uploaded with the
// request, in upload order.
type UploadResolver [][]byte

func (r UploadResolver) Resolve(ref SourceRef) ([]byte, error) {
	i, ok := ref.Index()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an uploaded file", ErrNotFound, ref)
	}
	if i < 0 || i >= len(r) {
		return nil, fmt.Errorf("%w: file index %d out of range, %d files uploaded", ErrNotFound, i, len(r))
	}
	return r[i], nil
}
