package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrReleased is returned when a released resource is read.
var ErrReleased = errors.New("audio resource released")

var (
	nextResourceID atomic.Uint64
	liveResources  atomic.Int64
)

// Resource is a blob-backed playable handle. Its bytes stay alive until
// Release is called; every Resource must be released exactly once by
// whoever owns it (the cache for cached entries, the playback driver
// otherwise).
type Resource struct {
	id   uint64
	mime string
	size int64

	mu       sync.Mutex
	data     []byte
	released bool
}

// NewResource wraps data in a new handle. The slice is owned by the
// resource from here on.
func NewResource(data []byte, mime string) *Resource {
	liveResources.Add(1)
	return &Resource{
		id:   nextResourceID.Add(1),
		mime: mime,
		size: int64(len(data)),
		data: data,
	}
}

// ID returns the process-unique handle id.
func (r *Resource) ID() uint64 {
	return r.id
}

// URL returns a stable local locator for logs and the debug endpoint.
func (r *Resource) URL() string {
	return fmt.Sprintf("blob:habla/%d", r.id)
}

// MimeType returns the mime type the data was tagged with.
func (r *Resource) MimeType() string {
	return r.mime
}

// Size returns the byte size of the data at creation time.
func (r *Resource) Size() int64 {
	return r.size
}

// Bytes returns the underlying data, or ErrReleased.
func (r *Resource) Bytes() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, ErrReleased
	}
	return r.data, nil
}

// Release drops the data. It reports whether this call did the release;
// further calls are no-ops.
func (r *Resource) Release() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return false
	}
	r.released = true
	r.data = nil
	liveResources.Add(-1)
	return true
}

// Released reports whether Release has been called.
func (r *Resource) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// LiveResources returns the number of resources not yet released.
func LiveResources() int64 {
	return liveResources.Load()
}
