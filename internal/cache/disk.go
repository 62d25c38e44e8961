package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/habla/internal/ttypes"
)

const (
	indexName = "speech.index"
	// Speech shorter than this is stored raw.
	minCompressSize = 1024
)

// DiskCache keeps synthesized speech between runs so replaying an old
// bubble does not cost another synthesis request. Clips are stored one
// per file, zstd-compressed when that makes them smaller, and evicted
// least recently used first once MaxBytes is exceeded.
type DiskCache struct {
	dir      string
	maxBytes int64
	logger   *log.Logger

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu    sync.Mutex
	clips map[string]*clipFile
	used  int64
	stats CacheStats
}

// clipFile is one index record. Fields are exported for gob.
type clipFile struct {
	Name       string // file name inside dir
	Mime       string
	Stored     int64 // bytes on disk
	Raw        int64 // bytes after decompression
	Zstd       bool
	Created    time.Time
	LastAccess time.Time
}

// OpenDiskCache opens or creates the cache under cfg.DiskPath. A missing
// or unreadable index starts an empty cache; clips older than
// cfg.DiskMaxAge and files the index does not know are removed.
func OpenDiskCache(cfg CacheConfig, logger *log.Logger) (*DiskCache, error) {
	if logger == nil {
		logger = log.Default().WithPrefix("disk-cache")
	}
	if err := os.MkdirAll(cfg.DiskPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	level := cfg.CompressionLevel
	if level <= 0 {
		level = DefaultCacheConfig().CompressionLevel
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		dir:      cfg.DiskPath,
		maxBytes: cfg.DiskCapacity,
		logger:   logger,
		enc:      enc,
		dec:      dec,
		clips:    make(map[string]*clipFile),
		stats:    CacheStats{Capacity: cfg.DiskCapacity},
	}
	if err := dc.readIndex(); err != nil {
		logger.Warn("discarding speech index", "err", err)
		dc.clips = make(map[string]*clipFile)
	}
	for _, c := range dc.clips {
		dc.used += c.Stored
	}
	if cfg.DiskMaxAge > 0 {
		if n := dc.Prune(time.Now().Add(-cfg.DiskMaxAge)); n > 0 {
			logger.Debug("pruned old speech", "clips", n)
		}
	}
	dc.removeOrphans()
	logger.Debug("speech cache opened", "clips", len(dc.clips), "size", humanize.Bytes(uint64(dc.used)))
	return dc, nil
}

// Get implements Store.
func (dc *DiskCache) Get(key string) ([]byte, string, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	c, ok := dc.clips[key]
	if !ok {
		dc.stats.Misses++
		return nil, "", false
	}
	data, err := os.ReadFile(filepath.Join(dc.dir, c.Name))
	if err == nil && c.Zstd {
		data, err = dc.dec.DecodeAll(data, make([]byte, 0, c.Raw))
	}
	if err != nil {
		dc.logger.Debug("dropping unreadable clip", "key", key, "err", err)
		dc.removeLocked(key, c)
		dc.stats.Misses++
		return nil, "", false
	}

	c.LastAccess = time.Now()
	dc.stats.Hits++
	return data, c.Mime, true
}

// Put implements Store. A clip larger than the whole cache is refused
// with ErrItemTooLarge.
func (dc *DiskCache) Put(key string, data []byte, mime string) error {
	stored, compressed := data, false
	if len(data) > minCompressSize {
		// MP3 rarely shrinks; keep whichever is smaller.
		if z := dc.enc.EncodeAll(data, nil); len(z) < len(data) {
			stored, compressed = z, true
		}
	}
	size := int64(len(stored))

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if old, ok := dc.clips[key]; ok {
		dc.removeLocked(key, old)
	}
	if size > dc.maxBytes {
		return ErrItemTooLarge
	}
	for dc.used+size > dc.maxBytes && len(dc.clips) > 0 {
		dc.evictLocked()
	}

	name := fileName(key, mime)
	if err := writeFileAtomic(filepath.Join(dc.dir, name), stored); err != nil {
		return fmt.Errorf("failed to write speech clip: %w", err)
	}
	now := time.Now()
	dc.clips[key] = &clipFile{
		Name:       name,
		Mime:       mime,
		Stored:     size,
		Raw:        int64(len(data)),
		Zstd:       compressed,
		Created:    now,
		LastAccess: now,
	}
	dc.used += size
	return nil
}

// Clear implements Store.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for key, c := range dc.clips {
		dc.removeLocked(key, c)
	}
	return dc.writeIndex()
}

// Contains reports whether key is cached without touching its access time.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	_, ok := dc.clips[key]
	return ok
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() CacheStats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s := dc.stats
	s.Size = dc.used
	s.ItemCount = int64(len(dc.clips))
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
	return s
}

// Prune removes clips not played since cutoff and returns how many.
func (dc *DiskCache) Prune(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	n := 0
	for key, c := range dc.clips {
		if c.LastAccess.Before(cutoff) {
			dc.removeLocked(key, c)
			n++
		}
	}
	return n
}

// Close writes the index and releases the codecs.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.enc.Close()
	dc.dec.Close()
	return dc.writeIndex()
}

func (dc *DiskCache) removeLocked(key string, c *clipFile) {
	_ = os.Remove(filepath.Join(dc.dir, c.Name))
	dc.used -= c.Stored
	delete(dc.clips, key)
}

// evictLocked drops the least recently played clip.
func (dc *DiskCache) evictLocked() {
	var (
		victim string
		oldest time.Time
	)
	for key, c := range dc.clips {
		if victim == "" || c.LastAccess.Before(oldest) {
			victim, oldest = key, c.LastAccess
		}
	}
	if victim == "" {
		return
	}
	dc.removeLocked(victim, dc.clips[victim])
	dc.stats.Evictions++
	dc.stats.LastEvict = time.Now()
}

// removeOrphans deletes clip files left behind by a lost index.
func (dc *DiskCache) removeOrphans() {
	entries, err := os.ReadDir(dc.dir)
	if err != nil {
		return
	}
	known := make(map[string]bool, len(dc.clips))
	for _, c := range dc.clips {
		known[c.Name] = true
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == indexName || known[name] || strings.HasSuffix(name, ".tmp") {
			continue
		}
		_ = os.Remove(filepath.Join(dc.dir, name))
	}
}

func (dc *DiskCache) readIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&dc.clips); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return nil
}

func (dc *DiskCache) writeIndex() error {
	path := filepath.Join(dc.dir, indexName)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(dc.clips)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// fileName hashes the key so message ids never reach the file system.
func fileName(key, mime string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ttypes.ExtensionFor(mime)
}

// writeFileAtomic writes to a temp file first, then renames.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

var _ Store = (*DiskCache)(nil)
