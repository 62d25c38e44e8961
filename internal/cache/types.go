package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the disk capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when cache data is corrupted
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// DefaultCapacity is the number of distinct clips kept in memory.
const DefaultCapacity = 20

// CacheStats holds cache performance metrics
type CacheStats struct {
	Capacity int64 // Entries for the memory cache, bytes for the disk cache

	// Current state
	Size      int64 // Current size in bytes
	ItemCount int64 // Number of items in cache
	Playing   int64 // Entries currently protected from eviction

	// Performance metrics
	Hits       int64   // Number of cache hits
	Misses     int64   // Number of cache misses
	Evictions  int64   // Number of evictions
	Throwaways int64   // Puts served with an uncached handle
	DiskHits   int64   // Misses served from the disk cache
	HitRate    float64 // Calculated hit rate (hits / (hits + misses))

	LastEvict time.Time // Last eviction time
}

// Store is a second-level byte store behind the memory cache.
type Store interface {
	Get(key string) (data []byte, mime string, ok bool)
	Put(key string, data []byte, mime string) error
	Clear() error
}

// CacheConfig holds configuration for cache instances
type CacheConfig struct {
	// Memory cache
	Capacity int // Distinct entries

	// Disk cache
	DiskEnabled      bool
	DiskPath         string        // Directory for cache files
	DiskCapacity     int64         // Bytes
	DiskMaxAge       time.Duration // Unplayed clips older than this are pruned; 0 keeps them
	CompressionLevel int           // Zstd compression level (1-22, default 3)
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity:         DefaultCapacity,
		DiskCapacity:     64 * 1024 * 1024, // 64MB
		DiskMaxAge:       30 * 24 * time.Hour,
		CompressionLevel: 3, // Balanced compression
	}
}
