package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when a stored entry cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level identifies a cache tier.
type Level int

const (
	// LevelMemory is the in-memory tier.
	LevelMemory Level = iota

	// LevelDisk is the persistent tier.
	LevelDisk
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds counters of one tier.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config holds cache settings.
type Config struct {
	// MemoryCapacity bounds the L1 tier in bytes.
	MemoryCapacity int64 `mapstructure:"memoryCapacity" yaml:"memoryCapacity"`

	// DiskCapacity bounds the L2 tier in bytes. Zero disables L2.
	DiskCapacity int64 `mapstructure:"diskCapacity" yaml:"diskCapacity"`

	// Dir is the L2 directory.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// CompressionLevel is the zstd level of L2 entries (1-22).
	CompressionLevel int `mapstructure:"compressionLevel" yaml:"compressionLevel"`

	// TTL is how long entries are kept in either tier. Zero keeps them
	// forever.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,  // 64MB
		DiskCapacity:     1024 * 1024 * 1024, // 1GB
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
	}
}

// Store is a key/value store of PCM buffers.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}
