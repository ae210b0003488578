package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCorrupted is returned when a stored entry cannot be decoded.
	ErrCorrupted = errors.New("cache data corrupted")
)

// Level identifies a cache tier.
type Level int

const (
	LevelMemory Level = iota
	LevelDisk
)

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

// Stats describes one cache tier.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
	LastEvict time.Time
}

// HitRate returns hits / (hits + misses), or 0 without lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config configures a Manager.
type Config struct {
	// MemoryCapacity bounds the L1 tier in bytes.
	MemoryCapacity int64

	// DiskCapacity bounds the L2 tier in bytes (compressed size).
	DiskCapacity int64

	// Dir holds the L2 files and index.
	Dir string

	// CompressionLevel is the zstd level (1-22); 0 stores entries raw.
	CompressionLevel int

	// TTL expires disk entries older than this; 0 keeps them forever.
	TTL time.Duration

	// CleanupInterval runs TTL expiry periodically; 0 disables it.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default cache configuration. Dir must still be
// set by the caller.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 << 20,
		DiskCapacity:     512 << 20,
		CompressionLevel: 3,
		TTL:              30 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Key identifies one synthesized paragraph.
type Key struct {
	Engine string
	Voice  string
	Speed  float64
	Text   string
}

// String hashes the key components into a stable file-safe identifier.
func (k Key) String() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|", k.Engine, k.Voice, strconv.FormatFloat(k.Speed, 'f', 2, 64))
	h.Write([]byte(k.Text))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
