package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Manager layers the memory tier over the optional disk tier.
type Manager struct {
	l1  *MemoryCache
	l2  *DiskCache
	ttl time.Duration
}

// NewManager creates the tiers described by cfg. The disk tier is skipped
// when cfg.Dir is empty or cfg.DiskCapacity is zero. Expired disk entries
// are pruned on open.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{l1: NewMemoryCache(cfg.MemoryCapacity), ttl: cfg.TTL}
	if cfg.Dir == "" || cfg.DiskCapacity <= 0 {
		return m, nil
	}

	l2, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}
	m.l2 = l2
	m.Prune()
	return m, nil
}

// Prune drops entries older than the configured TTL from both tiers and
// returns how many were removed. It does nothing without a TTL.
func (m *Manager) Prune() int {
	if m.ttl <= 0 {
		return 0
	}
	n := m.l1.Prune(m.ttl)
	if m.l2 != nil {
		n += m.l2.Prune(m.ttl)
	}
	if n > 0 {
		log.Debug("Pruned expired cache entries", "count", n)
	}
	return n
}

// Get checks L1, then L2. L2 hits are promoted to L1.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.l1.Get(key); ok {
		return data, true
	}
	if m.l2 == nil {
		return nil, false
	}
	data, ok := m.l2.Get(key)
	if !ok {
		return nil, false
	}
	if err := m.l1.Put(key, data); err != nil && !errors.Is(err, ErrItemTooLarge) {
		log.Debug("Failed to promote cache entry", "error", err)
	}
	return data, true
}

// Put stores value in both tiers. The disk write is synchronous so a run
// that exits right after synthesis still leaves its audio behind. Oversized
// items are skipped silently.
func (m *Manager) Put(key string, value []byte) error {
	if err := m.l1.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("L1 cache error: %w", err)
	}
	if m.l2 == nil {
		return nil
	}
	if err := m.l2.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("L2 cache error: %w", err)
	}
	return nil
}

// Stats returns the counters of each tier.
func (m *Manager) Stats() map[Level]Stats {
	stats := map[Level]Stats{LevelMemory: m.l1.Stats()}
	if m.l2 != nil {
		stats[LevelDisk] = m.l2.Stats()
	}
	return stats
}

// Close logs the final counters and closes the disk tier.
func (m *Manager) Close() error {
	for level, s := range m.Stats() {
		log.Debug("Cache stats",
			"level", level,
			"hits", s.Hits,
			"misses", s.Misses,
			"size", humanize.Bytes(uint64(s.Size)))
	}
	if m.l2 != nil {
		return m.l2.Close()
	}
	return nil
}

// KeyParts are the inputs that determine synthesized audio.
type KeyParts struct {
	// Credential is the credential fingerprint. Audio is never shared
	// between credentials.
	Credential   string
	Voice        string
	Language     string
	SpeakingRate float64
	SampleRate   int
	Text         string
}

// Key returns the cache key of p.
func Key(p KeyParts) string {
	h := sha256.New()
	for _, part := range []string{
		p.Credential,
		p.Voice,
		p.Language,
		strconv.FormatFloat(p.SpeakingRate, 'f', 3, 64),
		strconv.Itoa(p.SampleRate),
		p.Text,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
