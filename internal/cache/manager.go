package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager looks entries up in memory first, then on disk, promoting disk
// hits into memory. Writes go to both tiers.
type Manager struct {
	memory *Memory
	disk   *Disk
	cfg    Config
	logger *log.Logger

	mu         sync.Mutex
	promotions int64
	cleanups   int64

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// ManagerStats aggregates both tiers.
type ManagerStats struct {
	Memory     Stats
	Disk       Stats
	Promotions int64
	Cleanups   int64
}

// Hits returns hits across both tiers. A disk hit follows a memory miss, so
// only disk misses count as overall misses.
func (s ManagerStats) Hits() int64 { return s.Memory.Hits + s.Disk.Hits }

// Misses returns lookups that missed every tier.
func (s ManagerStats) Misses() int64 { return s.Disk.Misses }

// NewManager opens both tiers and starts TTL cleanup when configured.
func NewManager(cfg Config, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}
	disk, err := NewDisk(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("open disk cache: %w", err)
	}

	m := &Manager{
		memory: NewMemory(cfg.MemoryCapacity),
		disk:   disk,
		cfg:    cfg,
		logger: logger.WithPrefix("cache"),
		stop:   make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 && cfg.TTL > 0 {
		m.wg.Add(1)
		go m.cleanupLoop()
	}
	return m, nil
}

// Get returns the cached value for key.
func (m *Manager) Get(key string) ([]byte, bool) {
	if v, ok := m.memory.Get(key); ok {
		return v, true
	}
	v, ok := m.disk.Get(key)
	if !ok {
		return nil, false
	}
	if err := m.memory.Put(key, v); err == nil {
		m.mu.Lock()
		m.promotions++
		m.mu.Unlock()
	}
	return v, true
}

// Put stores value in both tiers. An item too large for memory is still
// written to disk.
func (m *Manager) Put(key string, value []byte) error {
	memErr := m.memory.Put(key, value)
	if errors.Is(memErr, ErrItemTooLarge) {
		memErr = nil
	}
	diskErr := m.disk.Put(key, value)
	if errors.Is(diskErr, ErrItemTooLarge) {
		m.logger.Debug("Segment too large for disk cache", "key", key, "bytes", len(value))
		diskErr = nil
	}
	return errors.Join(memErr, diskErr)
}

// Delete removes key from both tiers.
func (m *Manager) Delete(key string) {
	m.memory.Delete(key)
	m.disk.Delete(key)
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	m.memory.Clear()
	if err := m.disk.Clear(); err != nil {
		return fmt.Errorf("clear disk cache: %w", err)
	}
	return nil
}

// Cleanup expires entries older than the configured TTL.
func (m *Manager) Cleanup() int {
	if m.cfg.TTL <= 0 {
		return 0
	}
	removed := m.disk.RemoveOlderThan(time.Now().Add(-m.cfg.TTL))
	removed += m.memory.Prune(m.cfg.TTL)

	m.mu.Lock()
	m.cleanups++
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("Expired cached segments", "count", removed)
	}
	return removed
}

// Stats returns a snapshot of both tiers.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{
		Memory:     m.memory.Stats(),
		Disk:       m.disk.Stats(),
		Promotions: m.promotions,
		Cleanups:   m.cleanups,
	}
}

// Close stops cleanup and persists the disk index.
func (m *Manager) Close() error {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
	if err := m.disk.Close(); err != nil {
		return fmt.Errorf("close disk cache: %w", err)
	}
	return nil
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stop:
			return
		}
	}
}
