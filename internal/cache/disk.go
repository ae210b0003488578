package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const indexFile = "segments.index"

// Disk is the L2 tier: one file per entry, optionally zstd-compressed, with
// a gob index so sizes and access times survive restarts.
type Disk struct {
	dir      string
	capacity int64

	mu    sync.Mutex
	size  int64
	index map[string]*diskEntry
	stats Stats

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

type diskEntry struct {
	Key        string
	File       string
	Size       int64 // bytes on disk
	RawSize    int64
	Compressed bool
	Created    time.Time
	LastAccess time.Time
}

// NewDisk opens (or creates) a disk cache in dir. A compressionLevel of 0
// disables compression.
func NewDisk(dir string, capacity int64, compressionLevel int) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	d := &Disk{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
	}

	if compressionLevel > 0 {
		var err error
		d.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		d.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
	}

	// A missing or unreadable index starts the cache empty.
	if err := d.loadIndex(); err != nil {
		d.index = make(map[string]*diskEntry)
	}
	for _, e := range d.index {
		d.size += e.Size
	}
	return d, nil
}

// Get reads and decompresses the entry for key.
func (d *Disk) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.index[key]
	if !ok {
		d.stats.Misses++
		return nil, false
	}

	data, err := d.read(entry)
	if err != nil {
		d.drop(key, entry)
		d.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	d.stats.Hits++
	return data, true
}

func (d *Disk) read(entry *diskEntry) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, entry.File))
	if err != nil {
		return nil, err
	}
	if !entry.Compressed {
		return data, nil
	}
	if d.decoder == nil {
		return nil, ErrCorrupted
	}
	raw, err := d.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return raw, nil
}

// Put writes value under key, evicting least recently accessed entries to
// stay within capacity.
func (d *Disk) Put(key string, value []byte) error {
	data := value
	compressed := false
	if d.encoder != nil && len(value) > 1024 {
		if c := d.encoder.EncodeAll(value, nil); len(c) < len(value) {
			data = c
			compressed = true
		}
	}
	n := int64(len(data))

	d.mu.Lock()
	defer d.mu.Unlock()

	if n > d.capacity {
		return ErrItemTooLarge
	}
	if old, ok := d.index[key]; ok {
		d.drop(key, old)
	}
	for d.size+n > d.capacity && len(d.index) > 0 {
		d.evictOldest()
	}

	name := key + ".seg"
	if err := writeFileAtomic(filepath.Join(d.dir, name), data); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}

	now := time.Now()
	d.index[key] = &diskEntry{
		Key:        key,
		File:       name,
		Size:       n,
		RawSize:    int64(len(value)),
		Compressed: compressed,
		Created:    now,
		LastAccess: now,
	}
	d.size += n
	return nil
}

// Delete removes key if present.
func (d *Disk) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.index[key]; ok {
		d.drop(key, e)
	}
}

// Contains reports whether key is indexed.
func (d *Disk) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.index[key]
	return ok
}

// RemoveOlderThan drops entries created before cutoff.
func (d *Disk) RemoveOlderThan(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for key, e := range d.index {
		if e.Created.Before(cutoff) {
			d.drop(key, e)
			removed++
		}
	}
	return removed
}

// Clear removes every entry and any stray segment files.
func (d *Disk) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, e := range d.index {
		d.drop(key, e)
	}
	stray, _ := filepath.Glob(filepath.Join(d.dir, "*.seg"))
	for _, f := range stray {
		_ = os.Remove(f)
	}
	d.size = 0
	return d.saveIndex()
}

// Size returns the bytes held on disk.
func (d *Disk) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Stats returns a snapshot of the tier.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Capacity = d.capacity
	s.Size = d.size
	s.Items = int64(len(d.index))
	return s
}

// Close persists the index.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.decoder != nil {
		d.decoder.Close()
	}
	return d.saveIndex()
}

// drop must be called with the lock held.
func (d *Disk) drop(key string, e *diskEntry) {
	_ = os.Remove(filepath.Join(d.dir, e.File))
	delete(d.index, key)
	d.size -= e.Size
}

func (d *Disk) evictOldest() {
	entries := make([]*diskEntry, 0, len(d.index))
	for _, e := range d.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	oldest := entries[0]
	d.drop(oldest.Key, oldest)
	d.stats.Evictions++
	d.stats.LastEvict = time.Now()
}

func (d *Disk) loadIndex() error {
	f, err := os.Open(filepath.Join(d.dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	index := make(map[string]*diskEntry)
	if err := gob.NewDecoder(f).Decode(&index); err != nil {
		return err
	}
	// Forget entries whose files disappeared.
	for key, e := range index {
		if _, err := os.Stat(filepath.Join(d.dir, e.File)); err != nil {
			delete(index, key)
		}
	}
	d.index = index
	return nil
}

func (d *Disk) saveIndex() error {
	path := filepath.Join(d.dir, indexFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	encErr := gob.NewEncoder(f).Encode(d.index)
	closeErr := f.Close()
	if err := errors.Join(encErr, closeErr); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
