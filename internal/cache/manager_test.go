package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		MemoryCapacity:   1024,
		DiskCapacity:     64 * 1024,
		Dir:              t.TempDir(),
		CompressionLevel: 3,
	}
}

func TestManager_BasicOperations(t *testing.T) {
	m, err := NewManager(testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	if err := m.Put("key", []byte("value")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok := m.Get("key")
	if !ok || string(got) != "value" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	m.Delete("key")
	if _, ok := m.Get("key"); ok {
		t.Error("key still present after Delete")
	}
}

func TestManager_PromotesDiskHits(t *testing.T) {
	m, err := NewManager(testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	if err := m.disk.Put("cold", []byte("from disk")); err != nil {
		t.Fatalf("disk Put failed: %v", err)
	}

	got, ok := m.Get("cold")
	if !ok || string(got) != "from disk" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if !m.memory.Contains("cold") {
		t.Error("disk hit was not promoted to memory")
	}

	stats := m.Stats()
	if stats.Promotions != 1 {
		t.Errorf("Promotions = %d, want 1", stats.Promotions)
	}

	m.Get("cold")
	if m.Stats().Memory.Hits != 1 {
		t.Errorf("second Get should hit memory")
	}
}

func TestManager_LargeItemsStillReachDisk(t *testing.T) {
	m, err := NewManager(testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	big := bytes.Repeat([]byte("speech "), 1000)
	if err := m.Put("big", big); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if m.memory.Contains("big") {
		t.Error("item larger than memory capacity should skip L1")
	}
	got, ok := m.Get("big")
	if !ok || !bytes.Equal(got, big) {
		t.Error("large item not served from disk")
	}
}

func TestManager_PersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)

	m, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	payload := bytes.Repeat([]byte{1, 2, 3, 4}, 2048)
	if err := m.Put("persist", payload); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	m2, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer m2.Close()

	got, ok := m2.Get("persist")
	if !ok || !bytes.Equal(got, payload) {
		t.Error("entry did not survive restart")
	}
	if s := m2.Stats().Disk; s.Size >= int64(len(payload)) {
		t.Errorf("disk size %d not compressed below %d", s.Size, len(payload))
	}
}

func TestManager_Clear(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	for i := 0; i < 5; i++ {
		_ = m.Put(fmt.Sprintf("k%d", i), []byte("v"))
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	s := m.Stats()
	if s.Memory.Items != 0 || s.Disk.Items != 0 {
		t.Errorf("items after Clear = %d/%d", s.Memory.Items, s.Disk.Items)
	}
	files, _ := filepath.Glob(filepath.Join(cfg.Dir, "*.seg"))
	if len(files) != 0 {
		t.Errorf("%d segment files left after Clear", len(files))
	}
}

func TestManager_Cleanup(t *testing.T) {
	cfg := testConfig(t)
	cfg.TTL = 10 * time.Millisecond
	m, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	_ = m.Put("old", []byte("x"))
	time.Sleep(30 * time.Millisecond)

	if removed := m.Cleanup(); removed == 0 {
		t.Error("Cleanup removed nothing")
	}
	if _, ok := m.Get("old"); ok {
		t.Error("expired entry still served")
	}
}

func TestManager_DiskEviction(t *testing.T) {
	cfg := testConfig(t)
	cfg.CompressionLevel = 0
	cfg.DiskCapacity = 100
	m, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	for i := 0; i < 4; i++ {
		_ = m.Put(fmt.Sprintf("k%d", i), make([]byte, 40))
		time.Sleep(2 * time.Millisecond)
	}

	s := m.Stats().Disk
	if s.Size > 100 {
		t.Errorf("disk size %d exceeds capacity", s.Size)
	}
	if m.disk.Contains("k0") {
		t.Error("oldest entry should be evicted")
	}
}

func TestDisk_CorruptFileIsMiss(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDisk failed: %v", err)
	}
	payload := bytes.Repeat([]byte("abc"), 1000)
	if err := d.Put("k", payload); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "k.seg"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Get("k"); ok {
		t.Error("corrupt entry should miss")
	}
	if d.Contains("k") {
		t.Error("corrupt entry should be dropped from the index")
	}
}

func TestKey_String(t *testing.T) {
	a := Key{Engine: "piper", Voice: "amy", Speed: 1, Text: "Hello"}
	b := a
	b.Speed = 1.5

	if a.String() != a.String() {
		t.Error("key hashing is not stable")
	}
	if a.String() == b.String() {
		t.Error("different speeds should produce different keys")
	}
	if len(a.String()) != 32 {
		t.Errorf("key length = %d, want 32", len(a.String()))
	}
}
