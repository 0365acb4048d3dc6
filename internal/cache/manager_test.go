package cache

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiskCache_RoundTripAndReopen(t *testing.T) {
	dir := t.TempDir()
	value := bytes.Repeat([]byte{0, 1, 2, 3}, 2048)

	dc, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	if err := dc.Put("key", value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if dc.Size() >= int64(len(value)) {
		t.Errorf("entry not compressed: %d bytes on disk", dc.Size())
	}
	dc.Close()

	reopened, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Get("key")
	if !ok || !bytes.Equal(got, value) {
		t.Fatalf("Get after reopen = %d bytes, %v", len(got), ok)
	}
	if _, ok := reopened.Get("other"); ok {
		t.Error("unexpected hit")
	}
}

func TestDiskCache_CorruptEntryIsDropped(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer dc.Close()

	dc.Put("key", []byte("hello"))
	if err := os.WriteFile(filepath.Join(dir, fileName("key")), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := dc.Get("key"); ok {
		t.Fatal("corrupt entry returned")
	}
	if s := dc.Stats(); s.Items != 0 {
		t.Errorf("corrupt entry still indexed: %d items", s.Items)
	}
}

func TestDiskCache_Eviction(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 200, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer dc.Close()

	// random bytes do not compress, so only two entries fit
	for i, key := range []string{"a", "b", "c", "d"} {
		payload := make([]byte, 80)
		rand.New(rand.NewSource(int64(i))).Read(payload)
		if err := dc.Put(key, payload); err != nil {
			t.Fatalf("Put(%s): %v", key, err)
		}
	}
	if dc.Size() > 200 {
		t.Errorf("Size %d exceeds capacity", dc.Size())
	}
	if s := dc.Stats(); s.Evictions == 0 {
		t.Error("no entry was evicted")
	}
	if _, ok := dc.Get("d"); !ok {
		t.Error("newest entry missing")
	}
}

func TestManager_PromotesDiskHits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Put("key", []byte("pcm")); err != nil {
		t.Fatal(err)
	}
	m.Close()

	m2, err := NewManager(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()

	if got, ok := m2.Get("key"); !ok || string(got) != "pcm" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if !m2.l1.Contains("key") {
		t.Error("disk hit was not promoted to memory")
	}
}

func TestManager_MemoryOnly(t *testing.T) {
	m, err := NewManager(Config{MemoryCapacity: 1024})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if m.l2 != nil {
		t.Fatal("disk tier created without a directory")
	}
	m.Put("k", []byte("v"))
	if _, ok := m.Get("k"); !ok {
		t.Error("memory tier miss")
	}
	if _, ok := m.Stats()[LevelDisk]; ok {
		t.Error("disk stats reported without a disk tier")
	}
}

func TestManager_PruneExpired(t *testing.T) {
	m, err := NewManager(Config{
		MemoryCapacity:   1024,
		DiskCapacity:     1 << 20,
		Dir:              t.TempDir(),
		CompressionLevel: 1,
		TTL:              time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.Put("old", []byte("stale audio")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	if n := m.Prune(); n != 2 {
		t.Errorf("Prune removed %d entries, want one per tier", n)
	}
	if s := m.Stats()[LevelMemory]; s.Items != 0 {
		t.Errorf("memory tier still holds %d items", s.Items)
	}
	if _, ok := m.Get("old"); ok {
		t.Error("expired entry still served")
	}
}

func TestManager_NoTTLKeepsEntries(t *testing.T) {
	m, err := NewManager(Config{MemoryCapacity: 1024})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	m.Put("k", []byte("v"))
	if n := m.Prune(); n != 0 {
		t.Errorf("Prune without a TTL removed %d entries", n)
	}
	if _, ok := m.Get("k"); !ok {
		t.Error("entry lost without a TTL")
	}
}

func TestKey(t *testing.T) {
	base := KeyParts{
		Credential:   "abc",
		Voice:        "en-US-Chirp3-HD-Enceladus",
		Language:     "en-US",
		SpeakingRate: 0.95,
		SampleRate:   24000,
		Text:         "Hello.",
	}
	if Key(base) != Key(base) {
		t.Fatal("Key is not deterministic")
	}

	variants := []KeyParts{base, base, base, base}
	variants[0].Credential = "def"
	variants[1].Text = "Hello!"
	variants[2].SpeakingRate = 1
	variants[3].SampleRate = 16000
	for i, v := range variants {
		if Key(v) == Key(base) {
			t.Errorf("variant %d collides with base key", i)
		}
	}

	// field boundaries matter
	a := KeyParts{Voice: "ab", Language: "c"}
	b := KeyParts{Voice: "a", Language: "bc"}
	if Key(a) == Key(b) {
		t.Error("keys of shifted fields collide")
	}
}
