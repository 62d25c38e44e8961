package cache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openDisk(t *testing.T, dir string, maxBytes int64) *DiskCache {
	t.Helper()
	dc, err := OpenDiskCache(CacheConfig{DiskPath: dir, DiskCapacity: maxBytes, CompressionLevel: 3}, nil)
	if err != nil {
		t.Fatalf("OpenDiskCache failed: %v", err)
	}
	return dc
}

func TestDiskCache_PutGet(t *testing.T) {
	dc := openDisk(t, t.TempDir(), 1<<20)
	defer dc.Close()

	// Compressible payload exercises the zstd path.
	value := bytes.Repeat([]byte("hola "), 1000)
	if err := dc.Put("m1:reply", value, "audio/mpeg"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, mime, ok := dc.Get("m1:reply")
	if !ok {
		t.Fatal("Get missed")
	}
	if !bytes.Equal(got, value) || mime != "audio/mpeg" {
		t.Errorf("Get returned %d bytes, mime %q", len(got), mime)
	}
	if stats := dc.Stats(); stats.Size >= int64(len(value)) {
		t.Errorf("expected compressed size below %d, got %d", len(value), stats.Size)
	}
}

func TestDiskCache_PersistsIndex(t *testing.T) {
	dir := t.TempDir()
	dc := openDisk(t, dir, 1<<20)
	if err := dc.Put("k", []byte("data"), "audio/mpeg"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := dc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := openDisk(t, dir, 1<<20)
	defer reopened.Close()
	if got, _, ok := reopened.Get("k"); !ok || string(got) != "data" {
		t.Errorf("reopened Get = %q, %v", got, ok)
	}
}

func TestDiskCache_Eviction(t *testing.T) {
	dc := openDisk(t, t.TempDir(), 10)
	defer dc.Close()

	if err := dc.Put("a", []byte("12345"), ""); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := dc.Put("b", []byte("12345"), ""); err != nil {
		t.Fatal(err)
	}
	if err := dc.Put("c", []byte("12345"), ""); err != nil {
		t.Fatal(err)
	}
	if dc.Contains("a") {
		t.Error("oldest entry should have been evicted")
	}
	if err := dc.Put("big", make([]byte, 11), ""); !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}
}

func TestDiskCache_ClearAndPrune(t *testing.T) {
	dc := openDisk(t, t.TempDir(), 1<<20)
	defer dc.Close()

	dc.Put("k", []byte("x"), "")
	if n := dc.Prune(time.Now().Add(-time.Hour)); n != 0 {
		t.Errorf("fresh clip pruned: %d", n)
	}
	if n := dc.Prune(time.Now().Add(time.Second)); n != 1 {
		t.Errorf("expected one pruned clip, got %d", n)
	}

	dc.Put("k", []byte("x"), "")
	if err := dc.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if dc.Contains("k") {
		t.Error("Clear should drop entries")
	}
}

func TestDiskCache_RemovesOrphans(t *testing.T) {
	dir := t.TempDir()
	orphan := filepath.Join(dir, "stale.mp3")
	if err := os.WriteFile(orphan, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	dc := openDisk(t, dir, 1<<20)
	defer dc.Close()

	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Errorf("orphaned clip should be removed, stat err = %v", err)
	}
}

func TestDiskCache_CorruptIndexStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, indexName), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	dc := openDisk(t, dir, 1<<20)
	defer dc.Close()

	if n := dc.Stats().ItemCount; n != 0 {
		t.Errorf("expected empty cache, got %d clips", n)
	}
}
