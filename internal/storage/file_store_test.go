package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	return fs
}

func TestFileStoreSetGet(t *testing.T) {
	fs := newTestFileStore(t)

	if err := fs.Set("flags:mira", []byte(`{"green": 2}`)); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	data, err := fs.Get("flags:mira")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(data, []byte(`{"green": 2}`)) {
		t.Errorf("unexpected value: %s", data)
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	fs := newTestFileStore(t)

	if _, err := fs.Get("nope"); err != ErrKeyNotFound {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	fs := newTestFileStore(t)

	fs.Set("history:mira", []byte("first"))
	if err := fs.Set("history:mira", []byte("second")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	data, err := fs.Get("history:mira")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected overwritten value, got %s", data)
	}

	// 临时文件不能残留
	entries, err := os.ReadDir(fs.BaseDir)
	if err != nil {
		t.Fatalf("failed to list base dir: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Errorf("leftover temp file: %s", entry.Name())
		}
	}
}

func TestFileStoreRemove(t *testing.T) {
	fs := newTestFileStore(t)

	fs.Set("flags:mira", []byte("x"))
	if err := fs.Remove("flags:mira"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	if _, err := fs.Get("flags:mira"); err != ErrKeyNotFound {
		t.Errorf("expected ErrKeyNotFound after remove, got %v", err)
	}

	// 删除不存在的键不报错
	if err := fs.Remove("flags:mira"); err != nil {
		t.Errorf("removing a missing key must be a no-op, got %v", err)
	}
}

func TestFileStoreListKeysByPrefix(t *testing.T) {
	fs := newTestFileStore(t)

	fs.Set("flags:mira", []byte("a"))
	fs.Set("flags:dante", []byte("b"))
	fs.Set("history:mira", []byte("c"))

	keys, err := fs.ListKeys("flags:")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	sort.Strings(keys)
	want := []string{"flags:dante", "flags:mira"}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestFileStoreUnsafeKeyRoundTrip(t *testing.T) {
	fs := newTestFileStore(t)

	key := "flags:角色/with spaces"
	if err := fs.Set(key, []byte("value")); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	data, err := fs.Get(key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(data) != "value" {
		t.Errorf("unexpected value: %s", data)
	}

	// 编码后的键也要能被前缀列举找回
	keys, err := fs.ListKeys("flags:")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != key {
		t.Errorf("expected encoded key to round trip through listing, got %v", keys)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	first.Set("flags:mira", []byte("persisted"))

	second, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("failed to reopen file store: %v", err)
	}

	data, err := second.Get("flags:mira")
	if err != nil {
		t.Fatalf("get after reopen failed: %v", err)
	}
	if string(data) != "persisted" {
		t.Errorf("unexpected value after reopen: %s", data)
	}
}
