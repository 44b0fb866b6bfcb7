// internal/storage/file_store.go
package storage

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore 提供文件存储服务
// One file per key under BaseDir. Writes are atomic (temp file + rename)
// and serialized per key; reads go through a small expiring cache.
type FileStore struct {
	BaseDir string

	// 并发控制
	fileLocks sync.Map // 文件级别锁 path -> *sync.RWMutex

	// 简单缓存
	cache        map[string]*cacheEntry
	cacheMutex   sync.RWMutex
	cacheExpiry  time.Duration
	maxCacheSize int
}

type cacheEntry struct {
	data      []byte
	timestamp time.Time
}

// NewFileStore 创建文件存储服务
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	fs := &FileStore{
		BaseDir:      baseDir,
		cache:        make(map[string]*cacheEntry),
		cacheExpiry:  5 * time.Minute,
		maxCacheSize: 256,
	}

	return fs, nil
}

// keyToFilename encodes a free-form key into a safe filename. Plain
// keys (letters, digits, ':', '-', '_', '.') map to themselves so the
// data directory stays human-readable.
func keyToFilename(key string) string {
	safe := true
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == ':' || r == '-' || r == '_' || r == '.':
		default:
			safe = false
		}
		if !safe {
			break
		}
	}
	if safe && key != "" {
		return key + ".json"
	}
	return "b64_" + base64.RawURLEncoding.EncodeToString([]byte(key)) + ".json"
}

func filenameToKey(name string) (string, bool) {
	name = strings.TrimSuffix(name, ".json")
	if encoded, ok := strings.CutPrefix(name, "b64_"); ok {
		raw, err := base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
	return name, true
}

// 获取文件锁
func (fs *FileStore) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// Get 读取指定键的值
func (fs *FileStore) Get(key string) ([]byte, error) {
	fullPath := filepath.Join(fs.BaseDir, keyToFilename(key))

	// 检查缓存
	fs.cacheMutex.RLock()
	if entry, exists := fs.cache[fullPath]; exists {
		if time.Since(entry.timestamp) < fs.cacheExpiry {
			fs.cacheMutex.RUnlock()
			return entry.data, nil
		}
	}
	fs.cacheMutex.RUnlock()

	// 获取文件锁（读锁）
	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}

	fs.updateCache(fullPath, content)

	return content, nil
}

// Set 写入指定键的值
func (fs *FileStore) Set(key string, value []byte) error {
	fullPath := filepath.Join(fs.BaseDir, keyToFilename(key))

	// 获取文件锁
	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	// 原子性文件写入
	tempPath := fullPath + ".tmp"

	if err := os.WriteFile(tempPath, value, 0644); err != nil {
		return fmt.Errorf("failed to write temp file for %q: %w", key, err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write %q: %w", key, err)
	}

	fs.updateCache(fullPath, value)

	return nil
}

// Remove 删除指定键的值
func (fs *FileStore) Remove(key string) error {
	fullPath := filepath.Join(fs.BaseDir, keyToFilename(key))

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}

	fs.invalidateCache(fullPath)

	return nil
}

// ListKeys 列出指定前缀的所有键
func (fs *FileStore) ListKeys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(fs.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		key, ok := filenameToKey(entry.Name())
		if !ok {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// 缓存管理
func (fs *FileStore) updateCache(path string, data []byte) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	fs.cache[path] = &cacheEntry{
		data:      data,
		timestamp: time.Now(),
	}

	// 简单的缓存大小控制
	if len(fs.cache) > fs.maxCacheSize {
		var oldestKey string
		var oldestTime time.Time

		for key, entry := range fs.cache {
			if oldestKey == "" || entry.timestamp.Before(oldestTime) {
				oldestKey = key
				oldestTime = entry.timestamp
			}
		}

		if oldestKey != "" {
			delete(fs.cache, oldestKey)
		}
	}
}

// invalidateCache 清除指定路径的缓存
func (fs *FileStore) invalidateCache(path string) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	delete(fs.cache, path)
}
