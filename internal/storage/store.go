// internal/storage/store.go
package storage

import "errors"

// ErrKeyNotFound is returned by Get when no value exists for the key.
var ErrKeyNotFound = errors.New("storage: key not found")

// Store 定义游戏核心使用的通用键值存储接口
// Values are JSON-serialized byte slices. The core never depends on a
// specific storage engine; tests substitute an in-memory implementation.
type Store interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	// Set writes the value for key with last-write-wins semantics.
	Set(key string, value []byte) error

	// Remove deletes the value for key. Removing an absent key is not
	// an error.
	Remove(key string) error

	// ListKeys returns all keys starting with prefix, in no particular
	// order.
	ListKeys(prefix string) ([]string, error)
}
