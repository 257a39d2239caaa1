package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// snapshotKey 为一组输入生成稳定的指纹，用于判断异步结果是否已过期
func snapshotKey(value any) string {
	payload, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// snapshotCache 只保留最近一个输入指纹对应的结果
type snapshotCache[T any] struct {
	mu    sync.Mutex
	key   string
	value T
	ok    bool
}

func (c *snapshotCache[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ok || key == "" || c.key != key {
		var zero T
		return zero, false
	}
	return c.value, true
}

func (c *snapshotCache[T]) put(key string, value T) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = key
	c.value = value
	c.ok = true
}
