// Package cache 提供按 (代码, 日期窗口) 键的两层 K 线缓存：内存 map + 磁盘 JSON 文件。
// 磁盘读写失败不致命：记日志后按未命中/尽力写处理。每个键对应唯一文件名，
// 跨 worker 不会争用同一文件；同键并发写以后写者为准（同一上游响应内容一致）。
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"stockChipDip/internal/model"
	"stockChipDip/internal/trace"
)

const cacheFilePerm = 0o644

// Store 两层缓存。内存层有独立锁，内存守卫整体清空时与并发读写互不破坏。
type Store struct {
	dir string

	mu  sync.RWMutex
	mem map[string][]model.KLine
}

// NewStore 创建缓存，目录不存在时创建；创建失败仅记日志，磁盘层降级为不可用。
func NewStore(ctx context.Context, dir string) *Store {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		trace.Warn(ctx, "cache: 创建缓存目录失败 dir=%s err=%v", dir, err)
	}
	return &Store{
		dir: dir,
		mem: make(map[string][]model.KLine),
	}
}

func entryKey(code, key string) string {
	return code + "_" + key
}

func (s *Store) filePath(code, key string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", code, key))
}

// Get 先查内存层，未命中再读磁盘并回填内存。读失败视为未命中。
func (s *Store) Get(ctx context.Context, code, key string) ([]model.KLine, bool) {
	ek := entryKey(code, key)
	s.mu.RLock()
	klines, ok := s.mem[ek]
	s.mu.RUnlock()
	if ok {
		return klines, true
	}

	b, err := os.ReadFile(s.filePath(code, key))
	if err != nil {
		if !os.IsNotExist(err) {
			trace.Warn(ctx, "cache: 读取缓存失败 %s err=%v", code, err)
		}
		return nil, false
	}
	var out []model.KLine
	if err := json.Unmarshal(b, &out); err != nil {
		trace.Warn(ctx, "cache: 缓存文件损坏按未命中处理 %s err=%v", code, err)
		return nil, false
	}
	if len(out) == 0 {
		return nil, false
	}

	s.mu.Lock()
	s.mem[ek] = out
	s.mu.Unlock()
	return out, true
}

// Put 写入内存层并尽力落盘；落盘失败仅记日志。
func (s *Store) Put(ctx context.Context, code, key string, klines []model.KLine) {
	ek := entryKey(code, key)
	s.mu.Lock()
	s.mem[ek] = klines
	s.mu.Unlock()

	b, err := json.Marshal(klines)
	if err != nil {
		trace.Warn(ctx, "cache: 序列化缓存失败 %s err=%v", code, err)
		return
	}
	if err := os.WriteFile(s.filePath(code, key), b, cacheFilePerm); err != nil {
		trace.Warn(ctx, "cache: 保存缓存失败 %s err=%v", code, err)
	}
}

// ClearMemory 整体清空内存层（磁盘层保留，可随时回填）。幂等，可并发调用。
func (s *Store) ClearMemory() {
	s.mu.Lock()
	s.mem = make(map[string][]model.KLine)
	s.mu.Unlock()
}

// MemoryLen 内存层条目数，供日志与测试。
func (s *Store) MemoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mem)
}
