// Package memguard 监控进程常驻内存：超过上限时整体清空缓存内存层并触发 GC。
// 粗粒度整清策略——磁盘层随时可回填，无需 LRU。可被多个 worker 并发调用。
package memguard

import (
	"context"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/shirou/gopsutil/v4/process"

	"stockChipDip/internal/trace"
)

// Clearer 可整体清空的内存缓存层。
type Clearer interface {
	ClearMemory()
}

// Guard 内存守卫。rss 可注入以便测试；默认经 gopsutil 读取本进程 RSS。
type Guard struct {
	limit  uint64
	cache  Clearer
	rss    func() (uint64, error)
	clears int64
}

func New(limit uint64, cache Clearer) *Guard {
	return &Guard{limit: limit, cache: cache, rss: processRSS}
}

// NewWithReader 供测试注入内存读取函数。
func NewWithReader(limit uint64, cache Clearer, rss func() (uint64, error)) *Guard {
	return &Guard{limit: limit, cache: cache, rss: rss}
}

func processRSS() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// Check 读取当前 RSS，超限则清空缓存内存层并请求一次 GC。
// 读取失败按不超限处理（不因观测失败影响流水线）。清空幂等，可与并发读写共存。
func (g *Guard) Check(ctx context.Context) {
	if g == nil || g.limit == 0 || g.cache == nil {
		return
	}
	rss, err := g.rss()
	if err != nil {
		return
	}
	if rss <= g.limit {
		return
	}
	trace.Warn(ctx, "memguard: 内存使用过高 rss=%dMB limit=%dMB，清理缓存", rss>>20, g.limit>>20)
	g.cache.ClearMemory()
	runtime.GC()
	atomic.AddInt64(&g.clears, 1)
}

// Clears 已触发清理的次数，供日志与测试。
func (g *Guard) Clears() int64 {
	return atomic.LoadInt64(&g.clears)
}
