// Package fetch 获取单只股票的历史 K 线：先查缓存，未命中再请求上游并带抖动重试，
// 成功后写回缓存。上游以最小接口注入，测试可用内存桩替换。
package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"stockChipDip/internal/cache"
	"stockChipDip/internal/config"
	"stockChipDip/internal/model"
	"stockChipDip/internal/trace"
)

// Upstream 上游行情服务：按代码与日期窗口取日 K。
type Upstream interface {
	GetDailyKlines(ctx context.Context, code, startDate, endDate, adjust string) ([]model.KLine, error)
}

// FetchError 重试耗尽后的上游失败，携带最后一次原因；按单只股票级别可恢复。
type FetchError struct {
	Code string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Code, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher 带缓存与重试的数据获取器。
type Fetcher struct {
	upstream Upstream
	store    *cache.Store
	cfg      *config.Config

	// sleep 可注入以便测试不真实等待
	sleep func(ctx context.Context, d time.Duration)
}

func NewFetcher(upstream Upstream, store *cache.Store, cfg *config.Config) *Fetcher {
	return &Fetcher{
		upstream: upstream,
		store:    store,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Fetch 取一只股票的日 K。缓存命中直接返回（不走重试）；未命中时最多尝试
// RetryTimes 次，相邻尝试间等待 RetryDelay*(1+uniform(0,1))；全部失败返回 FetchError。
func (f *Fetcher) Fetch(ctx context.Context, code string) ([]model.KLine, error) {
	key := f.cfg.CacheKey()
	if klines, ok := f.store.Get(ctx, code, key); ok {
		return klines, nil
	}

	var lastErr error
	retries := f.cfg.System.RetryTimes
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(f.cfg.System.RetryDelay) * (1 + rand.Float64()))
			trace.Warn(ctx, "fetch: %s 第%d次尝试失败，%s 后重试: %v", code, attempt, delay.Round(time.Millisecond), lastErr)
			f.sleep(ctx, delay)
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
		}
		klines, err := f.upstream.GetDailyKlines(ctx, code,
			f.cfg.Data.StartDate, f.cfg.Data.EndDate, f.cfg.Data.Adjust)
		if err != nil {
			lastErr = err
			continue
		}
		f.store.Put(ctx, code, key, klines)
		return klines, nil
	}
	return nil, &FetchError{Code: code, Err: lastErr}
}
