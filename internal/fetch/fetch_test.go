package fetch

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockChipDip/internal/cache"
	"stockChipDip/internal/config"
	"stockChipDip/internal/model"
	"stockChipDip/internal/trace"
)

func TestMain(m *testing.M) {
	trace.SetLogger(nil)
	os.Exit(m.Run())
}

// stubUpstream 按脚本返回：errs 耗尽后返回 klines。记录调用次数。
type stubUpstream struct {
	calls  int
	errs   []error
	klines []model.KLine
}

func (s *stubUpstream) GetDailyKlines(ctx context.Context, code, startDate, endDate, adjust string) ([]model.KLine, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return s.klines, nil
}

func newTestFetcher(t *testing.T, upstream Upstream) (*Fetcher, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.System.RetryTimes = 3
	cfg.System.RetryDelay = time.Millisecond
	f := NewFetcher(upstream, cache.NewStore(context.Background(), t.TempDir()), cfg)
	f.sleep = func(ctx context.Context, d time.Duration) {}
	return f, cfg
}

func TestFetch_SuccessFirstAttempt(t *testing.T) {
	upstream := &stubUpstream{klines: []model.KLine{{Date: "20240101", Close: 10, Volume: 100}}}
	f, _ := newTestFetcher(t, upstream)

	got, err := f.Fetch(context.Background(), "600000")
	require.NoError(t, err)
	assert.Equal(t, upstream.klines, got)
	assert.Equal(t, 1, upstream.calls)
}

func TestFetch_CacheHitSkipsUpstream(t *testing.T) {
	upstream := &stubUpstream{klines: []model.KLine{{Date: "20240101", Close: 10, Volume: 100}}}
	f, _ := newTestFetcher(t, upstream)
	ctx := context.Background()

	_, err := f.Fetch(ctx, "600000")
	require.NoError(t, err)
	_, err = f.Fetch(ctx, "600000")
	require.NoError(t, err)

	// 第二次命中缓存，不再请求上游
	assert.Equal(t, 1, upstream.calls)
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	boom := errors.New("boom")
	upstream := &stubUpstream{
		errs:   []error{boom, boom},
		klines: []model.KLine{{Date: "20240101", Close: 10, Volume: 100}},
	}
	f, _ := newTestFetcher(t, upstream)

	got, err := f.Fetch(context.Background(), "600000")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, upstream.calls)
}

func TestFetch_ExhaustsExactlyRetryTimes(t *testing.T) {
	boom := errors.New("boom")
	upstream := &stubUpstream{errs: []error{boom, boom, boom, boom, boom}}
	f, cfg := newTestFetcher(t, upstream)

	_, err := f.Fetch(context.Background(), "600000")
	require.Error(t, err)
	assert.Equal(t, cfg.System.RetryTimes, upstream.calls)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "600000", fe.Code)
	assert.ErrorIs(t, err, boom)
}

func TestFetch_FailureNotCached(t *testing.T) {
	boom := errors.New("boom")
	upstream := &stubUpstream{
		errs:   []error{boom, boom, boom},
		klines: []model.KLine{{Date: "20240101", Close: 10, Volume: 100}},
	}
	f, _ := newTestFetcher(t, upstream)
	ctx := context.Background()

	_, err := f.Fetch(ctx, "600000")
	require.Error(t, err)

	// 失败不落缓存，下一次仍请求上游并成功
	got, err := f.Fetch(ctx, "600000")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 4, upstream.calls)
}

func TestFetch_CancelledBetweenAttempts(t *testing.T) {
	boom := errors.New("boom")
	upstream := &stubUpstream{errs: []error{boom, boom, boom}}
	f, _ := newTestFetcher(t, upstream)

	ctx, cancel := context.WithCancel(context.Background())
	f.sleep = func(ctx context.Context, d time.Duration) { cancel() }

	_, err := f.Fetch(ctx, "600000")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// 取消发生在第一次重试等待中，只尝试了一次
	assert.Equal(t, 1, upstream.calls)
}
