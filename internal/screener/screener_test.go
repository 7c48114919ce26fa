package screener

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockChipDip/internal/config"
	"stockChipDip/internal/model"
	"stockChipDip/internal/trace"
)

func TestMain(m *testing.M) {
	trace.SetLogger(nil)
	os.Exit(m.Run())
}

type stubUniverse struct {
	stocks []model.StockBrief
	err    error
}

func (u *stubUniverse) GetAllStocks(ctx context.Context) ([]model.StockBrief, error) {
	return u.stocks, u.err
}

// stubFetcher 返回固定序列；calls 原子累计，供断言缓存/调用次数。
type stubFetcher struct {
	calls int64
	err   error
}

func (f *stubFetcher) Fetch(ctx context.Context, code string) ([]model.KLine, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return []model.KLine{{Date: "20240101", Close: 9.5, Volume: 100}}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.FilterSwitches = config.FilterSwitches{ExcludeGEM: true}
	cfg.System.ChunkSize = 1
	cfg.System.MaxWorkers = 2
	return cfg
}

// withStubCalc 注入固定指标：筹码均价 11，现价 9.5 在支撑线 9 与基准线 10 之间。
func withStubCalc(s *Screener) {
	s.chipFn = func(klines []model.KLine) *model.ChipDistribution {
		return &model.ChipDistribution{CurrentPrice: 9.5, AvgCost: 11, MainForceCost: 10.5, ProfitRatio: 0.3}
	}
	s.pentaFn = func(klines []model.KLine) *model.Pentagram {
		return &model.Pentagram{CurrentPrice: 9.5, SupportPrice: 9, BasePrice: 10, VolumeRatio: 1.2}
	}
}

func TestRun_EndToEnd(t *testing.T) {
	universe := &stubUniverse{stocks: []model.StockBrief{
		{Code: "600000", Name: "甲"},
		{Code: "300001", Name: "乙"},
	}}
	fetcher := &stubFetcher{}
	s := New(testConfig(), universe, fetcher, nil, Callbacks{})
	withStubCalc(s)

	report := s.Run(context.Background())

	require.Empty(t, report.Reason)
	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	assert.Equal(t, "600000", row.Code)
	// (9.5-9)/(10-9) = 0.5
	assert.InDelta(t, 0.5, row.PricePosition, 1e-9)

	// 创业板 300001 在池过滤阶段剔除，不请求数据
	assert.Equal(t, int64(1), fetcher.calls)
	st := report.Stats
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Filtered)
	assert.Equal(t, int64(1), st.Processed())
	assert.Equal(t, int64(1), st.Succeeded())
	assert.Equal(t, int64(0), st.Failed())
}

func TestRun_UniverseFailure(t *testing.T) {
	universe := &stubUniverse{err: errors.New("network down")}
	var gotErr string
	s := New(testConfig(), universe, &stubFetcher{}, nil, Callbacks{
		OnError: func(msg string) { gotErr = msg },
	})

	report := s.Run(context.Background())

	assert.Empty(t, report.Rows)
	assert.Contains(t, report.Reason, "获取股票列表失败")
	assert.Contains(t, gotErr, "network down")
}

func TestRun_EmptyAfterFilter(t *testing.T) {
	universe := &stubUniverse{stocks: []model.StockBrief{{Code: "300001", Name: "乙"}}}
	fetcher := &stubFetcher{}
	s := New(testConfig(), universe, fetcher, nil, Callbacks{})

	report := s.Run(context.Background())

	assert.Empty(t, report.Rows)
	assert.Equal(t, "过滤后无候选股票", report.Reason)
	assert.Equal(t, int64(0), fetcher.calls)
}

func TestRun_NoCandidateMatches(t *testing.T) {
	universe := &stubUniverse{stocks: []model.StockBrief{{Code: "600000", Name: "甲"}}}
	s := New(testConfig(), universe, &stubFetcher{}, nil, Callbacks{})
	withStubCalc(s)
	// 现价高于基准线，判定不通过
	s.pentaFn = func(klines []model.KLine) *model.Pentagram {
		return &model.Pentagram{CurrentPrice: 10.5, SupportPrice: 9, BasePrice: 10}
	}

	report := s.Run(context.Background())

	assert.Empty(t, report.Rows)
	assert.Equal(t, "未找到符合条件的股票", report.Reason)
	assert.Equal(t, int64(1), report.Stats.Processed())
	assert.Equal(t, int64(0), report.Stats.Succeeded())
}

func TestRun_FetchFailureCountsFailedAndContinues(t *testing.T) {
	universe := &stubUniverse{stocks: []model.StockBrief{
		{Code: "600000", Name: "甲"},
		{Code: "600001", Name: "丙"},
	}}
	s := New(testConfig(), universe, &stubFetcher{err: errors.New("boom")}, nil, Callbacks{})
	withStubCalc(s)

	report := s.Run(context.Background())

	assert.Empty(t, report.Rows)
	assert.Equal(t, int64(2), report.Stats.Processed())
	assert.Equal(t, int64(2), report.Stats.Failed())
}

func TestRun_PanicInCalcIsPerStockFailure(t *testing.T) {
	universe := &stubUniverse{stocks: []model.StockBrief{
		{Code: "600000", Name: "甲"},
		{Code: "600001", Name: "丙"},
	}}
	s := New(testConfig(), universe, &stubFetcher{}, nil, Callbacks{})
	withStubCalc(s)
	var panicked int64
	s.chipFn = func(klines []model.KLine) *model.ChipDistribution {
		if atomic.AddInt64(&panicked, 1) == 1 {
			panic("bad data")
		}
		return &model.ChipDistribution{CurrentPrice: 9.5, AvgCost: 11}
	}

	report := s.Run(context.Background())

	// 一只 panic 记失败，另一只照常入选
	assert.Equal(t, int64(2), report.Stats.Processed())
	assert.Equal(t, int64(1), report.Stats.Failed())
	assert.Equal(t, int64(1), report.Stats.Succeeded())
	assert.Len(t, report.Rows, 1)
}

func TestRun_ProgressMonotonicReaches100(t *testing.T) {
	var stocks []model.StockBrief
	for i := 0; i < 10; i++ {
		stocks = append(stocks, model.StockBrief{Code: fmt.Sprintf("60000%d", i), Name: "甲"})
	}
	universe := &stubUniverse{stocks: stocks}

	var mu sync.Mutex
	var pcts []int
	cfg := testConfig()
	cfg.System.MaxWorkers = 4
	s := New(cfg, universe, &stubFetcher{}, nil, Callbacks{
		OnProgress: func(pct int) {
			mu.Lock()
			pcts = append(pcts, pct)
			mu.Unlock()
		},
	})
	withStubCalc(s)

	s.Run(context.Background())

	require.NotEmpty(t, pcts)
	for i := 1; i < len(pcts); i++ {
		assert.Greater(t, pcts[i], pcts[i-1])
	}
	assert.Equal(t, 100, pcts[len(pcts)-1])
}

func TestRun_CancelledContext(t *testing.T) {
	universe := &stubUniverse{stocks: []model.StockBrief{{Code: "600000", Name: "甲"}}}
	s := New(testConfig(), universe, &stubFetcher{}, nil, Callbacks{})
	withStubCalc(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := s.Run(ctx)

	assert.Equal(t, "任务已取消", report.Reason)
	assert.Equal(t, int64(0), report.Stats.Processed())
}

func TestChunkSymbols(t *testing.T) {
	var stocks []model.StockBrief
	for i := 0; i < 7; i++ {
		stocks = append(stocks, model.StockBrief{Code: fmt.Sprintf("%06d", i)})
	}

	cases := []struct {
		size   int
		chunks int
	}{
		{1, 7}, {2, 4}, {3, 3}, {7, 1}, {100, 1}, {0, 7},
	}
	for _, tc := range cases {
		chunks := chunkSymbols(stocks, tc.size)
		require.Len(t, chunks, tc.chunks, "size=%d", tc.size)

		// 不重不漏且保持原顺序
		var flat []model.StockBrief
		for _, c := range chunks {
			flat = append(flat, c...)
		}
		assert.Equal(t, stocks, flat, "size=%d", tc.size)
	}

	assert.Empty(t, chunkSymbols(nil, 3))
}
