// Package screener 串起整条筛选流水线：股票池获取与过滤、分块并发分析、
// 选股判定、统计汇总与进度回调。一轮运行产出一份 ScreenReport，
// 空结果带 Reason 说明，与运行失败可区分。
package screener

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"stockChipDip/internal/calc"
	"stockChipDip/internal/config"
	"stockChipDip/internal/filter"
	"stockChipDip/internal/memguard"
	"stockChipDip/internal/model"
	"stockChipDip/internal/result"
	"stockChipDip/internal/trace"
)

// 耗时统计的阶段键
const (
	stageFetch     = "fetch"
	stageChip      = "chip"
	stagePentagram = "pentagram"
)

// Universe 股票池来源：全市场代码与名称。
type Universe interface {
	GetAllStocks(ctx context.Context) ([]model.StockBrief, error)
}

// KlineFetcher 单只股票的日 K 获取（含缓存与重试）。
type KlineFetcher interface {
	Fetch(ctx context.Context, code string) ([]model.KLine, error)
}

// Callbacks 运行期回调，全部可为 nil。调用方（命令行/界面）借此
// 展示进度百分比、状态行、日志与最终结果。
type Callbacks struct {
	OnProgress func(pct int)
	OnStatus   func(msg string)
	OnLog      func(msg string)
	OnError    func(msg string)
	OnResult   func(report *model.ScreenReport)
}

// Screener 筛选器。chipFn/pentaFn 默认绑定 calc 包，可注入替身以便
// 端到端测试不依赖真实行情序列。
type Screener struct {
	cfg      *config.Config
	universe Universe
	fetcher  KlineFetcher
	guard    *memguard.Guard
	stats    *model.Statistics
	cb       Callbacks

	chipFn  func(klines []model.KLine) *model.ChipDistribution
	pentaFn func(klines []model.KLine) *model.Pentagram

	// 进度只增不减：多个 worker 完成分块的上报可能乱序，按最大值收敛
	progressMu sync.Mutex
	lastPct    int
}

func New(cfg *config.Config, universe Universe, fetcher KlineFetcher, guard *memguard.Guard, cb Callbacks) *Screener {
	return &Screener{
		cfg:      cfg,
		universe: universe,
		fetcher:  fetcher,
		guard:    guard,
		stats:    model.NewStatistics(),
		cb:       cb,
		chipFn: func(klines []model.KLine) *model.ChipDistribution {
			return calc.Chip(klines, cfg.Data.MinDataLength, cfg.Technical.RecentDays)
		},
		pentaFn: func(klines []model.KLine) *model.Pentagram {
			return calc.Pentagram(klines, cfg.Technical.MovingAverages)
		},
	}
}

// Stats 当前统计（运行中可读，计数器为原子值）。
func (s *Screener) Stats() *model.Statistics { return s.stats }

func (s *Screener) emitProgress(pct int) {
	if s.cb.OnProgress != nil {
		s.cb.OnProgress(pct)
	}
}

func (s *Screener) emitStatus(format string, args ...any) {
	if s.cb.OnStatus != nil {
		s.cb.OnStatus(fmt.Sprintf(format, args...))
	}
}

func (s *Screener) emitLog(format string, args ...any) {
	if s.cb.OnLog != nil {
		s.cb.OnLog(fmt.Sprintf(format, args...))
	}
}

func (s *Screener) emitError(format string, args ...any) {
	if s.cb.OnError != nil {
		s.cb.OnError(fmt.Sprintf(format, args...))
	}
}

// Run 执行一轮完整筛选。股票池获取失败、过滤后无候选、无入选股票均返回
// 带 Reason 的报告而非错误；ctx 取消后在股票边界协作停止，已得结果保留。
func (s *Screener) Run(ctx context.Context) *model.ScreenReport {
	start := time.Now()
	s.stats.Reset()
	s.progressMu.Lock()
	s.lastPct = 0
	s.progressMu.Unlock()

	s.emitStatus("正在获取股票列表...")
	stocks, err := s.universe.GetAllStocks(ctx)
	if err != nil {
		reason := fmt.Sprintf("获取股票列表失败: %v", err)
		trace.Error(ctx, "screener: %s", reason)
		s.emitError(reason)
		return s.report(nil, start, reason)
	}
	if len(stocks) == 0 {
		return s.report(nil, start, "股票列表为空")
	}
	s.stats.Total = len(stocks)
	trace.Log(ctx, "screener: 获取股票列表完成，共 %d 只", len(stocks))

	candidates := s.applyFilters(ctx, stocks)
	if len(candidates) == 0 {
		return s.report(nil, start, "过滤后无候选股票")
	}

	rows := s.runChunks(ctx, candidates, start)

	if ctx.Err() != nil {
		trace.Warn(ctx, "screener: 任务已取消，已处理 %d 只", s.stats.Processed())
		return s.report(rows, start, "任务已取消")
	}
	if len(rows) == 0 {
		return s.report(nil, start, "未找到符合条件的股票")
	}
	return s.report(rows, start, "")
}

// applyFilters 按配置开关剔除股票池，逐阶段记录并输出统计。
func (s *Screener) applyFilters(ctx context.Context, stocks []model.StockBrief) []model.StockBrief {
	stages := filter.Stages(s.cfg.FilterSwitches)
	filtered, counts := filter.Apply(stocks, stages)
	s.stats.Filtered = len(filtered)
	s.stats.FilterStages = counts
	for _, c := range counts {
		trace.Log(ctx, "screener: %s 剔除 %d 只，剩余 %d 只", c.Name, c.Removed, c.Remaining)
		s.emitLog("%s: 剔除 %d 只，剩余 %d 只", c.Name, c.Removed, c.Remaining)
	}
	return filtered
}

// runChunks 把候选股票切成分块，由固定数量 worker 并发处理。
// 分块内部串行，块间并行；进度按完成分块数上报，只增不减。
func (s *Screener) runChunks(ctx context.Context, candidates []model.StockBrief, start time.Time) []*model.ScreenResult {
	chunks := chunkSymbols(candidates, s.cfg.System.ChunkSize)
	workers := min(s.cfg.System.MaxWorkers, len(chunks))
	trace.Log(ctx, "screener: 候选 %d 只，分为 %d 块，并发 %d", len(candidates), len(chunks), workers)
	s.emitStatus("开始分析 %d 只股票（%d 块，并发 %d）...", len(candidates), len(chunks), workers)

	jobs := make(chan []model.StockBrief)
	go func() {
		defer close(jobs)
		for _, chunk := range chunks {
			select {
			case jobs <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		mu        sync.Mutex
		rows      []*model.ScreenResult
		completed int64
		wg        sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range jobs {
				got := s.processChunk(ctx, chunk)
				mu.Lock()
				rows = append(rows, got...)
				mu.Unlock()
				done := atomic.AddInt64(&completed, 1)
				s.reportProgress(done, int64(len(chunks)), len(candidates), start)
			}
		}()
	}
	wg.Wait()
	return rows
}

// processChunk 串行分析一个分块。每只股票独立计数与容错：失败只累计
// failed，不影响同块其余股票；每只处理完后做一次内存检查。
func (s *Screener) processChunk(ctx context.Context, chunk []model.StockBrief) []*model.ScreenResult {
	var out []*model.ScreenResult
	for _, st := range chunk {
		if ctx.Err() != nil {
			break
		}
		res, err := s.analyzeOne(ctx, st)
		s.stats.AddProcessed()
		if err != nil {
			s.stats.AddFailed()
			trace.Warn(ctx, "screener: %s %s 分析失败: %v", st.Code, st.Name, err)
			s.emitLog("%s %s 分析失败: %v", st.Code, st.Name, err)
		} else if res != nil {
			s.stats.AddSucceeded()
			out = append(out, res)
			trace.Log(ctx, "screener: %s %s 入选 price=%.2f avg=%.2f pos=%.2f",
				res.Code, res.Name, res.CurrentPrice, res.AvgCost, res.PricePosition)
		}
		s.guard.Check(ctx)
	}
	return out
}

// analyzeOne 单只股票：取数 → 筹码分布 → 五线谱 → 选股判定。
// 数据不足或条件不满足返回 (nil, nil)，属正常落选而非错误；
// panic 收敛为该股票的错误，不逃逸到分块层。
func (s *Screener) analyzeOne(ctx context.Context, st model.StockBrief) (res *model.ScreenResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	t := time.Now()
	klines, err := s.fetcher.Fetch(ctx, st.Code)
	s.stats.ObserveTiming(stageFetch, time.Since(t))
	if err != nil {
		return nil, err
	}

	t = time.Now()
	chip := s.chipFn(klines)
	s.stats.ObserveTiming(stageChip, time.Since(t))
	if chip == nil {
		return nil, nil
	}

	t = time.Now()
	penta := s.pentaFn(klines)
	s.stats.ObserveTiming(stagePentagram, time.Since(t))
	if penta == nil {
		return nil, nil
	}

	return Select(st, chip, penta), nil
}

// reportProgress 按完成分块数上报百分比与状态行（速度、耗时、预计剩余）。
// 落后的上报直接丢弃，保证对外百分比单调不减。
func (s *Screener) reportProgress(done, totalChunks int64, totalStocks int, start time.Time) {
	pct := int(done * 100 / totalChunks)
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	if pct <= s.lastPct {
		return
	}
	s.lastPct = pct
	s.emitProgress(pct)

	processed := s.stats.Processed()
	elapsed := time.Since(start)
	speed := float64(processed) / elapsed.Seconds()
	eta := "--"
	if speed > 0 {
		remaining := float64(totalStocks) - float64(processed)
		eta = (time.Duration(remaining/speed) * time.Second).Round(time.Second).String()
	}
	s.emitStatus("进度 %d%%（%d/%d 块）已处理 %d/%d 只 耗时 %s 速度 %.1f只/秒 预计剩余 %s",
		pct, done, totalChunks, processed, totalStocks,
		elapsed.Round(time.Second), speed, eta)
}

func (s *Screener) report(rows []*model.ScreenResult, start time.Time, reason string) *model.ScreenReport {
	report := &model.ScreenReport{
		Rows:    result.Finalize(rows),
		Stats:   s.stats,
		Elapsed: time.Since(start),
		Reason:  reason,
	}
	if s.cb.OnResult != nil {
		s.cb.OnResult(report)
	}
	return report
}

// chunkSymbols 按 size 切分，最后一块可不足额；size 非法时按 1 处理。
// 所有输入恰好出现一次，不重不漏。
func chunkSymbols(stocks []model.StockBrief, size int) [][]model.StockBrief {
	if size <= 0 {
		size = 1
	}
	var chunks [][]model.StockBrief
	for i := 0; i < len(stocks); i += size {
		end := min(i+size, len(stocks))
		chunks = append(chunks, stocks[i:end])
	}
	return chunks
}
