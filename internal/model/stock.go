// Package model 定义股票列表、K 线、筹码分布、五线谱与筛选结果等数据结构。
package model

import (
	"sync"
	"sync/atomic"
	"time"
)

// StockBrief 仅代码与名称，股票池条目，获取后只读。
type StockBrief struct {
	Code string
	Name string
}

// KLine 单日 K：日期、开高低收、成交量。序列按日期升序，生成后不再修改。
type KLine struct {
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// ChipDistribution 筹码分布：现价、筹码均价、主力成本、获利盘比例、总成交量。
// 每次重新计算，不落盘。
type ChipDistribution struct {
	CurrentPrice  float64
	AvgCost       float64
	MainForceCost float64
	ProfitRatio   float64
	TotalVolume   int64
}

// Pentagram 五线谱：各均线值按配置标签索引，基准线取 ma20、支撑线取 ma60。
type Pentagram struct {
	CurrentPrice float64
	MAValues     map[string]float64
	VolumeRatio  float64
	PriceStd     float64
	TrendingUp   bool
	BasePrice    float64
	SupportPrice float64
}

// ScreenResult 入选结果单行：筹码 + 五线谱字段与两项相对距离。
// 仅在选股条件全部满足时创建；PricePosition 为现价在支撑线与基准线间的归一化位置。
type ScreenResult struct {
	Code               string
	Name               string
	CurrentPrice       float64
	AvgCost            float64
	MainForceCost      float64
	ProfitRatio        float64
	BasePrice          float64
	SupportPrice       float64
	PricePosition      float64
	VolumeRatio        float64
	TrendingUp         bool
	BaseDistancePct    float64 // (基准线-现价)/现价*100
	AvgCostDistancePct float64 // (筹码均价-现价)/现价*100
}

// StageCount 单个过滤阶段的剔除与剩余数量，用户可见的统计输出。
type StageCount struct {
	Name      string
	Removed   int
	Remaining int
}

// StageTiming 单阶段耗时汇总：次数、总耗时、最短、最长。
type StageTiming struct {
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Statistics 运行统计：计数器在各 worker 间用原子操作更新，耗时直方图加锁。
// 每轮运行开始时 Reset，结束后读取用于汇报。
type Statistics struct {
	Total        int
	Filtered     int
	FilterStages []StageCount

	processed int64
	succeeded int64
	failed    int64

	mu      sync.Mutex
	timings map[string]*StageTiming
}

func NewStatistics() *Statistics {
	return &Statistics{timings: make(map[string]*StageTiming)}
}

// Reset 清零单轮计数（股票池统计由新一轮过滤重建）。
func (s *Statistics) Reset() {
	atomic.StoreInt64(&s.processed, 0)
	atomic.StoreInt64(&s.succeeded, 0)
	atomic.StoreInt64(&s.failed, 0)
	s.mu.Lock()
	s.timings = make(map[string]*StageTiming)
	s.mu.Unlock()
}

func (s *Statistics) AddProcessed() { atomic.AddInt64(&s.processed, 1) }
func (s *Statistics) AddSucceeded() { atomic.AddInt64(&s.succeeded, 1) }
func (s *Statistics) AddFailed()    { atomic.AddInt64(&s.failed, 1) }

func (s *Statistics) Processed() int64 { return atomic.LoadInt64(&s.processed) }
func (s *Statistics) Succeeded() int64 { return atomic.LoadInt64(&s.succeeded) }
func (s *Statistics) Failed() int64    { return atomic.LoadInt64(&s.failed) }

// ObserveTiming 记录一次阶段耗时。
func (s *Statistics) ObserveTiming(stage string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timings[stage]
	if !ok {
		t = &StageTiming{Min: d, Max: d}
		s.timings[stage] = t
	}
	t.Count++
	t.Total += d
	if d < t.Min {
		t.Min = d
	}
	if d > t.Max {
		t.Max = d
	}
}

// Timings 返回各阶段耗时汇总的副本。
func (s *Statistics) Timings() map[string]StageTiming {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]StageTiming, len(s.timings))
	for k, v := range s.timings {
		out[k] = *v
	}
	return out
}

// ScreenReport 单轮筛选产出：结果行、统计、耗时与空结果说明。
// Rows 为空且 Reason 非空表示"无候选/无数据"等正常空结果，与运行失败可区分。
type ScreenReport struct {
	Rows    []*ScreenResult
	Stats   *Statistics
	Elapsed time.Duration
	Reason  string
}
