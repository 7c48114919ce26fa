// Package main 是筹码低吸筛选器的入口：拉取全市场股票池、按开关剔除、
// 分块并发计算筹码分布与五线谱、输出入选表格与运行统计、可选邮件推送。
// Ctrl-C 触发协作取消，已得结果照常输出。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"stockChipDip/internal/api"
	"stockChipDip/internal/cache"
	"stockChipDip/internal/config"
	"stockChipDip/internal/fetch"
	"stockChipDip/internal/mail"
	"stockChipDip/internal/memguard"
	"stockChipDip/internal/model"
	"stockChipDip/internal/result"
	"stockChipDip/internal/screener"
	"stockChipDip/internal/trace"
)

// 环境变量名
const envDebug = "CHIPDIP_DEBUG"

// 单轮运行上限（全市场数千只 + 请求节流，留足余量）
const runTimeout = 60 * time.Minute

func buildLogger() *zap.Logger {
	if os.Getenv(envDebug) == "1" || os.Getenv(envDebug) == "true" {
		return zap.Must(zap.NewDevelopment())
	}
	return zap.Must(zap.NewProduction())
}

func main() {
	_ = godotenv.Load()

	logger := buildLogger()
	defer logger.Sync()
	trace.SetLogger(logger)

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = trace.WithTraceID(ctx, trace.NewTraceID())

	client := api.NewClient(cfg.System.RequestDelayMin, cfg.System.RequestDelayMax)
	store := cache.NewStore(ctx, cfg.System.CacheDir)
	fetcher := fetch.NewFetcher(client, store, cfg)
	guard := memguard.New(cfg.System.MemoryLimit, store)

	cb := screener.Callbacks{
		OnStatus: func(msg string) { fmt.Fprintln(os.Stdout, msg) },
		OnError:  func(msg string) { fmt.Fprintln(os.Stderr, msg) },
	}
	s := screener.New(cfg, client, fetcher, guard, cb)

	trace.Log(ctx, "main: 开始筛选 窗口=%s~%s workers=%d chunk=%d",
		cfg.Data.StartDate, cfg.Data.EndDate, cfg.System.MaxWorkers, cfg.System.ChunkSize)
	report := s.Run(ctx)

	printReport(report)

	mail.MustSendReport(ctx, config.LoadSMTP(), report.Rows)
	trace.Log(ctx, "main: end, 入选 %d 只, 耗时 %s", len(report.Rows), report.Elapsed.Round(time.Second))
}

func printReport(report *model.ScreenReport) {
	if len(report.Rows) == 0 {
		fmt.Printf("\n%s\n", report.Reason)
		printStats(report)
		return
	}

	fmt.Printf("\n共入选 %d 只（按价格位置升序）:\n", len(report.Rows))
	fmt.Printf("%-8s %-10s %8s %8s %8s %8s %8s %8s %6s %4s %8s %8s\n",
		"代码", "名称", "现价", "筹码均价", "主力成本", "基准线", "支撑线", "价格位置", "量比", "趋势", "距基准线", "距均价")
	for _, r := range result.FormatRows(report.Rows) {
		fmt.Printf("%-8s %-10s %8s %8s %8s %8s %8s %8s %6s %4s %8s %8s\n",
			r.Code, r.Name, r.CurrentPrice, r.AvgCost, r.MainForceCost,
			r.BasePrice, r.SupportPrice, r.PricePosition, r.VolumeRatio,
			r.Trend, r.BaseDistance, r.AvgCostDistance)
	}
	printStats(report)
}

func printStats(report *model.ScreenReport) {
	st := report.Stats
	if st == nil {
		return
	}
	fmt.Printf("\n运行统计: 股票池 %d 只, 过滤后 %d 只, 已处理 %d, 入选 %d, 失败 %d, 耗时 %s\n",
		st.Total, st.Filtered, st.Processed(), st.Succeeded(), st.Failed(),
		report.Elapsed.Round(time.Second))
	for _, c := range st.FilterStages {
		fmt.Printf("  %s: 剔除 %d, 剩余 %d\n", c.Name, c.Removed, c.Remaining)
	}
	for stage, t := range st.Timings() {
		if t.Count == 0 {
			continue
		}
		avg := t.Total / time.Duration(t.Count)
		fmt.Printf("  %s: %d 次, 均值 %s, 最短 %s, 最长 %s\n",
			stage, t.Count, avg.Round(time.Microsecond),
			t.Min.Round(time.Microsecond), t.Max.Round(time.Microsecond))
	}
}
