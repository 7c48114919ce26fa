// Package calc 提供两个纯函数指标计算：筹码分布与五线谱。
// 输入为按日期升序的日 K 序列，不修改入参；数据不足或总量为零返回 nil 表示"无信号"，
// 属正常结果而非错误。
package calc

import "stockChipDip/internal/model"

// Chip 计算筹码分布。序列短于 minLen 或总成交量为 0 时返回 nil。
// 筹码均价为全序列成交额加权均价；主力成本仅用最近 recentDays 条重算，
// 序列不足 recentDays 时回退为筹码均价。
func Chip(klines []model.KLine, minLen, recentDays int) *model.ChipDistribution {
	if len(klines) < minLen {
		return nil
	}
	currentPrice := klines[len(klines)-1].Close

	var totalVolume int64
	var totalNotional float64
	var profitVolume int64
	for i := range klines {
		totalVolume += klines[i].Volume
		totalNotional += float64(klines[i].Volume) * klines[i].Close
		if klines[i].Close <= currentPrice {
			profitVolume += klines[i].Volume
		}
	}
	if totalVolume == 0 {
		return nil
	}
	avgCost := totalNotional / float64(totalVolume)
	profitRatio := float64(profitVolume) / float64(totalVolume)

	mainForceCost := avgCost
	if len(klines) >= recentDays {
		recent := klines[len(klines)-recentDays:]
		var recentVolume int64
		var recentNotional float64
		for i := range recent {
			recentVolume += recent[i].Volume
			recentNotional += float64(recent[i].Volume) * recent[i].Close
		}
		if recentVolume > 0 {
			mainForceCost = recentNotional / float64(recentVolume)
		} else {
			mainForceCost = 0
		}
	}

	return &model.ChipDistribution{
		CurrentPrice:  currentPrice,
		AvgCost:       avgCost,
		MainForceCost: mainForceCost,
		ProfitRatio:   profitRatio,
		TotalVolume:   totalVolume,
	}
}
