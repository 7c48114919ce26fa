package calc

import (
	"math"
	"sort"

	"stockChipDip/internal/model"
)

// 基准线/支撑线按标签取值（不按周期排名取，见配置文档）
const (
	baseLabel    = "ma20"
	supportLabel = "ma60"
)

// 量比与标准差窗口
const (
	volumeShortWindow = 5
	volumeLongWindow  = 20
	stdWindow         = 20
)

// maN 末端 n 日收盘均价；数据不足返回 0。
func maN(klines []model.KLine, n int) float64 {
	if n <= 0 || len(klines) < n {
		return 0
	}
	last := klines[len(klines)-n:]
	var sum float64
	for i := range last {
		sum += last[i].Close
	}
	return sum / float64(n)
}

// volumeMAN 末端 n 日成交量均值；数据不足返回 0。
func volumeMAN(klines []model.KLine, n int) float64 {
	if n <= 0 || len(klines) < n {
		return 0
	}
	last := klines[len(klines)-n:]
	var sum float64
	for i := range last {
		sum += float64(last[i].Volume)
	}
	return sum / float64(n)
}

// closeStd 末端最多 n 日收盘价的样本标准差（n-1 分母），样本数不足 2 返回 0。
func closeStd(klines []model.KLine, n int) float64 {
	if len(klines) < n {
		n = len(klines)
	}
	if n < 2 {
		return 0
	}
	last := klines[len(klines)-n:]
	var sum float64
	for i := range last {
		sum += last[i].Close
	}
	mean := sum / float64(n)
	var sumSq float64
	for i := range last {
		diff := last[i].Close - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// Pentagram 计算五线谱。序列短于最长均线周期、或配置中缺少 ma20/ma60 标签时返回 nil。
// 趋势向上定义为均线值随周期递增而严格递减（ma5 > ma10 > ma20 > ma30 > ma60），
// 是严格排序检查而非统计趋势检验。
func Pentagram(klines []model.KLine, movingAverages map[string]int) *model.Pentagram {
	longest := 0
	for _, p := range movingAverages {
		if p > longest {
			longest = p
		}
	}
	if longest == 0 || len(klines) < longest {
		return nil
	}

	maValues := make(map[string]float64, len(movingAverages))
	for label, period := range movingAverages {
		maValues[label] = maN(klines, period)
	}
	basePrice, okBase := maValues[baseLabel]
	supportPrice, okSupport := maValues[supportLabel]
	if !okBase || !okSupport {
		return nil
	}

	currentPrice := klines[len(klines)-1].Close

	volumeRatio := 0.0
	if longVol := volumeMAN(klines, volumeLongWindow); longVol > 0 {
		volumeRatio = volumeMAN(klines, volumeShortWindow) / longVol
	}

	return &model.Pentagram{
		CurrentPrice: currentPrice,
		MAValues:     maValues,
		VolumeRatio:  volumeRatio,
		PriceStd:     closeStd(klines, stdWindow),
		TrendingUp:   trendingUp(movingAverages, maValues),
		BasePrice:    basePrice,
		SupportPrice: supportPrice,
	}
}

// trendingUp 按周期升序比较各均线值是否严格递减。
func trendingUp(movingAverages map[string]int, maValues map[string]float64) bool {
	labels := make([]string, 0, len(movingAverages))
	for label := range movingAverages {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		return movingAverages[labels[i]] < movingAverages[labels[j]]
	})
	for i := 1; i < len(labels); i++ {
		if maValues[labels[i-1]] <= maValues[labels[i]] {
			return false
		}
	}
	return true
}
