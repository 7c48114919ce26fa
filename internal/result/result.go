// Package result 汇总各分块的入选结果：补充两项相对距离、按 PricePosition 升序
// （同值按量比降序）排序，并提供表格展示用的两位小数格式化。
// 空结果集是显式合法产出，与运行失败可区分。
package result

import (
	"sort"

	"github.com/shopspring/decimal"

	"stockChipDip/internal/model"
)

// 展示精度与趋势文案
const (
	displayPlaces = 2
	trendUpText   = "上涨"
	trendDownText = "下跌"
)

// Finalize 原地补充衍生字段并排序，返回入参切片便于链式使用。
// 衍生字段：价格距基准线 (base-current)/current*100、距筹码均价 (avg-current)/current*100。
func Finalize(rows []*model.ScreenResult) []*model.ScreenResult {
	for _, r := range rows {
		if r.CurrentPrice != 0 {
			r.BaseDistancePct = (r.BasePrice - r.CurrentPrice) / r.CurrentPrice * 100
			r.AvgCostDistancePct = (r.AvgCost - r.CurrentPrice) / r.CurrentPrice * 100
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PricePosition != rows[j].PricePosition {
			return rows[i].PricePosition < rows[j].PricePosition
		}
		return rows[i].VolumeRatio > rows[j].VolumeRatio
	})
	return rows
}

// Row 展示用行：数值两位小数、百分比带 %、趋势转文案。
type Row struct {
	Code            string
	Name            string
	CurrentPrice    string
	AvgCost         string
	MainForceCost   string
	ProfitRatio     string
	BasePrice       string
	SupportPrice    string
	PricePosition   string
	VolumeRatio     string
	Trend           string
	BaseDistance    string
	AvgCostDistance string
}

func fmt2(v float64) string {
	return decimal.NewFromFloat(v).Round(displayPlaces).StringFixed(displayPlaces)
}

func fmtPct(v float64) string {
	return fmt2(v) + "%"
}

// FormatRows 生成展示行，顺序与入参一致。
func FormatRows(rows []*model.ScreenResult) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		trend := trendDownText
		if r.TrendingUp {
			trend = trendUpText
		}
		out = append(out, Row{
			Code:            r.Code,
			Name:            r.Name,
			CurrentPrice:    fmt2(r.CurrentPrice),
			AvgCost:         fmt2(r.AvgCost),
			MainForceCost:   fmt2(r.MainForceCost),
			ProfitRatio:     fmt2(r.ProfitRatio),
			BasePrice:       fmt2(r.BasePrice),
			SupportPrice:    fmt2(r.SupportPrice),
			PricePosition:   fmt2(r.PricePosition),
			VolumeRatio:     fmt2(r.VolumeRatio),
			Trend:           trend,
			BaseDistance:    fmtPct(r.BaseDistancePct),
			AvgCostDistance: fmtPct(r.AvgCostDistancePct),
		})
	}
	return out
}
