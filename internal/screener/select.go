package screener

import "stockChipDip/internal/model"

// Select 选股判定：现价低于筹码均价、高于支撑线（ma60）、低于基准线（ma20）
// 三条同时严格成立才入选——"价格跌破持仓成本但仍守住长期支撑、未触及中期基准"
// 的均值回归式过滤，纯布尔闸门，无部分得分。
// 入选时 PricePosition = (现价-支撑线)/(基准线-支撑线)；三条件成立时
// 必有 支撑线 < 现价 < 基准线，分母恒为正。
func Select(s model.StockBrief, chip *model.ChipDistribution, penta *model.Pentagram) *model.ScreenResult {
	if chip == nil || penta == nil {
		return nil
	}
	currentPrice := penta.CurrentPrice
	if !(currentPrice < chip.AvgCost &&
		currentPrice > penta.SupportPrice &&
		currentPrice < penta.BasePrice) {
		return nil
	}
	return &model.ScreenResult{
		Code:          s.Code,
		Name:          s.Name,
		CurrentPrice:  currentPrice,
		AvgCost:       chip.AvgCost,
		MainForceCost: chip.MainForceCost,
		ProfitRatio:   chip.ProfitRatio,
		BasePrice:     penta.BasePrice,
		SupportPrice:  penta.SupportPrice,
		PricePosition: (currentPrice - penta.SupportPrice) /
			(penta.BasePrice - penta.SupportPrice),
		VolumeRatio: penta.VolumeRatio,
		TrendingUp:  penta.TrendingUp,
	}
}
