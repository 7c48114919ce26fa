// Package filter 对全市场股票池做有序、可独立启停的剔除：ST/*ST 名称、创业板、
// 科创板、北交所前缀。每个阶段记录剔除数与剩余数，属用户可见的统计输出。
// 任一阶段后结果为空是合法终态（无候选），不是错误。
package filter

import (
	"strings"

	"stockChipDip/internal/config"
	"stockChipDip/internal/model"
)

// 阶段名称（日志与统计输出）
const (
	StageNameST   = "排除ST股票"
	StageNameGEM  = "排除创业板"
	StageNameSTAR = "排除科创板"
	StageNameBSE  = "排除北交所"
)

// 名称关键词与代码前缀
const (
	nameKeywordST  = "ST"
	codePrefixGEM  = "300"
	codePrefixSTAR = "688"
	codePrefixBSE  = "8"
)

// Predicate 返回 true 表示保留该股票。
type Predicate func(model.StockBrief) bool

// Stage 单个剔除阶段：名称 + 保留判定。
type Stage struct {
	Name string
	Keep Predicate
}

// KeepNonST 名称不含 ST（大小写不敏感，*ST 一并命中）。
func KeepNonST(s model.StockBrief) bool {
	return !strings.Contains(strings.ToUpper(s.Name), nameKeywordST)
}

// KeepNonGEM 代码非 300 开头。
func KeepNonGEM(s model.StockBrief) bool {
	return !strings.HasPrefix(s.Code, codePrefixGEM)
}

// KeepNonSTAR 代码非 688 开头。
func KeepNonSTAR(s model.StockBrief) bool {
	return !strings.HasPrefix(s.Code, codePrefixSTAR)
}

// KeepNonBSE 代码非 8 开头。
func KeepNonBSE(s model.StockBrief) bool {
	return !strings.HasPrefix(s.Code, codePrefixBSE)
}

// Stages 按开关构建有序阶段列表，顺序固定：ST → 创业板 → 科创板 → 北交所。
func Stages(sw config.FilterSwitches) []Stage {
	var stages []Stage
	if sw.ExcludeST {
		stages = append(stages, Stage{Name: StageNameST, Keep: KeepNonST})
	}
	if sw.ExcludeGEM {
		stages = append(stages, Stage{Name: StageNameGEM, Keep: KeepNonGEM})
	}
	if sw.ExcludeSTAR {
		stages = append(stages, Stage{Name: StageNameSTAR, Keep: KeepNonSTAR})
	}
	if sw.ExcludeBSE {
		stages = append(stages, Stage{Name: StageNameBSE, Keep: KeepNonBSE})
	}
	return stages
}

// Apply 依次应用各阶段并记录每步剔除/剩余数量。入参不被修改。
func Apply(stocks []model.StockBrief, stages []Stage) ([]model.StockBrief, []model.StageCount) {
	remaining := make([]model.StockBrief, len(stocks))
	copy(remaining, stocks)
	counts := make([]model.StageCount, 0, len(stages))
	for _, stage := range stages {
		kept := make([]model.StockBrief, 0, len(remaining))
		for _, s := range remaining {
			if stage.Keep(s) {
				kept = append(kept, s)
			}
		}
		counts = append(counts, model.StageCount{
			Name:      stage.Name,
			Removed:   len(remaining) - len(kept),
			Remaining: len(kept),
		})
		remaining = kept
	}
	return remaining, counts
}
