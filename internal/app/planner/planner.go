package planner

import (
	"github.com/John-Robertt/V3KPI/internal/catalog"
	"github.com/John-Robertt/V3KPI/internal/domain"
	"github.com/John-Robertt/V3KPI/internal/resolve"
)

// Summary 是一批计划的统计（用于在安装开始前打印一行概览）。
type Summary struct {
	Items    int
	WithKey  int
	NoKey    int
	Fallback int
}

// PlanItem 为单个包查找 zRIF 并生成确定性的执行计划（不做任何写入/调用）。
func PlanItem(set *catalog.Set, it domain.PackageItem) domain.InstallPlan {
	rs := resolve.Resolve(set, it.ContentID, it.FileName, it.Guessed)
	return domain.InstallPlan{
		Item:     it,
		Found:    rs.Found,
		ZRIF:     rs.ZRIF,
		Category: rs.Category,
		Stage:    rs.Stage,
		Trace:    resolve.Describe(rs.Attempts, -1),
	}
}

// Plan 按输入顺序为每个包生成计划；输出与 items 一一对应。
func Plan(set *catalog.Set, items []domain.PackageItem) ([]domain.InstallPlan, Summary) {
	plans := make([]domain.InstallPlan, 0, len(items))
	sum := Summary{Items: len(items)}
	for _, it := range items {
		p := PlanItem(set, it)
		if p.Found {
			sum.WithKey++
			if p.Fallback() {
				sum.Fallback++
			}
		} else {
			sum.NoKey++
		}
		plans = append(plans, p)
	}
	return plans, sum
}
