package domain

// InstallPlan 是单个包在执行前确定的计划：用哪个 zRIF、归到哪个分类。
//
// 约束：Found=false 时 ZRIF 为空、Category 等于 Item.Guessed。
type InstallPlan struct {
	Item PackageItem

	Found    bool
	ZRIF     string
	Category Category
	// Stage 是命中阶段（exact / link / link_stem），未命中为空。
	Stage string
	// Trace 是查表链路的单行描述（用于解释缺 key 或跨分类回退）。
	Trace string
}

// Fallback 表示命中的分类与猜测分类不同。
func (p InstallPlan) Fallback() bool {
	return p.Found && p.Category != p.Item.Guessed
}
