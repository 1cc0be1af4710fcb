package domain

// CategoryStats 是单个分类的结果名单（元素为 PackageItem.DisplayName，按处理顺序追加）。
type CategoryStats struct {
	Success []string `json:"success"`
	Failed  []string `json:"failed"`
	NoKey   []string `json:"no_key"`
	Deleted []string `json:"deleted"`
	Planned []string `json:"planned"`
}

// RunStatistics 是一次运行的累加器：只追加，不跨运行持久化。
//
// 约束：只由编排器在每个 item 完成后更新；统计按“解析后的分类”归档，
// 而不是扫描时猜测的分类（跨分类回退时两者不同）。
type RunStatistics struct {
	Primary CategoryStats `json:"primary"`
	Addon   CategoryStats `json:"addon"`
	Theme   CategoryStats `json:"theme"`
}

// NewRunStatistics 返回所有名单都是空切片（而非 nil）的累加器，保证 JSON 输出 [] 而不是 null。
func NewRunStatistics() RunStatistics {
	var s RunStatistics
	for _, c := range Categories {
		cs := s.Of(c)
		cs.Success = []string{}
		cs.Failed = []string{}
		cs.NoKey = []string{}
		cs.Deleted = []string{}
		cs.Planned = []string{}
	}
	return s
}

// Of 返回分类 c 的名单；非法分类归到 primary（与分类器的兜底一致）。
func (s *RunStatistics) Of(c Category) *CategoryStats {
	switch c {
	case CategoryAddon:
		return &s.Addon
	case CategoryTheme:
		return &s.Theme
	default:
		return &s.Primary
	}
}

// Record 把单个 item 的结果累加到 res.Resolved 对应的分类。
func (s *RunStatistics) Record(res ItemResult) {
	cs := s.Of(res.Resolved)
	name := res.DisplayName
	switch res.Outcome {
	case OutcomeInstalled:
		cs.Success = append(cs.Success, name)
		if res.Deleted {
			cs.Deleted = append(cs.Deleted, name)
		}
	case OutcomeFailed:
		cs.Failed = append(cs.Failed, name)
	case OutcomeNoKey:
		cs.NoKey = append(cs.NoKey, name)
	case OutcomePlanned:
		cs.Planned = append(cs.Planned, name)
	}
}
