package resolve

import (
	"path/filepath"
	"strings"

	"github.com/John-Robertt/V3KPI/internal/catalog"
	"github.com/John-Robertt/V3KPI/internal/domain"
)

// 命中阶段（写入 report 的 resolved_by）。
const (
	StageExact    = "exact"     // Content ID 精确命中
	StageLink     = "link"      // PKG direct link 包含完整文件名
	StageLinkStem = "link_stem" // PKG direct link 包含去扩展名的文件名
)

// Attempt 记录一次查表尝试（用于解释跨分类回退的原因）。
// 注意：这是内部执行轨迹，不直接写入 report（由上层决定如何呈现）。
type Attempt struct {
	Category domain.Category
	Stage    string
	// Absent 表示该分类的 TSV 不可用，整张表被跳过。
	Absent bool
	Hit    bool
}

// Result 是一次解析的结果。
//
// Found=false 时 Category 等于调用方传入的猜测分类。
type Result struct {
	Found    bool
	ZRIF     string
	Category domain.Category
	Stage    string
	Attempts []Attempt
}

// Fallback 表示最终命中的分类与猜测分类不同。
func (r Result) Fallback(guessed domain.Category) bool {
	return r.Found && r.Category != guessed
}

// Resolve 为一个包查找 zRIF。
//
// 顺序（命中即返回）：
// 1) guessed 分类：Content ID 精确匹配
// 2) guessed 分类：direct link 子串匹配（先完整文件名，再去扩展名）
// 3) 依次对 primary/addon/theme（跳过已查过的 guessed）重复 1)+2)
// 4) 全部落空 => Found=false, Category=guessed
//
// 空白 zRIF 一律视为未命中。Resolve 是纯函数：相同输入 + 未变化的表 => 相同输出。
// 歧义策略：先命中者胜，不打分、不消歧。
func Resolve(set *catalog.Set, contentID, fileName string, guessed domain.Category) Result {
	res := Result{Category: guessed}
	if strings.TrimSpace(contentID) == "" {
		// 空 Content ID：文件名只剩扩展名，链接匹配会命中任意行，直接放弃。
		return res
	}

	order := make([]domain.Category, 0, domain.NumCategories)
	order = append(order, guessed)
	for _, c := range domain.Categories {
		if c != guessed {
			order = append(order, c)
		}
	}

	for _, cat := range order {
		c := set.Get(cat)
		if c == nil {
			res.Attempts = append(res.Attempts, Attempt{Category: cat, Absent: true})
			continue
		}
		if key, stage, ok := lookupOne(c, contentID, fileName, &res.Attempts); ok {
			res.Found = true
			res.ZRIF = key
			res.Category = cat
			res.Stage = stage
			return res
		}
	}
	return res
}

func lookupOne(c *catalog.Catalog, contentID, fileName string, attempts *[]Attempt) (key, stage string, ok bool) {
	cat := c.Category

	if e, hit := c.Lookup(contentID); hit && usable(e.ZRIF) {
		*attempts = append(*attempts, Attempt{Category: cat, Stage: StageExact, Hit: true})
		return strings.TrimSpace(e.ZRIF), StageExact, true
	}
	*attempts = append(*attempts, Attempt{Category: cat, Stage: StageExact})

	name := filepath.Base(fileName)
	if name == "" || name == "." {
		return "", "", false
	}
	if e, hit := c.MatchLink(name); hit && usable(e.ZRIF) {
		*attempts = append(*attempts, Attempt{Category: cat, Stage: StageLink, Hit: true})
		return strings.TrimSpace(e.ZRIF), StageLink, true
	}
	*attempts = append(*attempts, Attempt{Category: cat, Stage: StageLink})

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == "" || stem == name {
		return "", "", false
	}
	if e, hit := c.MatchLink(stem); hit && usable(e.ZRIF) {
		*attempts = append(*attempts, Attempt{Category: cat, Stage: StageLinkStem, Hit: true})
		return strings.TrimSpace(e.ZRIF), StageLinkStem, true
	}
	*attempts = append(*attempts, Attempt{Category: cat, Stage: StageLinkStem})
	return "", "", false
}

func usable(key string) bool {
	return strings.TrimSpace(key) != ""
}

// Describe 把尝试链路压缩为一行，例如 "addon:exact;addon:link;theme:exact+"。
// max<0 表示不限条数。
func Describe(attempts []Attempt, max int) string {
	if len(attempts) == 0 || max == 0 {
		return ""
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := a.Category.String() + ":"
		switch {
		case a.Absent:
			s += "absent"
		case a.Hit:
			s += a.Stage + "+"
		default:
			s += a.Stage
		}
		parts = append(parts, s)
		if max > 0 && len(parts) >= max {
			break
		}
	}
	return strings.Join(parts, ";")
}
