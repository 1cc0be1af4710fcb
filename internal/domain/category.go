package domain

import (
	"fmt"
	"strings"
)

// Category 是安装分类（同时决定查哪张 TSV 表、按什么顺序安装）。
//
// 约束：安装顺序固定为 primary -> addon -> theme（DLC 逻辑上依赖本体先装好）。
type Category int

const (
	CategoryPrimary Category = iota
	CategoryAddon
	CategoryTheme
)

// NumCategories 是分类总数，用于按下标存放 per-category 数据。
const NumCategories = 3

// Categories 是固定的处理顺序。
var Categories = [NumCategories]Category{CategoryPrimary, CategoryAddon, CategoryTheme}

func (c Category) String() string {
	switch c {
	case CategoryPrimary:
		return "primary"
	case CategoryAddon:
		return "addon"
	case CategoryTheme:
		return "theme"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Label 是面向用户的分类名称（用于汇总文本）。
func (c Category) Label() string {
	switch c {
	case CategoryPrimary:
		return "游戏"
	case CategoryAddon:
		return "DLC"
	case CategoryTheme:
		return "主题"
	default:
		return c.String()
	}
}

// FileName 是该分类对应的 TSV 文件名（NoPayStation 的命名）。
func (c Category) FileName() string {
	switch c {
	case CategoryPrimary:
		return "PSV_GAMES.tsv"
	case CategoryAddon:
		return "PSV_DLCS.tsv"
	case CategoryTheme:
		return "PSV_THEMES.tsv"
	default:
		return ""
	}
}

func (c Category) Valid() bool {
	return c >= CategoryPrimary && c <= CategoryTheme
}

// ParseCategory 解析 String() 的输出（大小写不敏感）。
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary":
		return CategoryPrimary, true
	case "addon":
		return CategoryAddon, true
	case "theme":
		return CategoryTheme, true
	default:
		return 0, false
	}
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("非法 category：%d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	v, ok := ParseCategory(string(b))
	if !ok {
		return fmt.Errorf("非法 category：%q", string(b))
	}
	*c = v
	return nil
}
