package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/V3KPI/internal/domain"
)

// TSV 表头列名（外部契约，不可改）。
const (
	ColContentID  = "Content ID"
	ColDirectLink = "PKG direct link"
	ColZRIF       = "zRIF"
)

const (
	// KindMissing 表示 TSV 文件不存在。
	KindMissing = "missing"
	// KindInvalid 表示文件无法读取或表头缺少必需列。
	KindInvalid = "invalid"
)

// Error 是加载阶段的结构化错误。调用方一律把它当作“该分类不可用”（absent），只打 warning。
type Error struct {
	Kind string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissing:
		return fmt.Sprintf("TSV 文件不存在：%q", e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("TSV 文件无效：%q：%v", e.Path, e.Err)
		}
		return fmt.Sprintf("TSV 文件无效：%q", e.Path)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 把加载错误映射为 report 中的 error_code；非 *Error 返回空串。
func Code(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	if e.Kind == KindMissing {
		return domain.ErrCodeCatalogMissing
	}
	return domain.ErrCodeCatalogInvalid
}

// Catalog 是单个分类的只读查找表（加载后不再修改）。
type Catalog struct {
	Category domain.Category
	Path     string

	rows []domain.CatalogEntry
	byID map[string]int
}

// Len 返回有效行数（含 Content ID 为空、只能用于链接匹配的行）。
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rows)
}

// Lookup 按 Content ID 精确查找（区分大小写，与 TSV 原文一致）。
func (c *Catalog) Lookup(contentID string) (domain.CatalogEntry, bool) {
	if c == nil || contentID == "" {
		return domain.CatalogEntry{}, false
	}
	idx, ok := c.byID[contentID]
	if !ok {
		return domain.CatalogEntry{}, false
	}
	return c.rows[idx], true
}

// MatchLink 在 DirectLink 列里做大小写不敏感的子串匹配，按文件行序返回第一条命中。
func (c *Catalog) MatchLink(fragment string) (domain.CatalogEntry, bool) {
	if c == nil {
		return domain.CatalogEntry{}, false
	}
	needle := strings.ToLower(strings.TrimSpace(fragment))
	if needle == "" {
		return domain.CatalogEntry{}, false
	}
	for _, r := range c.rows {
		if r.DirectLink == "" {
			continue
		}
		if strings.Contains(strings.ToLower(r.DirectLink), needle) {
			return r, true
		}
	}
	return domain.CatalogEntry{}, false
}

// Load 读取并解析一个 TSV 查找表。
func Load(path string, cat domain.Category) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Kind: KindMissing, Path: path, Err: err}
		}
		return nil, &Error{Kind: KindInvalid, Path: path, Err: err}
	}
	defer f.Close()

	c, err := Parse(f, cat)
	if err != nil {
		return nil, &Error{Kind: KindInvalid, Path: path, Err: err}
	}
	c.Path = path
	return c, nil
}

// Parse 从 r 解析 TSV（第一行必须是表头）。
//
// 规则：
// - 必需列按名字定位，顺序不限，多余列忽略
// - 列数不足的行静默跳过
// - 同一 Content ID 出现多次：保留第一行
func Parse(r io.Reader, cat domain.Category) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("缺少表头")
		}
		return nil, err
	}

	idxID, idxLink, idxKey := -1, -1, -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch h {
		case ColContentID:
			idxID = i
		case ColDirectLink:
			idxLink = i
		case ColZRIF:
			idxKey = i
		}
	}
	if idxID < 0 || idxLink < 0 || idxKey < 0 {
		return nil, fmt.Errorf("表头缺少必需列（%q/%q/%q）", ColContentID, ColDirectLink, ColZRIF)
	}
	need := max(idxID, idxLink, idxKey) + 1

	c := &Catalog{
		Category: cat,
		rows:     make([]domain.CatalogEntry, 0, 1024),
		byID:     make(map[string]int, 1024),
	}
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				// 单行坏数据：跳过，继续读下一行。
				continue
			}
			return nil, err
		}
		if len(rec) < need {
			continue
		}

		e := domain.CatalogEntry{
			ContentID:  strings.TrimSpace(rec[idxID]),
			DirectLink: strings.TrimSpace(rec[idxLink]),
			ZRIF:       strings.TrimSpace(rec[idxKey]),
		}
		if e.ContentID == "" && e.DirectLink == "" {
			continue
		}
		if e.ContentID != "" {
			if _, dup := c.byID[e.ContentID]; !dup {
				c.byID[e.ContentID] = len(c.rows)
			}
		}
		c.rows = append(c.rows, e)
	}
	return c, nil
}

// Set 是三个分类的查找表集合；缺失/损坏的分类为 nil（absent）。
type Set [domain.NumCategories]*Catalog

// Get 返回分类 c 的表；absent 或非法分类返回 nil。
func (s *Set) Get(c domain.Category) *Catalog {
	if s == nil || !c.Valid() {
		return nil
	}
	return s[c]
}

// LoadResult 是单个分类的加载结果（供上层打 warning / 写 report）。
type LoadResult struct {
	Category domain.Category
	Path     string
	Entries  int
	Err      error
}

// LoadSet 从 dir 下按固定文件名加载三个分类的表。
// 任何单个分类失败都不会中断其他分类；失败信息放在对应 LoadResult.Err 中。
func LoadSet(dir string) (Set, []LoadResult) {
	var set Set
	results := make([]LoadResult, 0, domain.NumCategories)
	for _, cat := range domain.Categories {
		p := filepath.Join(dir, cat.FileName())
		c, err := Load(p, cat)
		lr := LoadResult{Category: cat, Path: p, Err: err}
		if err == nil {
			set[cat] = c
			lr.Entries = c.Len()
		}
		results = append(results, lr)
	}
	return set, results
}
