package planner

import (
	"strings"
	"testing"

	"github.com/John-Robertt/V3KPI/internal/catalog"
	"github.com/John-Robertt/V3KPI/internal/domain"
)

func mustParse(t *testing.T, cat domain.Category, body string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse(strings.NewReader("Content ID\tPKG direct link\tzRIF\n"+body), cat)
	if err != nil {
		t.Fatalf("解析对照表失败：%v", err)
	}
	return c
}

func item(id string, guessed domain.Category) domain.PackageItem {
	return domain.PackageItem{ContentID: id, FileName: id + ".pkg", Guessed: guessed, DisplayName: id}
}

func TestPlan_KeysFallbackAndMisses(t *testing.T) {
	var set catalog.Set
	set[domain.CategoryPrimary] = mustParse(t, domain.CategoryPrimary, "PCSA00001_00\thttp://x/a.pkg\tK1\n")
	set[domain.CategoryTheme] = mustParse(t, domain.CategoryTheme, "PCSB00002_01\thttp://x/t.pkg\tK2\n")

	items := []domain.PackageItem{
		item("PCSA00001_00", domain.CategoryPrimary),
		item("PCSB00002_01", domain.CategoryAddon),
		item("PCSC00003_00", domain.CategoryPrimary),
	}
	plans, sum := Plan(&set, items)

	if len(plans) != len(items) {
		t.Fatalf("计划数量应与输入一致：%d", len(plans))
	}
	if sum != (Summary{Items: 3, WithKey: 2, NoKey: 1, Fallback: 1}) {
		t.Fatalf("统计不符合预期：%+v", sum)
	}

	if p := plans[0]; !p.Found || p.ZRIF != "K1" || p.Stage != "exact" || p.Fallback() {
		t.Fatalf("第 1 个计划不符合预期：%+v", p)
	}
	if p := plans[1]; !p.Fallback() || p.Category != domain.CategoryTheme {
		t.Fatalf("第 2 个计划应回退到 theme：%+v", p)
	}
	p := plans[2]
	if p.Found || p.ZRIF != "" || p.Category != domain.CategoryPrimary {
		t.Fatalf("未命中时应保留猜测分类：%+v", p)
	}
	if !strings.Contains(p.Trace, "addon:absent") {
		t.Fatalf("trace 应说明 addon 表缺失：%q", p.Trace)
	}
}

func TestPlanItem_Deterministic(t *testing.T) {
	var set catalog.Set
	set[domain.CategoryPrimary] = mustParse(t, domain.CategoryPrimary, "PCSA00001_00\thttp://x/a.pkg\tK1\n")
	it := item("PCSA00001_00", domain.CategoryPrimary)

	a := PlanItem(&set, it)
	b := PlanItem(&set, it)
	if a != b {
		t.Fatalf("相同输入应得到相同计划：\n%+v\n%+v", a, b)
	}
}
