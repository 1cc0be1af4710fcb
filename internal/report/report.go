// Package report 负责把 RunReport 渲染为人类可读的汇总，以及 report.json 的读写。
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/V3KPI/internal/domain"
	"github.com/John-Robertt/V3KPI/internal/infra/fsx"
)

// SEP 是汇总的分隔线。
const SEP = "------------------------------------------"

// Text 渲染纯文本汇总（按分类分组列出所有需要人工关注的包）。
func Text(rr domain.RunReport) string {
	var b strings.Builder
	b.WriteString(SEP + "\n")
	b.WriteString("汇总\n")
	b.WriteString(SEP + "\n")

	if rr.Fatal != nil {
		fmt.Fprintf(&b, "运行被终止（%s）：%s\n", rr.Fatal.Code, rr.Fatal.Msg)
		return b.String()
	}

	s := rr.Summary
	if rr.DryRun {
		fmt.Fprintf(&b, "共 %d 个包（dry-run）：可安装 %d，缺少 zRIF %d\n", s.Total, s.Planned, s.NoKey)
	} else {
		fmt.Fprintf(&b, "共 %d 个包：安装成功 %d，安装失败 %d，缺少 zRIF %d，已删除 %d\n",
			s.Total, s.Installed, s.Failed, s.NoKey, s.Deleted)
	}
	if rr.Interrupted {
		b.WriteString("运行被中断，剩余的包未处理。\n")
	}
	for _, cs := range rr.Catalogs {
		if cs.Absent {
			fmt.Fprintf(&b, "对照表缺失：%s（%s 分类的包均无法匹配）\n", cs.Path, cs.Category.Label())
		}
	}

	for _, c := range domain.Categories {
		st := rr.Stats.Of(c)
		n := len(st.Success) + len(st.Failed) + len(st.NoKey) + len(st.Planned)
		if n == 0 {
			continue
		}
		b.WriteString(SEP + "\n")
		if rr.DryRun {
			fmt.Fprintf(&b, "[%s] 可安装 %d / 缺少 zRIF %d\n", c.Label(), len(st.Planned), len(st.NoKey))
		} else {
			fmt.Fprintf(&b, "[%s] 成功 %d / 失败 %d / 缺少 zRIF %d / 已删除 %d\n",
				c.Label(), len(st.Success), len(st.Failed), len(st.NoKey), len(st.Deleted))
		}
		writeList(&b, "安装失败", st.Failed)
		writeList(&b, "缺少 zRIF", st.NoKey)
		writeList(&b, "已删除", st.Deleted)
	}
	b.WriteString(SEP + "\n")
	return b.String()
}

func writeList(b *strings.Builder, title string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s：\n", title)
	for _, n := range names {
		fmt.Fprintf(b, "    - %s\n", n)
	}
}

// Markdown 渲染 Markdown 汇总（由 CLI 交给 glamour 在终端中排版）。
func Markdown(rr domain.RunReport) string {
	var b strings.Builder
	b.WriteString("# 安装汇总\n\n")
	if rr.RunID != "" {
		fmt.Fprintf(&b, "- run: `%s`\n", rr.RunID)
	}
	if rr.Path != "" {
		fmt.Fprintf(&b, "- pkg 目录: `%s`\n", rr.Path)
	}
	if rr.DryRun {
		b.WriteString("- 模式: dry-run\n")
	}
	b.WriteString("\n")

	if rr.Fatal != nil {
		fmt.Fprintf(&b, "> **运行被终止** `%s`：%s\n", rr.Fatal.Code, mdEscape(rr.Fatal.Msg))
		return b.String()
	}
	if rr.Interrupted {
		b.WriteString("> **运行被中断**，剩余的包未处理。\n\n")
	}

	b.WriteString("| 分类 | 成功 | 失败 | 缺少 zRIF | 已删除 | 可安装 |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|\n")
	for _, c := range domain.Categories {
		st := rr.Stats.Of(c)
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %d |\n",
			c.Label(), len(st.Success), len(st.Failed), len(st.NoKey), len(st.Deleted), len(st.Planned))
	}
	s := rr.Summary
	fmt.Fprintf(&b, "| **合计** | %d | %d | %d | %d | %d |\n\n", s.Installed, s.Failed, s.NoKey, s.Deleted, s.Planned)

	attention := make([]domain.ItemResult, 0, s.Failed+s.NoKey)
	for _, it := range rr.Items {
		if it.Outcome == domain.OutcomeFailed || it.Outcome == domain.OutcomeNoKey {
			attention = append(attention, it)
		}
	}
	if len(attention) > 0 {
		b.WriteString("## 需要人工处理\n\n")
		for _, it := range attention {
			fmt.Fprintf(&b, "- **%s** `%s` (%s)", mdEscape(it.DisplayName), it.ContentID, it.Resolved.Label())
			if it.ErrorCode != "" {
				fmt.Fprintf(&b, " `%s`", it.ErrorCode)
			}
			if msg := strings.TrimSpace(it.ErrorMsg); msg != "" {
				fmt.Fprintf(&b, "：%s", mdEscape(msg))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func mdEscape(s string) string {
	r := strings.NewReplacer("|", "\\|", "*", "\\*", "_", "\\_", "`", "'", "\n", " ")
	return r.Replace(s)
}

// Save 以 JSON 原子写入 report 文件。
func Save(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), b)
}

// Load 读取 report 文件。
func Load(path string) (domain.RunReport, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.RunReport{}, err
	}
	var rr domain.RunReport
	if err := json.Unmarshal(b, &rr); err != nil {
		return domain.RunReport{}, fmt.Errorf("report 文件 %q 无效：%w", path, err)
	}
	return rr, nil
}
