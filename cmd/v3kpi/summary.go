package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/V3KPI/internal/report"
)

// 通过可替换的函数指针，让测试不依赖终端能力。
var renderMarkdown = glamour.Render

func newSummaryCmd(g *globalOptions) *cobra.Command {
	var markdown bool
	cmd := &cobra.Command{
		Use:   "summary REPORT.json",
		Short: "重新显示某次运行（run --report）的汇总",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rr, err := report.Load(args[0])
			if err != nil {
				return fail(cmd, 1, "%v", err)
			}

			out := cmd.OutOrStdout()
			if !markdown {
				fmt.Fprint(out, report.Text(rr))
				return nil
			}

			style := "notty"
			if isTTY(out) {
				style = "dark"
			}
			rendered, err := renderMarkdown(report.Markdown(rr), style)
			if err != nil {
				// 渲染失败不影响内容：退回原始 Markdown。
				fmt.Fprint(out, report.Markdown(rr))
				return nil
			}
			fmt.Fprint(out, rendered)
			return nil
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "以 Markdown 排版输出（含需要人工处理的明细）")
	return cmd
}
