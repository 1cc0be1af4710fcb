package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/V3KPI/internal/config"
)

// version 由 -ldflags 注入。
var version = "dev"

func main() {
	// fang 负责帮助/错误的样式，以及 Ctrl-C 时取消 cmd.Context()。
	if err := fang.Execute(
		context.Background(),
		newRootCmd(),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// globalOptions 是所有子命令共享的 flag。
type globalOptions struct {
	configPath string
	verbose    bool
}

// settingsPath 返回 --config 或默认的设置文件路径（绝对路径）。
func (g *globalOptions) settingsPath() (string, error) {
	if p := strings.TrimSpace(g.configPath); p != "" {
		return absPath(p)
	}
	return config.DefaultSettingsPath()
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "v3kpi",
		Short: "批量把 .pkg 安装进 Vita3K",
		Long: TitleStyle.Render("v3kpi") + SubtitleStyle.Render(" - Vita3K PKG 批量安装器") + `

递归扫描目录中的 .pkg，按 PSV_GAMES / PSV_DLCS / PSV_THEMES 对照表匹配 zRIF，
逐个调用 Vita3K 安装，成功后删除源文件，最后按分类汇总需要人工处理的包。

` + SubtitleStyle.Render("示例：") + `
  v3kpi run ~/pkgs --exe ~/Vita3K/Vita3K    安装目录下的所有包
  v3kpi run --dry-run                       只检查 zRIF 匹配，不调用模拟器
  v3kpi catalog sync --base https://...     下载最新对照表
  v3kpi summary report.json --markdown      重新查看某次运行的汇总`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "设置文件路径（默认 <用户配置目录>/v3kpi/settings.json）")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "输出调试日志")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newSummaryCmd(g))
	root.AddCommand(newCatalogCmd(g))
	root.AddCommand(newSettingsCmd(g))
	return root
}

// fail 打印错误并返回 ExitError，避免 cobra/fang 再打印一次。
func fail(cmd *cobra.Command, code int, format string, args ...any) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	fmt.Fprintln(cmd.ErrOrStderr(), ErrorStyle.Render("错误：")+fmt.Sprintf(format, args...))
	return &ExitError{Code: code}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
