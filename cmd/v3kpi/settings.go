package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/V3KPI/internal/config"
)

func newSettingsCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "查看或修改设置文件",
	}
	cmd.AddCommand(newSettingsShowCmd(g))
	cmd.AddCommand(newSettingsSetCmd(g))
	return cmd
}

func newSettingsShowCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "显示设置文件路径与内容（已应用 V3KPI_* 环境变量）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := g.settingsPath()
			if err != nil {
				return fail(cmd, 1, "无法确定设置文件路径：%v", err)
			}
			s, warn := config.LoadSettings(path)
			if warn != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("警告：")+warn.Error())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, TitleStyle.Render("设置文件")+" "+PathStyle.Render(path))
			b, _ := json.MarshalIndent(s, "", "  ")
			fmt.Fprintln(out, string(b))
			return nil
		},
	}
}

type settingsSetOptions struct {
	pkgPath string
	exe     string
	tsvDir  string
	timeout time.Duration
}

func newSettingsSetCmd(g *globalOptions) *cobra.Command {
	o := &settingsSetOptions{}
	cmd := &cobra.Command{
		Use:   "set",
		Short: "修改设置文件（只改显式给出的项）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := g.settingsPath()
			if err != nil {
				return fail(cmd, 1, "无法确定设置文件路径：%v", err)
			}
			s, warn := config.ReadSettingsFile(path)
			if warn != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("警告：")+warn.Error()+"（将被覆盖）")
			}

			f := cmd.Flags()
			changed := 0
			if f.Changed("pkg-path") {
				if s.PkgPath, err = absPath(o.pkgPath); err != nil {
					return fail(cmd, 1, "%v", err)
				}
				changed++
			}
			if f.Changed("exe") {
				if s.Vita3KExe, err = absPath(o.exe); err != nil {
					return fail(cmd, 1, "%v", err)
				}
				changed++
			}
			if f.Changed("tsv-dir") {
				if s.TSVDir, err = absPath(o.tsvDir); err != nil {
					return fail(cmd, 1, "%v", err)
				}
				changed++
			}
			if f.Changed("timeout") {
				if o.timeout < config.MinTimeout || o.timeout > config.MaxTimeout {
					return fail(cmd, 1, "--timeout 必须在 [%s, %s] 之间", config.MinTimeout, config.MaxTimeout)
				}
				s.TimeoutSec = int(o.timeout / time.Second)
				changed++
			}
			if changed == 0 {
				return fail(cmd, 2, "没有需要修改的项（使用 --pkg-path/--exe/--tsv-dir/--timeout）")
			}

			if err := config.SaveSettings(path, s); err != nil {
				return fail(cmd, 1, "保存设置失败：%v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("已保存")+" "+PathStyle.Render(path))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.pkgPath, "pkg-path", "", "默认 pkg 目录")
	f.StringVar(&o.exe, "exe", "", "Vita3K 可执行文件")
	f.StringVar(&o.tsvDir, "tsv-dir", "", "对照表目录")
	f.DurationVar(&o.timeout, "timeout", 0, "单个包的安装超时")
	return cmd
}

// absPath 以当前目录为基准返回 clean + absolute 路径；空串原样返回。
func absPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, p), nil
}
