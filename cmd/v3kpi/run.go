package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/V3KPI/internal/app/run"
	"github.com/John-Robertt/V3KPI/internal/config"
	"github.com/John-Robertt/V3KPI/internal/installer"
	"github.com/John-Robertt/V3KPI/internal/report"
)

type runOptions struct {
	exe        string
	tsvDir     string
	timeout    time.Duration
	dryRun     bool
	keep       bool
	reportPath string
	noSave     bool
	jsonOut    bool
}

func newRunCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [pkg-dir]",
		Short: "扫描目录并逐个安装 .pkg",
		Long: `扫描 pkg-dir（未指定则使用设置文件中的 pkg_path）下的所有 .pkg，
按 游戏 -> DLC -> 主题 的顺序逐个匹配 zRIF 并调用 Vita3K 安装。

安装成功的包会被删除（--keep 保留）；失败或缺少 zRIF 的包保留原处并列入汇总。
存在失败或缺少 zRIF 的包时退出码为 1。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, g, o, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.exe, "exe", "", "Vita3K 可执行文件（默认读设置文件 vita3k_exe）")
	f.StringVar(&o.tsvDir, "tsv-dir", "", "PSV_*.tsv 所在目录（默认读设置文件 tsv_dir，或设置文件旁的 tsv/）")
	f.DurationVar(&o.timeout, "timeout", installer.DefaultTimeout, "单个包的安装超时")
	f.BoolVar(&o.dryRun, "dry-run", false, "只匹配 zRIF，不调用模拟器、不删除文件")
	f.BoolVar(&o.keep, "keep", false, "安装成功后保留源 .pkg")
	f.StringVar(&o.reportPath, "report", "", "把运行结果以 JSON 写入该文件")
	f.BoolVar(&o.noSave, "no-save", false, "不把本次使用的路径写回设置文件")
	f.BoolVar(&o.jsonOut, "json", false, "stdout 输出 RunReport JSON（代替文本汇总）")
	return cmd
}

func runRun(cmd *cobra.Command, g *globalOptions, o *runOptions, args []string) error {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()
	logger := newLogger(stderr, g.verbose)

	cwd, err := os.Getwd()
	if err != nil {
		return fail(cmd, 1, "读取当前目录失败：%v", err)
	}

	cli := config.CLIArgs{
		SettingsPath: g.configPath,
		Executable:   o.exe,
		TSVDir:       o.tsvDir,
		Timeout:      o.timeout,
		TimeoutSet:   cmd.Flags().Changed("timeout"),
		DryRun:       o.dryRun,
		Keep:         o.keep,
	}
	if len(args) == 1 {
		cli.PkgPath = args[0]
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		return fail(cmd, 1, "%v", err)
	}
	for _, w := range eff.Warnings {
		logger.Warn(w)
	}

	// 与旧版“点击开始即保存配置”一致：路径在运行前写回，dry-run 不写。
	if !o.noSave && !eff.DryRun {
		if err := config.SaveSettings(eff.SettingsPath, eff.Settings()); err != nil {
			logger.Warn("保存设置失败", "path", eff.SettingsPath, "err", err)
		} else {
			logger.Debug("已保存设置", "path", eff.SettingsPath)
		}
	}

	ui := newProgressUI(logger)
	defer ui.Close()

	inst := installer.Invoker{Timeout: eff.Timeout, Keep: eff.Keep}
	rr, runErr := run.Execute(cmd.Context(), eff, inst, ui)

	if o.reportPath != "" {
		p := o.reportPath
		if !filepath.IsAbs(p) {
			p = filepath.Join(cwd, p)
		}
		if err := report.Save(p, rr); err != nil {
			logger.Error("写入 report 失败", "path", p, "err", err)
		} else {
			logger.Info("已写入 report", "path", p)
		}
	}

	if o.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rr)
	} else {
		fmt.Fprint(stdout, report.Text(rr))
	}

	if runErr != nil {
		return fail(cmd, 1, "%v", runErr)
	}
	if !rr.OK() {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return &ExitError{Code: 1}
	}
	return nil
}
