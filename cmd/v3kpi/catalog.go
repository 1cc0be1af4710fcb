package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/V3KPI/internal/catalogsync"
	"github.com/John-Robertt/V3KPI/internal/config"
	"github.com/John-Robertt/V3KPI/internal/infra/cache"
	"github.com/John-Robertt/V3KPI/internal/infra/httpx"
)

func newCatalogCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "管理 PSV_*.tsv 对照表",
	}
	cmd.AddCommand(newCatalogSyncCmd(g))
	return cmd
}

type catalogSyncOptions struct {
	base   string
	index  string
	tsvDir string
	proxy  string
	dryRun bool
}

func newCatalogSyncCmd(g *globalOptions) *cobra.Command {
	o := &catalogSyncOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "下载对照表并原子替换本地副本",
		Long: `从 --base（三张表直接位于该 URL 下）或 --index（HTML 索引页，表地址从链接中发现）
下载 PSV_GAMES.tsv / PSV_DLCS.tsv / PSV_THEMES.tsv。

下载内容必须包含 "Content ID"、"PKG direct link"、"zRIF" 列才会写入；单张表失败不影响其它表。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogSync(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.base, "base", "", "对照表所在目录的 URL")
	f.StringVar(&o.index, "index", "", "列出对照表链接的 HTML 页面 URL")
	f.StringVar(&o.tsvDir, "tsv-dir", "", "写入目录（默认读设置文件 tsv_dir，或设置文件旁的 tsv/）")
	f.StringVar(&o.proxy, "proxy", "", "HTTP 代理 URL")
	f.BoolVar(&o.dryRun, "dry-run", false, "只下载并校验，不写盘")
	return cmd
}

func runCatalogSync(cmd *cobra.Command, g *globalOptions, o *catalogSyncOptions) error {
	logger := newLogger(cmd.ErrOrStderr(), g.verbose)

	dir := strings.TrimSpace(o.tsvDir)
	if dir == "" {
		sp, err := g.settingsPath()
		if err != nil {
			return fail(cmd, 1, "无法确定设置文件路径：%v", err)
		}
		s, warn := config.LoadSettings(sp)
		if warn != nil {
			logger.Warn(warn.Error())
		}
		dir = s.TSVDir
		if dir == "" {
			dir = config.DefaultTSVDir(sp)
		}
	}
	dir, err := absPath(dir)
	if err != nil {
		return fail(cmd, 1, "%v", err)
	}

	client, err := httpx.NewCatalogClient(o.proxy)
	if err != nil {
		return fail(cmd, 1, "代理 URL 无效：%v", err)
	}
	logger.Info("同步对照表", "dir", dir, "proxy", formatProxy(o.proxy), "dry_run", o.dryRun)

	results, err := catalogsync.Sync(cmd.Context(), client,
		catalogsync.Source{BaseURL: o.base, IndexURL: o.index},
		cache.New(dir, o.dryRun),
	)
	if err != nil {
		return fail(cmd, 1, "%v", err)
	}

	failed := 0
	out := cmd.OutOrStdout()
	for _, r := range results {
		label := fmt.Sprintf("%-6s %s", r.Category.String(), r.Category.FileName())
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(out, "%s %s：%v\n", ErrorStyle.Render("✗"), label, r.Err)
		case r.Written:
			fmt.Fprintf(out, "%s %s：%d 条，%d 字节\n", SuccessStyle.Render("✓"), label, r.Entries, r.Bytes)
		default:
			fmt.Fprintf(out, "%s %s：%d 条，%d 字节（dry-run 未写入）\n", WarningStyle.Render("•"), label, r.Entries, r.Bytes)
		}
	}
	if failed > 0 {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return &ExitError{Code: 1}
	}
	return nil
}
