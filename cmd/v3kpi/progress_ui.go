package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/John-Robertt/V3KPI/internal/app/run"
	"github.com/John-Robertt/V3KPI/internal/config"
	"github.com/John-Robertt/V3KPI/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// newLogger 构造写往 w 的结构化日志（--verbose 打开 debug 级别）。
func newLogger(w io.Writer, verbose bool) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		Prefix:          "v3kpi",
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	if verbose {
		l.SetLevel(log.DebugLevel)
	}
	return l
}

// progressUI 把 run 层的事件渲染为日志行。
//
// 单个包的安装可能持续数分钟：安装期间若长时间没有输出，定期打印一行 keepalive。
type progressUI struct {
	log *log.Logger

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int
	nokey int

	current     string
	itemStarted time.Time

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(l *log.Logger) *progressUI {
	return &progressUI{
		log:                l,
		keepaliveThreshold: 15 * time.Second,
		tickerInterval:     5 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = time.Now()
	mode := "install"
	if eff.DryRun {
		mode = "dry-run"
	}
	p.log.Info("开始运行",
		"mode", mode,
		"pkg_dir", eff.PkgPath,
		"exe", eff.Executable,
		"tsv_dir", eff.TSVDir,
		"timeout", eff.Timeout,
		"keep", eff.Keep,
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnCatalog(st domain.CatalogStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st.Absent {
		p.log.Warn("对照表不可用，该分类的包都将缺少 zRIF",
			"category", st.Category, "path", st.Path, "err", st.Error)
	} else {
		p.log.Debug("已加载对照表", "category", st.Category, "entries", st.Entries, "path", st.Path)
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "catalog":
		p.log.Info("对照表就绪", "absent", intField(fields, "absent"), "dur", formatShortDuration(dur))
	case "scan":
		p.total = intField(fields, "packages")
		p.log.Info("扫描完成",
			"packages", p.total,
			"primary", intField(fields, domain.CategoryPrimary.String()),
			"addon", intField(fields, domain.CategoryAddon.String()),
			"theme", intField(fields, domain.CategoryTheme.String()),
			"dur", formatShortDuration(dur),
		)
	case "plan":
		args := []any{"with_key", intField(fields, "with_key"), "no_key", intField(fields, "no_key")}
		if n := intField(fields, "fallback"); n > 0 {
			args = append(args, "fallback", n)
		}
		if intField(fields, "no_key") > 0 {
			p.log.Warn("计划完成（部分包缺少 zRIF）", args...)
		} else {
			p.log.Info("计划完成", args...)
		}
	default:
		p.log.Info(name, "dur", formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemStart(idx, total int, it domain.PackageItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = it.ContentID
	p.itemStarted = time.Now()
	p.log.Debug("处理", "n", progressN(idx, total), "content_id", it.ContentID, "guessed", it.Guessed, "pkg", it.AbsPath)
	p.lastPrinted = time.Now()

	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total
	p.current = ""

	n := progressN(idx, total)
	switch res.Outcome {
	case domain.OutcomeInstalled:
		p.ok++
		kv := []any{"n", n, "content_id", res.ContentID, "category", res.Resolved, "by", res.ResolvedBy}
		if note := fallbackNote(res); note != "" {
			kv = append(kv, "fallback", note)
		}
		kv = append(kv, "deleted", res.Deleted, "dur", formatShortDuration(dur))
		p.log.Info("安装成功", kv...)
		if res.ErrorCode == domain.ErrCodeDeleteFailed {
			p.log.Warn("源文件未删除", "content_id", res.ContentID, "err", truncate(res.ErrorMsg, 160))
		}
	case domain.OutcomePlanned:
		p.ok++
		p.log.Info("可安装", "n", n, "content_id", res.ContentID, "category", res.Resolved, "by", res.ResolvedBy, "fallback", fallbackNote(res))
	case domain.OutcomeNoKey:
		p.nokey++
		p.log.Warn("缺少 zRIF", "n", n, "content_id", res.ContentID, "name", res.DisplayName, "detail", truncate(res.ErrorMsg, 200))
	default:
		p.fail++
		p.log.Error("安装失败", "n", n, "content_id", res.ContentID, "code", res.ErrorCode,
			"exit", res.ExitCode, "msg", truncate(res.ErrorMsg, 160), "dur", formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在汇总之后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

// Close 停止 keepalive（运行被中断时 OnItemDone 不会走到最后一条）。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 15 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.current != "" && time.Since(p.lastPrinted) > threshold {
					p.log.Info("仍在等待模拟器",
						"content_id", p.current,
						"waited", formatElapsed(time.Since(p.itemStarted)),
						"done", progressN(p.done, p.total),
						"ok", p.ok, "fail", p.fail, "no_key", p.nokey,
						"elapsed", formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func progressN(idx, total int) string {
	return fmt.Sprintf("%d/%d", idx, total)
}

// fallbackNote 在命中分类与猜测分类不同时返回 "addon->theme"。
func fallbackNote(res domain.ItemResult) string {
	if res.Guessed == res.Resolved {
		return ""
	}
	return res.Guessed.String() + "->" + res.Resolved.String()
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

// truncate 按字符（rune）截断，避免把中文截成半个字节序列。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
