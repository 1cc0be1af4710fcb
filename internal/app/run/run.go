package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/V3KPI/internal/app"
	"github.com/John-Robertt/V3KPI/internal/app/planner"
	"github.com/John-Robertt/V3KPI/internal/catalog"
	"github.com/John-Robertt/V3KPI/internal/config"
	"github.com/John-Robertt/V3KPI/internal/domain"
	"github.com/John-Robertt/V3KPI/internal/installer"
	"github.com/John-Robertt/V3KPI/internal/scan"
)

// Installer 是编排器对“安装单个包”的唯一依赖（生产环境为 installer.Invoker）。
type Installer interface {
	Install(ctx context.Context, req installer.Request) installer.Result
}

// FatalError 表示运行在处理任何包之前就必须终止。
type FatalError struct {
	Code string
	Path string
	Err  error
}

func (e *FatalError) Error() string {
	switch e.Code {
	case domain.ErrCodeInputMissing:
		return fmt.Sprintf("%s：pkg 目录不存在或不是目录：%q", e.Code, e.Path)
	case domain.ErrCodeInputUnread:
		return fmt.Sprintf("%s：pkg 目录不可读：%q：%v", e.Code, e.Path, e.Err)
	case domain.ErrCodeExeMissing:
		return fmt.Sprintf("%s：找不到 Vita3K 可执行文件：%q", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%q：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：%q", e.Code, e.Path)
	}
}

func (e *FatalError) Unwrap() error { return e.Err }

// 通过可替换的函数指针，让测试能固定 run_id。
var newRunID = func() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Execute 执行一次批量安装，并返回对外稳定的 RunReport。
//
// 只有前置检查失败时才返回 error（*FatalError），此时 report 的 Items 为空、Fatal 非空。
// 其余问题一律降级：对照表缺失 => 该分类 absent；单个包失败 => 该包 failed，继续下一个。
// ctx 取消后不再启动新的安装，剩余包记为 failed/interrupted。
func Execute(ctx context.Context, eff config.EffectiveConfig, inst Installer, obs Observer) (domain.RunReport, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	obs.OnStart(eff)

	rr := domain.RunReport{
		RunID:      newRunID(),
		Path:       eff.PkgPath,
		Executable: eff.Executable,
		DryRun:     eff.DryRun,
		StartedAt:  time.Now().UTC(),
		Stats:      domain.NewRunStatistics(),
		Items:      make([]domain.ItemResult, 0, 64),
	}

	if err := checkPreconditions(eff); err != nil {
		var fe *FatalError
		if errors.As(err, &fe) {
			rr.Fatal = &domain.FatalInfo{Code: fe.Code, Msg: fe.Error()}
		}
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr, err
	}

	loadStarted := time.Now()
	set, loads := catalog.LoadSet(eff.TSVDir)
	absent := 0
	for _, lr := range loads {
		st := domain.CatalogStatus{Category: lr.Category, Path: lr.Path, Entries: lr.Entries}
		if lr.Err != nil {
			st.Absent = true
			st.Error = lr.Err.Error()
			absent++
		}
		rr.Catalogs = append(rr.Catalogs, st)
		obs.OnCatalog(st)
	}
	obs.OnPhaseDone("catalog", map[string]any{
		"dir":    eff.TSVDir,
		"absent": absent,
	}, time.Since(loadStarted))

	scanStarted := time.Now()
	files, err := scan.ScanPackages(eff.PkgPath)
	if err != nil {
		fe := &FatalError{Code: domain.ErrCodeInputUnread, Path: eff.PkgPath, Err: err}
		rr.Fatal = &domain.FatalInfo{Code: fe.Code, Msg: fe.Error()}
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr, fe
	}
	buckets := app.GroupByCategory(files)
	items := app.Flatten(buckets)

	fields := map[string]any{"packages": len(items)}
	for _, b := range buckets {
		fields[b.Category.String()] = len(b.Items)
	}
	obs.OnPhaseDone("scan", fields, time.Since(scanStarted))

	planStarted := time.Now()
	plans, sum := planner.Plan(&set, items)
	obs.OnPhaseDone("plan", map[string]any{
		"with_key": sum.WithKey,
		"no_key":   sum.NoKey,
		"fallback": sum.Fallback,
	}, time.Since(planStarted))

	total := len(plans)
	for i, p := range plans {
		if ctx.Err() != nil {
			rr.Interrupted = true
			for _, rest := range plans[i:] {
				res := interruptedItem(rest.Item, ctx.Err())
				rr.Items = append(rr.Items, res)
				rr.Stats.Record(res)
			}
			break
		}

		obs.OnItemStart(i+1, total, p.Item)
		oneStarted := time.Now()
		res := processItem(ctx, eff, inst, p)
		rr.Items = append(rr.Items, res)
		rr.Stats.Record(res)
		obs.OnItemDone(i+1, total, res, time.Since(oneStarted))

		if res.ErrorCode == domain.ErrCodeInterrupted {
			rr.Interrupted = true
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr, nil
}

func checkPreconditions(eff config.EffectiveConfig) error {
	fi, err := os.Stat(eff.PkgPath)
	if err != nil || !fi.IsDir() {
		return &FatalError{Code: domain.ErrCodeInputMissing, Path: eff.PkgPath, Err: err}
	}
	d, err := os.Open(eff.PkgPath)
	if err != nil {
		return &FatalError{Code: domain.ErrCodeInputUnread, Path: eff.PkgPath, Err: err}
	}
	_, err = d.Readdirnames(1)
	_ = d.Close()
	if err != nil && !errors.Is(err, io.EOF) {
		return &FatalError{Code: domain.ErrCodeInputUnread, Path: eff.PkgPath, Err: err}
	}

	fi, err = os.Stat(eff.Executable)
	if err != nil || fi.IsDir() {
		return &FatalError{Code: domain.ErrCodeExeMissing, Path: eff.Executable, Err: err}
	}
	return nil
}

// processItem 处理单个包；任何 panic 都被收敛为该包的 failed/internal。
func processItem(ctx context.Context, eff config.EffectiveConfig, inst Installer, p domain.InstallPlan) (out domain.ItemResult) {
	it := p.Item
	out = domain.ItemResult{
		Path:        it.RelPath,
		ContentID:   it.ContentID,
		DisplayName: it.DisplayName,
		Guessed:     it.Guessed,
		Resolved:    it.Guessed,
		Outcome:     domain.OutcomeFailed,
		ExitCode:    -1,
	}
	defer func() {
		if r := recover(); r != nil {
			out.Outcome = domain.OutcomeFailed
			out.Deleted = false
			out.ErrorCode = domain.ErrCodeInternal
			out.ErrorMsg = fmt.Sprintf("处理时发生内部错误：%v", r)
		}
	}()

	if !p.Found {
		out.Outcome = domain.OutcomeNoKey
		out.ErrorCode = domain.ErrCodeNoKey
		out.ErrorMsg = "所有对照表中都没有可用的 zRIF（已查：" + p.Trace + "）"
		return out
	}
	out.Resolved = p.Category
	out.ResolvedBy = p.Stage

	if eff.DryRun {
		out.Outcome = domain.OutcomePlanned
		return out
	}

	r := inst.Install(ctx, installer.Request{
		Executable:  eff.Executable,
		PackagePath: it.AbsPath,
		ZRIF:        p.ZRIF,
		Category:    p.Category,
	})
	out.Outcome = r.Outcome
	out.Deleted = r.Deleted
	out.ExitCode = r.ExitCode
	out.ErrorCode = r.ErrorCode
	out.ErrorMsg = r.ErrorMsg
	return out
}

func interruptedItem(it domain.PackageItem, cause error) domain.ItemResult {
	return domain.ItemResult{
		Path:        it.RelPath,
		ContentID:   it.ContentID,
		DisplayName: it.DisplayName,
		Guessed:     it.Guessed,
		Resolved:    it.Guessed,
		Outcome:     domain.OutcomeFailed,
		ExitCode:    -1,
		ErrorCode:   domain.ErrCodeInterrupted,
		ErrorMsg:    fmt.Sprintf("运行被中断，未处理：%v", cause),
	}
}
