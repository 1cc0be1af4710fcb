package run

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/V3KPI/internal/config"
	"github.com/John-Robertt/V3KPI/internal/domain"
	"github.com/John-Robertt/V3KPI/internal/installer"
)

const tsvHeader = "Title ID\tRegion\tName\tPKG direct link\tzRIF\tContent ID\n"

// stubInstaller 记录调用并按预设返回结果（不启动任何进程）。
type stubInstaller struct {
	calls []installer.Request
	res   func(req installer.Request) installer.Result
	// onCall 在每次调用后执行（测试用来触发取消）。
	onCall func()
}

func (s *stubInstaller) Install(ctx context.Context, req installer.Request) installer.Result {
	s.calls = append(s.calls, req)
	if s.onCall != nil {
		defer s.onCall()
	}
	if s.res != nil {
		return s.res(req)
	}
	return installer.Result{Outcome: domain.OutcomeInstalled, Deleted: true, ExitCode: 0}
}

type fixture struct {
	pkgDir string
	tsvDir string
	exe    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		pkgDir: filepath.Join(root, "pkgs"),
		tsvDir: filepath.Join(root, "tsv"),
		exe:    filepath.Join(root, "bin", "Vita3K"),
	}
	mustWrite(t, f.exe, "#!/bin/sh\nexit 0\n")
	if err := os.MkdirAll(f.pkgDir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.MkdirAll(f.tsvDir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	return f
}

func (f fixture) eff() config.EffectiveConfig {
	return config.EffectiveConfig{
		PkgPath:    f.pkgDir,
		Executable: f.exe,
		TSVDir:     f.tsvDir,
		Timeout:    installer.DefaultTimeout,
	}
}

func (f fixture) pkg(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(f.pkgDir, dir, name)
	mustWrite(t, p, "pkg")
	return p
}

func (f fixture) catalog(t *testing.T, cat domain.Category, rows ...string) {
	t.Helper()
	body := tsvHeader
	for _, r := range rows {
		body += r + "\n"
	}
	mustWrite(t, filepath.Join(f.tsvDir, cat.FileName()), body)
}

func TestExecute_PrimaryExactMatch_InstalledAndDeleted(t *testing.T) {
	f := newFixture(t)
	f.catalog(t, domain.CategoryPrimary, "PCSA00001\tUS\tGame A\thttp://x/PCSA00001_00-GAME.pkg\tABC123\tPCSA00001_00")
	abs := f.pkg(t, "Game A (USA)", "PCSA00001_00.pkg")

	inst := &stubInstaller{}
	rr, err := Execute(context.Background(), f.eff(), inst, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if len(inst.calls) != 1 {
		t.Fatalf("期望调用安装 1 次，实际 %d", len(inst.calls))
	}
	req := inst.calls[0]
	if req.ZRIF != "ABC123" || req.PackagePath != abs || req.Executable != f.exe || req.Category != domain.CategoryPrimary {
		t.Fatalf("安装请求不符合预期：%+v", req)
	}

	if len(rr.Items) != 1 {
		t.Fatalf("期望 1 个 item，实际 %d", len(rr.Items))
	}
	it := rr.Items[0]
	if it.Outcome != domain.OutcomeInstalled || !it.Deleted || it.ResolvedBy != "exact" {
		t.Fatalf("item 不符合预期：%+v", it)
	}
	if it.DisplayName != "Game A" {
		t.Fatalf("display name 不符合预期：%q", it.DisplayName)
	}
	if got := rr.Stats.Primary.Success; len(got) != 1 || got[0] != "Game A" {
		t.Fatalf("统计不符合预期：%+v", rr.Stats.Primary)
	}
	if rr.Summary.Installed != 1 || rr.Summary.Deleted != 1 || !rr.OK() {
		t.Fatalf("summary 不符合预期：%+v", rr.Summary)
	}
	if rr.RunID == "" {
		t.Fatalf("run_id 不应为空")
	}
}

func TestExecute_CrossCategoryFallback_AttributedToTheme(t *testing.T) {
	f := newFixture(t)
	f.catalog(t, domain.CategoryAddon, "PCSB00009\tEU\tOther\thttp://x/other.pkg\tDLCKEY\tPCSB00009_01")
	f.catalog(t, domain.CategoryTheme, "PCSB00002\tEU\tSkin\thttp://x/t.pkg\tTHEMEKEY\tPCSB00002_01")
	f.pkg(t, "Skin (EUR)", "PCSB00002_01.pkg")

	inst := &stubInstaller{}
	rr, err := Execute(context.Background(), f.eff(), inst, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	it := rr.Items[0]
	if it.Guessed != domain.CategoryAddon || it.Resolved != domain.CategoryTheme {
		t.Fatalf("期望 addon -> theme 回退，实际 %+v", it)
	}
	if inst.calls[0].ZRIF != "THEMEKEY" {
		t.Fatalf("期望使用主题表的 zRIF，实际 %q", inst.calls[0].ZRIF)
	}
	if len(rr.Stats.Theme.Success) != 1 || len(rr.Stats.Addon.Success) != 0 {
		t.Fatalf("统计应归到 theme 而不是 addon：%+v", rr.Stats)
	}
}

func TestExecute_MissingExecutable_FatalWithZeroItems(t *testing.T) {
	f := newFixture(t)
	f.pkg(t, "Game A (USA)", "PCSA00001_00.pkg")
	eff := f.eff()
	eff.Executable = filepath.Join(t.TempDir(), "nope")

	inst := &stubInstaller{}
	rr, err := Execute(context.Background(), eff, inst, nil)

	var fe *FatalError
	if !errors.As(err, &fe) || fe.Code != domain.ErrCodeExeMissing {
		t.Fatalf("期望 executable_missing，实际 %v", err)
	}
	if len(rr.Items) != 0 || len(inst.calls) != 0 {
		t.Fatalf("fatal 时不应处理任何包：items=%d calls=%d", len(rr.Items), len(inst.calls))
	}
	if rr.Fatal == nil || rr.Fatal.Code != domain.ErrCodeExeMissing || rr.OK() {
		t.Fatalf("report 应记录 fatal：%+v", rr.Fatal)
	}
}

func TestExecute_MissingInputRoot_Fatal(t *testing.T) {
	f := newFixture(t)
	eff := f.eff()
	eff.PkgPath = filepath.Join(t.TempDir(), "missing")

	_, err := Execute(context.Background(), eff, &stubInstaller{}, nil)
	var fe *FatalError
	if !errors.As(err, &fe) || fe.Code != domain.ErrCodeInputMissing {
		t.Fatalf("期望 input_missing，实际 %v", err)
	}
}

func TestExecute_MissingCatalog_NoKeyAndContinues(t *testing.T) {
	f := newFixture(t)
	f.catalog(t, domain.CategoryPrimary, "PCSA00001\tUS\tGame A\thttp://x/a.pkg\tABC123\tPCSA00001_00")
	f.pkg(t, "Game A (USA)", "PCSA00001_00.pkg")
	f.pkg(t, "Game A (USA)", "PCSA00001_01.pkg")

	inst := &stubInstaller{}
	rr, err := Execute(context.Background(), f.eff(), inst, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if len(rr.Items) != 2 {
		t.Fatalf("期望 2 个 item，实际 %d", len(rr.Items))
	}
	if rr.Items[0].Outcome != domain.OutcomeInstalled {
		t.Fatalf("游戏本体应安装成功：%+v", rr.Items[0])
	}
	dlc := rr.Items[1]
	if dlc.Outcome != domain.OutcomeNoKey || dlc.ErrorCode != domain.ErrCodeNoKey {
		t.Fatalf("DLC 表缺失时应为 no_key：%+v", dlc)
	}
	if len(rr.Stats.Addon.NoKey) != 1 {
		t.Fatalf("no_key 应归到 addon：%+v", rr.Stats.Addon)
	}

	absent := 0
	for _, c := range rr.Catalogs {
		if c.Absent {
			absent++
		}
	}
	if absent != 2 {
		t.Fatalf("期望 2 个分类 absent，实际 %d：%+v", absent, rr.Catalogs)
	}
	if len(inst.calls) != 1 {
		t.Fatalf("缺 key 的包不应调用安装：calls=%d", len(inst.calls))
	}
}

func TestExecute_InstallFailureDoesNotStopRun(t *testing.T) {
	f := newFixture(t)
	f.catalog(t, domain.CategoryPrimary,
		"A\tUS\tA\thttp://x/a.pkg\tK1\tPCSA00001_00",
		"B\tUS\tB\thttp://x/b.pkg\tK2\tPCSA00002_00",
	)
	f.pkg(t, "A (USA)", "PCSA00001_00.pkg")
	f.pkg(t, "B (USA)", "PCSA00002_00.pkg")

	inst := &stubInstaller{res: func(req installer.Request) installer.Result {
		if req.ZRIF == "K1" {
			return installer.Result{Outcome: domain.OutcomeFailed, ExitCode: 0, ErrorCode: domain.ErrCodeStderrError, ErrorMsg: "Error: disk full"}
		}
		return installer.Result{Outcome: domain.OutcomeInstalled, Deleted: true}
	}}
	rr, err := Execute(context.Background(), f.eff(), inst, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Failed != 1 || rr.Summary.Installed != 1 || rr.OK() {
		t.Fatalf("summary 不符合预期：%+v", rr.Summary)
	}
	if rr.Items[0].ErrorCode != domain.ErrCodeStderrError || rr.Items[0].Deleted {
		t.Fatalf("失败项不应被删除：%+v", rr.Items[0])
	}
}

func TestExecute_PanicInOneItemIsContained(t *testing.T) {
	f := newFixture(t)
	f.catalog(t, domain.CategoryPrimary,
		"A\tUS\tA\thttp://x/a.pkg\tK1\tPCSA00001_00",
		"B\tUS\tB\thttp://x/b.pkg\tK2\tPCSA00002_00",
	)
	f.pkg(t, "A (USA)", "PCSA00001_00.pkg")
	f.pkg(t, "B (USA)", "PCSA00002_00.pkg")

	inst := &stubInstaller{res: func(req installer.Request) installer.Result {
		if req.ZRIF == "K1" {
			panic("boom")
		}
		return installer.Result{Outcome: domain.OutcomeInstalled, Deleted: true}
	}}
	rr, err := Execute(context.Background(), f.eff(), inst, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Items[0].ErrorCode != domain.ErrCodeInternal {
		t.Fatalf("panic 应收敛为 internal：%+v", rr.Items[0])
	}
	if rr.Items[1].Outcome != domain.OutcomeInstalled {
		t.Fatalf("panic 之后应继续处理下一个包：%+v", rr.Items[1])
	}
}

func TestExecute_DryRun_PlannedWithoutInstall(t *testing.T) {
	f := newFixture(t)
	f.catalog(t, domain.CategoryPrimary, "A\tUS\tA\thttp://x/a.pkg\tK1\tPCSA00001_00")
	abs := f.pkg(t, "A (USA)", "PCSA00001_00.pkg")

	eff := f.eff()
	eff.DryRun = true
	inst := &stubInstaller{}
	rr, err := Execute(context.Background(), eff, inst, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(inst.calls) != 0 {
		t.Fatalf("dry-run 不应调用安装")
	}
	if rr.Items[0].Outcome != domain.OutcomePlanned || rr.Summary.Planned != 1 {
		t.Fatalf("dry-run 应得到 planned：%+v", rr.Items[0])
	}
	if _, err := os.Stat(abs); err != nil {
		t.Fatalf("dry-run 不应删除源文件：%v", err)
	}
}

func TestExecute_CancelStopsBeforeNextItem(t *testing.T) {
	f := newFixture(t)
	f.catalog(t, domain.CategoryPrimary,
		"A\tUS\tA\thttp://x/a.pkg\tK1\tPCSA00001_00",
		"B\tUS\tB\thttp://x/b.pkg\tK2\tPCSA00002_00",
		"C\tUS\tC\thttp://x/c.pkg\tK3\tPCSA00003_00",
	)
	f.pkg(t, "A (USA)", "PCSA00001_00.pkg")
	f.pkg(t, "B (USA)", "PCSA00002_00.pkg")
	f.pkg(t, "C (USA)", "PCSA00003_00.pkg")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inst := &stubInstaller{onCall: cancel}

	rr, err := Execute(ctx, f.eff(), inst, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(inst.calls) != 1 {
		t.Fatalf("取消后不应再启动安装：calls=%d", len(inst.calls))
	}
	if !rr.Interrupted || len(rr.Items) != 3 {
		t.Fatalf("期望 interrupted 且 3 个 item：interrupted=%v items=%d", rr.Interrupted, len(rr.Items))
	}
	for _, it := range rr.Items[1:] {
		if it.ErrorCode != domain.ErrCodeInterrupted {
			t.Fatalf("剩余包应记为 interrupted：%+v", it)
		}
	}
}

func mustWrite(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
