//go:build unix

package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/V3KPI/internal/domain"
)

// fakeEmulator 在 dir 下写一个 sh 脚本充当模拟器，并返回其路径。
func fakeEmulator(t *testing.T, dir, body string, perm os.FileMode) string {
	t.Helper()
	p := filepath.Join(dir, "Vita3K")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), perm); err != nil {
		t.Fatalf("写入假模拟器失败：%v", err)
	}
	return p
}

func touchPkg(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "in", "PCSA00001_00.pkg")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(p, []byte("pkg"), 0o644); err != nil {
		t.Fatalf("写入 pkg 失败：%v", err)
	}
	return p
}

func TestInstall_SuccessDeletesPackageAndPassesArgs(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	exe := fakeEmulator(t, dir, `printf '%s\n' "$@" > "`+argsFile+`"
echo "LC_ALL=$LC_ALL"
echo "install ok"`, 0o755)
	pkg := touchPkg(t, dir)

	res := Invoker{}.Install(context.Background(), Request{Executable: exe, PackagePath: pkg, ZRIF: "ABC123"})
	if res.Outcome != domain.OutcomeInstalled || !res.Deleted {
		t.Fatalf("期望 installed+deleted：%+v", res)
	}
	if _, err := os.Stat(pkg); !os.IsNotExist(err) {
		t.Fatalf("成功后应删除源文件，Stat err=%v", err)
	}

	b, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("读取参数记录失败：%v", err)
	}
	want := "--pkg\n" + pkg + "\n--zrif\nABC123\n"
	if string(b) != want {
		t.Fatalf("参数不符合预期：got=%q want=%q", string(b), want)
	}
	if !strings.Contains(res.Stdout, "LC_ALL=C") {
		t.Fatalf("应设置 LC_ALL=C：stdout=%q", res.Stdout)
	}
}

func TestInstall_ExitZeroButStderrError_NoDelete(t *testing.T) {
	dir := t.TempDir()
	exe := fakeEmulator(t, dir, `echo "Error: disk full" >&2
exit 0`, 0o755)
	pkg := touchPkg(t, dir)

	res := Invoker{}.Install(context.Background(), Request{Executable: exe, PackagePath: pkg, ZRIF: "K"})
	if res.Outcome != domain.OutcomeFailed || res.Deleted {
		t.Fatalf("stderr 含 error 时应失败且不删除：%+v", res)
	}
	if res.ErrorCode != domain.ErrCodeStderrError || res.ExitCode != 0 {
		t.Fatalf("error_code/exit 不符合预期：%+v", res)
	}
	if _, err := os.Stat(pkg); err != nil {
		t.Fatalf("失败时不应删除源文件：%v", err)
	}
}

func TestInstall_StdoutException_NoDelete(t *testing.T) {
	dir := t.TempDir()
	exe := fakeEmulator(t, dir, `echo "Unhandled EXCEPTION in loader"`, 0o755)
	pkg := touchPkg(t, dir)

	res := Invoker{}.Install(context.Background(), Request{Executable: exe, PackagePath: pkg, ZRIF: "K"})
	if res.Outcome != domain.OutcomeFailed || res.ErrorCode != domain.ErrCodeStdoutExcept {
		t.Fatalf("stdout 含 exception 时应失败：%+v", res)
	}
	if _, err := os.Stat(pkg); err != nil {
		t.Fatalf("失败时不应删除源文件：%v", err)
	}
}

func TestInstall_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	exe := fakeEmulator(t, dir, `echo "bad zrif" >&2
exit 3`, 0o755)
	pkg := touchPkg(t, dir)

	res := Invoker{}.Install(context.Background(), Request{Executable: exe, PackagePath: pkg, ZRIF: "K"})
	if res.Outcome != domain.OutcomeFailed || res.ExitCode != 3 || res.ErrorCode != domain.ErrCodeExitStatus {
		t.Fatalf("非 0 退出码应失败：%+v", res)
	}
	if !strings.Contains(res.ErrorMsg, "bad zrif") {
		t.Fatalf("error_msg 应带上 stderr 尾行：%q", res.ErrorMsg)
	}
}

func TestInstall_TimeoutKillsChild(t *testing.T) {
	dir := t.TempDir()
	exe := fakeEmulator(t, dir, `exec sleep 30`, 0o755)
	pkg := touchPkg(t, dir)

	started := time.Now()
	res := Invoker{Timeout: 300 * time.Millisecond, WaitDelay: time.Second}.Install(
		context.Background(), Request{Executable: exe, PackagePath: pkg, ZRIF: "K"})
	if elapsed := time.Since(started); elapsed > 10*time.Second {
		t.Fatalf("超时后应尽快返回，实际耗时 %s", elapsed)
	}
	if res.Outcome != domain.OutcomeFailed || res.ErrorCode != domain.ErrCodeTimeout {
		t.Fatalf("超时应失败：%+v", res)
	}
	if _, err := os.Stat(pkg); err != nil {
		t.Fatalf("超时不应删除源文件：%v", err)
	}
}

func TestInstall_GrantsExecutePermission(t *testing.T) {
	dir := t.TempDir()
	exe := fakeEmulator(t, dir, `exit 0`, 0o644)
	pkg := touchPkg(t, dir)

	res := Invoker{Keep: true}.Install(context.Background(), Request{Executable: exe, PackagePath: pkg, ZRIF: "K"})
	if res.Outcome != domain.OutcomeInstalled {
		t.Fatalf("应自动 chmod +x 后安装成功：%+v", res)
	}
	if res.Deleted {
		t.Fatalf("Keep=true 时不应删除")
	}
	fi, err := os.Stat(exe)
	if err != nil {
		t.Fatalf("Stat 失败：%v", err)
	}
	if fi.Mode().Perm()&0o100 == 0 {
		t.Fatalf("执行位未设置：%v", fi.Mode())
	}
}

func TestInstall_ChmodFailure_NoSpawn(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "spawned")
	exe := fakeEmulator(t, dir, `touch "`+marker+`"`, 0o644)
	pkg := touchPkg(t, dir)

	old := chmodFunc
	chmodFunc = func(string, os.FileMode) error { return os.ErrPermission }
	defer func() { chmodFunc = old }()

	res := Invoker{}.Install(context.Background(), Request{Executable: exe, PackagePath: pkg, ZRIF: "K"})
	if res.Outcome != domain.OutcomeFailed || res.ErrorCode != domain.ErrCodeNotExecutable {
		t.Fatalf("授权失败应直接失败：%+v", res)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("授权失败时不应启动进程")
	}
}

func TestInstall_DeleteFailureKeepsInstalled(t *testing.T) {
	dir := t.TempDir()
	exe := fakeEmulator(t, dir, `exit 0`, 0o755)
	pkg := touchPkg(t, dir)

	old := removeFunc
	removeFunc = func(string) error { return errors.New("busy") }
	defer func() { removeFunc = old }()

	res := Invoker{}.Install(context.Background(), Request{Executable: exe, PackagePath: pkg, ZRIF: "K"})
	if res.Outcome != domain.OutcomeInstalled || res.Deleted {
		t.Fatalf("删除失败不应降级为 failed，且 Deleted=false：%+v", res)
	}
	if res.DeleteErr == nil || res.ErrorCode != domain.ErrCodeDeleteFailed {
		t.Fatalf("应记录删除失败：%+v", res)
	}
}

func TestInstall_MissingExecutable(t *testing.T) {
	dir := t.TempDir()
	pkg := touchPkg(t, dir)

	res := Invoker{}.Install(context.Background(), Request{Executable: filepath.Join(dir, "nope"), PackagePath: pkg, ZRIF: "K"})
	if res.Outcome != domain.OutcomeFailed || res.ExitCode != -1 {
		t.Fatalf("缺失的可执行文件应失败：%+v", res)
	}
}
