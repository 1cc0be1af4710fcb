package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/John-Robertt/V3KPI/internal/domain"
)

const (
	// DefaultTimeout 是单个包的硬超时（墙钟时间）。
	DefaultTimeout = 300 * time.Second
	// DefaultWaitDelay 限制超时 kill 之后等待输出管道关闭的时间（防止孙进程占住管道）。
	DefaultWaitDelay = 5 * time.Second
)

// 通过可替换的函数指针，让测试能稳定模拟删除/授权失败。
var (
	removeFunc = os.Remove
	chmodFunc  = os.Chmod
)

// Request 描述一次安装调用。
type Request struct {
	Executable  string
	PackagePath string
	ZRIF        string
	Category    domain.Category
}

// Result 是一次安装调用的结果。
//
// 约束：Deleted 只可能在 Outcome==installed 时为 true。
type Result struct {
	Outcome string // domain.OutcomeInstalled / domain.OutcomeFailed
	Deleted bool

	// ExitCode 为 -1 表示进程未启动或被 kill。
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration

	ErrorCode string
	ErrorMsg  string

	// DeleteErr 非空表示安装成功但删除源文件失败（不影响 Outcome）。
	DeleteErr error
}

// Invoker 调用外部模拟器安装单个包。零值可用（使用默认超时）。
//
// 约束：
// - 每个包只尝试一次，不重试
// - 删除源文件必须发生在成功判定之后（绝不先删后判）
type Invoker struct {
	Timeout   time.Duration
	WaitDelay time.Duration
	// Keep=true 时成功后保留源 .pkg。
	Keep bool
}

// Args 返回固定形态的命令行参数。
func Args(packagePath, zrif string) []string {
	return []string{"--pkg", packagePath, "--zrif", zrif}
}

// Install 执行一次安装，并严格按“退出码 + 输出嗅探”判定成败。
func (iv Invoker) Install(ctx context.Context, req Request) Result {
	res := Result{Outcome: domain.OutcomeFailed, ExitCode: -1}

	if err := EnsureExecutable(req.Executable); err != nil {
		res.ErrorCode = domain.ErrCodeNotExecutable
		res.ErrorMsg = fmt.Sprintf("无法为模拟器授予执行权限：%v", err)
		return res
	}

	timeout := iv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	waitDelay := iv.WaitDelay
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, req.Executable, Args(req.PackagePath, req.ZRIF)...)
	cmd.Env = normalizedEnv(os.Environ())
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(started)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if cctx.Err() != nil {
		// 超时或上层取消：进程已被 kill，不做任何删除。
		res.ErrorCode = domain.ErrCodeTimeout
		if ctx.Err() != nil {
			res.ErrorCode = domain.ErrCodeInterrupted
			res.ErrorMsg = fmt.Sprintf("安装被中断：%v", ctx.Err())
			return res
		}
		res.ErrorMsg = fmt.Sprintf("模拟器在 %s 内未退出，已强制终止", timeout)
		return res
	}

	if err != nil {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			res.ErrorCode = domain.ErrCodeSpawnFailed
			res.ErrorMsg = fmt.Sprintf("启动模拟器失败：%v", err)
			return res
		}
		res.ExitCode = ee.ExitCode()
	} else {
		res.ExitCode = 0
	}

	if code, msg, ok := Judge(res.ExitCode, res.Stdout, res.Stderr); !ok {
		res.ErrorCode = code
		res.ErrorMsg = msg
		return res
	}

	res.Outcome = domain.OutcomeInstalled
	if iv.Keep {
		return res
	}
	if err := removeFunc(req.PackagePath); err != nil {
		res.DeleteErr = err
		res.ErrorCode = domain.ErrCodeDeleteFailed
		res.ErrorMsg = fmt.Sprintf("安装成功，但删除源文件失败：%v", err)
		return res
	}
	res.Deleted = true
	return res
}

// Judge 判定一次正常退出是否算成功：退出码为 0，且 stdout 不含 "exception"、
// stderr 不含 "error"（均不区分大小写）。
//
// 已知局限：外部工具在无害上下文中打印 "error" 也会被判为失败。
func Judge(exitCode int, stdout, stderr string) (code, msg string, ok bool) {
	if exitCode != 0 {
		return domain.ErrCodeExitStatus, fmt.Sprintf("模拟器退出码非 0：%d%s", exitCode, tailHint(stderr)), false
	}
	if line, found := findLine(stdout, "exception"); found {
		return domain.ErrCodeStdoutExcept, fmt.Sprintf("模拟器 stdout 含 exception：%s", line), false
	}
	if line, found := findLine(stderr, "error"); found {
		return domain.ErrCodeStderrError, fmt.Sprintf("模拟器 stderr 含 error：%s", line), false
	}
	return "", "", true
}

// EnsureExecutable 确保 path 有执行权限；没有则尝试 chmod +x。
// Windows 没有执行位概念，只检查文件存在。
func EnsureExecutable(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%q 是目录", path)
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	mode := fi.Mode().Perm()
	if mode&0o111 != 0 {
		return nil
	}
	return chmodFunc(path, mode|0o111)
}

// normalizedEnv 去掉继承的 locale 变量并固定为 C，保证输出嗅探不受本地化影响。
func normalizedEnv(environ []string) []string {
	out := make([]string, 0, len(environ)+2)
	for _, kv := range environ {
		k, _, _ := strings.Cut(kv, "=")
		if k == "LANG" || k == "LANGUAGE" || strings.HasPrefix(k, "LC_") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, "LC_ALL=C", "LANG=C")
}

func findLine(text, needle string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			return truncate(strings.TrimSpace(line), 200), true
		}
	}
	return "", false
}

func tailHint(stderr string) string {
	s := strings.TrimSpace(stderr)
	if s == "" {
		return ""
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return "（stderr: " + truncate(s, 160) + "）"
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
