package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/V3KPI/internal/domain"
	"github.com/John-Robertt/V3KPI/internal/installer"
)

const (
	// ErrCodeInvalid 表示设置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingPath 表示 CLI 与设置文件都没有给出 pkg 目录。
	ErrCodeMissingPath = domain.ErrCodeConfigNoPath
	// ErrCodeMissingExe 表示 CLI 与设置文件都没有给出模拟器路径。
	ErrCodeMissingExe = domain.ErrCodeConfigNoExe
)

const (
	MinTimeout = time.Second
	MaxTimeout = 24 * time.Hour
)

// CLIArgs 是 CLI 暴露的入口参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --timeout 必须能覆盖设置文件中的 timeout_sec。
type CLIArgs struct {
	// SettingsPath 为空时使用 DefaultSettingsPath()。
	SettingsPath string

	PkgPath    string
	Executable string
	TSVDir     string

	Timeout    time.Duration
	TimeoutSet bool

	DryRun bool
	Keep   bool
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	SettingsPath string

	PkgPath    string
	Executable string
	TSVDir     string
	Timeout    time.Duration

	DryRun bool
	Keep   bool

	// Warnings 是不致命的配置问题（例如设置文件损坏被忽略）。
	Warnings []string
}

// Settings 返回需要回写到设置文件的部分（用户确认运行时保存）。
func (e EffectiveConfig) Settings() Settings {
	return Settings{
		PkgPath:    e.PkgPath,
		Vita3KExe:  e.Executable,
		TSVDir:     e.TSVDir,
		TimeoutSec: int(e.Timeout / time.Second),
	}
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：未指定 pkg 目录（命令行参数或设置文件 %q 的 pkg_path）", e.Code, e.Path)
	case ErrCodeMissingExe:
		return fmt.Sprintf("%s：未指定 Vita3K 可执行文件（--exe 或设置文件 %q 的 vita3k_exe）", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：设置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：设置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取设置文件，然后与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：
// - pkg 目录 / 模拟器 / tsv 目录：CLI > 环境变量 > 设置文件 > 默认（tsv 目录默认在设置文件旁）
// - timeout：CLI --timeout > 设置文件 timeout_sec > 300s
// - dry-run / keep：仅由 CLI 控制
//
// 设置文件损坏不致命：记入 Warnings 后按空设置继续。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	settingsPath := strings.TrimSpace(cli.SettingsPath)
	if settingsPath == "" {
		settingsPath, err = DefaultSettingsPath()
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: "", Err: err}
		}
	}
	settingsPath = absCleanFrom(cwdAbs, settingsPath)

	eff := EffectiveConfig{
		SettingsPath: settingsPath,
		DryRun:       cli.DryRun,
		Keep:         cli.Keep,
	}

	fs, warn := LoadSettings(settingsPath)
	if warn != nil {
		eff.Warnings = append(eff.Warnings, warn.Error()+"（已忽略，按空设置继续）")
	}

	eff.PkgPath = absCleanFrom(cwdAbs, pick(cli.PkgPath, fs.PkgPath))
	if eff.PkgPath == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: settingsPath}
	}
	eff.Executable = absCleanFrom(cwdAbs, pick(cli.Executable, fs.Vita3KExe))
	if eff.Executable == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingExe, Path: settingsPath}
	}
	eff.TSVDir = absCleanFrom(cwdAbs, pick(cli.TSVDir, fs.TSVDir))
	if eff.TSVDir == "" {
		eff.TSVDir = DefaultTSVDir(settingsPath)
	}

	timeout := installer.DefaultTimeout
	if cli.TimeoutSet {
		timeout = cli.Timeout
	} else if fs.TimeoutSec > 0 {
		timeout = time.Duration(fs.TimeoutSec) * time.Second
	}
	if timeout < MinTimeout || timeout > MaxTimeout {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: settingsPath, Err: fmt.Errorf("timeout 必须在 [%s, %s] 之间，实际是 %s", MinTimeout, MaxTimeout, timeout)}
	}
	eff.Timeout = timeout

	return eff, nil
}

func pick(cli, file string) string {
	if s := strings.TrimSpace(cli); s != "" {
		return s
	}
	return strings.TrimSpace(file)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
