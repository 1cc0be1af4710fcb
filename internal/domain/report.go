package domain

import (
	"time"
)

const (
	OutcomeInstalled = "installed"
	OutcomeFailed    = "failed"
	OutcomeNoKey     = "no_key"
	// OutcomePlanned 只出现在 dry-run：找到了 zRIF，但没有调用模拟器。
	OutcomePlanned = "planned"
)

const (
	ErrCodeNoKey          = "no_key"
	ErrCodeNotExecutable  = "not_executable"
	ErrCodeSpawnFailed    = "spawn_failed"
	ErrCodeTimeout        = "timeout"
	ErrCodeExitStatus     = "exit_status"
	ErrCodeStdoutExcept   = "stdout_exception"
	ErrCodeStderrError    = "stderr_error"
	ErrCodeDeleteFailed   = "delete_failed"
	ErrCodeInterrupted    = "interrupted"
	ErrCodeInternal       = "internal"
	ErrCodeInputMissing   = "input_missing"
	ErrCodeInputUnread    = "input_unreadable"
	ErrCodeExeMissing     = "executable_missing"
	ErrCodeConfigInvalid  = "config_invalid"
	ErrCodeConfigNoPath   = "config_missing_path"
	ErrCodeConfigNoExe    = "config_missing_exe"
	ErrCodeCatalogMissing = "catalog_missing"
	ErrCodeCatalogInvalid = "catalog_invalid"
)

// RunReport 是对外稳定输出（--report 落盘 / summary 命令读取）的结构。
type RunReport struct {
	RunID      string `json:"run_id"`
	Path       string `json:"path"`
	Executable string `json:"executable"`
	DryRun     bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Fatal 非空表示运行在处理任何 item 之前就被终止。
	Fatal       *FatalInfo `json:"fatal,omitempty"`
	Interrupted bool       `json:"interrupted"`

	Catalogs []CatalogStatus `json:"catalogs"`
	Summary  ReportSummary   `json:"summary"`
	Stats    RunStatistics   `json:"stats"`
	Items    []ItemResult    `json:"items"`
}

type FatalInfo struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// CatalogStatus 记录某分类的 TSV 是否可用（缺失/损坏即该分类降级为 absent）。
type CatalogStatus struct {
	Category Category `json:"category"`
	Path     string   `json:"path"`
	Entries  int      `json:"entries"`
	Absent   bool     `json:"absent"`
	Error    string   `json:"error,omitempty"`
}

type ReportSummary struct {
	Total     int `json:"total"`
	Installed int `json:"installed"`
	Failed    int `json:"failed"`
	NoKey     int `json:"no_key"`
	Deleted   int `json:"deleted"`
	Planned   int `json:"planned"`
}

type ItemResult struct {
	Path        string `json:"path"`
	ContentID   string `json:"content_id"`
	DisplayName string `json:"display_name"`

	Guessed    Category `json:"guessed_category"`
	Resolved   Category `json:"resolved_category"`
	ResolvedBy string   `json:"resolved_by"`

	Outcome  string `json:"outcome"`
	Deleted  bool   `json:"deleted"`
	ExitCode int    `json:"exit_code"`

	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) summary 由 items 计算得出（items 保持处理顺序，不排序）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	if r.Catalogs == nil {
		r.Catalogs = []CatalogStatus{}
	}

	s := ReportSummary{Total: len(r.Items)}
	for _, it := range r.Items {
		switch it.Outcome {
		case OutcomeInstalled:
			s.Installed++
			if it.Deleted {
				s.Deleted++
			}
		case OutcomeFailed:
			s.Failed++
		case OutcomeNoKey:
			s.NoKey++
		case OutcomePlanned:
			s.Planned++
		}
	}
	r.Summary = s
}

// OK 表示本次运行无需人工跟进：没有致命错误、没有失败、也没有缺 key 的包。
func (r RunReport) OK() bool {
	return r.Fatal == nil && !r.Interrupted && r.Summary.Failed == 0 && r.Summary.NoKey == 0
}
