package run

import (
	"time"

	"github.com/John-Robertt/V3KPI/internal/config"
	"github.com/John-Robertt/V3KPI/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出；如何展示（日志、TTY 进度）由 CLI 决定。
// - 事件只来自调用 Execute 的那个 goroutine，按发生顺序调用。
type Observer interface {
	// OnStart 在 Execute 开始时调用（前置检查之前）。
	OnStart(eff config.EffectiveConfig)
	// OnCatalog 在每个分类的对照表加载完成后调用（缺失/损坏时 st.Absent=true）。
	OnCatalog(st domain.CatalogStatus)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemStart 在某个包开始处理前调用（idx 从 1 开始）。
	OnItemStart(idx, total int, it domain.PackageItem)
	// OnItemDone 在某个包处理完成时调用（用于每条结果的一行输出）。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig) {}
func (nopObserver) OnCatalog(domain.CatalogStatus) {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnItemStart(int, int, domain.PackageItem) {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration) {}
