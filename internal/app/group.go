package app

import (
	"github.com/John-Robertt/V3KPI/internal/classify"
	"github.com/John-Robertt/V3KPI/internal/domain"
)

// Bucket 是一个分类下待处理的包（保持发现顺序）。
type Bucket struct {
	Category domain.Category
	Items    []domain.PackageItem
}

// GroupByCategory 为扫描结果补齐派生字段，并按猜测分类分桶。
//
// - 桶顺序固定：primary -> addon -> theme（空桶也保留，便于上层打印）
// - 桶内顺序：保持 files 的发现顺序，不排序
func GroupByCategory(files []domain.PackageItem) []Bucket {
	buckets := make([]Bucket, domain.NumCategories)
	for i, c := range domain.Categories {
		buckets[i] = Bucket{Category: c, Items: make([]domain.PackageItem, 0, len(files))}
	}

	for _, f := range files {
		it := classify.Item(f)
		buckets[it.Guessed].Items = append(buckets[it.Guessed].Items, it)
	}
	return buckets
}

// Flatten 按桶顺序展开为单个处理序列。
func Flatten(buckets []Bucket) []domain.PackageItem {
	n := 0
	for _, b := range buckets {
		n += len(b.Items)
	}
	out := make([]domain.PackageItem, 0, n)
	for _, b := range buckets {
		out = append(out, b.Items...)
	}
	return out
}
