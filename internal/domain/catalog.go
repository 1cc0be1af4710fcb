package domain

// CatalogEntry 是 TSV 查找表中的一行（只保留核心流程需要的三列）。
//
// 约束：
// - ContentID 在同一分类的表内唯一；跨分类允许冲突（接受的歧义）
// - DirectLink 只作为兜底匹配键，不保证唯一
// - ZRIF 不透明；空串表示“没有可用 key”
type CatalogEntry struct {
	ContentID  string
	DirectLink string
	ZRIF       string
}
