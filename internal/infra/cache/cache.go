package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/V3KPI/internal/domain"
	"github.com/John-Robertt/V3KPI/internal/infra/fsx"
)

// Store 管理对照表目录（<tsv-dir>/PSV_GAMES.tsv 等）的读写。
//
// 约束：
// - catalog sync --dry-run：只允许读（ReadOnly=true）
// - 正常同步：允许写（ReadOnly=false），写入一律原子替换
type Store struct {
	Root     string // 对照表目录
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// CatalogPath 返回某分类对照表的绝对路径。
func (s Store) CatalogPath(cat domain.Category) (string, error) {
	if !cat.Valid() {
		return "", fmt.Errorf("非法分类：%d", int(cat))
	}
	return filepath.Join(s.Root, cat.FileName()), nil
}

// ReadCatalog 读取对照表原始内容；文件不存在时 ok=false 且 err=nil。
func (s Store) ReadCatalog(cat domain.Category) ([]byte, bool, error) {
	path, err := s.CatalogPath(cat)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// WriteCatalog 原子替换某分类的对照表。
func (s Store) WriteCatalog(cat domain.Category, b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	if !cat.Valid() {
		return fmt.Errorf("非法分类：%d", int(cat))
	}
	return fsx.WriteFileAtomicReplace(s.Root, cat.FileName(), b)
}
