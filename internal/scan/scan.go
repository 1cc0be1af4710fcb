package scan

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/V3KPI/internal/domain"
)

// PackageExt 是待安装包的扩展名（匹配时不区分大小写）。
const PackageExt = ".pkg"

// ScanPackages 递归扫描 root 下的 .pkg 文件。
//
// 规则：
// - 扩展名不区分大小写（.pkg / .PKG）
// - 输出保持发现顺序（WalkDir 按目录项字典序遍历），不再额外排序
// - 不可读的子目录跳过，不中断整次扫描；root 本身不可读则返回错误
//
// 注意：扫描阶段只看文件名，不读文件内容；派生字段由 classify.Item 补齐。
func ScanPackages(root string) ([]domain.PackageItem, error) {
	root = filepath.Clean(root)

	files := make([]domain.PackageItem, 0, 64)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if !strings.EqualFold(filepath.Ext(name), PackageExt) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		files = append(files, domain.PackageItem{
			AbsPath:  abs,
			RelPath:  rel,
			FileName: name,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
