package classify

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/V3KPI/internal/domain"
)

// 形如 "_01"、"_99" 的两位数字后缀（DLC 的常见命名）。
var addonSuffixRE = regexp.MustCompile(`_[0-9]{2}$`)

// 目录名中第一个 "(" 之前的部分，例如 "Access Denied (USA)" => "Access Denied"。
var displayNameRE = regexp.MustCompile(`^(.*?)\s*\(`)

// Classify 根据 Content ID 猜测分类。
//
// 按优先级（命中即返回）：
// 1) 以 "_00" 结尾 => primary
// 2) 以 "_NN" 结尾（NN 为两位数字且不是 00）=> addon
// 3) 含 "DLC"（不区分大小写）=> addon
// 4) 含 "THEME"（不区分大小写）=> theme
// 5) 其它（含空串）=> primary
//
// 这只是猜测：resolve 包会通过跨分类回退弥补误判。
func Classify(contentID string) domain.Category {
	if strings.HasSuffix(contentID, "_00") {
		return domain.CategoryPrimary
	}
	if addonSuffixRE.MatchString(contentID) {
		return domain.CategoryAddon
	}
	upper := strings.ToUpper(contentID)
	if strings.Contains(upper, "DLC") {
		return domain.CategoryAddon
	}
	if strings.Contains(upper, "THEME") {
		return domain.CategoryTheme
	}
	return domain.CategoryPrimary
}

// ContentID 从文件名推导 Content ID：去掉扩展名，不做更深的模式解析。
func ContentID(fileName string) string {
	name := filepath.Base(fileName)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// DisplayName 把父目录名变为用户可读的名称（去掉地区等括号后缀）。
// 目录名为空时回退到 fallback（通常是 Content ID）。
func DisplayName(dirName, fallback string) string {
	dirName = strings.TrimSpace(dirName)
	if m := displayNameRE.FindStringSubmatch(dirName); m != nil {
		if s := strings.TrimSpace(m[1]); s != "" {
			return s
		}
	}
	if dirName == "" || dirName == "." || dirName == string(filepath.Separator) {
		return fallback
	}
	return dirName
}

// Item 为扫描得到的文件补齐 Content ID / 猜测分类 / 展示名。
func Item(p domain.PackageItem) domain.PackageItem {
	p.ContentID = ContentID(p.FileName)
	p.Guessed = Classify(p.ContentID)
	p.DisplayName = DisplayName(filepath.Base(filepath.Dir(p.AbsPath)), p.ContentID)
	return p
}
