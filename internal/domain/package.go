package domain

// PackageItem 描述一次扫描得到的 .pkg 文件（扫描阶段只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - 创建后不可变；每个 item 只被安装流程消费一次
type PackageItem struct {
	AbsPath  string
	RelPath  string
	FileName string // "PCSA00001_00.pkg"

	// ContentID 是去掉扩展名后的文件名；可能是任意字符串（不保证合法）。
	ContentID string
	Guessed   Category

	// DisplayName 来自父目录名，去掉 "(USA)" 这类括号后缀。
	DisplayName string
}
