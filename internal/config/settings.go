package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/John-Robertt/V3KPI/internal/infra/fsx"
)

// AppName 决定默认配置目录名（<UserConfigDir>/v3kpi）。
const AppName = "v3kpi"

// SettingsFileName 是设置文件名。
const SettingsFileName = "settings.json"

// EnvPrefix 是环境变量前缀，例如 V3KPI_PKG_PATH 覆盖 pkg_path。
const EnvPrefix = "V3KPI"

// 设置文件中的 key（外部契约：pkg_path / vita3k_exe 与旧版 config.json 兼容）。
const (
	KeyPkgPath    = "pkg_path"
	KeyVita3KExe  = "vita3k_exe"
	KeyTSVDir     = "tsv_dir"
	KeyTimeoutSec = "timeout_sec"
)

// Settings 对应 settings.json（扁平 key-value）。
type Settings struct {
	PkgPath    string `json:"pkg_path"`
	Vita3KExe  string `json:"vita3k_exe"`
	TSVDir     string `json:"tsv_dir,omitempty"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// DefaultSettingsPath 返回 <UserConfigDir>/v3kpi/settings.json。
func DefaultSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName, SettingsFileName), nil
}

// DefaultTSVDir 返回设置文件旁边的 tsv/ 目录。
func DefaultTSVDir(settingsPath string) string {
	return filepath.Join(filepath.Dir(settingsPath), "tsv")
}

// LoadSettings 读取设置文件，并应用 V3KPI_* 环境变量覆盖。
//
// 文件不存在 => 空默认值，不报错；文件损坏 => 空默认值 + 返回 *Error 作为 warning。
// 两种情况下返回的 Settings 都可直接使用（环境变量覆盖依然生效）。
func LoadSettings(path string) (Settings, error) {
	return loadSettings(path, true)
}

// ReadSettingsFile 与 LoadSettings 相同，但只看文件本身（用于修改后回写，避免把环境变量固化进文件）。
func ReadSettingsFile(path string) (Settings, error) {
	return loadSettings(path, false)
}

func loadSettings(path string, env bool) (Settings, error) {
	v := viper.New()
	v.SetConfigType("json")
	if env {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	v.SetDefault(KeyPkgPath, "")
	v.SetDefault(KeyVita3KExe, "")
	v.SetDefault(KeyTSVDir, "")
	v.SetDefault(KeyTimeoutSec, 0)

	var warn error
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				warn = &Error{Code: ErrCodeInvalid, Path: path, Err: err}
			}
		} else if !os.IsNotExist(err) {
			warn = &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
	}

	s := Settings{
		PkgPath:    strings.TrimSpace(v.GetString(KeyPkgPath)),
		Vita3KExe:  strings.TrimSpace(v.GetString(KeyVita3KExe)),
		TSVDir:     strings.TrimSpace(v.GetString(KeyTSVDir)),
		TimeoutSec: v.GetInt(KeyTimeoutSec),
	}
	if s.TimeoutSec < 0 {
		s.TimeoutSec = 0
	}
	return s, warn
}

// SaveSettings 原子写入设置文件（覆盖）。
func SaveSettings(path string, s Settings) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}
