package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，兼容纯数字（毫秒）与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "300ms"、"2s" 或纯数字毫秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

func parseDuration(text string) (Duration, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Duration(0), nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return Duration(parsed), nil
	}
	if millis, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Duration(time.Duration(millis) * time.Millisecond), nil
	}
	return 0, fmt.Errorf("invalid duration value: %s", raw)
}

// LogConfig 控制日志级别、格式与落盘策略。
type LogConfig struct {
	LogLevel      string `mapstructure:"LogLevel"`
	LogFormat     string `mapstructure:"LogFormat"`
	LogDir        string `mapstructure:"LogDir"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	NoColor       bool   `mapstructure:"NoColor"`
	NoAccessLog   bool   `mapstructure:"NoAccessLog"`
}

// Config 是配置文件、环境变量与 CLI 标志合并后的整体结构。
type Config struct {
	ServePath      string   `mapstructure:"ServePath"`
	Host           string   `mapstructure:"Host"`
	Port           int      `mapstructure:"Port"`
	Gzip           bool     `mapstructure:"Gzip"`
	Html5          bool     `mapstructure:"Html5"`
	Index          string   `mapstructure:"Index"`
	Delay          Duration `mapstructure:"Delay"`
	BaseHref       string   `mapstructure:"BaseHref"`
	CacheInMemory  bool     `mapstructure:"CacheInMemory"`
	RegexImmutable string   `mapstructure:"RegexImmutable"`
	MaxFileSize    int64    `mapstructure:"MaxFileSize"`
	Watch          bool     `mapstructure:"Watch"`
	WatchDebounce  Duration `mapstructure:"WatchDebounce"`
	Diagnostics    bool     `mapstructure:"Diagnostics"`
	ReloadToken    string   `mapstructure:"ReloadToken"`
	PidDir         string   `mapstructure:"PidDir"`
	Signal         string   `mapstructure:"Signal"`

	Log LogConfig `mapstructure:",squash"`

	// 以下字段由 Load 在校验通过后派生。
	RootDir   string         `mapstructure:"-"`
	IndexPath string         `mapstructure:"-"`
	Immutable *regexp.Regexp `mapstructure:"-"`
}

// SignalOnly 表示本次运行只向已有进程发送信号，不启动服务。
func (c *Config) SignalOnly() bool {
	return strings.TrimSpace(c.Signal) != ""
}

// Mode 返回 `memory` 或 `filesystem`，供日志与诊断接口使用。
func (c *Config) Mode() string {
	if c.CacheInMemory {
		return "memory"
	}
	return "filesystem"
}

// ListenAddr 返回 host:port 形式的监听地址。
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
