package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量覆盖的前缀，例如 LIGHTSTATIC_PORT=9000。
const EnvPrefix = "LIGHTSTATIC"

// LoadOptions 描述一次配置加载的输入。
type LoadOptions struct {
	// ConfigPath 为空时不读取配置文件。
	ConfigPath string
	// Flags 为已解析的 CLI 标志集合，只有显式设置的标志才会覆盖其它来源。
	Flags *pflag.FlagSet
	// ServePath 来自 CLI 位置参数，非空时优先于其它来源。
	ServePath string
}

// Load 按“默认值 → 配置文件 → 环境变量 → CLI 标志”的优先级合成配置，并完成校验与派生字段计算。
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if opts.ConfigPath != "" {
		v.SetConfigFile(opts.ConfigPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}
	if opts.ServePath != "" {
		v.Set("ServePath", opts.ServePath)
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.derive(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ServePath", ".")
	v.SetDefault("Host", "0.0.0.0")
	v.SetDefault("Port", 8080)
	v.SetDefault("Gzip", false)
	v.SetDefault("Html5", false)
	v.SetDefault("Index", "index.html")
	v.SetDefault("Delay", "0")
	v.SetDefault("BaseHref", "")
	v.SetDefault("CacheInMemory", false)
	v.SetDefault("RegexImmutable", "")
	v.SetDefault("MaxFileSize", 0)
	v.SetDefault("Watch", false)
	v.SetDefault("WatchDebounce", "300ms")
	v.SetDefault("Diagnostics", false)
	v.SetDefault("ReloadToken", "")
	v.SetDefault("PidDir", "")
	v.SetDefault("Signal", "")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "text")
	v.SetDefault("LogDir", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("NoColor", false)
	v.SetDefault("NoAccessLog", false)
}

func applyDefaults(c *Config) {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if strings.TrimSpace(c.Index) == "" {
		c.Index = "index.html"
	}
	if c.WatchDebounce.DurationValue() <= 0 {
		c.WatchDebounce = Duration(300 * time.Millisecond)
	}
	c.Log.LogFormat = strings.ToLower(strings.TrimSpace(c.Log.LogFormat))
	c.Signal = strings.ToLower(strings.TrimSpace(c.Signal))
	// 写入日志目录时关闭颜色，与终端输出区分。
	if c.Log.LogDir != "" {
		c.Log.NoColor = true
	}
}

// derive 计算根目录绝对路径、index 路径与 immutable 正则。
func (c *Config) derive() error {
	if c.SignalOnly() {
		return nil
	}

	root, err := filepath.Abs(c.ServePath)
	if err != nil {
		return fmt.Errorf("无法解析服务目录: %w", err)
	}
	c.RootDir = root

	if filepath.IsAbs(c.Index) {
		c.IndexPath = filepath.Clean(c.Index)
	} else {
		c.IndexPath = filepath.Join(root, c.Index)
	}

	if c.RegexImmutable != "" {
		re, err := regexp.Compile(c.RegexImmutable)
		if err != nil {
			return newFieldError("RegexImmutable", err.Error())
		}
		c.Immutable = re
	}
	return nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			parsed, err := parseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
			}
			return parsed, nil
		case int:
			return Duration(time.Duration(v) * time.Millisecond), nil
		case int64:
			return Duration(time.Duration(v) * time.Millisecond), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Millisecond))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
