package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys 记录 CLI 标志名到配置键的映射，只有这些标志会绑定进 Viper。
var flagKeys = map[string]string{
	"host":            "Host",
	"port":            "Port",
	"gzip":            "Gzip",
	"html5":           "Html5",
	"index":           "Index",
	"delay":           "Delay",
	"cache-in-memory": "CacheInMemory",
	"regex-immutable": "RegexImmutable",
	"max-file-size":   "MaxFileSize",
	"watch":           "Watch",
	"base-href":       "BaseHref",
	"log-dir":         "LogDir",
	"log-level":       "LogLevel",
	"log-format":      "LogFormat",
	"no-access":       "NoAccessLog",
	"no-color":        "NoColor",
	"diagnostics":     "Diagnostics",
	"reload-token":    "ReloadToken",
	"pid-dir":         "PidDir",
	"signal":          "Signal",
}

// RegisterFlags 在 fs 上声明全部服务相关标志，默认值与 setDefaults 保持一致。
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("host", "H", "0.0.0.0", "ip address to bind")
	fs.IntP("port", "p", 8080, "port to listen; the next free port is used when it is taken")
	fs.BoolP("gzip", "g", false, "gzip encode response content (filesystem mode)")
	fs.BoolP("html5", "5", false, "html5 history route mode: unknown routes fall back to the index file")
	fs.StringP("index", "i", "index.html", "index file served under html5 mode")
	fs.StringP("delay", "d", "0", "delay before each response, milliseconds or duration such as 500ms")
	fs.BoolP("cache-in-memory", "c", false, "load the whole tree into memory and serve from there")
	fs.StringP("regex-immutable", "r", "", "files whose path matches the regexp are cached forever by clients")
	fs.Int64("max-file-size", 0, "skip files larger than this many bytes when caching (0 = unlimited)")
	fs.BoolP("watch", "w", false, "refresh the in-memory cache when files under the served path change")
	fs.StringP("base-href", "b", "", "server base href, useful when served under a sub path")
	fs.StringP("log-dir", "l", "", "write logs into this directory")
	fs.String("log-level", "info", "log level: debug|info|warn|error")
	fs.String("log-format", "text", "log format: text|json")
	fs.BoolP("no-access", "A", false, "do not print access log")
	fs.BoolP("no-color", "C", false, "disable color log")
	fs.Bool("diagnostics", false, "expose /-/status and /-/refresh")
	fs.String("reload-token", "", "token required by POST /-/refresh in the X-Reload-Token header")
	fs.String("pid-dir", "", "directory holding lightstatic.pid (default: system temp dir)")
	fs.StringP("signal", "s", "", `send a signal to running processes: "stop" or "refresh"`)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("绑定参数 %s 失败: %w", name, err)
		}
	}
	return nil
}
