package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var supportedLogFormats = map[string]struct{}{
	"text": {},
	"json": {},
}

var supportedSignals = map[string]struct{}{
	"stop":    {},
	"refresh": {},
}

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if c.Signal != "" {
		if _, ok := supportedSignals[c.Signal]; !ok {
			return newFieldError("Signal", `仅支持 "stop" 或 "refresh"`)
		}
		return nil
	}

	if c.Port <= 0 || c.Port > 65535 {
		return newFieldError("Port", "必须在 1-65535")
	}
	if err := validateServePath(c.ServePath); err != nil {
		return newFieldError("ServePath", err.Error())
	}
	if c.Delay.DurationValue() < 0 {
		return newFieldError("Delay", "不能为负数")
	}
	if c.MaxFileSize < 0 {
		return newFieldError("MaxFileSize", "不能为负数")
	}

	if c.RegexImmutable != "" {
		if !c.CacheInMemory {
			return newFieldError("RegexImmutable", "仅在 CacheInMemory 开启时生效")
		}
		if _, err := regexp.Compile(c.RegexImmutable); err != nil {
			return newFieldError("RegexImmutable", fmt.Sprintf("无效正则: %v", err))
		}
	}
	if c.Watch && !c.CacheInMemory {
		return newFieldError("Watch", "仅在 CacheInMemory 开启时生效")
	}
	if c.MaxFileSize > 0 && !c.CacheInMemory {
		return newFieldError("MaxFileSize", "仅在 CacheInMemory 开启时生效")
	}
	if c.ReloadToken != "" && !c.Diagnostics {
		return newFieldError("ReloadToken", "需要同时开启 Diagnostics")
	}

	if _, ok := supportedLogFormats[c.Log.LogFormat]; !ok {
		return newFieldError("LogFormat", "仅支持 text/json")
	}
	if c.Log.LogMaxSize < 0 || c.Log.LogMaxBackups < 0 {
		return newFieldError("LogMaxSize/LogMaxBackups", "不能为负数")
	}
	return nil
}

func validateServePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("缺少服务目录")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s 不是目录", path)
	}
	return nil
}
