package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lightstatic/lightstatic/internal/config"
)

// 日志目录下的文件名，分别承载运行日志与访问日志。
const (
	AppLogFile    = "lightstatic.log"
	AccessLogFile = "access.log"
)

// Loggers 汇总运行日志与访问日志两个 logger，二者格式一致、输出可分离。
type Loggers struct {
	App    *logrus.Logger
	Access *logrus.Logger
}

// InitLogger 根据日志配置初始化结构化日志；LogDir 不可用时降级到 stdout 并输出告警。
func InitLogger(cfg config.LogConfig) (*Loggers, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别: %w", err)
	}

	appOut, outErr := buildOutput(cfg, AppLogFile)
	accessOut := appOut
	if outErr == nil && cfg.LogDir != "" {
		accessOut, _ = buildOutput(cfg, AccessLogFile)
	}
	if cfg.NoAccessLog {
		accessOut = io.Discard
	}
	if outErr != nil {
		fmt.Fprintf(os.Stderr, "logger_fallback: %v\n", outErr)
	}

	formatter := buildFormatter(cfg)

	app := logrus.New()
	app.SetLevel(level)
	app.SetOutput(appOut)
	app.SetFormatter(formatter)

	access := logrus.New()
	access.SetLevel(logrus.InfoLevel)
	access.SetOutput(accessOut)
	access.SetFormatter(formatter)

	logrus.SetFormatter(app.Formatter)
	logrus.SetOutput(app.Out)
	logrus.SetLevel(app.GetLevel())

	if outErr != nil {
		app.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.LogDir,
		}).Warn(outErr.Error())
	}

	return &Loggers{App: app, Access: access}, nil
}

func buildFormatter(cfg config.LogConfig) logrus.Formatter {
	if cfg.LogFormat == "json" {
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableColors:   cfg.NoColor,
	}
}

// buildOutput 根据配置创建日志输出 Writer；失败时降级到 stdout 并返回错误。
func buildOutput(cfg config.LogConfig, name string) (io.Writer, error) {
	if cfg.LogDir == "" {
		return os.Stdout, nil
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return os.Stdout, fmt.Errorf("创建日志目录失败: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, name),
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}
	return rotator, nil
}
