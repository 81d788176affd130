package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 服务目录等基础字段，便于不同入口复用。
func BaseFields(action, servePath string) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"servePath": servePath,
	}
}

// AccessFields 提供访问日志字段，status 为最终写出的 HTTP 状态码。
func AccessFields(method, path string, status int, latency time.Duration, requestID string) logrus.Fields {
	fields := logrus.Fields{
		"method":     method,
		"path":       path,
		"status":     status,
		"latency_ms": latency.Milliseconds(),
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
