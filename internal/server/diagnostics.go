package server

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/lightstatic/lightstatic/internal/cache"
)

// HeaderReloadToken 携带 POST /-/refresh 所需的令牌。
const HeaderReloadToken = "X-Reload-Token"

type statusPayload struct {
	Mode         string     `json:"mode"`
	Version      string     `json:"version,omitempty"`
	BaseHref     string     `json:"base_href,omitempty"`
	Html5        bool       `json:"html5"`
	RootDir      string     `json:"root_dir,omitempty"`
	FallbackPath string     `json:"fallback_path,omitempty"`
	Entries      int        `json:"entries"`
	Bytes        int64      `json:"bytes"`
	Generation   uint64     `json:"generation"`
	LoadedAt     *time.Time `json:"loaded_at,omitempty"`
}

type refreshPayload struct {
	Entries    int    `json:"entries"`
	Generation uint64 `json:"generation"`
	DurationMS int64  `json:"duration_ms"`
}

// registerDiagnostics 暴露 /-/status 与 /-/refresh，必须在静态文件路由之前注册。
func registerDiagnostics(app *fiber.App, opts AppOptions) {
	app.Get("/-/status", func(c fiber.Ctx) error {
		payload := statusPayload{
			Mode:     "filesystem",
			Version:  opts.Version,
			BaseHref: opts.Resolver.BaseHref(),
			Html5:    opts.Resolver.FallbackEnabled(),
		}
		if opts.Store != nil {
			stats := opts.Store.Stats()
			payload.Mode = "memory"
			payload.RootDir = stats.RootDir
			payload.FallbackPath = stats.FallbackPath
			payload.Entries = stats.Entries
			payload.Bytes = stats.Bytes
			payload.Generation = stats.Generation
			payload.LoadedAt = &stats.LoadedAt
		}
		return c.JSON(payload)
	})

	app.Post("/-/refresh", func(c fiber.Ctx) error {
		if opts.Store == nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "cache_disabled"})
		}
		if !tokenMatches(opts.ReloadToken, string(c.Request().Header.Peek(HeaderReloadToken))) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_token"})
		}

		started := time.Now()
		entries, err := opts.Store.Refresh(c.Context())
		fields := logrus.Fields{
			"action":     "refresh_done",
			"source":     "endpoint",
			"request_id": RequestID(c),
		}
		switch {
		case errors.Is(err, cache.ErrRefreshInProgress):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "refresh_in_progress"})
		case err != nil:
			fields["action"] = "refresh_failed"
			opts.Logger.WithFields(fields).WithError(err).Error("缓存刷新失败，继续使用旧快照")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "refresh_failed"})
		}

		payload := refreshPayload{
			Entries:    entries,
			Generation: opts.Store.Snapshot().Generation(),
			DurationMS: time.Since(started).Milliseconds(),
		}
		fields["entries"] = entries
		opts.Logger.WithFields(fields).Info("缓存已刷新")
		return c.JSON(payload)
	})
}

// tokenMatches 以常量时间比较令牌；未配置令牌时不做校验。
func tokenMatches(expected, got string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
