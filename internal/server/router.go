package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lightstatic/lightstatic/internal/cache"
	"github.com/lightstatic/lightstatic/internal/logging"
	"github.com/lightstatic/lightstatic/internal/resolver"
)

// AppOptions 控制 Fiber 应用的行为，Store 为空时以直读文件系统模式运行。
type AppOptions struct {
	Logger       *logrus.Logger
	AccessLogger *logrus.Logger
	Resolver     *resolver.Resolver
	Store        *cache.Store
	// IndexPath 为 html5 回退使用的文件，仅直读模式需要。
	IndexPath string
	// Gzip 仅作用于直读模式，缓存模式的压缩在加载时决定。
	Gzip        bool
	Delay       time.Duration
	Diagnostics bool
	ReloadToken string
	Version     string
}

const contextKeyRequestID = "_lightstatic_request_id"

// NewApp 构建 Fiber 应用并挂载中间件与静态文件处理器。
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.AccessLogger == nil {
		opts.AccessLogger = opts.Logger
	}
	if opts.Store == nil && opts.Resolver.FallbackEnabled() && opts.IndexPath == "" {
		return nil, errors.New("index path is required for html5 mode")
	}

	handleError := errorHandler(opts.Logger)
	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  handleError,
	})

	app.Use(requestIDMiddleware())
	app.Use(accessLogMiddleware(opts.AccessLogger, handleError))
	app.Use(recover.New())
	if opts.Delay > 0 {
		app.Use(delayMiddleware(opts.Delay))
	}

	if opts.Diagnostics {
		registerDiagnostics(app, opts)
	}

	var files fiber.Handler
	if opts.Store != nil {
		files = cachedHandler(opts.Store, opts.Resolver)
	} else {
		files = passthroughHandler(opts.Resolver, opts.IndexPath, opts.Gzip)
	}
	app.Get("/*", files)
	app.Head("/*", files)
	return app, nil
}

// requestIDMiddleware 为每个请求生成 ID 并写入响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// accessLogMiddleware 在链路结束后记录状态码与耗时；链路返回的错误在此处交给 ErrorHandler 渲染，保证日志中是最终状态码。
func accessLogMiddleware(logger *logrus.Logger, handleError fiber.ErrorHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		path := string(c.Request().URI().Path())

		if err := c.Next(); err != nil {
			if herr := handleError(c, err); herr != nil {
				return herr
			}
		}

		logger.WithFields(logging.AccessFields(
			c.Method(),
			path,
			c.Response().StatusCode(),
			time.Since(started),
			RequestID(c),
		)).Info("access")
		return nil
	}
}

// delayMiddleware 在响应前等待固定时长。
func delayMiddleware(delay time.Duration) fiber.Handler {
	return func(c fiber.Ctx) error {
		time.Sleep(delay)
		return c.Next()
	}
}

// errorHandler 把处理器错误映射为状态码；5xx 会记录日志，其它请求不受影响。
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"action":     "request_error",
				"path":       string(c.Request().URI().Path()),
				"request_id": RequestID(c),
			}).WithError(err).Error("请求处理失败")
		}
		c.Response().Header.Del(fiber.HeaderContentEncoding)
		c.Response().ResetBody()
		return c.SendStatus(code)
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
