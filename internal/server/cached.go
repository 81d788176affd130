package server

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/klauspost/compress/gzip"

	"github.com/lightstatic/lightstatic/internal/cache"
	"github.com/lightstatic/lightstatic/internal/resolver"
)

// cachedHandler 每个请求只读取一次当前快照，之后的查找与写出都基于这一代数据。
func cachedHandler(store *cache.Store, res *resolver.Resolver) fiber.Handler {
	return func(c fiber.Ctx) error {
		snap := store.Snapshot()
		token := string(c.Request().Header.Peek(fiber.HeaderIfNoneMatch))
		out := res.Resolve(snap, string(c.Request().URI().Path()), token)
		return writeResponse(c, out)
	}
}

// writeResponse 把解析结果翻译为 HTTP 响应。
func writeResponse(c fiber.Ctx, out resolver.Response) error {
	switch out.Kind {
	case resolver.KindRedirect:
		c.Set(fiber.HeaderLocation, out.Location)
		return c.SendStatus(fiber.StatusFound)
	case resolver.KindForbidden:
		return c.SendStatus(fiber.StatusForbidden)
	case resolver.KindNotFound:
		return c.SendStatus(fiber.StatusNotFound)
	case resolver.KindNotModified:
		c.Set(fiber.HeaderETag, out.Tag())
		c.Set(fiber.HeaderCacheControl, out.CacheControl())
		return c.SendStatus(fiber.StatusNotModified)
	}

	file := out.File
	c.Set(fiber.HeaderETag, out.Tag())
	c.Set(fiber.HeaderCacheControl, out.CacheControl())
	c.Set(fiber.HeaderContentType, out.MIME())
	c.Status(fiber.StatusOK)

	if !file.Compressed() {
		c.Response().SetBodyStream(file.Reader(), file.Size())
		return nil
	}

	c.Set(fiber.HeaderVary, fiber.HeaderAcceptEncoding)
	if acceptsGzip(string(c.Request().Header.Peek(fiber.HeaderAcceptEncoding))) {
		c.Set(fiber.HeaderContentEncoding, "gzip")
		c.Response().SetBodyStream(file.Reader(), file.Size())
		return nil
	}

	// 客户端不支持 gzip 时在线解压，长度未知，以 chunked 方式写出。
	zr, err := gzip.NewReader(file.Reader())
	if err != nil {
		return err
	}
	c.Response().SetBodyStream(zr, -1)
	return nil
}

// acceptsGzip 判断 Accept-Encoding 是否接受 gzip，任一参数段中 q=0 视为拒绝，参数名不区分大小写。
func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		name := strings.ToLower(strings.TrimSpace(segments[0]))
		if name != "gzip" && name != "x-gzip" && name != "*" {
			continue
		}
		if !refusedByQuality(segments[1:]) {
			return true
		}
	}
	return false
}

func refusedByQuality(params []string) bool {
	for _, param := range params {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		return err != nil || q <= 0
	}
	return false
}
