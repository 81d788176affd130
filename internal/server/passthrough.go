package server

import (
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/klauspost/compress/gzip"

	"github.com/lightstatic/lightstatic/internal/cache"
	"github.com/lightstatic/lightstatic/internal/resolver"
)

// passthroughHandler 每次请求直接访问文件系统，不经过快照。
func passthroughHandler(res *resolver.Resolver, indexPath string, gzipBody bool) fiber.Handler {
	return func(c fiber.Ctx) error {
		requestPath := string(c.Request().URI().Path())
		route := res.Route(requestPath)
		switch route.Kind {
		case resolver.RouteRedirect:
			c.Set(fiber.HeaderLocation, route.Location)
			return c.SendStatus(fiber.StatusFound)
		case resolver.RouteForbidden:
			return c.SendStatus(fiber.StatusForbidden)
		}

		info, err := os.Stat(route.Key)
		switch {
		case err == nil && info.IsDir():
			return sendDir(c, route.Key, requestPath)
		case err == nil && info.Mode().IsRegular():
			return sendFile(c, route.Key, info, gzipBody)
		case err == nil:
			return c.SendStatus(fiber.StatusNotFound)
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}

		if !res.FallbackEnabled() || resolver.LooksLikeFile(requestPath) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		indexInfo, err := os.Stat(indexPath)
		if err != nil {
			return fmt.Errorf("stat index file: %w", err)
		}
		return sendFile(c, indexPath, indexInfo, gzipBody)
	}
}

// sendFile 以 mtime 秒数作为 ETag，匹配时返回 304，否则从磁盘流式写出。
func sendFile(c fiber.Ctx, path string, info fs.FileInfo, gzipBody bool) error {
	tag := strconv.FormatInt(info.ModTime().Unix(), 10)
	c.Set(fiber.HeaderETag, tag)
	if string(c.Request().Header.Peek(fiber.HeaderIfNoneMatch)) == tag {
		return c.SendStatus(fiber.StatusNotModified)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, cache.MIMEFromExt(filepath.Ext(path)))
	c.Status(fiber.StatusOK)

	if !gzipBody {
		c.Response().SetBodyStream(f, int(info.Size()))
		return nil
	}

	c.Set(fiber.HeaderContentEncoding, "gzip")
	c.Set(fiber.HeaderVary, fiber.HeaderAcceptEncoding)
	c.Response().SetBodyStream(gzipStream(f), -1)
	return nil
}

// gzipStream 在后台 goroutine 中压缩 src，读端关闭或读取结束时释放文件句柄。
func gzipStream(src io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		defer src.Close()
		zw := gzip.NewWriter(pw)
		if _, err := io.Copy(zw, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(zw.Close())
	}()
	return pr
}

// sendDir 输出目录的 HTML 索引，链接以请求路径为前缀。
func sendDir(c fiber.Ctx, dir, requestPath string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	prefix := requestPath
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var b strings.Builder
	title := html.EscapeString(requestPath)
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\"/>\n<title>Index of %s</title>\n", title)
	b.WriteString("<style>\nli { padding: 6px; }\n</style>\n</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>Index of %s</h1>\n<ul>\n", title)
	for _, entry := range entries {
		name := entry.Name()
		href := prefix + url.PathEscape(name)
		fmt.Fprintf(&b, "  <li><a href=\"%s\">%s</a></li>\n", html.EscapeString(href), html.EscapeString(name))
	}
	b.WriteString("</ul>\n</body>\n</html>")

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	c.Status(fiber.StatusOK)
	_, err = io.WriteString(c.Response().BodyWriter(), b.String())
	return err
}
