// Package resolver turns an inbound request path into a response decision.
// It owns the base-href rules shared by the cached and passthrough modes and
// the conditional-request logic for cached entries; it never writes HTTP
// itself, so the server layer stays a thin translation of Response values.
package resolver

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/lightstatic/lightstatic/internal/cache"
)

// Cache-Control 取值：命中正则的文件永久缓存，其余每次协商。
const (
	CacheControlImmutable  = "max-age=31536000, immutable"
	CacheControlRevalidate = "no-cache"
)

// Kind 表示解析结果类型。
type Kind int

const (
	KindHit Kind = iota
	KindNotModified
	KindNotFound
	KindRedirect
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindHit:
		return "hit"
	case KindNotModified:
		return "not_modified"
	case KindNotFound:
		return "not_found"
	case KindRedirect:
		return "redirect"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Response 是一次解析的结果描述，由 server 层翻译为 HTTP 响应。
type Response struct {
	Kind Kind
	// File/Fallback 仅在 KindHit、KindNotModified 时有效。
	File     *cache.File
	Fallback bool
	// Location 仅在 KindRedirect 时有效。
	Location string
}

// Tag 返回命中文件的校验值。
func (r Response) Tag() string {
	if r.File == nil {
		return ""
	}
	return r.File.Tag()
}

// MIME 返回命中文件的内容类型。
func (r Response) MIME() string {
	if r.File == nil {
		return cache.MIMEOctetStream
	}
	return r.File.MIME()
}

// CacheControl 返回命中文件应使用的缓存指令。
func (r Response) CacheControl() string {
	if r.File != nil && r.File.Immutable() {
		return CacheControlImmutable
	}
	return CacheControlRevalidate
}

// RouteKind 表示 base href 校验之后的路由动作。
type RouteKind int

const (
	RouteServe RouteKind = iota
	RouteRedirect
	RouteForbidden
)

// Route 是 base href 处理结果，Rel 为去掉 base 后的相对路径（URL 风格），
// Key 为对应的绝对文件路径。
type Route struct {
	Kind     RouteKind
	Rel      string
	Key      string
	Location string
}

// Resolver 持有根目录、base href 与 html5 回退开关，可被并发复用。
type Resolver struct {
	rootDir  string
	baseHref string
	fallback bool
}

// New 创建 Resolver；baseHref 会经过 NormalizeBaseHref 处理。
func New(rootDir, baseHref string, fallback bool) *Resolver {
	return &Resolver{
		rootDir:  filepath.Clean(rootDir),
		baseHref: NormalizeBaseHref(baseHref),
		fallback: fallback,
	}
}

// BaseHref 返回规范化后的 base href，空字符串表示未启用。
func (r *Resolver) BaseHref() string { return r.baseHref }

// FallbackEnabled 表示是否启用 html5 路由回退。
func (r *Resolver) FallbackEnabled() bool { return r.fallback }

// NormalizeBaseHref 将 base href 统一为以 "/" 开头并以 "/" 结尾的形式；空或 "/" 视为未设置。
func NormalizeBaseHref(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "/" {
		return ""
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	if !strings.HasSuffix(trimmed, "/") {
		trimmed += "/"
	}
	return trimmed
}

// Route 校验 base href 并把请求路径映射为根目录下的文件路径。
// 请求 "/" 或不带结尾斜杠的 base 时重定向到 base；不在 base 下的请求返回 RouteForbidden。
func (r *Resolver) Route(requestPath string) Route {
	if requestPath == "" {
		requestPath = "/"
	}

	rel := requestPath
	if r.baseHref != "" {
		if requestPath == "/" || requestPath == strings.TrimSuffix(r.baseHref, "/") {
			return Route{Kind: RouteRedirect, Location: r.baseHref}
		}
		if !strings.HasPrefix(requestPath, r.baseHref) {
			return Route{Kind: RouteForbidden}
		}
		rel = requestPath[len(r.baseHref)-1:]
	}

	// path.Clean 以 "/" 为根，保证 ".." 无法逃逸出根目录。
	rel = path.Clean("/" + rel)
	return Route{
		Kind: RouteServe,
		Rel:  rel,
		Key:  filepath.Join(r.rootDir, filepath.FromSlash(rel)),
	}
}

// Resolve 在给定快照上完成路由、查找、回退与条件请求判断。
// validationToken 为请求携带的 If-None-Match 值，空表示未携带。
func (r *Resolver) Resolve(snap *cache.Snapshot, requestPath, validationToken string) Response {
	route := r.Route(requestPath)
	switch route.Kind {
	case RouteRedirect:
		return Response{Kind: KindRedirect, Location: route.Location}
	case RouteForbidden:
		return Response{Kind: KindForbidden}
	}

	allowFallback := r.fallback && !LooksLikeFile(requestPath)
	file, match := snap.Lookup(route.Key, allowFallback)
	if match == cache.MatchNone {
		return Response{Kind: KindNotFound}
	}

	resp := Response{
		Kind:     KindHit,
		File:     file,
		Fallback: match == cache.MatchFallback,
	}
	if validationToken != "" && validationToken == file.Tag() {
		resp.Kind = KindNotModified
	}
	return resp
}

// LooksLikeFile 判断路径最后一个 "/" 之后是否含有 "."，含有则视为静态资源请求，不做 html5 回退。
func LooksLikeFile(requestPath string) bool {
	idx := strings.LastIndex(requestPath, "/")
	return strings.Contains(requestPath[idx+1:], ".")
}
