package server

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestStatusEndpoint(t *testing.T) {
	root := writeTree(t, map[string]string{"index.html": "home", "a.txt": "hi"})
	app := newTestApp(t, appSetup{root: root, cached: true, diag: true})

	resp, body := app.do(t, http.MethodGet, "/-/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload statusPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("解析状态失败: %v", err)
	}
	if payload.Mode != "memory" || payload.Entries != 2 || payload.Generation != 1 {
		t.Fatalf("unexpected status payload: %+v", payload)
	}
	if payload.Bytes <= 0 || payload.LoadedAt == nil {
		t.Fatalf("状态应包含字节数与加载时间: %+v", payload)
	}
}

func TestStatusEndpointFilesystemMode(t *testing.T) {
	root := writeTree(t, map[string]string{"index.html": "home"})
	app := newTestApp(t, appSetup{root: root, diag: true})

	_, body := app.do(t, http.MethodGet, "/-/status", nil)
	var payload statusPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("解析状态失败: %v", err)
	}
	if payload.Mode != "filesystem" || payload.Entries != 0 {
		t.Fatalf("unexpected status payload: %+v", payload)
	}
}

func TestDiagnosticsDisabledByDefault(t *testing.T) {
	root := writeTree(t, map[string]string{"index.html": "home"})
	app := newTestApp(t, appSetup{root: root, cached: true})

	if resp, _ := app.do(t, http.MethodGet, "/-/status", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("未开启诊断时 /-/status 应按静态路径处理，得到 %d", resp.StatusCode)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	root := writeTree(t, map[string]string{"index.html": "home"})
	app := newTestApp(t, appSetup{root: root, cached: true, diag: true, token: "s3cret"})

	if resp, _ := app.do(t, http.MethodPost, "/-/refresh", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("缺少令牌应返回 401，得到 %d", resp.StatusCode)
	}
	if resp, _ := app.do(t, http.MethodPost, "/-/refresh", map[string]string{HeaderReloadToken: "wrong"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("错误令牌应返回 401，得到 %d", resp.StatusCode)
	}

	resp, body := app.do(t, http.MethodPost, "/-/refresh", map[string]string{HeaderReloadToken: "s3cret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.StatusCode, body)
	}
	var payload refreshPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("解析刷新结果失败: %v", err)
	}
	if payload.Generation != 2 || payload.Entries != 1 {
		t.Fatalf("unexpected refresh payload: %+v", payload)
	}
}

func TestRefreshEndpointWithoutCache(t *testing.T) {
	root := writeTree(t, map[string]string{"index.html": "home"})
	app := newTestApp(t, appSetup{root: root, diag: true})

	if resp, _ := app.do(t, http.MethodPost, "/-/refresh", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("直读模式刷新应返回 409，得到 %d", resp.StatusCode)
	}
}

func TestTokenMatches(t *testing.T) {
	if !tokenMatches("", "") || !tokenMatches("", "anything") {
		t.Fatalf("未配置令牌时应放行")
	}
	if tokenMatches("abc", "abd") || tokenMatches("abc", "") {
		t.Fatalf("令牌不同应拒绝")
	}
	if !tokenMatches("abc", "abc") {
		t.Fatalf("令牌相同应通过")
	}
}
