package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/lightstatic/lightstatic/internal/cache"
	"github.com/lightstatic/lightstatic/internal/resolver"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// writeTree 在临时目录写入测试文件，并统一 mtime 便于断言 ETag。
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	mtime := time.Unix(1700000000, 0)
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("创建目录失败: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("写文件失败: %v", err)
		}
		if err := os.Chtimes(full, mtime, mtime); err != nil {
			t.Fatalf("设置 mtime 失败: %v", err)
		}
	}
	return root
}

type appSetup struct {
	root      string
	baseHref  string
	html5     bool
	cached    bool
	immutable string
	gzip      bool
	delay     time.Duration
	diag      bool
	token     string
}

type testApp struct {
	*fiber.App
	store *cache.Store
}

func newTestApp(t *testing.T, setup appSetup) *testApp {
	t.Helper()

	logger := quietLogger()
	indexPath := filepath.Join(setup.root, "index.html")

	var store *cache.Store
	if setup.cached {
		opts := cache.Options{
			RootDir:      setup.root,
			FallbackPath: indexPath,
			Logger:       logger,
		}
		if setup.immutable != "" {
			opts.Immutable = regexp.MustCompile(setup.immutable)
		}
		var err error
		store, err = cache.Load(context.Background(), opts)
		if err != nil {
			t.Fatalf("加载缓存失败: %v", err)
		}
	}

	app, err := NewApp(AppOptions{
		Logger:       logger,
		AccessLogger: logger,
		Resolver:     resolver.New(setup.root, setup.baseHref, setup.html5),
		Store:        store,
		IndexPath:    indexPath,
		Gzip:         setup.gzip,
		Delay:        setup.delay,
		Diagnostics:  setup.diag,
		ReloadToken:  setup.token,
		Version:      "lightstatic test",
	})
	if err != nil {
		t.Fatalf("创建应用失败: %v", err)
	}
	return &testApp{App: app, store: store}
}

// do 发起请求并读取完整响应体。
func (a *testApp) do(t *testing.T, method, target string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("读取响应失败: %v", err)
	}
	_ = resp.Body.Close()
	return resp, string(body)
}
