package cache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

// writeTree 在 root 下按相对路径写入文件，自动创建父目录。
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("创建目录失败: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("写入文件失败: %v", err)
		}
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func mustLoad(t *testing.T, root string) *Store {
	t.Helper()
	store, err := Load(context.Background(), Options{
		RootDir:      root,
		FallbackPath: filepath.Join(root, "index.html"),
		Logger:       quietLogger(),
	})
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	return store
}
