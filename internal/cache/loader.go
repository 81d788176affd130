package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

// Options 描述一次快照构建所需的输入，Refresh 会复用同一份配置重新扫描。
type Options struct {
	// RootDir 是需要完整加载的目录。
	RootDir string
	// FallbackPath 是 html5 路由模式下的回退文件（通常为 index.html），必须可读。
	FallbackPath string
	// Immutable 命中完整路径时，该文件使用永久缓存指令。为空表示不启用。
	Immutable *regexp.Regexp
	// MaxFileSize 大于 0 时跳过超过该字节数的文件。
	MaxFileSize int64
	Logger      logrus.FieldLogger
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}

func (o Options) isImmutable(path string) bool {
	return o.Immutable != nil && o.Immutable.MatchString(path)
}

// loadFile 读取单个文件并生成 File，fallback 文件加载失败时由调用方终止构建。
func loadFile(path string, opts Options) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return readFile(path, info, opts)
}

func readFile(path string, info fs.FileInfo, opts Options) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content, compressed, err := pickSmaller(raw)
	if err != nil {
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}

	return &File{
		content:    content,
		compressed: compressed,
		ext:        extension(path),
		tag:        strconv.FormatInt(info.ModTime().Unix(), 10),
		immutable:  opts.isImmutable(path),
	}, nil
}

// pickSmaller 以最高压缩率压缩 raw，仅当压缩结果严格更小时返回压缩数据。
func pickSmaller(raw []byte) ([]byte, bool, error) {
	var buf bytes.Buffer
	buf.Grow(len(raw) / 2)
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, false, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, false, err
	}
	if err := zw.Close(); err != nil {
		return nil, false, err
	}
	if buf.Len() < len(raw) {
		return buf.Bytes(), true, nil
	}
	return raw, false, nil
}

func extension(path string) string {
	ext := filepath.Ext(path)
	if len(ext) <= 1 {
		return ""
	}
	return ext[1:]
}

// walker 在私有 map 中构建新快照，构建期间不触碰任何共享状态。
type walker struct {
	ctx      context.Context
	opts     Options
	log      logrus.FieldLogger
	entries  map[string]*File
	fallback *File
	// active 记录当前递归栈上目录的真实路径，用于发现符号链接环。
	active  map[string]struct{}
	skipped int
}

func (w *walker) walkRoot(root string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("resolve root %s: %w", root, err)
	}
	return w.walk(root, realRoot, true)
}

// walk 只在根目录无法读取或 ctx 取消时返回错误，子树错误记录告警后跳过。
func (w *walker) walk(dir, realDir string, top bool) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	items, err := os.ReadDir(dir)
	if err != nil {
		if top {
			return fmt.Errorf("read dir %s: %w", dir, err)
		}
		w.skip(dir, "read_dir_failed", err)
		return nil
	}

	w.active[realDir] = struct{}{}
	defer delete(w.active, realDir)

	for _, item := range items {
		if err := w.ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(dir, item.Name())
		info, err := os.Stat(path)
		if err != nil {
			w.skip(path, "stat_failed", err)
			continue
		}

		switch {
		case info.IsDir():
			childReal, err := filepath.EvalSymlinks(path)
			if err != nil {
				w.skip(path, "resolve_failed", err)
				continue
			}
			if _, looping := w.active[childReal]; looping {
				w.skip(path, "symlink_cycle", errors.New("directory already on walk stack"))
				continue
			}
			if err := w.walk(path, childReal, false); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
				w.skip(path, "file_too_large", fmt.Errorf("size %d exceeds %d", info.Size(), w.opts.MaxFileSize))
				continue
			}
			if path == w.opts.FallbackPath && w.fallback != nil {
				w.entries[path] = w.fallback
				continue
			}
			file, err := readFile(path, info, w.opts)
			if err != nil {
				w.skip(path, "read_file_failed", err)
				continue
			}
			w.entries[path] = file
		}
	}
	return nil
}

func (w *walker) skip(path, reason string, err error) {
	w.skipped++
	w.log.WithFields(logrus.Fields{
		"action": "cache_scan",
		"path":   path,
		"reason": reason,
	}).WithError(err).Warn("skip cache entry")
}
