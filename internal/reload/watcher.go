package reload

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce 是文件事件合并的默认等待时间。
const DefaultDebounce = 300 * time.Millisecond

// Watcher 递归监听根目录，文件变化静默 debounce 之后触发一次刷新。
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	rootDir   string
	target    Trigger
	logger    logrus.FieldLogger
	debounce  time.Duration

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	timer     *time.Timer
	mu        sync.Mutex
	// closed 在 run 退出后置位，避免定时器在关闭后继续触发。
	closed bool
}

// NewWatcher 创建并启动监听；根目录无法监听时返回错误，子目录失败只记录日志。
func NewWatcher(rootDir string, debounce time.Duration, target Trigger, logger logrus.FieldLogger) (*Watcher, error) {
	if target == nil {
		return nil, errors.New("reload target is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsw,
		rootDir:   rootDir,
		target:    target,
		logger:    logger,
		debounce:  debounce,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if err := w.addRecursive(rootDir); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(path); err != nil {
			if path == dir {
				return err
			}
			w.logger.WithFields(logrus.Fields{
				"action": "watch_add",
				"path":   path,
			}).WithError(err).Warn("目录监听失败")
		}
		return nil
	})
}

func (w *Watcher) run() {
	defer func() {
		w.mu.Lock()
		w.closed = true
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		close(w.done)
	}()

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			w.schedule()

			// 新建目录需要补充监听，mkdir -p 时可能一次出现多层。
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
				}
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.WithField("action", "watch_error").WithError(err).Warn("文件监听出错")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		closed := w.closed
		w.mu.Unlock()
		if !closed {
			w.target.Trigger("watch")
		}
	})
}

// Close 停止监听并等待事件循环退出。
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		err = w.fsWatcher.Close()
		<-w.done
	})
	return err
}
