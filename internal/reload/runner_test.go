package reload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lightstatic/lightstatic/internal/cache"
)

type fakeRefresher struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (f *fakeRefresher) Refresh(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 3, f.err
}

type triggerRecorder struct {
	mu      sync.Mutex
	sources []string
	fired   chan struct{}
}

func newTriggerRecorder() *triggerRecorder {
	return &triggerRecorder{fired: make(chan struct{}, 16)}
}

func (r *triggerRecorder) Trigger(source string) bool {
	r.mu.Lock()
	r.sources = append(r.sources, source)
	r.mu.Unlock()
	r.fired <- struct{}{}
	return true
}

func (r *triggerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("等待刷新结果超时")
		return Result{}
	}
}

func TestRunnerCoalescesPendingTriggers(t *testing.T) {
	refresher := &fakeRefresher{release: make(chan struct{})}
	runner := NewRunner(refresher, quietLogger())
	results := make(chan Result, 8)
	runner.OnResult = func(res Result) { results <- res }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	if !runner.Trigger("first") {
		t.Fatalf("首次触发应被接受")
	}
	// 等待第一次刷新开始执行，之后的请求只会排队一个。
	deadline := time.Now().Add(5 * time.Second)
	for refresher.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	accepted := 0
	for i := 0; i < 5; i++ {
		if runner.Trigger("burst") {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("刷新进行中只应接受一个排队请求，得到 %d", accepted)
	}

	close(refresher.release)
	first := waitResult(t, results)
	second := waitResult(t, results)
	if first.Source != "first" || second.Source != "burst" {
		t.Fatalf("刷新来源错误: %s / %s", first.Source, second.Source)
	}
	if got := refresher.calls.Load(); got != 2 {
		t.Fatalf("期望刷新 2 次，得到 %d", got)
	}
}

func TestRunnerReportsFailure(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("fallback missing")}
	runner := NewRunner(refresher, quietLogger())
	results := make(chan Result, 1)
	runner.OnResult = func(res Result) { results <- res }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	runner.Trigger("test")
	res := waitResult(t, results)
	if res.Err == nil {
		t.Fatalf("失败的刷新应携带错误")
	}
}

func TestRunnerRetriesWhenBusy(t *testing.T) {
	refresher := &fakeRefresher{err: cache.ErrRefreshInProgress}
	runner := NewRunner(refresher, quietLogger())
	results := make(chan Result, 4)
	runner.OnResult = func(res Result) {
		if refresher.calls.Load() >= 2 {
			refresher.err = nil
		}
		results <- res
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	runner.Trigger("endpoint")
	if res := waitResult(t, results); !errors.Is(res.Err, cache.ErrRefreshInProgress) {
		t.Fatalf("首次应返回刷新冲突，得到 %v", res.Err)
	}
	if res := waitResult(t, results); res.Source != "endpoint" {
		t.Fatalf("冲突后应重新排队同一来源，得到 %s", res.Source)
	}
}

func TestNotifySignalsTriggersRefresh(t *testing.T) {
	recorder := newTriggerRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	NotifySignals(ctx, recorder, syscall.SIGUSR1)
	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("发送信号失败: %v", err)
	}

	select {
	case <-recorder.fired:
	case <-time.After(5 * time.Second):
		t.Fatalf("收到信号后应触发刷新")
	}
}

func TestWatcherDebouncesChanges(t *testing.T) {
	root := t.TempDir()
	recorder := newTriggerRecorder()

	w, err := NewWatcher(root, 50*time.Millisecond, recorder, quietLogger())
	if err != nil {
		t.Fatalf("创建 watcher 失败: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		name := filepath.Join(root, "file"+string(rune('a'+i))+".txt")
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatalf("写文件失败: %v", err)
		}
	}

	select {
	case <-recorder.fired:
	case <-time.After(5 * time.Second):
		t.Fatalf("文件变化后应触发刷新")
	}
	time.Sleep(200 * time.Millisecond)
	if got := recorder.count(); got != 1 {
		t.Fatalf("连续修改应合并为一次刷新，得到 %d", got)
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	recorder := newTriggerRecorder()

	w, err := NewWatcher(root, 30*time.Millisecond, recorder, quietLogger())
	if err != nil {
		t.Fatalf("创建 watcher 失败: %v", err)
	}
	defer w.Close()

	sub := filepath.Join(root, "assets")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	<-recorder.fired

	// 等待新目录被加入监听。
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "app.js"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写文件失败: %v", err)
	}
	select {
	case <-recorder.fired:
	case <-time.After(5 * time.Second):
		t.Fatalf("新目录中的变化也应触发刷新")
	}
}

func TestWatcherRequiresRoot(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), 0, newTriggerRecorder(), quietLogger())
	if err == nil {
		t.Fatalf("根目录不存在时应报错")
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 0, newTriggerRecorder(), quietLogger())
	if err != nil {
		t.Fatalf("创建 watcher 失败: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("重复关闭不应报错: %v", err)
	}
}
