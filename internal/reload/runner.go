package reload

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lightstatic/lightstatic/internal/cache"
)

// busyRetry 是刷新冲突后重新排队前的等待时间。
const busyRetry = 100 * time.Millisecond

// Refresher 是可以重建缓存的组件，*cache.Store 满足该接口。
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// Trigger 接收刷新请求，source 用于日志区分来源。
type Trigger interface {
	Trigger(source string) bool
}

// Result 描述一次刷新的结果。
type Result struct {
	Source   string
	Entries  int
	Duration time.Duration
	Err      error
}

// Runner 在单个 goroutine 中串行执行刷新，并合并等待中的重复请求。
type Runner struct {
	refresher Refresher
	logger    logrus.FieldLogger
	pending   chan string
	// OnResult 在每次刷新结束后调用，可为空。
	OnResult func(Result)
}

// NewRunner 创建 Runner，需要调用 Run 才会开始处理请求。
func NewRunner(refresher Refresher, logger logrus.FieldLogger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		refresher: refresher,
		logger:    logger,
		pending:   make(chan string, 1),
	}
}

// Trigger 登记一次刷新请求。已有请求排队时直接合并并返回 false。
func (r *Runner) Trigger(source string) bool {
	select {
	case r.pending <- source:
		return true
	default:
		r.logger.WithFields(logrus.Fields{
			"action": "refresh_coalesced",
			"source": source,
		}).Debug("刷新请求已合并")
		return false
	}
}

// Run 处理刷新请求直到 ctx 结束。
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case source := <-r.pending:
			r.refresh(ctx, source)
		}
	}
}

func (r *Runner) refresh(ctx context.Context, source string) {
	started := time.Now()
	entries, err := r.refresher.Refresh(ctx)
	result := Result{
		Source:   source,
		Entries:  entries,
		Duration: time.Since(started),
		Err:      err,
	}

	fields := logrus.Fields{
		"action":      "refresh_done",
		"source":      source,
		"entries":     entries,
		"duration_ms": result.Duration.Milliseconds(),
	}
	switch {
	case err == nil:
		r.logger.WithFields(fields).Info("缓存已刷新")
	case errors.Is(err, cache.ErrRefreshInProgress):
		// 来自诊断接口的刷新可能与 Runner 并行，重新排队一次。
		fields["action"] = "refresh_busy"
		r.logger.WithFields(fields).Warn("已有刷新在进行，稍后重试")
		time.AfterFunc(busyRetry, func() { r.Trigger(source) })
	default:
		fields["action"] = "refresh_failed"
		r.logger.WithFields(fields).WithError(err).Error("缓存刷新失败，继续使用旧快照")
	}

	if r.OnResult != nil {
		r.OnResult(result)
	}
}
