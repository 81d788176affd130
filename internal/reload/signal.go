package reload

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NotifySignals 把收到的信号转成刷新请求，默认监听 SIGHUP，ctx 结束后停止监听。
func NotifySignals(ctx context.Context, target Trigger, sigs ...os.Signal) {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGHUP}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				target.Trigger("signal:" + sig.String())
			}
		}
	}()
}
