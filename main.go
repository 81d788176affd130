package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/lightstatic/lightstatic/internal/cache"
	"github.com/lightstatic/lightstatic/internal/config"
	"github.com/lightstatic/lightstatic/internal/logging"
	"github.com/lightstatic/lightstatic/internal/pidfile"
	"github.com/lightstatic/lightstatic/internal/reload"
	"github.com/lightstatic/lightstatic/internal/resolver"
	"github.com/lightstatic/lightstatic/internal/server"
	"github.com/lightstatic/lightstatic/internal/version"
)

// shutdownTimeout 是收到停止信号后等待在途请求完成的上限。
const shutdownTimeout = 5 * time.Second

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	servePath   string
	showVersion bool
	showHelp    bool
	flags       *pflag.FlagSet
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showHelp {
		printUsage(opts.flags)
		return 0
	}
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(config.LoadOptions{
		ConfigPath: opts.configPath,
		Flags:      opts.flags,
		ServePath:  opts.servePath,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	if cfg.SignalOnly() {
		return sendSignal(cfg)
	}

	loggers, err := logging.InitLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()
	return serve(ctx, cfg, loggers)
}

// serve 按“缓存 → 路由 → 监听 → PID → 刷新触发器”顺序启动，ctx 结束后优雅退出。
func serve(ctx context.Context, cfg *config.Config, loggers *logging.Loggers) int {
	logger := loggers.App

	var store *cache.Store
	if cfg.CacheInMemory {
		var err error
		store, err = cache.Load(ctx, cache.Options{
			RootDir:      cfg.RootDir,
			FallbackPath: cfg.IndexPath,
			Immutable:    cfg.Immutable,
			MaxFileSize:  cfg.MaxFileSize,
			Logger:       logger,
		})
		if err != nil {
			fmt.Fprintf(stdErr, "加载内存缓存失败: %v\n", err)
			return 1
		}
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:       logger,
		AccessLogger: loggers.Access,
		Resolver:     resolver.New(cfg.RootDir, cfg.BaseHref, cfg.Html5),
		Store:        store,
		IndexPath:    cfg.IndexPath,
		Gzip:         cfg.Gzip,
		Delay:        cfg.Delay.DurationValue(),
		Diagnostics:  cfg.Diagnostics,
		ReloadToken:  cfg.ReloadToken,
		Version:      version.Full(),
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建 HTTP 服务失败: %v\n", err)
		return 1
	}

	ln, err := server.Listen(cfg.Host, cfg.Port)
	if err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	port := server.ListenPort(ln)

	pids := pidfile.New(cfg.PidDir)
	if err := pids.Write(); err != nil {
		logger.WithField("action", "pid_write").WithError(err).Warn("写入 PID 文件失败，--signal 将无法找到本进程")
	}
	defer func() {
		if err := pids.Remove(); err != nil {
			logger.WithField("action", "pid_remove").WithError(err).Warn("清理 PID 文件失败")
		}
	}()

	if store != nil {
		runner := reload.NewRunner(store, logger)
		go runner.Run(ctx)
		reload.NotifySignals(ctx, runner, syscall.SIGHUP)

		if cfg.Watch {
			watcher, err := reload.NewWatcher(cfg.RootDir, cfg.WatchDebounce.DurationValue(), runner, logger)
			if err != nil {
				logger.WithField("action", "watch_start").WithError(err).Warn("文件监听启动失败，仅支持手动刷新")
			} else {
				defer watcher.Close()
			}
		}
	} else {
		// 直读模式无需刷新，SIGHUP 不应终止进程。
		signal.Ignore(syscall.SIGHUP)
	}

	logStartup(logger, cfg, store, port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(stdErr, "HTTP 服务异常退出: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		logger.WithField("action", "shutdown").Info("lightstatic 停止服务")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.WithField("action", "shutdown").WithError(err).Warn("优雅退出超时")
		}
	}
	return 0
}

func logStartup(logger *logrus.Logger, cfg *config.Config, store *cache.Store, port int) {
	fields := logging.BaseFields("startup", cfg.RootDir)
	fields["host"] = cfg.Host
	fields["port"] = port
	fields["mode"] = cfg.Mode()
	fields["html5"] = cfg.Html5
	fields["version"] = version.Full()
	if base := resolver.NormalizeBaseHref(cfg.BaseHref); base != "" {
		fields["base_href"] = base
	}
	if port != cfg.Port {
		fields["requested_port"] = cfg.Port
	}
	if store != nil {
		stats := store.Stats()
		fields["entries"] = stats.Entries
		fields["bytes"] = stats.Bytes
	}
	logger.WithFields(fields).Infof("lightstatic serving at http://%s:%d", cfg.Host, port)
}

// sendSignal 处理 --signal，只与已有进程交互，不启动服务。
func sendSignal(cfg *config.Config) int {
	results, err := pidfile.New(cfg.PidDir).Signal(cfg.Signal)
	if err != nil {
		if errors.Is(err, pidfile.ErrNoPidFile) {
			fmt.Fprintln(stdErr, err.Error())
			return 1
		}
		fmt.Fprintf(stdErr, "发送信号失败: %v\n", err)
		if len(results) == 0 {
			return 1
		}
	}
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(stdErr, "进程 %d 不可达，已从 PID 文件移除: %v\n", res.PID, res.Err)
			continue
		}
		fmt.Fprintf(stdOut, "已向进程 %d 发送 %s\n", res.PID, cfg.Signal)
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := pflag.NewFlagSet("lightstatic", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	config.RegisterFlags(fs)

	var (
		configFlag string
		showVer    bool
	)
	fs.StringVar(&configFlag, "config", "", "配置文件路径（TOML，可被 LIGHTSTATIC_CONFIG 覆盖）")
	fs.BoolVarP(&showVer, "version", "V", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return cliOptions{showHelp: true, flags: fs}, nil
		}
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if fs.NArg() > 1 {
		return cliOptions{}, fmt.Errorf("解析参数失败: 只能指定一个服务目录，得到 %v", fs.Args())
	}

	path := os.Getenv("LIGHTSTATIC_CONFIG")
	if configFlag != "" {
		path = configFlag
	}

	return cliOptions{
		configPath:  path,
		servePath:   fs.Arg(0),
		showVersion: showVer,
		flags:       fs,
	}, nil
}
