package main

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/ceyewan/capsule/auth"
	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/config"
	"github.com/ceyewan/capsule/connectivity"
	"github.com/ceyewan/capsule/metrics"
	"github.com/ceyewan/capsule/netclient"
	"github.com/ceyewan/capsule/trace"
	"github.com/ceyewan/capsule/xerrors"
)

// appConfig 对应配置文件的顶层结构
type appConfig struct {
	Log     clog.Config              `mapstructure:"log"`
	Client  netclient.Config         `mapstructure:"client"`
	Probe   connectivity.ProbeConfig `mapstructure:"probe"`
	Auth    auth.Config              `mapstructure:"auth"`
	Metrics metrics.Config           `mapstructure:"metrics"`
	Trace   trace.Config             `mapstructure:"trace"`
}

// defaults 列出全部键，使环境变量（CAPSULE_CLIENT_BASE_URL 等）在没有配置文件时也能生效
func defaults() map[string]any {
	return map[string]any{
		"log.level":                        "warn",
		"log.format":                       "console",
		"log.output":                       "stderr",
		"client.base_url":                  "",
		"client.platform":                  netclient.DefaultPlatform,
		"client.app_version":               netclient.DefaultAppVersion,
		"client.request_timeout":           netclient.DefaultRequestTimeout,
		"client.resource_timeout":          netclient.DefaultResourceTimeout,
		"client.retry.max_attempts":        3,
		"client.upload_retry.max_attempts": 2,
		"client.rate_limit.rps":            0,
		"probe.target":                     "",
		"probe.interval":                   2 * time.Second,
		"auth.refresh_skew":                auth.DefaultRefreshSkew,
		"metrics.enabled":                  false,
		"metrics.service_name":             "capsule",
		"metrics.port":                     0,
		"metrics.path":                     "/metrics",
		"trace.service_name":               "capsule",
		"trace.endpoint":                   "",
		"trace.insecure":                   true,
	}
}

type invocationKey struct{}

type app struct {
	logger    clog.Logger
	stopWatch context.CancelFunc
	tracing   func(context.Context) error
	meter     metrics.Meter
	monitor   connectivity.Monitor
	session   auth.Session
	client    netclient.Client
}

// newApp 组装依赖：配置 -> 日志 -> 指标 -> 连通性 -> 会话 -> 客户端
func newApp(ctx context.Context, f *rootFlags) (*app, error) {
	loader, err := config.New(&config.Config{
		Paths:    f.configPaths,
		Defaults: defaults(),
	})
	if err != nil {
		return nil, err
	}
	if err := loader.Load(ctx); err != nil {
		return nil, err
	}
	var cfg appConfig
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Wrap(err, "decode configuration")
	}
	f.apply(&cfg)

	logger, err := clog.New(&cfg.Log,
		clog.WithNamespace("capsule"),
		clog.WithContextField(invocationKey{}, "invocation_id"),
		clog.WithTraceContext())
	if err != nil {
		return nil, err
	}

	a := &app{logger: logger, stopWatch: func() {}}
	if a.meter, err = metrics.New(&cfg.Metrics, metrics.WithLogger(logger)); err != nil {
		return nil, err
	}

	// 未配置导出地址时不接管全局 TracerProvider
	a.tracing = func(context.Context) error { return nil }
	if cfg.Trace.Endpoint != "" {
		if a.tracing, err = trace.Init(&cfg.Trace); err != nil {
			return nil, err
		}
	}

	if a.monitor, err = newMonitor(f, &cfg, logger); err != nil {
		return nil, err
	}

	// 刷新请求经由 client 发出，client 又以 session 为令牌来源
	refresher := auth.RefresherFunc(func(ctx context.Context, refreshToken string) (auth.Tokens, error) {
		return auth.NewHTTPRefresher(a.client, "").Refresh(ctx, refreshToken)
	})
	if a.session, err = auth.New(&cfg.Auth,
		auth.WithLogger(logger),
		auth.WithMeter(a.meter),
		auth.WithRefresher(refresher)); err != nil {
		_ = a.monitor.Close()
		return nil, err
	}
	if f.token != "" {
		a.session.SetTokens(auth.Tokens{AccessToken: f.token, RefreshToken: f.refreshToken})
	}

	a.client, err = netclient.New(&cfg.Client,
		netclient.WithLogger(logger),
		netclient.WithMeter(a.meter),
		netclient.WithMonitor(a.monitor),
		netclient.WithTokenProvider(a.session))
	if err != nil {
		_ = a.monitor.Close()
		return nil, err
	}

	// 命令行指定的级别优先，不随配置文件变化
	if f.logLevel == "" {
		if a.stopWatch, err = watchLogLevel(ctx, loader, logger); err != nil {
			_ = a.client.Close()
			_ = a.monitor.Close()
			return nil, err
		}
	}
	return a, nil
}

// watchLogLevel 配置文件中的 log.level 变化时调整日志级别，返回停止监听的函数
func watchLogLevel(ctx context.Context, loader config.Loader, logger clog.Logger) (context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(ctx)
	events, err := loader.Watch(ctx, "log.level")
	if err != nil {
		cancel()
		return nil, err
	}
	go func() {
		for ev := range events {
			s, _ := ev.Value.(string)
			level, err := clog.ParseLevel(s)
			if err != nil {
				logger.Warn("ignoring invalid log level", clog.String("level", s))
				continue
			}
			if err := logger.SetLevel(level); err != nil {
				logger.Warn("set log level failed", clog.Error(err))
				continue
			}
			logger.Info("log level changed", clog.String("level", level.String()))
		}
	}()
	return cancel, nil
}

func (a *app) Close(ctx context.Context) error {
	a.stopWatch()
	err := xerrors.Combine(
		a.client.Close(),
		a.monitor.Close(),
		a.meter.Shutdown(ctx),
		a.tracing(ctx),
	)
	a.logger.Flush()
	return err
}

func newMonitor(f *rootFlags, cfg *appConfig, logger clog.Logger) (connectivity.Monitor, error) {
	if f.assumeOnline {
		return connectivity.NewStatic(true), nil
	}
	if cfg.Probe.Target == "" {
		target, err := probeTarget(cfg.Client.BaseURL)
		if err != nil {
			return nil, err
		}
		cfg.Probe.Target = target
	}
	return connectivity.NewProber(&cfg.Probe, connectivity.WithLogger(logger))
}

// probeTarget 由 BaseURL 推出 host:port
func probeTarget(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "", xerrors.Wrapf(netclient.ErrInvalidConfig, "base_url %q", baseURL)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "443"
	if u.Scheme == "http" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
