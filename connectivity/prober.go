package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ceyewan/capsule/clog"
	"github.com/ceyewan/capsule/xerrors"
)

// ProbeConfig 拨测配置
type ProbeConfig struct {
	// Target 拨测地址 host:port，通常是 API 主机
	Target string `json:"target" yaml:"target" mapstructure:"target"`

	// Interval 拨测周期，默认 2s
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// Timeout 单次拨号超时，默认 1s
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// FailureThreshold 连续失败多少次判定为断开，默认 2；一次成功即恢复
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`
}

func (c *ProbeConfig) setDefaults() {
	if c.Interval == 0 {
		c.Interval = 2 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 2
	}
}

// Dialer 拨号器，*net.Dialer 满足该接口
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ProbeOption 拨测选项
type ProbeOption func(*Prober)

// WithLogger 注入日志记录器，自动追加 "connectivity" 命名空间
func WithLogger(l clog.Logger) ProbeOption {
	return func(p *Prober) {
		if l != nil {
			p.logger = l.WithNamespace("connectivity")
		}
	}
}

// WithDialer 替换拨号器
func WithDialer(d Dialer) ProbeOption {
	return func(p *Prober) {
		if d != nil {
			p.dialer = d
		}
	}
}

// Prober 周期性 TCP 拨测目标地址的 Monitor。
// 状态转换最迟在 Interval × FailureThreshold + Timeout 内被观察到。
type Prober struct {
	cfg    ProbeConfig
	dialer Dialer
	logger clog.Logger
	hub    *hub

	failures  int
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewProber 创建并启动拨测。构造时同步执行一次拨测以确定初始状态。
func NewProber(cfg *ProbeConfig, opts ...ProbeOption) (*Prober, error) {
	if cfg == nil || cfg.Target == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "connectivity: probe target is required")
	}
	c := *cfg
	c.setDefaults()
	if _, _, err := net.SplitHostPort(c.Target); err != nil {
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "connectivity: bad target %q", c.Target)
	}

	p := &Prober{
		cfg:    c,
		dialer: &net.Dialer{},
		logger: clog.Discard(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	iface, err := p.dial(ctx)
	p.hub = newHub(err == nil, time.Now)
	p.hub.set(err == nil, iface)
	if err != nil {
		p.failures = c.FailureThreshold
		p.logger.Warn("initial probe failed", clog.String("target", c.Target), clog.Error(err))
	}

	go p.loop(ctx)
	return p, nil
}

func (p *Prober) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	iface, err := p.dial(ctx)
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		p.failures = 0
		if p.hub.set(true, iface) {
			p.logger.Info("network reachable", clog.String("target", p.cfg.Target), clog.String("interface", iface))
		}
		return
	}

	p.failures++
	if p.failures < p.cfg.FailureThreshold {
		return
	}
	if p.hub.set(false, "") {
		p.logger.Warn("network unreachable", clog.String("target", p.cfg.Target), clog.Error(err))
	}
}

// dial 拨测一次，成功时返回出口网卡名
func (p *Prober) dial(ctx context.Context) (string, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	conn, err := p.dialer.DialContext(dctx, "tcp", p.cfg.Target)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return interfaceFor(conn.LocalAddr()), nil
}

// interfaceFor 根据本地地址查找网卡名
func interfaceFor(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || tcp.IP == nil {
		return ""
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, ifc := range ifaces {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.Equal(tcp.IP) {
				return ifc.Name
			}
		}
	}
	return ""
}

func (p *Prober) IsConnected() bool { return p.hub.current().Connected }

func (p *Prober) Status() Status { return p.hub.current() }

func (p *Prober) Subscribe(ctx context.Context) <-chan Event { return p.hub.subscribe(ctx) }

// Close 停止拨测并关闭所有订阅
func (p *Prober) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done
		p.hub.close()
	})
	return nil
}
