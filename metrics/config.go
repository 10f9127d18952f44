package metrics

// Config 指标系统配置
//
//	metrics:
//	  enabled: true
//	  service_name: "capsule"
//	  version: "v0.1.0"
//	  port: 9090
//	  path: "/metrics"
type Config struct {
	// Enabled 为 false 时 New 返回 Discard
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	Version     string `mapstructure:"version" yaml:"version"`

	// Port 大于 0 且 Path 非空时启动 Prometheus 抓取端点
	Port int    `mapstructure:"port" yaml:"port"`
	Path string `mapstructure:"path" yaml:"path"`
}
