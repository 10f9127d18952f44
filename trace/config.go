package trace

// Config 链路追踪配置
//
// Endpoint 为空时不导出，只在进程内生成 TraceID 并完成上下文传播。
type Config struct {
	ServiceName string  `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	Sampler     float64 `json:"sampler" yaml:"sampler" mapstructure:"sampler"`
	Batcher     string  `json:"batcher" yaml:"batcher" mapstructure:"batcher"` // batch | simple
	Insecure    bool    `json:"insecure" yaml:"insecure" mapstructure:"insecure"`
}

// DefaultConfig 返回默认配置，导出到本地 OTLP gRPC 端口
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
	}
}
