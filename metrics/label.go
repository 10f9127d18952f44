package metrics

import "strconv"

// Label 指标维度。标签值应当是低基数的，不要放请求 ID 一类的值。
type Label struct {
	Key   string
	Value string
}

// L 构造 Label
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}

const (
	LabelMethod      = "method"
	LabelHost        = "host"
	LabelStatusClass = "status_class"
	LabelOutcome     = "outcome"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// HTTPStatusClass 返回 1xx/2xx/3xx/4xx/5xx，无响应或越界时为 unknown
func HTTPStatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
