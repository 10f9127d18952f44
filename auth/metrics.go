package auth

// Auth 组件导出的指标名称常量。
const (
	// MetricRefreshes 令牌刷新次数，标签: result=success|error
	MetricRefreshes = "auth_token_refreshes_total"

	// MetricSignOuts 登出次数，标签: reason
	MetricSignOuts = "auth_sign_outs_total"
)
