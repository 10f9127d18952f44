package cache

const (
	// MetricLookups 查找次数，标签 result=hit|stale|miss
	MetricLookups = "cache_lookups_total"

	// MetricExpired 在线查找时因过期被淘汰的条目数
	MetricExpired = "cache_expired_total"

	// MetricRejected 单条超过字节上限而未写入的次数
	MetricRejected = "cache_rejected_total"
)
