package netclient

import (
	"bytes"
	"time"
)

// TimestampLayout 服务端使用的时间格式：UTC，微秒精度，字面量 Z
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp 按 TimestampLayout 编解码的时间，响应结构体中直接使用
type Timestamp struct {
	time.Time
}

// NewTimestamp 截断到微秒并转为 UTC
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Microsecond)}
}

// FormatTimestamp 按 TimestampLayout 格式化
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp 解析 TimestampLayout 格式，结果为 UTC
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	b := make([]byte, 0, len(TimestampLayout)+2)
	b = append(b, '"')
	b = t.UTC().AppendFormat(b, TimestampLayout)
	return append(b, '"'), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return &time.ParseError{Layout: TimestampLayout, Value: string(data), Message: ": not a JSON string"}
	}
	parsed, err := ParseTimestamp(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
