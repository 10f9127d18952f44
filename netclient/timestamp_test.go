package netclient

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_JSON(t *testing.T) {
	type payload struct {
		CreatedAt Timestamp `json:"created_at"`
	}

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"created_at":"2024-03-05T07:08:09.123456Z"}`), &p))
	want := time.Date(2024, 3, 5, 7, 8, 9, 123456000, time.UTC)
	assert.True(t, want.Equal(p.CreatedAt.Time))
	assert.Equal(t, time.UTC, p.CreatedAt.Location())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"created_at":"2024-03-05T07:08:09.123456Z"}`, string(out))

	// 非 UTC 时间按 UTC 输出，纳秒截断到微秒
	local := time.Date(2024, 3, 5, 15, 8, 9, 123456789, time.FixedZone("CST", 8*3600))
	out, err = json.Marshal(payload{CreatedAt: NewTimestamp(local)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"created_at":"2024-03-05T07:08:09.123456Z"}`, string(out))
}

func TestTimestamp_NullAndInvalid(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())

	out, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	assert.Error(t, json.Unmarshal([]byte(`"2024-03-05 07:08:09"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`12345`), &ts))
}

func TestFormatParseTimestamp(t *testing.T) {
	tm := time.Date(2023, 12, 31, 23, 59, 59, 1000, time.UTC)
	s := FormatTimestamp(tm)
	assert.Equal(t, "2023-12-31T23:59:59.000001Z", s)
	back, err := ParseTimestamp(s)
	require.NoError(t, err)
	assert.True(t, tm.Equal(back))
}
