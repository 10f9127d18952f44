package netclient

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Fingerprint 由方法与规范化后的绝对 URL 计算请求指纹，
// 同时作为去重键、缓存键与离线队列的合并键。
//
// 规范化：scheme 与 host 小写，去掉默认端口，查询参数按键再按值排序，丢弃 fragment。
// 无法解析的 URL 按原文参与计算。
func Fingerprint(method, rawURL string) string {
	canonical := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		canonical = canonicalURL(u)
	}
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{' '})
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	host := strings.ToLower(c.Host)
	switch {
	case c.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case c.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	c.Host = host
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil
	if c.RawQuery != "" {
		q := c.Query()
		for _, vs := range q {
			sort.Strings(vs)
		}
		// Encode 按键排序
		c.RawQuery = q.Encode()
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}
