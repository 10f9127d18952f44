package netclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Canonicalization(t *testing.T) {
	base := Fingerprint("GET", "https://api.example.com/v1/items?a=1&b=2")

	same := []string{
		"https://api.example.com/v1/items?b=2&a=1",
		"HTTPS://API.Example.com/v1/items?a=1&b=2",
		"https://api.example.com:443/v1/items?a=1&b=2",
		"https://api.example.com/v1/items?a=1&b=2#section",
	}
	for _, u := range same {
		assert.Equal(t, base, Fingerprint("GET", u), u)
	}
	assert.Equal(t, base, Fingerprint("get", "https://api.example.com/v1/items?a=1&b=2"))

	different := []string{
		"https://api.example.com/v1/items?a=1&b=3",
		"https://api.example.com/v1/items",
		"http://api.example.com/v1/items?a=1&b=2",
		"https://api.example.com:8443/v1/items?a=1&b=2",
		"https://api.example.com/v1/Items?a=1&b=2",
	}
	for _, u := range different {
		assert.NotEqual(t, base, Fingerprint("GET", u), u)
	}
	assert.NotEqual(t, base, Fingerprint("POST", "https://api.example.com/v1/items?a=1&b=2"))
}

func TestFingerprint_RepeatedQueryValues(t *testing.T) {
	assert.Equal(t,
		Fingerprint("GET", "http://h/p?tag=b&tag=a"),
		Fingerprint("GET", "http://h/p?tag=a&tag=b"))
	assert.Equal(t, Fingerprint("GET", "http://h"), Fingerprint("GET", "http://h/"))
	assert.Len(t, Fingerprint("GET", "http://h/"), 64)
}
