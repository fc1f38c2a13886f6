package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestOriginPolicy(t *testing.T) {
	p := NewOriginPolicy([]string{"HTTP://Office.Example:8080", "not a url", ""}, zaptest.NewLogger(t))

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact", "http://office.example:8080", true},
		{"case insensitive", "http://OFFICE.example:8080", true},
		{"other port", "http://office.example:9090", false},
		{"other host", "http://evil.example:8080", false},
		{"missing", "", false},
		{"garbage", "::", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, p.Check(r))
		})
	}
}

func TestOriginPolicy_Wildcard(t *testing.T) {
	p := NewOriginPolicy([]string{"*"}, nil)
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anything.example")
	assert.True(t, p.Allowed(r))

	r.Header.Del("Origin")
	assert.False(t, p.Allowed(r))
}
