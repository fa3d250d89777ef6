package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds a whole snapshot download, body included.
const DefaultTimeout = 60 * time.Second

// NewClient returns an HTTP client with the given overall timeout. A
// non-positive timeout falls back to DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}
