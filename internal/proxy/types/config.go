package types

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrMissingBaseURL = errors.New("base URL is required")
	ErrMissingModel   = errors.New("model is required")
)

// Config holds the connection settings for one proxy endpoint.
type Config struct {
	BaseURL string            // endpoint root, e.g. http://localhost:4000/v1
	APIKey  string            // bearer credential, may be empty for local proxies
	Model   string            // model identifier sent on every request
	Timeout time.Duration     // per-request timeout
	Headers map[string]string // extra HTTP headers
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
	return nil
}

// CacheKey identifies a proxy connection for registry caching. Two
// configs with the same endpoint and credential share cached state.
func (c *Config) CacheKey() string {
	return c.BaseURL + "|" + c.APIKey
}
