package minio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func validConfig() *Config {
	return &Config{
		Endpoint:        "localhost:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestConfigValidateMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"endpoint", func(c *Config) { c.Endpoint = "" }},
		{"access key", func(c *Config) { c.AccessKeyID = "" }},
		{"secret key", func(c *Config) { c.SecretAccessKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewClientRejectsNilConfig(t *testing.T) {
	_, err := NewClient(nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Endpoint = ""
	_, err := NewClient(cfg, nil)
	assert.Error(t, err)
}

func TestWrapErrorNilPassthrough(t *testing.T) {
	assert.NoError(t, WrapError("PutObject", nil, "b", "k"))
	assert.NoError(t, WrapErrorWithMessage("PutObject", nil, "oops"))
}

func TestWrapErrorFormatting(t *testing.T) {
	base := errors.New("boom")

	err := WrapError("PutObject", base, "archive", "sessions/a.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "PutObject")
	assert.Contains(t, err.Error(), "bucket=archive")
	assert.Contains(t, err.Error(), "object=sessions/a.json")

	err = WrapError("BucketExists", base, "archive", "")
	assert.NotContains(t, err.Error(), "object=")

	err = WrapErrorWithMessage("Ping", base, "server unreachable")
	assert.Contains(t, err.Error(), "server unreachable")
}

func TestClosedClientRefusesOperations(t *testing.T) {
	c := &Client{config: validConfig(), logger: zap.NewNop()}
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.BucketExists(context.Background(), "archive")
	assert.ErrorIs(t, err, ErrClientClosed)

	_, err = c.PutObject(context.Background(), "archive", "k", nil, 0, PutObjectOptions{})
	assert.ErrorIs(t, err, ErrClientClosed)
}
