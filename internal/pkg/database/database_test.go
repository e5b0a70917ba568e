package database

import (
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "missing host",
			config: &Config{
				Host:     "",
				Port:     5432,
				User:     "user",
				DBName:   "test",
				SSLMode:  "disable",
				LogLevel: "warn",
			},
			wantErr: true,
		},
		{
			name: "invalid port",
			config: &Config{
				Host:     "localhost",
				Port:     0,
				User:     "user",
				DBName:   "test",
				SSLMode:  "disable",
				LogLevel: "warn",
			},
			wantErr: true,
		},
		{
			name: "invalid SSL mode",
			config: &Config{
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				DBName:   "test",
				SSLMode:  "invalid",
				LogLevel: "warn",
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			config: &Config{
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				DBName:   "test",
				SSLMode:  "disable",
				LogLevel: "invalid",
			},
			wantErr: true,
		},
		{
			name: "idle exceeds open",
			config: &Config{
				Host:         "localhost",
				Port:         5432,
				User:         "user",
				DBName:       "test",
				SSLMode:      "disable",
				LogLevel:     "warn",
				MaxIdleConns: 100,
				MaxOpenConns: 10,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := &Config{
		Host:     "db.local",
		Port:     5433,
		User:     "bridge",
		Password: "secret",
		DBName:   "chat_bridge",
		SSLMode:  "require",
		Timezone: "UTC",
	}

	dsn := cfg.DSN()
	for _, want := range []string{
		"host=db.local",
		"port=5433",
		"user=bridge",
		"password=secret",
		"dbname=chat_bridge",
		"sslmode=require",
		"TimeZone=UTC",
	} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN() missing %q in %q", want, dsn)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DBName != "chat_bridge" {
		t.Errorf("default DBName = %q, want chat_bridge", cfg.DBName)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("default Timezone = %q, want UTC", cfg.Timezone)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestIsRecordNotFoundError(t *testing.T) {
	if !IsRecordNotFoundError(gorm.ErrRecordNotFound) {
		t.Error("gorm.ErrRecordNotFound must be detected")
	}
	wrapped := errors.Join(errors.New("query session"), gorm.ErrRecordNotFound)
	if !IsRecordNotFoundError(wrapped) {
		t.Error("wrapped not-found must be detected")
	}
	if IsRecordNotFoundError(errors.New("boom")) {
		t.Error("unrelated error misdetected")
	}
}
