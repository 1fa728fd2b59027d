package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("jwt.secret", "s3cret")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.PingPeriod != 54*time.Second {
		t.Fatalf("expected ping period 54s, got %s", cfg.PingPeriod)
	}
	if cfg.RateLimit.Interval != 10*time.Second {
		t.Fatalf("expected rate interval 10s, got %s", cfg.RateLimit.Interval)
	}
	if len(cfg.ICEServers) != 1 {
		t.Fatalf("expected one default ice server, got %v", cfg.ICEServers)
	}
	if cfg.Mongo.URI != "" || cfg.Redis.Addr != "" {
		t.Fatalf("expected external stores disabled by default")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			SendBuffer: 8,
			JWT:        JWTConfig{Secret: "x"},
			RateLimit:  RateLimitConfig{Events: 1, Interval: time.Second},
			Voice:      VoiceConfig{DefaultCapacity: 10, MaxCapacity: 20},
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"no jwt secret", func(c *Config) { c.JWT.Secret = "" }, false},
		{"zero buffer", func(c *Config) { c.SendBuffer = 0 }, false},
		{"default above max", func(c *Config) { c.Voice.DefaultCapacity = 30 }, false},
		{"zero capacity", func(c *Config) { c.Voice.DefaultCapacity = 0 }, false},
		{"zero rate", func(c *Config) { c.RateLimit.Events = 0 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			err := c.validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("VOICE_JWT_SECRET", "from-env")
	t.Setenv("VOICE_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Fatalf("expected jwt secret from env, got %q", cfg.JWT.Secret)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Port)
	}
}
