package config

import (
	"strings"
	"testing"
	"time"
)

func baseConfig() *Config {
	return &Config{
		Port:           "8000",
		Env:            "development",
		WindowStartDay: 5,
		WindowEndDay:   10,
		MaxRetries:     5,
		RetryBaseDelay: 30 * time.Second,
		RetryCapDelay:  5 * time.Minute,
		WorkerPoolSize: 4,
	}
}

func TestValidate_DevDefaults(t *testing.T) {
	cfg := baseConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Sandbox() {
		t.Error("expected sandbox mode with no DATABASE_URL in development")
	}
}

func TestValidate_ProductionRequiresInfra(t *testing.T) {
	cfg := baseConfig()
	cfg.Env = "production"
	cfg.AuthSecret = "secret"

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}

	cfg.DatabaseURL = "postgres://localhost/clinic"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "GOV_API_URL") {
		t.Fatalf("expected GOV_API_URL error, got %v", err)
	}

	cfg.GovAPIURL = "https://compliance.example.gov/v1/submissions"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "PAYLOAD_ENCRYPTION_KEY") {
		t.Fatalf("expected PAYLOAD_ENCRYPTION_KEY error, got %v", err)
	}

	cfg.PayloadEncryptionKey = strings.Repeat("ab", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_EncryptionKeyFormat(t *testing.T) {
	cfg := baseConfig()

	cfg.PayloadEncryptionKey = "not-hex"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-hex key")
	}

	cfg.PayloadEncryptionKey = "abcd"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for short key")
	}

	cfg.PayloadEncryptionKey = strings.Repeat("00", 32)
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error for valid key: %v", err)
	}
}

func TestValidate_WindowDays(t *testing.T) {
	cases := []struct {
		name       string
		start, end int
		wantErr    bool
	}{
		{"default", 5, 10, false},
		{"single day", 7, 7, false},
		{"inverted", 10, 5, true},
		{"zero start", 0, 10, true},
		{"past day 28", 5, 29, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.WindowStartDay = tc.start
			cfg.WindowEndDay = tc.end
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("expected error for window %d-%d", tc.start, tc.end)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error for window %d-%d: %v", tc.start, tc.end, err)
			}
		})
	}
}

func TestResolvedAuthMode(t *testing.T) {
	cfg := baseConfig()
	if got := cfg.ResolvedAuthMode(); got != "development" {
		t.Errorf("expected development, got %q", got)
	}

	cfg.Env = "production"
	if got := cfg.ResolvedAuthMode(); got != "standalone" {
		t.Errorf("expected standalone, got %q", got)
	}

	cfg.AuthMode = "development"
	if got := cfg.ResolvedAuthMode(); got != "development" {
		t.Errorf("explicit AUTH_MODE should win, got %q", got)
	}
}

func TestValidate_StandaloneNeedsSecret(t *testing.T) {
	cfg := baseConfig()
	cfg.AuthMode = "standalone"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "AUTH_SECRET") {
		t.Fatalf("expected AUTH_SECRET error, got %v", err)
	}
	cfg.AuthSecret = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
