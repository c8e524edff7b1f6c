package sdk

import (
	"strings"
	"testing"
	"time"
)

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ClientConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config with all fields",
			config: ClientConfig{
				BaseURLs:      []string{"https://local.example.com:8080", "https://standby.example.com"},
				SignalSecret:  "tv-secret",
				WebhookSecret: "hook-secret",
			},
			wantErr: false,
		},
		{
			name: "valid config with minimal fields",
			config: ClientConfig{
				BaseURLs: []string{"https://local.example.com"},
			},
			wantErr: false,
		},
		{
			name:    "missing base URLs",
			config:  ClientConfig{},
			wantErr: true,
			errMsg:  "at least one base URL is required",
		},
		{
			name: "empty base URL",
			config: ClientConfig{
				BaseURLs: []string{""},
			},
			wantErr: true,
			errMsg:  "base URL at index 0 is empty",
		},
		{
			name: "invalid scheme",
			config: ClientConfig{
				BaseURLs: []string{"ftp://local.example.com"},
			},
			wantErr: true,
			errMsg:  "must start with http:// or https://",
		},
		{
			name: "missing host",
			config: ClientConfig{
				BaseURLs: []string{"https://"},
			},
			wantErr: true,
			errMsg:  "has no host",
		},
		{
			name: "duplicate after normalization",
			config: ClientConfig{
				BaseURLs: []string{"https://local.example.com", "https://local.example.com/"},
			},
			wantErr: true,
			errMsg:  "index 1 duplicates index 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error but got nil")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want containing %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestClientConfig_NormalizesURLs(t *testing.T) {
	config := ClientConfig{BaseURLs: []string{"  https://local.example.com/ "}}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if config.BaseURLs[0] != "https://local.example.com" {
		t.Errorf("BaseURLs[0] = %q, want trimmed URL", config.BaseURLs[0])
	}
}

func TestClientConfig_Auth(t *testing.T) {
	config := ClientConfig{SignalSecret: "  "}
	if config.HasSignalAuth() {
		t.Error("HasSignalAuth() = true for blank secret")
	}
	config.SignalSecret = "tv"
	if !config.HasSignalAuth() {
		t.Error("HasSignalAuth() = false with secret set")
	}
	if config.HasWebhookAuth() {
		t.Error("HasWebhookAuth() = true without secret")
	}
}

func TestClientConfig_Defaults(t *testing.T) {
	config := ClientConfig{BaseURLs: []string{"https://local.example.com"}}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if config.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", config.RetryAttempts)
	}
	if config.RetryWaitMin != time.Second {
		t.Errorf("RetryWaitMin = %v, want 1s", config.RetryWaitMin)
	}
	if config.RetryWaitMax != 30*time.Second {
		t.Errorf("RetryWaitMax = %v, want 30s", config.RetryWaitMax)
	}
	if config.HTTPClient == nil {
		t.Error("HTTPClient should be created")
	}
}
