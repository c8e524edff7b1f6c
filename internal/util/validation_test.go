package util

import (
	"strings"
	"testing"
)

func TestValidateHostID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "hostname with suffix", id: "trading-box-a1b2c3", wantErr: false},
		{name: "dots and underscores", id: "srv_01.local", wantErr: false},
		{name: "max length", id: strings.Repeat("a", MaxHostIDLength), wantErr: false},
		{name: "empty", id: "", wantErr: true},
		{name: "too long", id: strings.Repeat("a", MaxHostIDLength+1), wantErr: true},
		{name: "space", id: "my host", wantErr: true},
		{name: "slash", id: "a/b", wantErr: true},
		{name: "non-ascii", id: "hôst", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHostID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHostID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateHookURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "empty disables hook", raw: "", wantErr: false},
		{name: "https", raw: "https://api.render.com/v1/services/srv-1/suspend", wantErr: false},
		{name: "http with port", raw: "http://localhost:9000/pause", wantErr: false},
		{name: "no scheme", raw: "api.render.com/suspend", wantErr: true},
		{name: "ftp", raw: "ftp://example.com/pause", wantErr: true},
		{name: "no host", raw: "https:///pause", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHookURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHookURL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestValidateListenAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{addr: ":8080", wantErr: false},
		{addr: "127.0.0.1:9000", wantErr: false},
		{addr: "[::1]:443", wantErr: false},
		{addr: "8080", wantErr: true},
		{addr: ":0", wantErr: true},
		{addr: ":70000", wantErr: true},
		{addr: ":http", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := ValidateListenAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateListenAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePortRange(t *testing.T) {
	for _, port := range []int{1, 80, 65535} {
		if err := ValidatePortRange(port); err != nil {
			t.Errorf("ValidatePortRange(%d) unexpected error = %v", port, err)
		}
	}
	for _, port := range []int{0, -1, 65536} {
		if err := ValidatePortRange(port); err == nil {
			t.Errorf("ValidatePortRange(%d) expected error", port)
		}
	}
}
