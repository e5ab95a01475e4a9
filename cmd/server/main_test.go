package main

import (
	"testing"

	"tillbook/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "123456"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidatePINStrength(t *testing.T) {
	cases := []struct {
		pin    string
		wantOK bool
	}{
		{"739154", true},
		{"222222", false},
		{"345678", false},
		{"987654", false},
		{"112233", false},
	}
	for _, tc := range cases {
		err := validatePINStrength(tc.pin)
		if tc.wantOK && err != nil {
			t.Fatalf("pin %s: expected ok, got %v", tc.pin, err)
		}
		if !tc.wantOK && err == nil {
			t.Fatalf("pin %s: expected rejection", tc.pin)
		}
	}
}
