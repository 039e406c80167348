package cache

import (
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "report:9f2c:top_customers", false},
		{"valid simple key", "mykey", false},
		{"valid with dots", "api.v1.reports", false},
		{"empty key", "", true},
		{"too long", strings.Repeat("a", 300), true},
		{"control char null", "key\x00value", true},
		{"control char newline", "key\nvalue", true},
		{"leading space", " key", true},
		{"trailing space", "key ", true},
		{"unicode control", "key\x7fvalue", true},
		{"valid unicode", "café", false},
		{"exactly 250 chars", strings.Repeat("a", 250), false},
		{"251 chars", strings.Repeat("a", 251), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestKeyPattern_Build(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		separator string
		parts     []string
		want      string
	}{
		{"prefix only", "report", ":", nil, "report"},
		{"default separator", "report", "", []string{"abc"}, "report:abc"},
		{"custom separator", "report", "/", []string{"abc", "quartiles"}, "report/abc/quartiles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewKeyPattern(tt.prefix, tt.separator).Build(tt.parts...); got != tt.want {
				t.Errorf("Build(%v) = %q, want %q", tt.parts, got, tt.want)
			}
		})
	}
}

func TestReportKey(t *testing.T) {
	if got, want := ReportKey("9f2c", "quartiles"), "report:9f2c:quartiles"; got != want {
		t.Errorf("ReportKey() = %q, want %q", got, want)
	}
	if got, want := ReportKey("9f2c", ""), "report:9f2c:all"; got != want {
		t.Errorf("ReportKey(all) = %q, want %q", got, want)
	}
	if ReportKey("a", "quartiles") == ReportKey("b", "quartiles") {
		t.Error("keys for different fingerprints must differ")
	}
	if err := ValidateKey(ReportKey("9f2c", "moving_averages")); err != nil {
		t.Errorf("ReportKey produced an invalid key: %v", err)
	}
}
