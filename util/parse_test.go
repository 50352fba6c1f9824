package util

import "testing"

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1MB", 1024 * 1024},
		{"512KB", 512 * 1024},
		{"2GB", 2 * 1024 * 1024 * 1024},
		{"100", 100},
		{" 1mb ", 1024 * 1024},
		{"", 4096},
		{"garbage", 4096},
	}
	for _, tc := range tests {
		if got := ParseSize(tc.input, 4096); got != tc.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("sk-abcdef123456", 5); got != "sk-ab***" {
		t.Errorf("MaskSecret long = %q", got)
	}
	if got := MaskSecret("sk", 5); got != "***" {
		t.Errorf("MaskSecret short = %q", got)
	}
}
