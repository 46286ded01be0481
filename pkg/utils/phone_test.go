package utils

import "testing"

func TestDigitsOnly(t *testing.T) {
	cases := map[string]string{
		"+91 98765 43210": "919876543210",
		"(080) 1234-5678": "08012345678",
		"9876543210":      "9876543210",
		"":                "",
		"abc":             "",
	}
	for in, want := range cases {
		if got := DigitsOnly(in); got != want {
			t.Fatalf("DigitsOnly(%q) = %q, want %q", in, got, want)
		}
	}
}
