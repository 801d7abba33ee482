package main

import "testing"

// TestShortFingerprint verifies abbreviation never slices past the end
// of a short ledger fingerprint.
func TestShortFingerprint(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"abc":              "abc",
		"0123456789ab":     "0123456789ab",
		"0123456789abcdef": "0123456789ab",
	}
	for in, want := range cases {
		if got := shortFingerprint(in); got != want {
			t.Errorf("shortFingerprint(%q) = %q, want %q", in, got, want)
		}
	}
}
