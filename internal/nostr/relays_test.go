package nostr

import (
	"testing"
)

func TestValidateRelayURL(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		valid bool
	}{
		{name: "valid wss URL", url: "wss://relay.test", valid: true},
		{name: "valid ws URL", url: "ws://relay.test", valid: true},
		{name: "invalid http URL", url: "http://relay.test", valid: false},
		{name: "invalid https URL", url: "https://relay.test", valid: false},
		{name: "empty URL", url: "", valid: false},
		{name: "invalid format", url: "not-a-url", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateRelayURL(tt.url); got != tt.valid {
				t.Errorf("ValidateRelayURL(%q) = %v, want %v", tt.url, got, tt.valid)
			}
		})
	}
}

func TestNormalizeRelays(t *testing.T) {
	valid, invalid := NormalizeRelays([]string{
		"wss://relay.one",
		"wss://relay.one/",
		"https://not-a-relay.test",
		"wss://relay.two",
	})

	if len(valid) != 2 {
		t.Fatalf("Expected 2 valid relays, got %d: %v", len(valid), valid)
	}
	if valid[0] != "wss://relay.one" || valid[1] != "wss://relay.two" {
		t.Errorf("Unexpected normalized relays: %v", valid)
	}
	if len(invalid) != 1 || invalid[0] != "https://not-a-relay.test" {
		t.Errorf("Unexpected invalid relays: %v", invalid)
	}
}
