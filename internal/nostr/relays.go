package nostr

import (
	"github.com/nbd-wtf/go-nostr"
)

// ValidateRelayURL performs basic validation on a relay URL
func ValidateRelayURL(url string) bool {
	return nostr.IsValidRelayURL(url)
}

// NormalizeRelays normalizes relay URLs, drops duplicates and splits out
// the ones that are not valid ws/wss URLs. Order is preserved.
func NormalizeRelays(urls []string) (valid, invalid []string) {
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		if !ValidateRelayURL(raw) {
			invalid = append(invalid, raw)
			continue
		}
		url := nostr.NormalizeURL(raw)
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		valid = append(valid, url)
	}
	return valid, invalid
}
