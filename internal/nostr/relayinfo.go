package nostr

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// NIP numbers herdwatch depends on
const (
	NIPZaps = 57
)

// RelayInfo is the relay information document (NIP-11)
type RelayInfo struct {
	URL           string `json:"-"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	PubKey        string `json:"pubkey"`
	Contact       string `json:"contact"`
	SupportedNIPs []int  `json:"supported_nips"`
	Software      string `json:"software"`
	Version       string `json:"version"`
}

// Supports reports whether the relay lists nip among its supported NIPs
func (r *RelayInfo) Supports(nip int) bool {
	return r != nil && slices.Contains(r.SupportedNIPs, nip)
}

// RelayCheck is the outcome of probing one seed relay
type RelayCheck struct {
	URL     string
	Info    *RelayInfo
	Latency time.Duration
	Err     error
}

// FetchRelayInfo fetches the NIP-11 document of a ws/wss relay
func (c *Client) FetchRelayInfo(ctx context.Context, wsURL string) (*RelayInfo, error) {
	httpURL := strings.Replace(wsURL, "ws://", "http://", 1)
	httpURL = strings.Replace(httpURL, "wss://", "https://", 1)

	ctx, cancel := context.WithTimeout(ctx, c.GetDefaultTimeout())
	defer cancel()

	resp, err := c.httpClient().R().
		SetContext(ctx).
		SetHeader("Accept", "application/nostr+json").
		Get(httpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch NIP-11 info: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("NIP-11 request failed: status %d", resp.StatusCode())
	}

	var info RelayInfo
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, fmt.Errorf("failed to parse NIP-11 response: %w", err)
	}
	info.URL = wsURL

	return &info, nil
}

// CheckRelays probes every seed relay's information document
func (c *Client) CheckRelays(ctx context.Context) []RelayCheck {
	relays := c.GetSeedRelays()
	checks := make([]RelayCheck, 0, len(relays))
	for _, url := range relays {
		start := time.Now()
		info, err := c.FetchRelayInfo(ctx, url)
		checks = append(checks, RelayCheck{
			URL:     url,
			Info:    info,
			Latency: time.Since(start),
			Err:     err,
		})
		if err != nil {
			c.logger.Warn("relay check failed", "relay", url, "error", err)
		}
	}
	return checks
}

func (c *Client) httpClient() *resty.Client {
	c.httpOnce.Do(func() {
		c.http = resty.New()
	})
	return c.http
}
