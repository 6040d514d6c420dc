package nostr

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/herdwatch/internal/config"
	"github.com/sandwichfarm/herdwatch/internal/ops"
)

// ErrNoRelays is returned when a request is made with no relays configured
var ErrNoRelays = errors.New("no relays configured")

// Client provides a high-level interface for interacting with Nostr relays
type Client struct {
	pool        *nostr.SimplePool
	relayConfig *config.Relays
	seeds       []string
	logger      *ops.Logger

	httpOnce sync.Once
	http     *resty.Client
}

// New creates a new Nostr client with the given configuration. Seed relays
// are normalized and invalid ones are dropped with a warning.
func New(ctx context.Context, relayConfig *config.Relays, logger *ops.Logger) *Client {
	if logger == nil {
		logger = ops.Default()
	}
	c := &Client{
		pool:        nostr.NewSimplePool(ctx),
		relayConfig: relayConfig,
		seeds:       []string{},
		logger:      logger.WithComponent("nostr"),
	}
	if relayConfig != nil {
		valid, invalid := NormalizeRelays(relayConfig.Seeds)
		for _, url := range invalid {
			c.logger.Warn("ignoring invalid relay url", "relay", url)
		}
		if valid != nil {
			c.seeds = valid
		}
	}
	return c
}

// FetchEvents fetches stored events matching the filter from the seed relays
// and returns once every relay has sent EOSE or ctx is done
func (c *Client) FetchEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	relays := c.GetSeedRelays()
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.GetDefaultTimeout())
	defer cancel()

	events := make([]*nostr.Event, 0)
	for relayEvent := range c.pool.FetchMany(fetchCtx, relays, filter) {
		if relayEvent.Event != nil {
			events = append(events, relayEvent.Event)
		}
	}

	if err := ctx.Err(); err != nil {
		return events, err
	}
	return events, nil
}

// Subscribe opens a streaming subscription on the seed relays. The returned
// channel is closed when every relay connection has ended or ctx is done.
// Events without an id or author are logged and dropped.
func (c *Client) Subscribe(ctx context.Context, filter nostr.Filter) (<-chan *nostr.Event, error) {
	relays := c.GetSeedRelays()
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}

	eventChan := make(chan *nostr.Event, 100)

	go func() {
		defer close(eventChan)

		c.logger.Debug("starting subscription", "relays", len(relays), "kinds", filter.Kinds)

		eventCount := 0
		for relayEvent := range c.pool.SubscribeMany(ctx, relays, filter) {
			event := relayEvent.Event
			if event == nil {
				continue
			}
			if event.ID == "" || event.PubKey == "" {
				c.logger.Warn("dropping malformed event", "relay", relayURL(relayEvent))
				continue
			}

			eventCount++
			select {
			case eventChan <- event:
			case <-ctx.Done():
				c.logger.Debug("subscription cancelled", "events", eventCount)
				return
			}
		}

		c.logger.Debug("subscription channel closed", "events", eventCount)
	}()

	return eventChan, nil
}

func relayURL(re nostr.RelayEvent) string {
	if re.Relay == nil {
		return ""
	}
	return re.Relay.URL
}

// Close closes all relay connections
func (c *Client) Close() {
	c.pool.Close("client shutting down")
	if c.http != nil {
		c.http.GetClient().CloseIdleConnections()
	}
}

// GetSeedRelays returns a copy of the configured seed relays. The pool
// rewrites the url slice it is handed, so every request gets its own.
func (c *Client) GetSeedRelays() []string {
	return slices.Clone(c.seeds)
}

// GetDefaultTimeout returns the configured timeout duration
func (c *Client) GetDefaultTimeout() time.Duration {
	if c.relayConfig == nil || c.relayConfig.Policy.ConnectTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.relayConfig.Policy.ConnectTimeoutMs) * time.Millisecond
}
