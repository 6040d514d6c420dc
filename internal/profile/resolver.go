// Package profile resolves an actor's payout metadata from their kind-0 events.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/sandwichfarm/herdwatch/internal/models"
	"github.com/sandwichfarm/herdwatch/internal/ops"
)

// ErrNoPayoutAddress is returned when no metadata event carries a lud16
var ErrNoPayoutAddress = errors.New("no profile with a payout address")

// Querier fetches stored events matching a filter
type Querier interface {
	FetchEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
}

// Resolver looks up actor profiles on the feed. Results are never cached;
// every call queries the relays again.
type Resolver struct {
	querier Querier
	timeout time.Duration
	logger  *ops.Logger
}

// NewResolver creates a new profile resolver
func NewResolver(q Querier, timeout time.Duration, logger *ops.Logger) *Resolver {
	if logger == nil {
		logger = ops.Default()
	}
	return &Resolver{
		querier: q,
		timeout: timeout,
		logger:  logger.WithComponent("profile"),
	}
}

type metadata struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Nip05       string `json:"nip05"`
	Lud16       string `json:"lud16"`
}

// Resolve returns the profile from the newest kind-0 event of pubkey that
// carries a lud16 address
func (r *Resolver) Resolve(ctx context.Context, pubkey string) (*models.Profile, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	filter := nostr.Filter{
		Authors: []string{pubkey},
		Kinds:   []int{models.KindMetadata},
	}

	events, err := r.querier.FetchEvents(ctx, filter)
	if err != nil && len(events) == 0 {
		return nil, fmt.Errorf("failed to fetch metadata for %s: %w", pubkey, err)
	}

	var (
		best     *metadata
		bestTime nostr.Timestamp
	)
	for _, event := range events {
		if event.PubKey != pubkey || event.Kind != models.KindMetadata {
			continue
		}

		var md metadata
		if err := json.Unmarshal([]byte(event.Content), &md); err != nil {
			r.logger.Warn("unparseable metadata content", "event_id", event.ID, "error", err)
			continue
		}
		if strings.TrimSpace(md.Lud16) == "" {
			continue
		}

		if best == nil || event.CreatedAt > bestTime {
			best = &md
			bestTime = event.CreatedAt
		}
	}

	if best == nil {
		return nil, ErrNoPayoutAddress
	}

	return &models.Profile{
		PayoutAddress: strings.TrimSpace(best.Lud16),
		IdentityProof: strings.TrimSpace(best.Nip05),
		DisplayName:   displayName(best),
	}, nil
}

// displayName applies the priority display_name > name > "Anon"
func displayName(md *metadata) string {
	if md.DisplayName != "" {
		return md.DisplayName
	}
	if md.Name != "" {
		return md.Name
	}
	return models.DefaultDisplayName
}

// Handle returns the nprofile encoding of pubkey
func Handle(pubkey string) (string, error) {
	nprofile, err := nip19.EncodeProfile(pubkey, nil)
	if err != nil {
		return "", fmt.Errorf("failed to encode nprofile: %w", err)
	}
	return nprofile, nil
}
