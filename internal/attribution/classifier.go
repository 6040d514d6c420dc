// Package attribution turns reposts and zaps on watched notes into payout
// records and keeps the per-process attribution batch.
package attribution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sandwichfarm/herdwatch/internal/lightning"
	"github.com/sandwichfarm/herdwatch/internal/models"
	"github.com/sandwichfarm/herdwatch/internal/ops"
)

var (
	// ErrUnsupportedKind is returned for events that are neither reposts nor zap receipts
	ErrUnsupportedKind = errors.New("unsupported event kind")
	// ErrMalformedEvent is returned when a follow-up lacks the tags it needs
	ErrMalformedEvent = errors.New("malformed follow-up event")
	// ErrBelowThreshold is returned for zaps smaller than the configured minimum
	ErrBelowThreshold = errors.New("zap amount below threshold")
)

// Classifier categorizes follow-up events and extracts their payout fields
type Classifier struct {
	decoder    lightning.Decoder
	minZapSats float64
	logger     *ops.Logger
}

// NewClassifier creates a classifier. minZapSats is the smallest zap, in
// sats, that produces a follow-up.
func NewClassifier(decoder lightning.Decoder, minZapSats int, logger *ops.Logger) *Classifier {
	if logger == nil {
		logger = ops.Default()
	}
	return &Classifier{
		decoder:    decoder,
		minZapSats: float64(minZapSats),
		logger:     logger.WithComponent("classifier"),
	}
}

// Classify returns the follow-up carried by event, or an error describing
// why the event produces none
func (c *Classifier) Classify(ctx context.Context, event *nostr.Event) (*models.FollowUp, error) {
	switch event.Kind {
	case models.KindRepost:
		return c.classifyRepost(event)
	case models.KindZapReceipt:
		return c.classifyZap(ctx, event)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKind, event.Kind)
	}
}

func (c *Classifier) classifyRepost(event *nostr.Event) (*models.FollowUp, error) {
	if event.PubKey == "" {
		return nil, fmt.Errorf("%w: repost %s has no author", ErrMalformedEvent, event.ID)
	}
	return &models.FollowUp{
		SourceEventID:    event.ID,
		Category:         models.CategoryRepost,
		AuthorID:         event.PubKey,
		Kind:             event.Kind,
		ReferencedNoteID: firstTagValue(event.Tags, "e"),
	}, nil
}

// zapRequest is the kind 9734 event embedded in a receipt's description tag.
// Some senders include a top-level amount in sats next to the event fields.
type zapRequest struct {
	nostr.Event
	TopLevelAmount *float64
}

func parseZapRequest(description string) (*zapRequest, error) {
	var req zapRequest
	if err := json.Unmarshal([]byte(description), &req.Event); err != nil {
		return nil, err
	}

	var extra struct {
		Amount *float64 `json:"amount"`
	}
	if err := json.Unmarshal([]byte(description), &extra); err == nil {
		req.TopLevelAmount = extra.Amount
	}

	return &req, nil
}

// amountSats returns the amount the request declares: the amount tag in
// millisats, otherwise the top-level amount in sats
func (r *zapRequest) amountSats() (float64, bool) {
	if v := firstTagValue(r.Tags, "amount"); v != "" {
		if msat, err := strconv.ParseFloat(v, 64); err == nil {
			return msat / 1000, true
		}
	}
	if r.TopLevelAmount != nil {
		return *r.TopLevelAmount, true
	}
	return 0, false
}

func (c *Classifier) classifyZap(ctx context.Context, event *nostr.Event) (*models.FollowUp, error) {
	bolt11 := firstTagValue(event.Tags, "bolt11")
	description := firstTagValue(event.Tags, "description")
	if description == "" {
		return nil, fmt.Errorf("%w: zap %s has no description", ErrMalformedEvent, event.ID)
	}

	req, err := parseZapRequest(description)
	if err != nil {
		return nil, fmt.Errorf("%w: zap %s description: %v", ErrMalformedEvent, event.ID, err)
	}
	if req.PubKey == "" {
		return nil, fmt.Errorf("%w: zap %s request has no sender", ErrMalformedEvent, event.ID)
	}

	amount, hasAmount := req.amountSats()

	// The settled amount from the invoice wins over whatever the request claimed
	if bolt11 != "" && c.decoder != nil {
		invoice, err := c.decoder.Decode(ctx, bolt11)
		if err != nil {
			c.logger.Warn("failed to decode bolt11", "event_id", event.ID, "error", err)
		} else {
			amount, hasAmount = invoice.Sats(), true
		}
	}

	if amount < c.minZapSats {
		return nil, fmt.Errorf("%w: %.3f sats", ErrBelowThreshold, amount)
	}

	referenced := firstTagValue(req.Tags, "e")
	if referenced == "" {
		referenced = firstTagValue(event.Tags, "e")
	}

	kind := req.Kind
	if kind == 0 {
		kind = models.KindZapRequest
	}

	return &models.FollowUp{
		SourceEventID:    event.ID,
		Category:         models.CategoryZap,
		AuthorID:         req.PubKey,
		Kind:             kind,
		ReferencedNoteID: referenced,
		Amount:           amount,
		HasAmount:        hasAmount,
	}, nil
}

func firstTagValue(tags nostr.Tags, key string) string {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == key {
			return tag[1]
		}
	}
	return ""
}
