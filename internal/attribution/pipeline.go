package attribution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sandwichfarm/herdwatch/internal/models"
	"github.com/sandwichfarm/herdwatch/internal/ops"
	"github.com/sandwichfarm/herdwatch/internal/profile"
)

// RepostPayout is the flat payout share for a repost
const RepostPayout = 0.1

var (
	// ErrSelfAuthor is returned for follow-ups authored by the watcher's own key
	ErrSelfAuthor = errors.New("follow-up from self")
	// ErrAlreadyProcessed is returned once an author has been attributed
	ErrAlreadyProcessed = errors.New("author already attributed")
	// ErrIneligible is returned when the author's profile cannot be paid
	ErrIneligible = errors.New("author not eligible")
)

// ProfileResolver resolves an actor's payout profile
type ProfileResolver interface {
	Resolve(ctx context.Context, pubkey string) (*models.Profile, error)
}

// AddressValidator checks a payout address can receive payments
type AddressValidator interface {
	Validate(ctx context.Context, address string) error
}

// IdentityVerifier checks an identity proof belongs to pubkey
type IdentityVerifier interface {
	Verify(ctx context.Context, identifier, pubkey string) error
}

// Deliverer pushes the full attribution batch downstream
type Deliverer interface {
	Deliver(ctx context.Context, records []models.Record) error
}

// Pipeline enriches follow-ups into records. It owns the set of attributed
// authors and the cumulative batch; both only grow.
type Pipeline struct {
	self       string
	profiles   ProfileResolver
	addresses  AddressValidator
	identities IdentityVerifier
	deliverer  Deliverer
	metrics    *ops.Metrics
	logger     *ops.Logger
	tracer     trace.Tracer

	mu        sync.Mutex
	processed map[string]struct{}
	inflight  map[string]struct{}
	batch     []models.Record

	// deliverMu orders append+deliver so batches reach the webhook in append order
	deliverMu sync.Mutex
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithAddressValidator rejects actors whose payout address does not validate
func WithAddressValidator(v AddressValidator) Option {
	return func(p *Pipeline) { p.addresses = v }
}

// WithIdentityVerifier blanks identity proofs that do not verify
func WithIdentityVerifier(v IdentityVerifier) Option {
	return func(p *Pipeline) { p.identities = v }
}

// WithMetrics records pipeline counters
func WithMetrics(m *ops.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *ops.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline that never attributes selfPubkey
func NewPipeline(selfPubkey string, profiles ProfileResolver, deliverer Deliverer, opts ...Option) *Pipeline {
	p := &Pipeline{
		self:      selfPubkey,
		profiles:  profiles,
		deliverer: deliverer,
		logger:    ops.Default(),
		tracer:    otel.Tracer("github.com/sandwichfarm/herdwatch/internal/attribution"),
		processed: make(map[string]struct{}),
		inflight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("pipeline")
	return p
}

// PayoutShare applies the payout policy: reposts earn a flat share, zaps
// earn amount/100 capped at 1.0
func PayoutShare(fu *models.FollowUp) float64 {
	if fu.Category == models.CategoryRepost {
		return RepostPayout
	}
	amount := 0.0
	if fu.HasAmount {
		amount = fu.Amount
	}
	return math.Min(amount/100, 1.0)
}

// NormalizeKind reports zap requests as the receipt kind; both are the same payment
func NormalizeKind(kind int) int {
	if kind == models.KindZapRequest {
		return models.KindZapReceipt
	}
	return kind
}

// Enrich turns a follow-up into a record, appends it and delivers the whole
// batch. Policy skips come back as errors wrapping ErrSelfAuthor,
// ErrAlreadyProcessed or ErrIneligible. A failed delivery is logged and
// does not fail the call.
func (p *Pipeline) Enrich(ctx context.Context, fu *models.FollowUp) (rec *models.Record, err error) {
	ctx, span := p.tracer.Start(ctx, "attribution.Enrich", trace.WithAttributes(
		attribute.String("pubkey", fu.AuthorID),
		attribute.Int("kind", fu.Kind),
		attribute.String("category", fu.Category.String()),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if fu.AuthorID == p.self {
		return nil, p.skip(ErrSelfAuthor, "self", fu.AuthorID)
	}

	if !p.claim(fu.AuthorID) {
		return nil, p.skip(ErrAlreadyProcessed, "already_processed", fu.AuthorID)
	}
	defer p.release(fu.AuthorID)

	prof, err := p.profiles.Resolve(ctx, fu.AuthorID)
	if err != nil {
		return nil, p.skip(fmt.Errorf("%w: %v", ErrIneligible, err), "no_profile", fu.AuthorID)
	}
	if !prof.Eligible() {
		return nil, p.skip(fmt.Errorf("%w: %v", ErrIneligible, profile.ErrNoPayoutAddress), "no_payout_address", fu.AuthorID)
	}

	if p.addresses != nil {
		if err := p.addresses.Validate(ctx, prof.PayoutAddress); err != nil {
			return nil, p.skip(fmt.Errorf("%w: %v", ErrIneligible, err), "invalid_payout_address", fu.AuthorID)
		}
	}

	identityProof := prof.IdentityProof
	if p.identities != nil && identityProof != "" {
		if err := p.identities.Verify(ctx, identityProof, fu.AuthorID); err != nil {
			p.logger.Warn("identity proof did not verify", "pubkey", fu.AuthorID, "nip05", identityProof, "error", err)
			identityProof = ""
		}
	}

	handle, err := profile.Handle(fu.AuthorID)
	if err != nil {
		return nil, p.skip(fmt.Errorf("%w: %v", ErrIneligible, err), "bad_pubkey", fu.AuthorID)
	}

	kind := NormalizeKind(fu.Kind)
	record := models.Record{
		DisplayName: prof.DisplayName,
		EventID:     fu.ReferencedNoteID,
		Kinds:       []int{kind},
		Pubkey:      fu.AuthorID,
		Nprofile:    handle,
		LUD16:       prof.PayoutAddress,
		NIP05:       identityProof,
		Notified:    false,
		Payouts:     PayoutShare(fu),
	}

	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	p.batch = append(p.batch, record)
	p.processed[fu.AuthorID] = struct{}{}
	snapshot := slices.Clone(p.batch)
	p.mu.Unlock()

	p.metrics.ObserveRecord()
	p.logger.LogRecord(fu.AuthorID, kind, record.Payouts, len(snapshot))

	start := time.Now()
	derr := p.deliverer.Deliver(ctx, snapshot)
	p.metrics.ObserveDelivery(derr)
	if derr != nil {
		span.RecordError(derr)
	}
	p.logger.LogDelivery(p.target(), len(snapshot), time.Since(start), derr)

	return &record, nil
}

// claim marks author as in progress; false when already attributed or in progress
func (p *Pipeline) claim(author string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.processed[author]; ok {
		return false
	}
	if _, ok := p.inflight[author]; ok {
		return false
	}
	p.inflight[author] = struct{}{}
	return true
}

func (p *Pipeline) release(author string) {
	p.mu.Lock()
	delete(p.inflight, author)
	p.mu.Unlock()
}

// target names the delivery destination for logs
func (p *Pipeline) target() string {
	if u, ok := p.deliverer.(interface{ URL() string }); ok {
		return u.URL()
	}
	return "webhook"
}

func (p *Pipeline) skip(err error, reason, author string) error {
	p.metrics.ObserveSkip(reason)
	p.logger.LogSkip(reason, author)
	return err
}

// Batch returns a copy of every record appended so far, in append order
func (p *Pipeline) Batch() []models.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.batch)
}

// Processed reports whether author has been attributed
func (p *Pipeline) Processed(author string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.processed[author]
	return ok
}
