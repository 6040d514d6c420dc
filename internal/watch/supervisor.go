// Package watch keeps the root subscription on the watched author's tagged
// notes open and runs one follow-up subscription per root note.
package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/herdwatch/internal/attribution"
	"github.com/sandwichfarm/herdwatch/internal/models"
	"github.com/sandwichfarm/herdwatch/internal/ops"
)

// DefaultBackoff is the wait before reopening a closed root subscription
const DefaultBackoff = 30 * time.Second

var errStreamClosed = errors.New("stream closed")

// Feed opens streaming subscriptions
type Feed interface {
	Subscribe(ctx context.Context, filter nostr.Filter) (<-chan *nostr.Event, error)
}

// Classifier turns a feed event into a follow-up
type Classifier interface {
	Classify(ctx context.Context, event *nostr.Event) (*models.FollowUp, error)
}

// Enricher attributes a follow-up
type Enricher interface {
	Enrich(ctx context.Context, fu *models.FollowUp) (*models.Record, error)
}

// Supervisor owns the root subscription, the set of seen root ids and the
// registry of running child subscriptions
type Supervisor struct {
	feed       Feed
	classifier Classifier
	enricher   Enricher
	filters    *FilterBuilder
	backoff    time.Duration
	metrics    *ops.Metrics
	logger     *ops.Logger
	now        func() time.Time

	mu        sync.Mutex
	cancel    context.CancelFunc
	stopped   bool
	seenRoots map[string]struct{}
	children  map[string]context.CancelFunc
	wg        sync.WaitGroup
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithBackoff sets the root reconnect backoff
func WithBackoff(d time.Duration) Option {
	return func(s *Supervisor) { s.backoff = d }
}

// WithMetrics records supervisor counters
func WithMetrics(m *ops.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *ops.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithClock overrides the clock used for the daily cutoff
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// NewSupervisor creates a supervisor
func NewSupervisor(feed Feed, classifier Classifier, enricher Enricher, filters *FilterBuilder, opts ...Option) *Supervisor {
	s := &Supervisor{
		feed:       feed,
		classifier: classifier,
		enricher:   enricher,
		filters:    filters,
		backoff:    DefaultBackoff,
		logger:     ops.Default(),
		now:        time.Now,
		seenRoots:  make(map[string]struct{}),
		children:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("watch")
	return s
}

// Run keeps the root subscription open until ctx is cancelled or Stop is
// called, then waits for every child subscription to end
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	defer s.Stop()

	for {
		err := s.watchRoots(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.LogSubscription("root", "", false, err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.backoff):
		}

		s.metrics.ObserveResubscribe()
		s.logger.LogResubscribe(s.backoff, MidnightCutoff(s.now(), s.filters.loc))
	}
}

// watchRoots runs one root subscription until its stream ends
func (s *Supervisor) watchRoots(ctx context.Context) error {
	filter := s.filters.RootFilter(s.now())

	events, err := s.feed.Subscribe(ctx, filter)
	if err != nil {
		return err
	}
	s.logger.LogSubscription("root", "", true, nil)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return errStreamClosed
			}
			s.handleRoot(ctx, event)
		}
	}
}

func (s *Supervisor) handleRoot(ctx context.Context, event *nostr.Event) {
	if event == nil || event.ID == "" || event.CreatedAt == 0 {
		s.logger.Warn("skipping malformed root note")
		return
	}

	root := models.RootNote{
		ID:        event.ID,
		CreatedAt: int64(event.CreatedAt),
		AuthorID:  event.PubKey,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, seen := s.seenRoots[root.ID]; seen {
		return
	}
	s.seenRoots[root.ID] = struct{}{}

	childCtx, cancel := context.WithCancel(ctx)
	s.children[root.ID] = cancel
	s.wg.Add(1)

	s.metrics.ObserveRoot()
	s.logger.LogRootNote(root.ID, root.CreatedAt)

	go s.watchFollowUps(childCtx, root)
}

// watchFollowUps streams follow-ups for one root until the stream ends.
// Child failures are not retried.
func (s *Supervisor) watchFollowUps(ctx context.Context, root models.RootNote) {
	s.metrics.ObserveChildStarted()
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.children[root.ID]; ok {
			cancel()
			delete(s.children, root.ID)
		}
		s.mu.Unlock()
		s.metrics.ObserveChildFinished()
		s.wg.Done()
	}()

	events, err := s.feed.Subscribe(ctx, s.filters.FollowUpFilter(root.ID))
	if err != nil {
		s.logger.LogSubscription("follow-up", root.ID, false, err)
		return
	}
	s.logger.LogSubscription("follow-up", root.ID, true, nil)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				s.logger.LogSubscription("follow-up", root.ID, false, nil)
				return
			}
			s.handleFollowUp(ctx, event)
		}
	}
}

func (s *Supervisor) handleFollowUp(ctx context.Context, event *nostr.Event) {
	if event == nil {
		return
	}

	fu, err := s.classifier.Classify(ctx, event)
	switch {
	case err == nil:
	case errors.Is(err, attribution.ErrUnsupportedKind), errors.Is(err, attribution.ErrBelowThreshold):
		s.logger.Debug("ignoring event", "event_id", event.ID, "kind", event.Kind, "reason", err)
		return
	default:
		s.logger.Warn("failed to classify event", "event_id", event.ID, "kind", event.Kind, "error", err)
		return
	}

	s.metrics.ObserveFollowUp(event.Kind)
	s.logger.LogFollowUp(event.ID, event.Kind, fu.AuthorID, fu.Amount)

	// policy skips are already logged by the enricher
	_, _ = s.enricher.Enrich(ctx, fu)
}

// Stop cancels the root and every child subscription and waits for the
// children to end. Safe to call more than once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	for _, cancel := range s.children {
		cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// RootsSeen returns how many distinct root notes have been accepted
func (s *Supervisor) RootsSeen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seenRoots)
}

// ActiveChildren returns how many follow-up subscriptions are running
func (s *Supervisor) ActiveChildren() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}
