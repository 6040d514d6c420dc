package profile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/herdwatch/internal/ops"
)

const pubkeyB = "7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e"

type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) FetchEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	args := m.Called(ctx, filter)
	events, _ := args.Get(0).([]*nostr.Event)
	return events, args.Error(1)
}

func metadataEvent(id string, createdAt int64, content string) *nostr.Event {
	return &nostr.Event{
		ID:        id,
		PubKey:    pubkeyB,
		Kind:      0,
		CreatedAt: nostr.Timestamp(createdAt),
		Content:   content,
	}
}

func TestResolvePicksNewestWithLud16(t *testing.T) {
	q := &MockQuerier{}
	q.On("FetchEvents", mock.Anything, mock.MatchedBy(func(f nostr.Filter) bool {
		return len(f.Authors) == 1 && f.Authors[0] == pubkeyB && f.Kinds[0] == 0
	})).Return([]*nostr.Event{
		metadataEvent("old", 100, `{"name":"bob","lud16":"old@x.com"}`),
		metadataEvent("newest-no-lud16", 300, `{"name":"bob"}`),
		metadataEvent("new", 200, `{"display_name":"Bobby","name":"bob","lud16":"b@x.com","nip05":"bob@x.com"}`),
		metadataEvent("broken", 400, `{not json`),
	}, nil)

	r := NewResolver(q, time.Second, ops.Discard())
	p, err := r.Resolve(context.Background(), pubkeyB)
	require.NoError(t, err)

	assert.Equal(t, "b@x.com", p.PayoutAddress)
	assert.Equal(t, "bob@x.com", p.IdentityProof)
	assert.Equal(t, "Bobby", p.DisplayName)
	assert.True(t, p.Eligible())
	q.AssertExpectations(t)
}

func TestResolveDisplayNameFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"display name", `{"display_name":"D","name":"N","lud16":"a@b.c"}`, "D"},
		{"name only", `{"name":"N","lud16":"a@b.c"}`, "N"},
		{"anonymous", `{"lud16":"a@b.c"}`, "Anon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &MockQuerier{}
			q.On("FetchEvents", mock.Anything, mock.Anything).
				Return([]*nostr.Event{metadataEvent("e", 1, tt.content)}, nil)

			p, err := NewResolver(q, 0, ops.Discard()).Resolve(context.Background(), pubkeyB)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.DisplayName)
		})
	}
}

func TestResolveNoPayoutAddress(t *testing.T) {
	q := &MockQuerier{}
	q.On("FetchEvents", mock.Anything, mock.Anything).
		Return([]*nostr.Event{metadataEvent("e", 1, `{"name":"bob"}`)}, nil)

	_, err := NewResolver(q, 0, ops.Discard()).Resolve(context.Background(), pubkeyB)
	assert.ErrorIs(t, err, ErrNoPayoutAddress)
}

func TestResolveIgnoresOtherAuthors(t *testing.T) {
	spoofed := metadataEvent("e", 1, `{"lud16":"evil@x.com"}`)
	spoofed.PubKey = strings.Repeat("0", 64)

	q := &MockQuerier{}
	q.On("FetchEvents", mock.Anything, mock.Anything).Return([]*nostr.Event{spoofed}, nil)

	_, err := NewResolver(q, 0, ops.Discard()).Resolve(context.Background(), pubkeyB)
	assert.ErrorIs(t, err, ErrNoPayoutAddress)
}

func TestResolveFetchError(t *testing.T) {
	q := &MockQuerier{}
	q.On("FetchEvents", mock.Anything, mock.Anything).Return(nil, errors.New("relay down"))

	_, err := NewResolver(q, 0, ops.Discard()).Resolve(context.Background(), pubkeyB)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")
}

func TestHandle(t *testing.T) {
	nprofile, err := Handle(pubkeyB)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(nprofile, "nprofile1"))

	_, err = Handle("zz")
	assert.Error(t, err)
}
