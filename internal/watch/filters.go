package watch

import (
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/herdwatch/internal/models"
)

// FollowUpKinds are the event kinds a child subscription listens for
var FollowUpKinds = []int{models.KindRepost, models.KindZapReceipt}

// FilterBuilder creates the root and follow-up filters for one watched author
type FilterBuilder struct {
	author string
	tags   []string
	loc    *time.Location
}

// NewFilterBuilder creates a filter builder. A nil location means local time.
func NewFilterBuilder(author string, tags []string, loc *time.Location) *FilterBuilder {
	if loc == nil {
		loc = time.Local
	}
	return &FilterBuilder{
		author: author,
		tags:   tags,
		loc:    loc,
	}
}

// RootFilter matches the author's tagged notes created since midnight of now
func (fb *FilterBuilder) RootFilter(now time.Time) nostr.Filter {
	since := nostr.Timestamp(MidnightCutoff(now, fb.loc))
	return nostr.Filter{
		Kinds:   []int{models.KindNote},
		Authors: []string{fb.author},
		Tags: nostr.TagMap{
			"t": fb.tags,
		},
		Since: &since,
	}
}

// FollowUpFilter matches reposts and zap receipts referencing rootID
func (fb *FilterBuilder) FollowUpFilter(rootID string) nostr.Filter {
	return nostr.Filter{
		Kinds: FollowUpKinds,
		Tags: nostr.TagMap{
			"e": []string{rootID},
		},
	}
}

// MidnightCutoff returns the unix time of the start of now's day in loc
func MidnightCutoff(now time.Time, loc *time.Location) int64 {
	if loc == nil {
		loc = time.Local
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).Unix()
}
