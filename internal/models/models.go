// Package models holds the records that flow between the watcher, the
// attribution pipeline and the webhook.
package models

// Event kinds the watcher cares about
const (
	KindMetadata   = 0
	KindNote       = 1
	KindRepost     = 6
	KindZapRequest = 9734
	KindZapReceipt = 9735
)

// DefaultDisplayName is used when a profile carries neither display_name nor name
const DefaultDisplayName = "Anon"

// RootNote is a tagged note from the watched author that anchors a herd
type RootNote struct {
	ID        string
	CreatedAt int64
	AuthorID  string
}

// Category is the classification of a follow-up event
type Category int

const (
	CategoryOther Category = iota
	CategoryRepost
	CategoryZap
)

func (c Category) String() string {
	switch c {
	case CategoryRepost:
		return "repost"
	case CategoryZap:
		return "zap"
	default:
		return "other"
	}
}

// FollowUp is a repost or zap that references a root note, reduced to the
// fields attribution needs. For zaps the author and kind come from the
// embedded zap request, not from the receipt.
type FollowUp struct {
	SourceEventID    string
	Category         Category
	AuthorID         string
	Kind             int
	ReferencedNoteID string
	Amount           float64 // sats
	HasAmount        bool
}

// Profile is the subset of kind-0 metadata used for payouts
type Profile struct {
	PayoutAddress string // lud16
	IdentityProof string // nip05
	DisplayName   string
}

// Eligible reports whether the actor can be paid
func (p *Profile) Eligible() bool {
	return p != nil && p.PayoutAddress != ""
}

// Record is one attribution entry as posted to the webhook
type Record struct {
	DisplayName string  `json:"display_name"`
	EventID     string  `json:"event_id"`
	Kinds       []int   `json:"kinds"`
	Pubkey      string  `json:"pubkey"`
	Nprofile    string  `json:"nprofile"`
	LUD16       string  `json:"lud16"`
	NIP05       string  `json:"nip05"`
	Notified    bool    `json:"notified"`
	Payouts     float64 `json:"payouts"`
}
