// Package identity verifies NIP-05 identity proofs found in profiles.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip05"
)

var (
	// ErrInvalidIdentifier is returned for strings that are not name@domain
	ErrInvalidIdentifier = errors.New("invalid nip05 identifier")
	// ErrPubkeyMismatch is returned when the identifier points at another key
	ErrPubkeyMismatch = errors.New("nip05 identifier resolves to a different pubkey")
)

// LookupFunc resolves a NIP-05 identifier to a profile pointer
type LookupFunc func(ctx context.Context, identifier string) (*nostr.ProfilePointer, error)

// Verifier checks NIP-05 identifiers against their domain's nostr.json
type Verifier struct {
	lookup  LookupFunc
	timeout time.Duration
}

// NewVerifier creates a verifier that queries the well-known endpoint
func NewVerifier(timeout time.Duration) *Verifier {
	return &Verifier{lookup: nip05.QueryIdentifier, timeout: timeout}
}

// NewVerifierWithLookup creates a verifier with a custom resolver
func NewVerifierWithLookup(lookup LookupFunc, timeout time.Duration) *Verifier {
	return &Verifier{lookup: lookup, timeout: timeout}
}

// Resolve returns the pubkey the identifier points at
func (v *Verifier) Resolve(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	name, domain, ok := strings.Cut(identifier, "@")
	if !ok {
		// A bare domain means the root identifier "_@domain"
		name, domain = "_", identifier
	}
	if name == "" || domain == "" || !strings.Contains(domain, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	pointer, err := v.lookup(ctx, name+"@"+domain)
	if err != nil {
		return "", fmt.Errorf("failed to query nip05 %s: %w", identifier, err)
	}
	if pointer == nil || pointer.PublicKey == "" {
		return "", fmt.Errorf("%w: %q has no pubkey", ErrInvalidIdentifier, identifier)
	}

	return pointer.PublicKey, nil
}

// Verify checks that the identifier resolves, and when pubkey is non-empty,
// that it resolves to that pubkey
func (v *Verifier) Verify(ctx context.Context, identifier, pubkey string) error {
	resolved, err := v.Resolve(ctx, identifier)
	if err != nil {
		return err
	}
	if pubkey != "" && !strings.EqualFold(resolved, pubkey) {
		return ErrPubkeyMismatch
	}
	return nil
}
