package lightning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrInvalidAddress is returned when a lightning address cannot receive payments
var ErrInvalidAddress = errors.New("invalid lightning address")

// AddressValidator checks LUD-16 lightning addresses against their
// domain's well-known LNURL-pay endpoint
type AddressValidator struct {
	client *resty.Client
	scheme string
}

// payParams is the LNURL-pay response; only presence of the fields matters
type payParams struct {
	Status      string          `json:"status"`
	Reason      string          `json:"reason"`
	Callback    string          `json:"callback"`
	MinSendable json.RawMessage `json:"minSendable"`
	MaxSendable json.RawMessage `json:"maxSendable"`
}

// NewAddressValidator creates a validator with the given request timeout
func NewAddressValidator(timeout time.Duration) *AddressValidator {
	return &AddressValidator{
		client: resty.New().SetTimeout(timeout),
		scheme: "https",
	}
}

// SplitAddress splits user@domain into its parts
func SplitAddress(address string) (user, domain string, err error) {
	user, domain, ok := strings.Cut(strings.TrimSpace(address), "@")
	if !ok || user == "" || domain == "" || strings.Contains(domain, "@") {
		return "", "", fmt.Errorf("%w: %q is not user@domain", ErrInvalidAddress, address)
	}
	return strings.ToLower(user), strings.ToLower(domain), nil
}

// Validate returns nil when the address resolves to a usable pay endpoint
func (v *AddressValidator) Validate(ctx context.Context, address string) error {
	user, domain, err := SplitAddress(address)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s://%s/.well-known/lnurlp/%s", v.scheme, domain, url.PathEscape(user))
	resp, err := v.client.R().SetContext(ctx).Get(endpoint)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", endpoint, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s returned status %d", ErrInvalidAddress, endpoint, resp.StatusCode())
	}

	var params payParams
	if err := json.Unmarshal(resp.Body(), &params); err != nil {
		return fmt.Errorf("%w: unparseable response: %v", ErrInvalidAddress, err)
	}

	if strings.EqualFold(params.Status, "ERROR") {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, params.Reason)
	}
	if params.Callback == "" || len(params.MinSendable) == 0 || len(params.MaxSendable) == 0 {
		return fmt.Errorf("%w: response missing callback or sendable bounds", ErrInvalidAddress)
	}

	return nil
}
