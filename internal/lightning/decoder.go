// Package lightning resolves bolt11 invoices to amounts and checks that
// lightning addresses can actually receive payments.
package lightning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sandwichfarm/herdwatch/internal/config"
)

var (
	// ErrNoAmount is returned for invoices that do not commit to an amount
	ErrNoAmount = errors.New("invoice has no amount")
	// ErrMalformedInvoice is returned when the invoice cannot be parsed
	ErrMalformedInvoice = errors.New("malformed bolt11 invoice")
)

// Invoice is the decoded part of a bolt11 invoice we need
type Invoice struct {
	AmountMsat int64
}

// Sats returns the invoice amount in satoshis
func (i *Invoice) Sats() float64 {
	return float64(i.AmountMsat) / 1000
}

// Decoder resolves a bolt11 invoice to its settled amount
type Decoder interface {
	Decode(ctx context.Context, bolt11 string) (*Invoice, error)
}

// NewDecoder builds the decoder selected by cfg.Mode. In auto mode the API
// is tried first when a URL is configured, then the invoice is parsed locally.
func NewDecoder(cfg *config.Decoder) Decoder {
	switch cfg.Mode {
	case "api":
		return NewAPIDecoder(cfg)
	case "offline":
		return OfflineDecoder{}
	default:
		if cfg.URL == "" {
			return OfflineDecoder{}
		}
		return FallbackDecoder{NewAPIDecoder(cfg), OfflineDecoder{}}
	}
}

// APIDecoder decodes invoices through an LNbits-compatible payments API
type APIDecoder struct {
	client *resty.Client
}

type decodeRequest struct {
	Data string `json:"data"`
}

type decodeResponse struct {
	AmountMsat *int64 `json:"amount_msat"`
}

// NewAPIDecoder creates a decoder posting to {cfg.URL}/api/v1/payments/decode
func NewAPIDecoder(cfg *config.Decoder) *APIDecoder {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout()).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-Api-Key", cfg.APIKey)
	}
	return &APIDecoder{client: client}
}

// Decode implements Decoder
func (d *APIDecoder) Decode(ctx context.Context, bolt11 string) (*Invoice, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(decodeRequest{Data: bolt11}).
		Post("/api/v1/payments/decode")
	if err != nil {
		return nil, fmt.Errorf("failed to call decode API: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("decode API returned status %d: %s", resp.StatusCode(), resp.String())
	}

	var out decodeResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to parse decode response: %w", err)
	}
	if out.AmountMsat == nil {
		return nil, ErrNoAmount
	}

	return &Invoice{AmountMsat: *out.AmountMsat}, nil
}

// OfflineDecoder reads the amount from the invoice's human-readable part
// without contacting any service
type OfflineDecoder struct{}

// Decode implements Decoder
func (OfflineDecoder) Decode(_ context.Context, bolt11 string) (*Invoice, error) {
	msat, err := ParseInvoiceAmount(bolt11)
	if err != nil {
		return nil, err
	}
	return &Invoice{AmountMsat: msat}, nil
}

// FallbackDecoder tries each decoder in order and returns the first success
type FallbackDecoder []Decoder

// Decode implements Decoder
func (f FallbackDecoder) Decode(ctx context.Context, bolt11 string) (*Invoice, error) {
	var errs []error
	for _, d := range f {
		inv, err := d.Decode(ctx, bolt11)
		if err == nil {
			return inv, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// ParseInvoiceAmount extracts the amount in millisatoshis from a bolt11
// invoice. Format: ln{currency}{amount}{multiplier}1{data}
// Multipliers: m (milli), u (micro), n (nano), p (pico)
func ParseInvoiceAmount(invoice string) (int64, error) {
	invoice = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(invoice)), "lightning:")

	sep := strings.LastIndexByte(invoice, '1')
	if !strings.HasPrefix(invoice, "ln") || sep < 3 {
		return 0, ErrMalformedInvoice
	}
	hrp := invoice[2:sep]

	// Skip the currency prefix (bc, tb, bcrt, tbs, ...)
	i := 0
	for i < len(hrp) && hrp[i] >= 'a' && hrp[i] <= 'z' {
		i++
	}
	amountPart := hrp[i:]
	if amountPart == "" {
		return 0, ErrNoAmount
	}

	multiplier := byte(0)
	if last := amountPart[len(amountPart)-1]; last < '0' || last > '9' {
		multiplier = last
		amountPart = amountPart[:len(amountPart)-1]
	}

	amount, err := strconv.ParseInt(amountPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedInvoice, err)
	}

	switch multiplier {
	case 'm': // millibitcoin = 100,000 sats
		return amount * 100_000_000, nil
	case 'u': // microbitcoin = 100 sats
		return amount * 100_000, nil
	case 'n': // nanobitcoin = 0.1 sats
		return amount * 100, nil
	case 'p': // picobitcoin = 0.1 msat
		if amount%10 != 0 {
			return 0, fmt.Errorf("%w: sub-millisatoshi amount", ErrMalformedInvoice)
		}
		return amount / 10, nil
	case 0: // whole bitcoin
		return amount * 100_000_000_000, nil
	default:
		return 0, fmt.Errorf("%w: unknown multiplier %q", ErrMalformedInvoice, multiplier)
	}
}
