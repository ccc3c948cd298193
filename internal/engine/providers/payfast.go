package providers

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"memberpay/internal/engine/payments"
	"memberpay/internal/platform/config"
	"memberpay/internal/platform/models"
	"memberpay/internal/platform/secrets"
)

// PayFast has no query API usable for reconciliation; it can only start a
// payment and ask for a human to check the merchant portal.
type PayFast struct {
	cfg     config.PayFastConfig
	secrets secrets.Provider
}

func NewPayFast(cfg config.PayFastConfig, sp secrets.Provider) *PayFast {
	return &PayFast{cfg: cfg, secrets: sp}
}

func (p *PayFast) Name() string { return payments.ProviderPayFast }

func (p *PayFast) ManualReviewNote(profile *models.Profile) string {
	return fmt.Sprintf("PayFast fallback: check portal for profile %s (%s)", profile.ID, profile.Email)
}

type field struct {
	key, value string
}

// InitiateCheckout builds the signed redirect URL. Field order matters for
// the signature and follows PayFast's documented attribute order.
func (p *PayFast) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	merchantID, err := p.secrets.GetSecret(ctx, p.cfg.MerchantIDSecret)
	if err != nil {
		return nil, &payments.ProviderError{Provider: p.Name(), Op: "checkout", Err: err}
	}
	merchantKey, err := p.secrets.GetSecret(ctx, p.cfg.MerchantKeySecret)
	if err != nil {
		return nil, &payments.ProviderError{Provider: p.Name(), Op: "checkout", Err: err}
	}
	// The passphrase is optional on PayFast accounts.
	passphrase, _ := p.secrets.GetSecret(ctx, p.cfg.PassphraseSecret)

	firstName := strings.TrimSpace(req.FullName)
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}

	fields := []field{
		{"merchant_id", merchantID},
		{"merchant_key", merchantKey},
		{"return_url", p.cfg.ReturnURL},
		{"cancel_url", p.cfg.CancelURL},
		{"notify_url", p.cfg.NotifyURL},
		{"name_first", firstName},
		{"email_address", req.Email},
		{"m_payment_id", req.Reference},
		{"amount", fmt.Sprintf("%.2f", req.Amount)},
		{"item_name", "Membership sign-up"},
		{"custom_str1", req.OwnerID},
	}

	query := encodeFields(fields)
	signature := PayFastSignature(query, passphrase)

	return &CheckoutSession{
		Provider:  p.Name(),
		URL:       p.cfg.ProcessURL + "?" + query + "&signature=" + signature,
		Reference: req.Reference,
	}, nil
}

func encodeFields(fields []field) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			continue
		}
		parts = append(parts, f.key+"="+url.QueryEscape(v))
	}
	return strings.Join(parts, "&")
}

// PayFastSignature is the lowercase MD5 of the encoded parameter string with
// the passphrase appended when one is set.
func PayFastSignature(encoded, passphrase string) string {
	if passphrase != "" {
		encoded += "&passphrase=" + url.QueryEscape(strings.TrimSpace(passphrase))
	}
	sum := md5.Sum([]byte(encoded))
	return hex.EncodeToString(sum[:])
}
