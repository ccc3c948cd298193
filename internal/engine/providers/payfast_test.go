package providers

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberpay/internal/engine/payments"
	"memberpay/internal/platform/config"
	"memberpay/internal/platform/models"
	"memberpay/internal/platform/secrets"
)

func testPayFast(sp secrets.Static) *PayFast {
	return NewPayFast(config.PayFastConfig{
		ProcessURL:        "https://sandbox.payfast.co.za/eng/process",
		MerchantIDSecret:  "payfast_merchant_id",
		MerchantKeySecret: "payfast_merchant_key",
		PassphraseSecret:  "payfast_passphrase",
		ReturnURL:         "https://members.example/return",
	}, sp)
}

func TestPayFast_InitiateCheckout(t *testing.T) {
	pf := testPayFast(secrets.Static{
		"payfast_merchant_id":  "10000100",
		"payfast_merchant_key": "46f0cd694581a",
		"payfast_passphrase":   "jt7NOE43FZPn",
	})

	session, err := pf.InitiateCheckout(context.Background(), CheckoutRequest{
		OwnerID: "owner-1", Email: "m@x.com", FullName: "Thandi Nkosi", Amount: 149, Reference: "pay-1",
	})
	require.NoError(t, err)
	assert.Equal(t, payments.ProviderPayFast, session.Provider)

	u, err := url.Parse(session.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "149.00", q.Get("amount"))
	assert.Equal(t, "pay-1", q.Get("m_payment_id"))
	assert.Equal(t, "Thandi", q.Get("name_first"))
	assert.Equal(t, "owner-1", q.Get("custom_str1"))
	assert.Empty(t, q.Get("cancel_url"))

	unsigned := u.RawQuery[:strings.Index(u.RawQuery, "&signature=")]
	sum := md5.Sum([]byte(unsigned + "&passphrase=jt7NOE43FZPn"))
	assert.Equal(t, hex.EncodeToString(sum[:]), q.Get("signature"))
}

func TestPayFast_WithoutPassphrase(t *testing.T) {
	pf := testPayFast(secrets.Static{"payfast_merchant_id": "1", "payfast_merchant_key": "k"})

	session, err := pf.InitiateCheckout(context.Background(), CheckoutRequest{Email: "m@x.com", Amount: 10, Reference: "r"})
	require.NoError(t, err)

	u, _ := url.Parse(session.URL)
	unsigned := u.RawQuery[:strings.Index(u.RawQuery, "&signature=")]
	assert.Equal(t, PayFastSignature(unsigned, ""), u.Query().Get("signature"))
}

func TestPayFast_MissingMerchant(t *testing.T) {
	_, err := testPayFast(secrets.Static{}).InitiateCheckout(context.Background(), CheckoutRequest{Amount: 1})
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
}

func TestPayFast_ManualReviewNote(t *testing.T) {
	note := testPayFast(nil).ManualReviewNote(&models.Profile{ID: "prf_1", Email: "m@x.com"})
	assert.Contains(t, note, "prf_1")
}

func TestRegistry_Capabilities(t *testing.T) {
	ps := NewPaystack(config.PaystackConfig{BaseURL: "http://localhost"}, secrets.Static{})
	pf := testPayFast(secrets.Static{})
	reg := NewRegistry(ps, pf, nil)

	assert.Equal(t, []string{"payfast", "paystack"}, reg.Names())
	require.Len(t, reg.Queryable(), 1)
	assert.Equal(t, "paystack", reg.Queryable()[0].Name())
	require.Len(t, reg.ManualOnly(), 1)
	assert.Equal(t, "payfast", reg.ManualOnly()[0].Name())
	assert.Len(t, reg.SubscriptionSources(), 1)

	_, ok := reg.Checkout("payfast")
	assert.True(t, ok)
	_, ok = reg.Checkout("stripe")
	assert.False(t, ok)
	_, ok = reg.Get("paystack")
	assert.True(t, ok)
}
