package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"memberpay/internal/engine/payments"
	"memberpay/internal/platform/config"
	"memberpay/internal/platform/models"
	"memberpay/internal/platform/secrets"
)

const paystackSuccess = "success"

// Paystack talks to the Paystack REST API. The secret key is looked up per
// call so rotations apply without a restart.
type Paystack struct {
	client      *resty.Client
	secrets     secrets.Provider
	secretName  string
	callbackURL string
}

func NewPaystack(cfg config.PaystackConfig, sp secrets.Provider) *Paystack {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Paystack{
		client:      client,
		secrets:     sp,
		secretName:  cfg.SecretName,
		callbackURL: cfg.CallbackURL,
	}
}

func (p *Paystack) Name() string { return payments.ProviderPaystack }

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackTransaction struct {
	ID        int64           `json:"id"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Customer  paystackPayer   `json:"customer"`
	Metadata  json.RawMessage `json:"metadata"`
}

type paystackPayer struct {
	Email string `json:"email"`
}

type paystackCustomer struct {
	Email         string `json:"email"`
	Subscriptions []struct {
		SubscriptionCode string `json:"subscription_code"`
		Status           string `json:"status"`
	} `json:"subscriptions"`
}

// call performs one request and returns the decoded envelope data. Every
// failure comes back as a *payments.ProviderError.
func (p *Paystack) call(ctx context.Context, op string, build func(*resty.Request) (*resty.Response, error)) (json.RawMessage, error) {
	secret, err := p.secrets.GetSecret(ctx, p.secretName)
	if err != nil {
		return nil, &payments.ProviderError{Provider: p.Name(), Op: op, Err: err}
	}

	req := p.client.R().SetContext(ctx).SetAuthToken(secret)
	resp, err := build(req)
	if err != nil {
		return nil, &payments.ProviderError{Provider: p.Name(), Op: op, Err: err}
	}

	var env paystackEnvelope
	decodeErr := json.Unmarshal(resp.Body(), &env)

	if resp.StatusCode() == http.StatusNotFound {
		return nil, &payments.ProviderError{Provider: p.Name(), Op: op, Status: resp.StatusCode(), Err: payments.ErrNotFound}
	}
	if resp.IsError() {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		return nil, &payments.ProviderError{Provider: p.Name(), Op: op, Status: resp.StatusCode(), Err: errors.New(msg)}
	}
	if decodeErr != nil {
		return nil, &payments.ProviderError{Provider: p.Name(), Op: op, Status: resp.StatusCode(), Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if !env.Status {
		return nil, &payments.ProviderError{Provider: p.Name(), Op: op, Status: resp.StatusCode(), Err: errors.New(env.Message)}
	}

	return env.Data, nil
}

func (p *Paystack) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	data, err := p.call(ctx, "verify", func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/transaction/verify/" + url.PathEscape(reference))
	})
	if err != nil {
		return nil, err
	}

	var tx paystackTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, &payments.ProviderError{Provider: p.Name(), Op: "verify", Err: fmt.Errorf("decode transaction: %w", err)}
	}
	return tx.toTransaction(data), nil
}

func (p *Paystack) FindSuccessfulTransaction(ctx context.Context, email string) (*Transaction, error) {
	data, err := p.call(ctx, "list", func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("email", strings.TrimSpace(email)).Get("/transaction")
	})
	if err != nil {
		return nil, err
	}

	var txs []json.RawMessage
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, &payments.ProviderError{Provider: p.Name(), Op: "list", Err: fmt.Errorf("decode transactions: %w", err)}
	}

	for _, raw := range txs {
		var tx paystackTransaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			continue
		}
		if tx.Status == paystackSuccess {
			return tx.toTransaction(raw), nil
		}
	}
	return nil, nil
}

// SubscriptionState derives the plan snapshot from the customer's
// subscriptions. An unknown customer yields a zero (unknown) state.
func (p *Paystack) SubscriptionState(ctx context.Context, email string) (models.SubscriptionState, error) {
	data, err := p.call(ctx, "customer", func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/customer/" + url.PathEscape(strings.TrimSpace(email)))
	})
	if errors.Is(err, payments.ErrNotFound) {
		return models.SubscriptionState{}, nil
	}
	if err != nil {
		return models.SubscriptionState{}, err
	}

	var customer paystackCustomer
	if err := json.Unmarshal(data, &customer); err != nil {
		return models.SubscriptionState{}, &payments.ProviderError{Provider: p.Name(), Op: "customer", Err: fmt.Errorf("decode customer: %w", err)}
	}
	if len(customer.Subscriptions) == 0 {
		return models.SubscriptionState{}, nil
	}

	state := models.SubscriptionState{Known: true}
	for _, s := range customer.Subscriptions {
		if s.Status == "active" {
			state.Active = true
			state.Code = s.SubscriptionCode
			break
		}
	}
	return state, nil
}

func (p *Paystack) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	body := map[string]interface{}{
		"email":     req.Email,
		"amount":    payments.MajorToMinor(req.Amount),
		"reference": req.Reference,
		"metadata":  map[string]string{"owner_id": req.OwnerID},
	}
	if p.callbackURL != "" {
		body["callback_url"] = p.callbackURL
	}

	data, err := p.call(ctx, "initialize", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).Post("/transaction/initialize")
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.AuthorizationURL == "" {
		return nil, &payments.ProviderError{Provider: p.Name(), Op: "initialize", Err: errors.New("missing authorization_url")}
	}
	if out.Reference == "" {
		out.Reference = req.Reference
	}

	return &CheckoutSession{Provider: p.Name(), URL: out.AuthorizationURL, Reference: out.Reference}, nil
}

func (tx paystackTransaction) toTransaction(raw json.RawMessage) *Transaction {
	ref := tx.Reference
	if ref == "" && tx.ID != 0 {
		ref = fmt.Sprint(tx.ID)
	}
	return &Transaction{
		Reference:   ref,
		Success:     tx.Status == paystackSuccess,
		Status:      tx.Status,
		AmountMinor: tx.Amount,
		Amount:      payments.MinorToMajor(tx.Amount),
		Currency:    tx.Currency,
		PayerEmail:  tx.Customer.Email,
		OwnerID:     metadataOwner(tx.Metadata),
		Raw:         raw,
	}
}

// metadataOwner reads owner_id from metadata, which Paystack returns either
// as an object or as a JSON-encoded string.
func metadataOwner(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var meta struct {
		OwnerID string `json:"owner_id"`
	}
	if err := json.Unmarshal(raw, &meta); err == nil {
		return meta.OwnerID
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil && encoded != "" {
		if err := json.Unmarshal([]byte(encoded), &meta); err == nil {
			return meta.OwnerID
		}
	}
	return ""
}
