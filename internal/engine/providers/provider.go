// Package providers adapts external payment providers to the capabilities the
// reconciler needs. A provider is tagged at configuration time: Queryable ones
// can be asked about a payment, ManualOnly ones cannot and degrade to a
// manual-review outcome.
package providers

import (
	"context"
	"encoding/json"
	"sort"

	"memberpay/internal/platform/models"
)

// Transaction is a provider's view of one payment.
type Transaction struct {
	Reference   string
	Success     bool
	Status      string
	AmountMinor int64
	Amount      float64
	Currency    string
	PayerEmail  string
	// OwnerID is set when the payment was initiated through checkout and the
	// provider echoed our metadata back.
	OwnerID string
	Raw     json.RawMessage
}

type Provider interface {
	Name() string
}

type Queryable interface {
	Provider
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
	// FindSuccessfulTransaction returns nil, nil when the payer has no
	// successful transaction.
	FindSuccessfulTransaction(ctx context.Context, email string) (*Transaction, error)
}

type ManualOnly interface {
	Provider
	ManualReviewNote(profile *models.Profile) string
}

// SubscriptionSource reports the subscription snapshot for a payer.
type SubscriptionSource interface {
	Provider
	SubscriptionState(ctx context.Context, email string) (models.SubscriptionState, error)
}

type CheckoutRequest struct {
	OwnerID   string
	Email     string
	FullName  string
	Amount    float64
	Reference string
}

type CheckoutSession struct {
	Provider  string `json:"provider"`
	URL       string `json:"url"`
	Reference string `json:"reference"`
}

type CheckoutInitiator interface {
	Provider
	InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	byName map[string]Provider
}

func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{byName: make(map[string]Provider)}
	for _, p := range ps {
		if p != nil {
			r.byName[p.Name()] = p
		}
	}
	return r
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Queryable() []Queryable {
	var out []Queryable
	for _, name := range r.Names() {
		if q, ok := r.byName[name].(Queryable); ok {
			out = append(out, q)
		}
	}
	return out
}

func (r *Registry) ManualOnly() []ManualOnly {
	var out []ManualOnly
	for _, name := range r.Names() {
		if m, ok := r.byName[name].(ManualOnly); ok {
			out = append(out, m)
		}
	}
	return out
}

func (r *Registry) SubscriptionSources() []SubscriptionSource {
	var out []SubscriptionSource
	for _, name := range r.Names() {
		if s, ok := r.byName[name].(SubscriptionSource); ok {
			out = append(out, s)
		}
	}
	return out
}

// Checkout returns the named provider if it can start a payment.
func (r *Registry) Checkout(name string) (CheckoutInitiator, bool) {
	c, ok := r.byName[name].(CheckoutInitiator)
	return c, ok
}
