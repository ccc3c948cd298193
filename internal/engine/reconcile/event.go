package reconcile

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"memberpay/internal/engine/payments"
)

const (
	EventChargeSuccess        = "charge.success"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventSubscriptionCreate   = "subscription.create"

	unknownCorrelation = "unknown"
)

// ProviderEvent is one inbound webhook delivery, decoded into a closed set
// of variants. Every variant carries the fields the claim fingerprint uses.
type ProviderEvent interface {
	Provider() string
	EventType() string
	CorrelationID() string
	Payload() json.RawMessage
	event()
}

type eventHeader struct {
	provider      string
	eventType     string
	correlationID string
	payload       json.RawMessage
}

func (h eventHeader) Provider() string         { return h.provider }
func (h eventHeader) EventType() string        { return h.eventType }
func (h eventHeader) CorrelationID() string    { return h.correlationID }
func (h eventHeader) Payload() json.RawMessage { return h.payload }
func (eventHeader) event()                     {}

type ChargeSuccess struct {
	eventHeader
	Reference   string
	Email       string
	AmountMinor int64
}

type InvoicePaymentFailed struct {
	eventHeader
	Email string
}

type SubscriptionCreate struct {
	eventHeader
	Email            string
	SubscriptionCode string
}

// Unknown is any event type this service does not act on.
type Unknown struct {
	eventHeader
}

// looseString accepts a JSON string or number; Paystack sends ids as numbers.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

type paystackWebhookData struct {
	Reference        looseString `json:"reference"`
	ID               looseString `json:"id"`
	SubscriptionCode looseString `json:"subscription_code"`
	Amount           looseString `json:"amount"`
	Status           string      `json:"status"`
	Customer         *struct {
		Email string `json:"email"`
	} `json:"customer"`
}

// ParsePaystackWebhook decodes a Paystack webhook body. Only a body that is
// not a JSON object fails, with a *payments.MalformedEventError. A missing or
// non-string event, or data of an unexpected shape, decodes to Unknown so the
// delivery is still acknowledged.
func ParsePaystackWebhook(body []byte) (ProviderEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &payments.MalformedEventError{Reason: "invalid json", Err: err}
	}
	if fields == nil {
		return nil, &payments.MalformedEventError{Reason: "not an object"}
	}

	var eventType string
	if raw, ok := fields["event"]; ok {
		// A non-string event leaves eventType empty.
		_ = json.Unmarshal(raw, &eventType)
	}
	eventType = strings.TrimSpace(eventType)

	var data paystackWebhookData
	shapeOK := true
	if raw := fields["data"]; len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		// On a type mismatch Unmarshal still fills the fields it can, which
		// keeps the correlation id stable for deduplication.
		if err := json.Unmarshal(raw, &data); err != nil {
			shapeOK = false
		}
	}

	header := eventHeader{
		provider:      payments.ProviderPaystack,
		eventType:     eventType,
		correlationID: correlationID(data),
		payload:       json.RawMessage(body),
	}
	email := ""
	if data.Customer != nil {
		email = strings.TrimSpace(data.Customer.Email)
	}

	if eventType == "" || !shapeOK {
		return Unknown{eventHeader: header}, nil
	}

	switch eventType {
	case EventChargeSuccess:
		amount, _ := strconv.ParseInt(string(data.Amount), 10, 64)
		return ChargeSuccess{
			eventHeader: header,
			Reference:   string(data.Reference),
			Email:       email,
			AmountMinor: amount,
		}, nil
	case EventInvoicePaymentFailed:
		return InvoicePaymentFailed{eventHeader: header, Email: email}, nil
	case EventSubscriptionCreate:
		return SubscriptionCreate{eventHeader: header, Email: email, SubscriptionCode: string(data.SubscriptionCode)}, nil
	default:
		return Unknown{eventHeader: header}, nil
	}
}

// correlationID picks the first present of reference, id and
// subscription_code.
func correlationID(d paystackWebhookData) string {
	for _, v := range []looseString{d.Reference, d.ID, d.SubscriptionCode} {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return unknownCorrelation
}
