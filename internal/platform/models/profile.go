package models

type PlanStatus string

const (
	PlanStatusNone      PlanStatus = "none"
	PlanStatusActive    PlanStatus = "active"
	PlanStatusAttention PlanStatus = "attention"
)

func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusNone, PlanStatusActive, PlanStatusAttention:
		return true
	}
	return false
}

// Profile is the member record that payment reconciliation targets. One per owner.
type Profile struct {
	ID                 string     `json:"id"`
	OwnerID            string     `json:"owner_id"`
	Email              string     `json:"email"`
	FullName           string     `json:"full_name"`
	SignupPaid         bool       `json:"signup_paid"`
	SignupProvider     string     `json:"signup_provider,omitempty"`
	SignupAmount       float64    `json:"signup_amount,omitempty"`
	SignupPaidAt       *int64     `json:"signup_paid_at,omitempty"`
	SubscriptionActive bool       `json:"subscription_active"`
	PlanStatus         PlanStatus `json:"plan_status"`
	SubscriptionCode   string     `json:"subscription_code,omitempty"`
	CreatedAt          int64      `json:"created_at"`
	UpdatedAt          int64      `json:"updated_at"`
}

// SubscriptionState is the provider-derived subscription snapshot applied by resync.
type SubscriptionState struct {
	Active bool
	Code   string
	// Known is false when the provider returned no subscriptions at all.
	Known bool
}
