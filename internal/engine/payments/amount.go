package payments

import "strings"

const (
	ProviderPaystack = "paystack"
	ProviderPayFast  = "payfast"
)

// Labels recorded in Profile.SignupProvider, one per confirming path.
const (
	LabelPaystackWebhook  = "Paystack (Webhook)"
	LabelPaystackFallback = "Paystack (Fallback)"
	LabelPaystackUser     = "Paystack (Member Check)"
	LabelPaystackResync   = "Paystack (Resync)"
)

// MinorToMajor converts kobo/cents to the major currency unit.
func MinorToMajor(minor int64) float64 {
	return float64(minor) / 100
}

// MajorToMinor converts a major-unit amount to kobo/cents, rounding half away from zero.
func MajorToMinor(major float64) int64 {
	if major < 0 {
		return -int64(-major*100 + 0.5)
	}
	return int64(major*100 + 0.5)
}

// NormalizeEmail is the comparison form used when matching provider payers to profiles.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
