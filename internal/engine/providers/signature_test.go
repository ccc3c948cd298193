package providers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaystackSignature(t *testing.T) {
	payload := []byte(`{"event":"charge.success","data":{"reference":"TX123"}}`)
	sig := SignPaystack("sk_test", payload)

	assert.Len(t, sig, 128)
	assert.Equal(t, sig, SignPaystack("sk_test", payload))

	tests := []struct {
		name      string
		secret    string
		payload   []byte
		signature string
		want      bool
	}{
		{"valid", "sk_test", payload, sig, true},
		{"uppercase hex", "sk_test", payload, strings.ToUpper(sig), true},
		{"wrong secret", "sk_other", payload, sig, false},
		{"tampered payload", "sk_test", []byte(`{"event":"charge.success"}`), sig, false},
		{"empty signature", "sk_test", payload, "", false},
		{"empty secret", "", payload, sig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyPaystackSignature(tt.secret, tt.payload, tt.signature))
		})
	}
}
