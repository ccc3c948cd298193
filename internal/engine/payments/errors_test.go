package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_Is(t *testing.T) {
	err := fmt.Errorf("sweep: %w", &ProviderError{Provider: "paystack", Op: "list", Err: context.DeadlineExceeded})
	assert.True(t, errors.Is(err, ErrProviderUnreachable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	notFound := &ProviderError{Provider: "paystack", Op: "customer", Status: 404, Err: ErrNotFound}
	assert.False(t, errors.Is(notFound, ErrProviderUnreachable))
	assert.True(t, errors.Is(notFound, ErrNotFound))
	assert.Contains(t, notFound.Error(), "http 404")
}

func TestMalformedEventError_Is(t *testing.T) {
	err := &MalformedEventError{Reason: "missing event"}
	assert.True(t, errors.Is(err, ErrMalformedEvent))
	assert.Equal(t, "malformed event: missing event", err.Error())
}

func TestAmountConversions(t *testing.T) {
	assert.Equal(t, 5.0, MinorToMajor(500))
	assert.Equal(t, 149.99, MinorToMajor(14999))
	assert.Equal(t, int64(14900), MajorToMinor(149.00))
	assert.Equal(t, int64(1999), MajorToMinor(19.99))
	assert.Equal(t, "pay@example.com", NormalizeEmail("  Pay@Example.COM "))
}
