// Package checkout starts a sign-up payment with the member's chosen
// provider and hands back the URL to redirect them to.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"memberpay/internal/engine/providers"
	"memberpay/internal/pkg/logger"
	"memberpay/internal/platform/models"
	"memberpay/internal/platform/repositories"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

type Request struct {
	OwnerID  string  `json:"owner_id" validate:"required,max=128"`
	Provider string  `json:"provider" validate:"required"`
	Amount   float64 `json:"amount" validate:"gt=0"`
}

type ProfileFinder interface {
	FindByOwner(ctx context.Context, ownerID string) (*models.Profile, error)
}

type Service struct {
	registry *providers.Registry
	profiles ProfileFinder
	newRef   func() string
	log      zerolog.Logger
}

func NewService(registry *providers.Registry, profiles ProfileFinder) *Service {
	return &Service{
		registry: registry,
		profiles: profiles,
		newRef:   func() string { return uuid.New().String() },
		log:      logger.Component("checkout"),
	}
}

// Start creates a provider checkout for the owner's profile. The generated
// reference is the correlation id the provider echoes back in webhooks.
func (s *Service) Start(ctx context.Context, req Request) (*providers.CheckoutSession, error) {
	initiator, ok := s.registry.Checkout(req.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, req.Provider)
	}

	profile, err := s.profiles.FindByOwner(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, repositories.ErrProfileNotFound
	}

	session, err := initiator.InitiateCheckout(ctx, providers.CheckoutRequest{
		OwnerID:   profile.OwnerID,
		Email:     profile.Email,
		FullName:  profile.FullName,
		Amount:    req.Amount,
		Reference: s.newRef(),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("owner_id", profile.OwnerID).
		Str("provider", session.Provider).
		Str("reference", session.Reference).
		Msg("checkout started")
	return session, nil
}
