// Package members owns profile lifecycle outside of payment reconciliation:
// registration of new members and contact detail edits.
package members

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"memberpay/internal/pkg/logger"
	"memberpay/internal/platform/audit"
	"memberpay/internal/platform/models"
	"memberpay/internal/platform/repositories"
)

type RegisterInput struct {
	OwnerID  string `json:"owner_id" validate:"required,max=128"`
	Email    string `json:"email" validate:"required,email,max=254"`
	FullName string `json:"full_name" validate:"max=200"`
}

type ContactInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	FullName string `json:"full_name" validate:"max=200"`
}

type Service struct {
	profiles *repositories.ProfileRepository
	audit    *audit.Recorder
	log      zerolog.Logger
}

func NewService(profiles *repositories.ProfileRepository, rec *audit.Recorder) *Service {
	return &Service{profiles: profiles, audit: rec, log: logger.Component("members")}
}

// Register creates the default profile for a new member. Registering an
// owner that already has a profile returns the existing one with
// created=false; concurrent registrations converge on a single row.
func (s *Service) Register(ctx context.Context, in RegisterInput) (profile *models.Profile, created bool, err error) {
	p := &models.Profile{
		OwnerID:    strings.TrimSpace(in.OwnerID),
		Email:      strings.TrimSpace(in.Email),
		FullName:   strings.TrimSpace(in.FullName),
		PlanStatus: models.PlanStatusNone,
	}

	err = s.profiles.Create(ctx, p)
	if errors.Is(err, repositories.ErrOwnerExists) {
		existing, err := s.profiles.FindByOwner(ctx, p.OwnerID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, repositories.ErrProfileNotFound
		}
		s.log.Info().Str("owner_id", p.OwnerID).Msg("profile already exists for member, skipping")
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.audit.Record(ctx, models.ReconciliationEntry{
		OwnerID: p.OwnerID,
		Source:  audit.SourceMember,
		Action:  "profile_created",
	})
	s.log.Info().Str("owner_id", p.OwnerID).Msg("profile created for new member")
	return p, true, nil
}

// SaveContact updates email and name. Payment and subscription fields are
// never written from member input.
func (s *Service) SaveContact(ctx context.Context, ownerID string, in ContactInput) (*models.Profile, error) {
	err := s.profiles.Upsert(ctx, &models.Profile{
		OwnerID:  ownerID,
		Email:    strings.TrimSpace(in.Email),
		FullName: strings.TrimSpace(in.FullName),
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, ownerID)
}

func (s *Service) Get(ctx context.Context, ownerID string) (*models.Profile, error) {
	p, err := s.profiles.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, repositories.ErrProfileNotFound
	}
	return p, nil
}
