package service

import (
	"context"
	"errors"

	"github.com/cassiomorais/awards/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/middleware"
	"github.com/google/uuid"
)

type AuthzService struct {
	catalog catalog.Repository
}

func NewAuthzService(catalogRepo catalog.Repository) *AuthzService {
	return &AuthzService{catalog: catalogRepo}
}

// VerifyPaymentAccess allows the voter who owns p and admins.
func (s *AuthzService) VerifyPaymentAccess(ctx context.Context, p *payment.Payment) error {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return domainErrors.ErrUnauthorized
	}
	if p.VoterID == userID {
		return nil
	}
	return s.RequireRole(ctx, catalog.RoleAdmin)
}

// VerifyVoterAccess allows a voter to read their own history, and admins.
func (s *AuthzService) VerifyVoterAccess(ctx context.Context, voterID uuid.UUID) error {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return domainErrors.ErrUnauthorized
	}
	if voterID == userID {
		return nil
	}
	return s.RequireRole(ctx, catalog.RoleAdmin)
}

func (s *AuthzService) RequireRole(ctx context.Context, role catalog.Role) error {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return domainErrors.ErrUnauthorized
	}
	user, err := s.catalog.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrUserNotFound) {
			return domainErrors.ErrForbidden
		}
		return err
	}
	if !user.HasRole(role) {
		return domainErrors.ErrForbidden
	}
	return nil
}
