package service

import (
	"context"
	"testing"

	"github.com/cassiomorais/awards/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/middleware"
	"github.com/cassiomorais/awards/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAuthz_VerifyPaymentAccess(t *testing.T) {
	repo := testutil.NewMockCatalogRepository()
	cat := testutil.NewCatalog(repo)
	authz := NewAuthzService(repo)
	p := cat.NewTestPayment(payment.MethodPaystack)

	stranger := &catalog.User{ID: uuid.New(), Roles: []catalog.Role{catalog.RoleVoter}}
	repo.AddUser(stranger)

	tests := []struct {
		name string
		ctx  context.Context
		err  error
	}{
		{"owner", middleware.WithUserID(context.Background(), cat.Voter.ID), nil},
		{"admin", middleware.WithUserID(context.Background(), cat.Admin.ID), nil},
		{"other voter", middleware.WithUserID(context.Background(), stranger.ID), domainErrors.ErrForbidden},
		{"unknown user", middleware.WithUserID(context.Background(), uuid.New()), domainErrors.ErrForbidden},
		{"anonymous", context.Background(), domainErrors.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.VerifyPaymentAccess(tt.ctx, p)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestAuthz_VerifyVoterAccess(t *testing.T) {
	repo := testutil.NewMockCatalogRepository()
	cat := testutil.NewCatalog(repo)
	authz := NewAuthzService(repo)

	assert.NoError(t, authz.VerifyVoterAccess(middleware.WithUserID(context.Background(), cat.Voter.ID), cat.Voter.ID))
	assert.NoError(t, authz.VerifyVoterAccess(middleware.WithUserID(context.Background(), cat.Admin.ID), cat.Voter.ID))
	assert.ErrorIs(t, authz.VerifyVoterAccess(middleware.WithUserID(context.Background(), cat.Voter.ID), cat.Admin.ID), domainErrors.ErrForbidden)
}
