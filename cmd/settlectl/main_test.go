package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cassiomorais/awards/internal/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenCmd(t *testing.T) {
	secret := strings.Repeat("s", 32)
	userID := uuid.New()

	out, err := run(t, "token", userID.String(), "--secret", secret, "--ttl", "1h")
	require.NoError(t, err)

	claims := &middleware.Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, userID.String(), claims.UserID)
}

func TestTokenCmd_RejectsBadUserID(t *testing.T) {
	_, err := run(t, "token", "not-a-uuid", "--secret", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid user id")
}

func TestMigrateCmd_RejectsUnknownDirection(t *testing.T) {
	_, err := run(t, "migrate", "sideways")
	assert.Error(t, err)
}

func TestVerifyCmd_RequiresReference(t *testing.T) {
	_, err := run(t, "verify")
	assert.Error(t, err)
}
