package payments

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/tradeproof/internal/db"
)

func newService(t *testing.T) *Service {
	t.Helper()
	store, err := db.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "payments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })
	s, err := NewService(store, "test-secret")
	require.NoError(t, err)
	return s
}

func TestService_Confirm(t *testing.T) {
	s := newService(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	tests := []struct {
		name        string
		paymentID   string
		tier        string
		expectedErr error
	}{
		{name: "Basic", paymentID: "pay-1", tier: "basic"},
		{name: "Enterprise", paymentID: "pay-2", tier: "enterprise"},
		{name: "GeneratedID", paymentID: "", tier: "pro"},
		{name: "UnknownTier", paymentID: "pay-3", tier: "gold", expectedErr: ErrUnknownTier},
		{name: "Duplicate", paymentID: "pay-1", tier: "basic", expectedErr: db.ErrAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proof, token, err := s.Confirm(context.Background(), tt.paymentID, tt.tier)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, proof.PaymentID)
			assert.NotEmpty(t, token)
			assert.Equal(t, now.Add(30*24*time.Hour), proof.ExpiresAt)

			claims, err := s.ParseToken(token)
			require.NoError(t, err)
			assert.Equal(t, proof.PaymentID, claims.PaymentID)
			assert.Equal(t, tt.tier, claims.Tier)
		})
	}
}

func TestService_Verify(t *testing.T) {
	s := newService(t)
	confirmed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return confirmed }

	_, _, err := s.Confirm(context.Background(), "pay-1", "premium")
	require.NoError(t, err)

	status, err := s.Verify(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, "premium", status.Tier)

	s.now = func() time.Time { return confirmed.Add(31 * 24 * time.Hour) }
	status, err = s.Verify(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.False(t, status.Active)

	_, err = s.Verify(context.Background(), "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestService_ParseToken(t *testing.T) {
	s := newService(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	_, token, err := s.Confirm(context.Background(), "pay-1", "pro")
	require.NoError(t, err)

	_, err = s.ParseToken(token)
	require.NoError(t, err)

	other, err := NewService(s.Store, "other-secret")
	require.NoError(t, err)
	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	s.now = func() time.Time { return now.Add(31 * 24 * time.Hour) }
	_, err = s.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{PaymentID: "pay-1", Tier: "pro"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.ParseToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.ParseToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewService_EmptySecret(t *testing.T) {
	s, err := NewService(nil, "")
	assert.ErrorIs(t, err, ErrMissingSecret)
	assert.Nil(t, s)

	// A token signed with an empty key must never verify
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{PaymentID: "forged", Tier: "enterprise"})
	tokenString, err := forged.SignedString([]byte(""))
	require.NoError(t, err)

	zero := &Service{now: time.Now}
	_, err = zero.ParseToken(tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = zero.Confirm(context.Background(), "pay-1", "pro")
	assert.ErrorIs(t, err, ErrMissingSecret)
}
