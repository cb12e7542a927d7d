package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/xtrntr/tradeproof/internal/db"
	"github.com/xtrntr/tradeproof/internal/models"
)

// TierDuration is how long every subscription tier stays active
const TierDuration = 30 * 24 * time.Hour

var tiers = map[string]bool{
	"basic":      true,
	"pro":        true,
	"premium":    true,
	"enterprise": true,
}

var (
	ErrUnknownTier   = errors.New("unknown subscription tier")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingSecret = errors.New("token signing secret is empty")
)

// Claims is the access token payload
type Claims struct {
	PaymentID string `json:"payment_id"`
	Tier      string `json:"tier"`
	jwt.RegisteredClaims
}

// Status is a stored proof plus whether it is still active
type Status struct {
	models.PaymentProof
	Active bool `json:"active"`
}

// Service confirms payments and issues access tokens
type Service struct {
	Store  db.Store
	secret []byte
	now    func() time.Time
}

// NewService creates a new payment service. An empty secret is refused since
// anyone could sign tokens with it.
func NewService(store db.Store, secret string) (*Service, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Service{Store: store, secret: []byte(secret), now: time.Now}, nil
}

// IsTier reports whether tier names a known subscription tier
func IsTier(tier string) bool {
	return tiers[tier]
}

// Confirm records a payment proof and returns it with a signed access token.
// An empty paymentID gets a generated one.
func (s *Service) Confirm(ctx context.Context, paymentID, tier string) (*models.PaymentProof, string, error) {
	if len(s.secret) == 0 {
		return nil, "", ErrMissingSecret
	}
	if !IsTier(tier) {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	if paymentID == "" {
		paymentID = uuid.NewString()
	}

	confirmed := s.now().UTC().Truncate(time.Millisecond)
	proof := &models.PaymentProof{
		PaymentID:   paymentID,
		Tier:        tier,
		ConfirmedAt: confirmed,
		ExpiresAt:   confirmed.Add(TierDuration),
	}
	if err := s.Store.SavePaymentProof(ctx, proof); err != nil {
		return nil, "", fmt.Errorf("failed to save payment proof: %w", err)
	}

	token, err := s.issue(proof)
	if err != nil {
		return nil, "", err
	}
	return proof, token, nil
}

func (s *Service) issue(proof *models.PaymentProof) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		PaymentID: proof.PaymentID,
		Tier:      proof.Tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   proof.PaymentID,
			IssuedAt:  jwt.NewNumericDate(proof.ConfirmedAt),
			ExpiresAt: jwt.NewNumericDate(proof.ExpiresAt),
		},
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify looks up a payment and reports whether it is still active
func (s *Service) Verify(ctx context.Context, paymentID string) (*Status, error) {
	proof, err := s.Store.GetPaymentProof(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return &Status{PaymentProof: *proof, Active: s.now().Before(proof.ExpiresAt)}, nil
}

// ParseToken checks the signature and expiry of an access token
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
