package credentials

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ProviderTokenPurpose scopes a provider token to one store operation.
type ProviderTokenPurpose string

const (
	PurposeEmailConfirmation ProviderTokenPurpose = "email_confirmation"
	PurposePasswordReset     ProviderTokenPurpose = "password_reset"
)

// DefaultProviderTokenTTL bounds provider tokens independently of the
// claim expiry.
const DefaultProviderTokenTTL = 24 * time.Hour

const providerTokenIssuer = "go-credentials"

type providerClaims struct {
	jwt.RegisteredClaims
	Purpose ProviderTokenPurpose `json:"pur"`
	Stamp   string               `json:"stp"`
}

// ProviderTokens signs the opaque tokens stores hand out for email
// confirmation and password reset. Tokens embed the account security stamp,
// so any write that rotates the stamp invalidates every outstanding token.
type ProviderTokens struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// ProviderTokenOption customizes ProviderTokens
type ProviderTokenOption func(*ProviderTokens)

func WithProviderTokenTTL(ttl time.Duration) ProviderTokenOption {
	return func(p *ProviderTokens) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

func WithProviderTokenClock(now func() time.Time) ProviderTokenOption {
	return func(p *ProviderTokens) {
		if now != nil {
			p.now = now
		}
	}
}

func WithProviderTokenIssuer(issuer string) ProviderTokenOption {
	return func(p *ProviderTokens) {
		if issuer != "" {
			p.issuer = issuer
		}
	}
}

// NewProviderTokens creates a signer using signingKey for HS256.
func NewProviderTokens(signingKey []byte, opts ...ProviderTokenOption) *ProviderTokens {
	p := &ProviderTokens{
		key:    signingKey,
		ttl:    DefaultProviderTokenTTL,
		issuer: providerTokenIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Generate signs a token for account and purpose.
func (p *ProviderTokens) Generate(account *Account, purpose ProviderTokenPurpose) (string, error) {
	if account == nil {
		return "", ErrAccountNotFound
	}

	now := p.now()
	claims := providerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.issuer,
			Subject:   account.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		Purpose: purpose,
		Stamp:   account.SecurityStamp,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
}

// Verify checks token against the current state of account. Every failure
// maps to ErrInvalidOrExpiredToken.
func (p *ProviderTokens) Verify(account *Account, purpose ProviderTokenPurpose, token string) error {
	if account == nil || token == "" {
		return ErrInvalidOrExpiredToken
	}

	claims := &providerClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.key, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithSubject(account.ID.String()),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}

	if claims.Purpose != purpose {
		return ErrInvalidOrExpiredToken
	}

	if subtle.ConstantTimeCompare([]byte(claims.Stamp), []byte(account.SecurityStamp)) != 1 {
		return ErrInvalidOrExpiredToken
	}

	return nil
}

// NewSecurityStamp returns a fresh random stamp.
func NewSecurityStamp() string {
	return uuid.NewString()
}
