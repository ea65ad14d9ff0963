package credentials

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Token is the decoded form of a claim value: when it expires, the secret
// handed to the user, and the store issued provider token.
type Token struct {
	ExpiresAt     time.Time
	Secret        string
	ProviderToken string
}

// TokenStatus is the result of checking a supplied secret against a Token.
type TokenStatus int

const (
	TokenValid TokenStatus = iota
	TokenExpired
	TokenSecretMismatch
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	case TokenSecretMismatch:
		return "secret_mismatch"
	default:
		return "unknown"
	}
}

// TokenCodec encodes the composite token stored in account claims.
type TokenCodec struct {
	ttl       time.Duration
	delimiter string
	now       func() time.Time
	secrets   func() (string, error)
}

// TokenCodecOption customizes a TokenCodec
type TokenCodecOption func(*TokenCodec)

// WithTokenClock overrides the clock used for expiry.
func WithTokenClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTokenSecretGenerator overrides how secrets are produced.
func WithTokenSecretGenerator(fn func() (string, error)) TokenCodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.secrets = fn
		}
	}
}

// NewTokenCodec builds a codec from cfg.
func NewTokenCodec(cfg Config, opts ...TokenCodecOption) *TokenCodec {
	cfg = normalizeConfig(cfg)
	c := &TokenCodec{
		ttl:       cfg.GetTokenTTL(),
		delimiter: cfg.GetTokenDelimiter(),
		now:       time.Now,
		secrets:   NewSecret,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// NewSecret returns 32 lowercase hex characters from a random UUID.
func NewSecret() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// Issue creates a fresh token around providerToken and returns it with its
// encoded claim value.
func (c *TokenCodec) Issue(providerToken string) (Token, string, error) {
	secret, err := c.secrets()
	if err != nil {
		return Token{}, "", err
	}

	token := Token{
		ExpiresAt:     c.now().Add(c.ttl).UTC(),
		Secret:        secret,
		ProviderToken: providerToken,
	}

	value, err := c.Encode(token)
	if err != nil {
		return Token{}, "", err
	}
	return token, value, nil
}

// Encode joins the token fields. Fields may not contain the delimiter.
func (c *TokenCodec) Encode(token Token) (string, error) {
	if token.Secret == "" || token.ProviderToken == "" {
		return "", ErrTokenMalformed
	}

	expiry := strconv.FormatInt(token.ExpiresAt.UnixNano(), 10)

	for _, field := range []string{expiry, token.Secret, token.ProviderToken} {
		if strings.Contains(field, c.delimiter) {
			return "", ErrTokenFieldDelimiter
		}
	}

	return strings.Join([]string{expiry, token.Secret, token.ProviderToken}, c.delimiter), nil
}

// Parse decodes a claim value.
func (c *TokenCodec) Parse(value string) (Token, error) {
	parts := strings.Split(value, c.delimiter)
	if len(parts) != 3 {
		return Token{}, ErrTokenMalformed
	}

	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Token{}, ErrTokenMalformed
	}

	if parts[1] == "" || parts[2] == "" {
		return Token{}, ErrTokenMalformed
	}

	return Token{
		ExpiresAt:     time.Unix(0, nanos).UTC(),
		Secret:        parts[1],
		ProviderToken: parts[2],
	}, nil
}

// Validate checks expiry first and then compares the secret without
// regard to case in constant time.
func (c *TokenCodec) Validate(token Token, supplied string) TokenStatus {
	if !c.now().Before(token.ExpiresAt) {
		return TokenExpired
	}

	expected := []byte(strings.ToLower(token.Secret))
	given := []byte(strings.ToLower(supplied))
	if subtle.ConstantTimeCompare(expected, given) != 1 {
		return TokenSecretMismatch
	}
	return TokenValid
}
