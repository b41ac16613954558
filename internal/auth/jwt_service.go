package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
const DefaultAccessTokenTTL = 15 * time.Minute

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims are the application claims carried by access tokens. Staff and superuser flags
// are snapshots taken at issue time; authorization middleware re-reads the account.
type Claims struct {
	AccountID string `json:"aid"`
	SessionID string `json:"sid,omitempty"`
	Staff     bool   `json:"stf,omitempty"`
	Superuser bool   `json:"su,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenInput holds the parameters used when generating a new access token.
type AccessTokenInput struct {
	AccountID string
	SessionID string
	Staff     bool
	Superuser bool
}

// JWTService issues and validates HS256 access tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// TTL reports how long issued access tokens stay valid.
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// GenerateAccessToken issues a signed JWT for the account. The session ID doubles as
// the token's jti so a revoked session can be traced from a leaked token.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	if input.AccountID == "" {
		return "", errors.New("jwt: account id is required")
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, s.claimsFor(input, s.now())).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken parses and validates a signed JWT, returning the application claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	var claims Claims
	if _, err := s.parser().ParseWithClaims(tokenString, &claims, s.key); err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	switch {
	case s.issuer != "" && claims.Issuer != s.issuer:
		return nil, errors.New("jwt: invalid issuer")
	case claims.AccountID == "":
		return nil, errors.New("jwt: missing account id claim")
	}
	return &claims, nil
}

func (s *JWTService) claimsFor(input AccessTokenInput, issuedAt time.Time) *Claims {
	return &Claims{
		AccountID: input.AccountID,
		SessionID: input.SessionID,
		Staff:     input.Staff,
		Superuser: input.Superuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.AccountID,
			Issuer:    s.issuer,
			ID:        input.SessionID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}
}

// parser pins HS256 so a token cannot downgrade to "none" or switch to RSA.
func (s *JWTService) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
}

func (s *JWTService) key(*jwt.Token) (interface{}, error) {
	return s.secret, nil
}
