package auth

import (
	stderrors "errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/mmrunner/errors"
)

// Claims are the token claims. Only registered claims are used; the
// subject names the operator or automation holding the token.
type Claims struct {
	gojwt.RegisteredClaims
}

// Service mints and verifies HS256 tokens.
type Service struct {
	cfg Config
	now func() time.Time
}

var _ TokenValidator = (*Service)(nil)

// NewService creates a token service.
func NewService(cfg Config) (*Service, error) {
	cfg.ApplyDefaults()
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth: secret is required")
	}
	return &Service{cfg: cfg, now: time.Now}, nil
}

// Generate signs a token for subject that expires after the configured TTL.
func (s *Service) Generate(subject string) (string, error) {
	if subject == "" {
		return "", errors.MissingField("subject")
	}
	now := s.now()
	claims := &Claims{RegisteredClaims: gojwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.cfg.Issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(now.Add(s.cfg.TTL)),
	}}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature, expiry and issuer of tokenString. Failures
// are TOKEN_EXPIRED or INVALID_TOKEN AppErrors wrapping the parser error.
func (s *Service) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := gojwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(s.cfg.Issuer),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(s.now),
	)
	switch {
	case stderrors.Is(err, gojwt.ErrTokenExpired):
		return nil, errors.TokenExpired().WithCause(err)
	case err != nil:
		return nil, errors.InvalidToken().WithCause(err)
	case !token.Valid:
		return nil, errors.InvalidToken()
	}
	return claims, nil
}

// ValidateToken implements TokenValidator.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return s.Parse(token)
}

func (s *Service) keyFunc(token *gojwt.Token) (any, error) {
	if token.Method.Alg() != gojwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("auth: unexpected signing method: %s", token.Method.Alg())
	}
	return []byte(s.cfg.Secret), nil
}
