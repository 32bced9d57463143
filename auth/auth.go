package auth

// TokenValidator validates a token string and returns the parsed claims.
// The middleware depends on this interface rather than on Service so tests
// and alternative token schemes can plug in.
type TokenValidator interface {
	ValidateToken(token string) (*Claims, error)
}

// TokenValidatorFunc adapts an ordinary function to the TokenValidator interface.
type TokenValidatorFunc func(token string) (*Claims, error)

// ValidateToken implements TokenValidator.
func (f TokenValidatorFunc) ValidateToken(token string) (*Claims, error) {
	return f(token)
}
