package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is the verified caller of a request.
type Principal struct {
	ID    string
	Email string
	Role  string
	Name  string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Claims are the token fields issued by the identity service.
type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Issue signs a token for p. Used by tests and local tooling; sessions are issued elsewhere.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:    p.ID,
		Email: p.Email,
		Role:  p.Role,
		Name:  p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(v.secret)
}

// ParseHeader verifies an Authorization header value ("Bearer <token>").
// A bare token without the scheme is accepted; a scheme without a token is missing.
func (v *Verifier) ParseHeader(header string) (Principal, error) {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return Principal{}, ErrMissingToken
	}
	if strings.EqualFold(fields[0], "bearer") {
		fields = fields[1:]
		if len(fields) == 0 {
			return Principal{}, ErrMissingToken
		}
	}
	if len(fields) != 1 {
		return Principal{}, fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}
	return v.Parse(fields[0])
}

// Parse verifies a raw token string.
func (v *Verifier) Parse(tokenStr string) (Principal, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.ID == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		ID:    claims.ID,
		Email: claims.Email,
		Role:  claims.Role,
		Name:  claims.Name,
	}, nil
}
