// Package auth issues and verifies bearer credentials and resolves the
// principals and tenants they name.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xelth-com/riveredgego/internal/config"
	"github.com/xelth-com/riveredgego/internal/tenancy"
)

// Credential kinds.
const (
	KindTenant   = "tenant"
	KindPlatform = "platform"
)

var ErrInvalidToken = errors.New("invalid token")

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Claims is the payload of an access token. TenantID is absent on
// platform credentials.
type Claims struct {
	TenantID *uint  `json:"tid,omitempty"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

type Tokens struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(cfg config.AuthConfig) *Tokens {
	method := jwt.GetSigningMethod(cfg.JWTAlgorithm)
	if method == nil {
		method = jwt.SigningMethodHS256
	}
	return &Tokens{secret: []byte(cfg.JWTSecret), method: method, ttl: cfg.TokenTTL, now: time.Now}
}

// Issue signs an access token for p. tenantID is nil for platform credentials.
func (t *Tokens) Issue(p *tenancy.Principal, tenantID *uint) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	kind := KindTenant
	if tenantID == nil {
		kind = KindPlatform
	}
	claims := Claims{
		TenantID: tenantID,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(p.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(t.method, claims).SignedString(t.secret)
	return signed, exp, err
}

// Verify parses and validates a token signed with the configured algorithm.
func (t *Tokens) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	switch claims.Kind {
	case KindTenant:
		if claims.TenantID == nil {
			return nil, ErrInvalidToken
		}
	case KindPlatform:
		if claims.TenantID != nil {
			return nil, ErrInvalidToken
		}
	default:
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
