// Package session issues the signed session token returned after a
// successful login. Request handlers read the identity from the verified
// token instead of any process-wide session state.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName           = "session_token"
	DefaultSessionExpiry = 24 * time.Hour
)

// Method records how a session was established.
type Method string

const (
	MethodPassword      Method = "password"
	MethodTempToken     Method = "temp_token"
	MethodRememberMe    Method = "remember_me"
	MethodDefaultAdmin  Method = "default_admin"
	MethodPasswordReset Method = "password_reset"
)

var ErrInvalidToken = errors.New("invalid session token")

// Claims struct for JWT claims
type Claims struct {
	Method   Method `json:"method,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

// IdentityID returns the identity the session belongs to.
func (c *Claims) IdentityID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

type Issuer struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

type Option func(*Issuer)

func WithIssuer(issuer string) Option {
	return func(i *Issuer) {
		i.issuer = issuer
	}
}

func WithExpiry(expiry time.Duration) Option {
	return func(i *Issuer) {
		if expiry > 0 {
			i.expiry = expiry
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

func NewIssuer(secret string, opts ...Option) *Issuer {
	i := &Issuer{
		secret: []byte(secret),
		issuer: "simple-credential",
		expiry: DefaultSessionExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue signs an HS256 session token for identityID.
func (i *Issuer) Issue(identityID uuid.UUID, method Method, deviceID string) (string, time.Time, error) {
	now := i.now().UTC()
	expiresAt := now.Add(i.expiry)
	claims := Claims{
		Method:   method,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies tokenStr and returns its claims.
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.IdentityID(); err != nil {
		return nil, fmt.Errorf("%w: subject is not an identity id", ErrInvalidToken)
	}
	return claims, nil
}

// IdentityFromClaims extracts the identity from a verified claim map, as
// produced by jwtauth.FromContext.
func IdentityFromClaims(claims map[string]interface{}) (uuid.UUID, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return uuid.Nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return id, nil
}

// SetCookie stores the session token in an HttpOnly cookie.
func SetCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Path:     "/",
		Value:    token,
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Path:     "/",
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
	})
}
