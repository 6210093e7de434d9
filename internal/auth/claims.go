package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/devicesync-core/internal/infrastructure/config"
)

// Errors returned by token handling.
var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrTokenInvalid    = errors.New("auth: invalid token")
	ErrTokenExpired    = errors.New("auth: token has expired")
)

// defaultTokenTTL applies when the configured TTL is not positive.
const defaultTokenTTL = 15 * time.Minute

// Claims are the JWT claims of an access token.
type Claims struct {
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	UserID  string
	TokenID string
}

// Authenticator issues and verifies access tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an authenticator from the JWT settings.
func NewAuthenticator(cfg config.JWTConfig) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	ttl := time.Duration(cfg.AccessTokenTTL) * time.Minute
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// IssueToken creates a signed access token for userID.
func (a *Authenticator) IssueToken(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: empty subject", ErrTokenInvalid)
	}

	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token and returns its claims. It checks the
// signature, expiry, issuer (when configured) and subject.
func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// Authenticate resolves an Authorization header value ("Bearer <jwt>") to
// an identity. Every failure wraps ErrUnauthenticated.
func (a *Authenticator) Authenticate(header string) (Identity, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return Identity{}, fmt.Errorf("%w: bearer token required", ErrUnauthenticated)
	}

	claims, err := a.ParseToken(strings.TrimSpace(token))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return Identity{UserID: claims.Subject, TokenID: claims.ID}, nil
}
