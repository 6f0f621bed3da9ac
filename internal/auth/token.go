package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"inbox-service/internal/apperrors"
	"inbox-service/internal/models"
)

const (
	// SessionCookie is the cookie browsers carry the token in.
	SessionCookie = "session"
	// TokenQueryParam lets websocket clients pass the token in the URL.
	TokenQueryParam = "token"
)

var (
	ErrMissingToken = apperrors.New(apperrors.ErrUnauthorized, "missing authorization")
	ErrInvalidToken = apperrors.New(apperrors.ErrUnauthorized, "invalid token")
	ErrInactiveUser = apperrors.New(apperrors.ErrForbidden, "inactive user")
)

// Claims is the session token payload issued by the main application.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ProfileSource resolves the user a token was issued for.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID int64) (models.Profile, error)
}

// Authenticator validates session tokens and resolves the caller's profile.
type Authenticator struct {
	secret   []byte
	issuer   string
	profiles ProfileSource
}

func NewAuthenticator(secret, issuer string, profiles ProfileSource) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, profiles: profiles}
}

// Authenticate returns the active profile the token belongs to.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (models.Profile, error) {
	if token == "" {
		return models.Profile{}, ErrMissingToken
	}

	claims, err := a.parse(token)
	if err != nil {
		return models.Profile{}, err
	}

	profile, err := a.profiles.GetProfile(ctx, claims.UserID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return models.Profile{}, ErrInvalidToken
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("load profile %d: %w", claims.UserID, err)
	}
	if !profile.IsActive {
		return models.Profile{}, ErrInactiveUser
	}
	return profile, nil
}

func (a *Authenticator) parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateToken signs a token for the given profile. The main application
// normally does this; the service uses it for development tokens and tests.
func GenerateToken(secret, issuer string, profile models.Profile, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   profile.ID,
		Username: profile.Username,
		Role:     profile.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(profile.ID),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// TokenSource tells where a request carried its token.
type TokenSource int

const (
	SourceNone TokenSource = iota
	SourceHeader
	SourceQuery
	SourceCookie
)

// Ambient reports whether the browser attaches the token on its own, which
// makes the request forgeable from another site.
func (s TokenSource) Ambient() bool {
	return s == SourceCookie
}

// TokenFromRequest reads the bearer header, then the token query parameter,
// then the session cookie.
func TokenFromRequest(r *http.Request) (string, TokenSource) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1]), SourceHeader
		}
		return "", SourceNone
	}
	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token, SourceQuery
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value, SourceCookie
	}
	return "", SourceNone
}
