// Package auth resolves bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "userID"

var (
	// ErrMissingHeader indicates the request carried no Authorization header.
	ErrMissingHeader = errors.New("missing authorization header")
	// ErrInvalidToken indicates the token is malformed, expired or fails
	// validation.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Identity is the caller resolved from a token.
type Identity struct {
	UserID string
	Email  string
}

// Authenticator resolves a bearer token to an Identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// Claims are the JWT claims issued by the identity provider.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator verifies HMAC signed JWTs with a shared secret.
type JWTAuthenticator struct {
	secret   []byte
	audience string
}

// NewJWTAuthenticator creates a JWTAuthenticator. An empty audience skips
// the aud check.
func NewJWTAuthenticator(secret, audience string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), audience: audience}
}

// Authenticate validates token and returns the subject as the user id.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: subject, Email: claims.Email}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingHeader
	}
	if strings.EqualFold(header, "bearer") {
		return "", ErrInvalidToken
	}
	if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
		header = header[7:]
	}
	token := strings.TrimSpace(header)
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// user id in the gin context.
func Middleware(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.GetHeader("Authorization"))
		if errors.Is(err, ErrMissingHeader) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header."})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token."})
			return
		}

		identity, err := a.Authenticate(c.Request.Context(), token)
		if err != nil || identity == nil || identity.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token."})
			return
		}

		c.Set(userIDKey, identity.UserID)
		c.Next()
	}
}

// UserID returns the authenticated user id stored by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
