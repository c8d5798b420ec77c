package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantrychef/internal/auth"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims auth.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func claimsFor(sub string, exp time.Time) auth.Claims {
	return auth.Claims{
		Email: "cook@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestJWTAuthenticator(t *testing.T) {
	future := time.Now().Add(time.Hour)
	noExpiry := claimsFor("user-1", future)
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name     string
		audience string
		token    string
		wantUser string
	}{
		{name: "valid", token: sign(t, jwt.SigningMethodHS256, []byte(secret), claimsFor("user-1", future)), wantUser: "user-1"},
		{name: "valid with audience", audience: "authenticated", token: sign(t, jwt.SigningMethodHS512, []byte(secret), claimsFor("user-2", future)), wantUser: "user-2"},
		{name: "wrong audience", audience: "admin", token: sign(t, jwt.SigningMethodHS256, []byte(secret), claimsFor("user-1", future))},
		{name: "expired", token: sign(t, jwt.SigningMethodHS256, []byte(secret), claimsFor("user-1", time.Now().Add(-time.Minute)))},
		{name: "missing expiry", token: sign(t, jwt.SigningMethodHS256, []byte(secret), noExpiry)},
		{name: "wrong secret", token: sign(t, jwt.SigningMethodHS256, []byte("other"), claimsFor("user-1", future))},
		{name: "empty subject", token: sign(t, jwt.SigningMethodHS256, []byte(secret), claimsFor("", future))},
		{name: "unsigned", token: sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claimsFor("user-1", future))},
		{name: "garbage", token: "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := auth.NewJWTAuthenticator(secret, tt.audience)

			identity, err := a.Authenticate(context.Background(), tt.token)

			if tt.wantUser == "" {
				assert.ErrorIs(t, err, auth.ErrInvalidToken)
				assert.Nil(t, identity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, identity.UserID)
			assert.Equal(t, "cook@example.com", identity.Email)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{header: "", wantErr: auth.ErrMissingHeader},
		{header: "   ", wantErr: auth.ErrMissingHeader},
		{header: "Bearer abc", want: "abc"},
		{header: "bearer  abc ", want: "abc"},
		{header: "abc", want: "abc"},
		{header: "Bearer ", wantErr: auth.ErrInvalidToken},
		{header: "Bearer    x", want: "x"},
	}
	for _, tt := range tests {
		got, err := auth.BearerToken(tt.header)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, tt.header)
			continue
		}
		require.NoError(t, err, tt.header)
		assert.Equal(t, tt.want, got)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := auth.NewJWTAuthenticator(secret, "")
	valid := sign(t, jwt.SigningMethodHS256, []byte(secret), claimsFor("user-9", time.Now().Add(time.Hour)))

	r := gin.New()
	r.GET("/me", auth.Middleware(a), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": auth.UserID(c)})
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   map[string]string
	}{
		{name: "missing", wantStatus: http.StatusUnauthorized, wantBody: map[string]string{"error": "Missing authorization header."}},
		{name: "invalid", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantBody: map[string]string{"error": "Invalid or expired token."}},
		{name: "valid", header: "Bearer " + valid, wantStatus: http.StatusOK, wantBody: map[string]string{"user": "user-9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			r.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body)
		})
	}
}
