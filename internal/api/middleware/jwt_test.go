package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kashikuroni/api-yamdb/internal/api/access"
	"github.com/Kashikuroni/api-yamdb/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test_secret"

type staticRevoker struct {
	revoked map[string]bool
	err     error
}

func (r *staticRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return r.revoked[jti], nil
}

func signToken(t *testing.T, username string, uid uint, role string, jti string, ttl time.Duration) string {
	t.Helper()
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        jti,
		},
		UID:  uid,
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func runAuth(t *testing.T, mw gin.HandlerFunc, header string) (*httptest.ResponseRecorder, *access.Identity) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var got *access.Identity
	r := gin.New()
	r.GET("/ping", mw, func(c *gin.Context) {
		got = Identity(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, got
}

func TestAuthOptional_AnonymousPasses(t *testing.T) {
	w, id := runAuth(t, AuthOptional(testSecret, nil, nil), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if id != nil {
		t.Fatalf("expected nil identity for anonymous request")
	}
}

func TestAuthRequired_MissingHeaderGets401(t *testing.T) {
	w, _ := runAuth(t, AuthRequired(testSecret, nil, nil), "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidTokenSetsIdentity(t *testing.T) {
	token := signToken(t, "alice", 7, "moderator", "jti-1", time.Hour)
	w, id := runAuth(t, AuthOptional(testSecret, nil, nil), "Bearer "+token)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if id == nil {
		t.Fatalf("expected identity in context")
	}
	if id.Username != "alice" || id.UserID != 7 || id.Role != model.RoleModerator || id.TokenID != "jti-1" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestAuth_GarbageTokenGets401EvenWhenOptional(t *testing.T) {
	w, _ := runAuth(t, AuthOptional(testSecret, nil, nil), "Bearer not.a.token")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ExpiredTokenGets401(t *testing.T) {
	token := signToken(t, "alice", 7, "user", "jti-2", -time.Minute)
	w, _ := runAuth(t, AuthOptional(testSecret, nil, nil), "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_WrongSecretGets401(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other_secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w, _ := runAuth(t, AuthOptional(testSecret, nil, nil), "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_RevokedTokenGets401(t *testing.T) {
	token := signToken(t, "alice", 7, "user", "jti-gone", time.Hour)
	revoker := &staticRevoker{revoked: map[string]bool{"jti-gone": true}}

	w, _ := runAuth(t, AuthOptional(testSecret, revoker, nil), "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked token, got %d", w.Code)
	}
}

func TestAuth_RevokerErrorFailsOpenButLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	token := signToken(t, "alice", 7, "user", "jti-3", time.Hour)
	revoker := &staticRevoker{err: errors.New("redis down")}

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	var got *access.Identity
	r := gin.New()
	r.GET("/ping", AuthOptional(testSecret, revoker, logger), func(c *gin.Context) {
		got = Identity(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("revoker outage must not block valid tokens, got %d", w.Code)
	}
	if got == nil || got.Username != "alice" {
		t.Fatalf("expected identity despite revoker outage, got %+v", got)
	}
	if !strings.Contains(logBuf.String(), "revocation check failed") {
		t.Fatalf("expected fail-open to be logged, got %q", logBuf.String())
	}
}
