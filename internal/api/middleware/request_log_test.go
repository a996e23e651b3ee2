package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Kashikuroni/api-yamdb/internal/api/access"
	"github.com/Kashikuroni/api-yamdb/internal/model"

	"github.com/gin-gonic/gin"
)

func runLogged(t *testing.T, id *access.Identity) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/titles", func(c *gin.Context) {
		if id != nil {
			c.Set("identity", id)
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/titles", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return logBuf.String()
}

func TestRequestLogger_LogsRequestMetadata(t *testing.T) {
	out := runLogged(t, nil)

	for _, want := range []string{"http request", "method=GET", "path=/titles", "status=200"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output, got %q", want, out)
		}
	}
	if strings.Contains(out, "username=") {
		t.Fatalf("anonymous request must not log a username: %q", out)
	}
}

func TestRequestLogger_IncludesIdentity(t *testing.T) {
	out := runLogged(t, &access.Identity{UserID: 7, Username: "alice", Role: model.RoleModerator})

	if !strings.Contains(out, "username=alice") || !strings.Contains(out, "role=moderator") {
		t.Fatalf("expected identity attributes in log output, got %q", out)
	}
}
