package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeToken map[string]interface{}

func (t fakeToken) Claims(v interface{}) error {
	data, err := json.Marshal(map[string]interface{}(t))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

type fakeVerifier struct {
	claims fakeToken
	err    error
}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

func authedRouter(ver Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", AuthMiddleware(ver), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userId":   c.GetString("userId"),
			"username": c.GetString("username"),
		})
	})
	return r
}

func TestAuthMiddleware_SetsIdentityFromClaims(t *testing.T) {
	r := authedRouter(&fakeVerifier{claims: fakeToken{"sub": "u1", "name": "alice"}})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer token123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, "u1", out["userId"])
	require.Equal(t, "alice", out["username"])
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	r := authedRouter(&fakeVerifier{claims: fakeToken{"sub": "u1"}})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	r := authedRouter(&fakeVerifier{claims: fakeToken{"sub": "u1"}})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "token123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_RejectedToken(t *testing.T) {
	r := authedRouter(&fakeVerifier{err: errors.New("expired")})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
