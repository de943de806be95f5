package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-mensajeria/internal/infrastructure/identity"
	profile "go-mensajeria/internal/pkg/profile/application/domain"
	"go-mensajeria/internal/pkg/profile/application/usecase"
	"go-mensajeria/internal/repository/adapter"
	"go-mensajeria/internal/retry"
)

func newEngine(t *testing.T) (*gin.Engine, *identity.Verifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := adapter.NewMemoryProfileRepository()
	v := identity.NewVerifier("k")

	r := gin.New()
	g := r.Group("/api/v1", identity.Middleware(v))
	g.POST("/me", NewEnsureProfileController(usecase.NewEnsureProfileUseCase(repo, retry.Policy{MaxAttempts: 1})).Handle())
	g.GET("/me", NewGetMeController(usecase.NewGetProfileUseCase(repo)).Handle())
	g.PATCH("/me", NewUpdateMeController(usecase.NewUpdateProfileUseCase(repo)).Handle())
	g.GET("/profiles", NewListProfilesController(usecase.NewListProfilesUseCase(repo)).Handle())
	g.GET("/profiles/:id", NewGetProfileController(usecase.NewGetProfileUseCase(repo)).Handle())
	return r, v
}

func call(t *testing.T, r *gin.Engine, v *identity.Verifier, claims identity.Claims, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	tok, err := v.Sign(claims, time.Hour)
	require.NoError(t, err)
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func claimsFor(id, name, email string) identity.Claims {
	return identity.Claims{Name: name, Email: email, RegisteredClaims: jwt.RegisteredClaims{Subject: id}}
}

func TestSessionStartMergesProfile(t *testing.T) {
	r, v := newEngine(t)

	w := call(t, r, v, claimsFor("u1", "", "ana@x.io"), http.MethodPost, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(t, r, v, claimsFor("u1", "Ana", "otra@x.io"), http.MethodPost, "/api/v1/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p profile.Profile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "Ana", p.DisplayName)
	assert.Equal(t, "ana@x.io", p.Email)
	assert.Equal(t, profile.DefaultAbout, p.About)
	assert.NotNil(t, p.LastSeen)
}

func TestUpdateAndPublicView(t *testing.T) {
	r, v := newEngine(t)
	for _, c := range []identity.Claims{claimsFor("u1", "Ana", "ana@x.io"), claimsFor("u2", "Beto", "beto@x.io")} {
		require.Equal(t, http.StatusOK, call(t, r, v, c, http.MethodPost, "/api/v1/me", nil).Code)
	}

	w := call(t, r, v, claimsFor("u1", "", ""), http.MethodPatch, "/api/v1/me", gin.H{"display_name": "Ana B", "about": "Ocupada"})
	require.Equal(t, http.StatusOK, w.Code)

	w = call(t, r, v, claimsFor("u2", "", ""), http.MethodGet, "/api/v1/profiles/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pub map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pub))
	assert.Equal(t, "Ana B", pub["display_name"])
	assert.Equal(t, "Ocupada", pub["about"])
	assert.NotContains(t, pub, "email")

	w = call(t, r, v, claimsFor("u2", "", ""), http.MethodGet, "/api/v1/profiles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = call(t, r, v, claimsFor("u2", "", ""), http.MethodGet, "/api/v1/profiles/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(t, r, v, claimsFor("u1", "", ""), http.MethodPatch, "/api/v1/me", gin.H{"display_name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
