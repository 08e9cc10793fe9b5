package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/wxbridge/internal/cache"
	"github.com/dropDatabas3/wxbridge/internal/wechat"
)

type staticProvider struct{ token string }

func (p *staticProvider) Fetch(ctx context.Context) (*wechat.TokenRecord, error) {
	return &wechat.TokenRecord{Variant: wechat.VariantQYWX, Token: p.token, FetchedAt: time.Now(), ExpiresIn: 7200}, nil
}

// newLoginRouter monta el handler en un router real para que chi.URLParam
// resuelva {variant} como en producción.
func newLoginRouter(t *testing.T, exchange http.HandlerFunc) http.Handler {
	t.Helper()
	srv := httptest.NewServer(exchange)
	t.Cleanup(srv.Close)

	store := wechat.NewTokenStore(cache.NewMemory(""))
	src := wechat.NewTokenSource(wechat.VariantQYWX, store, &staticProvider{token: "tok"}, "direct")
	flow, err := wechat.NewLoginFlow(wechat.VariantQYWX,
		wechat.Credentials{CorpID: "corp", AgentID: "7"},
		wechat.Endpoints{Login: "https://wx.example.com/qrConnect", LoginUser: srv.URL},
		src, wechat.NewSessionStore(time.Minute), "https://cb.example.com", nil)
	require.NoError(t, err)

	h := NewLoginHandler(flow)
	r := chi.NewRouter()
	r.Get("/login/{variant}/url", h.StartURL)
	r.Get("/login/{variant}/callback", h.Callback)
	return r
}

func TestLoginStartThenCallback(t *testing.T) {
	router := newLoginRouter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 0, "UserId": "dev-1"})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/qywx/url", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var start struct {
		LoginURL string `json:"login_url"`
		State    string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &start))
	require.NotEmpty(t, start.State)

	u, err := url.Parse(start.LoginURL)
	require.NoError(t, err)
	assert.Equal(t, start.State, u.Query().Get("state"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/qywx/callback?code=c1&state="+start.State, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var identity struct {
		UserID  string `json:"user_id"`
		Variant string `json:"variant"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &identity))
	assert.Equal(t, "dev-1", identity.UserID)
	assert.Equal(t, "qywx", identity.Variant)
}

func TestLoginCallback_InvalidState(t *testing.T) {
	remoteCalled := false
	router := newLoginRouter(t, func(w http.ResponseWriter, r *http.Request) {
		remoteCalled = true
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/qywx/callback?code=c1&state=inventado", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, remoteCalled, "invalid state must not reach the remote")
}

func TestLoginCallback_StateReuseRejected(t *testing.T) {
	router := newLoginRouter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 0, "UserId": "dev-1"})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/qywx/url", nil))
	var start struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &start))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/qywx/callback?code=c1&state="+start.State, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/qywx/callback?code=c2&state="+start.State, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginCallback_MissingParams(t *testing.T) {
	router := newLoginRouter(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/qywx/callback?code=c1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_UnknownVariant(t *testing.T) {
	router := newLoginRouter(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/dingtalk/url", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login/mp/url", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
