package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dropDatabas3/wxbridge/internal/cache"
)

func newTestFlow(t *testing.T, v Variant, eps Endpoints, p TokenProvider) (*LoginFlow, *TokenStore) {
	t.Helper()
	store := NewTokenStore(cache.NewMemory(""))
	if p == nil {
		p = &fakeProvider{rec: freshRecord(v, "tok-live")}
	}
	src := NewTokenSource(v, store, p, "direct")
	f, err := NewLoginFlow(v,
		Credentials{CorpID: "corp-1", CorpSecret: "sec", AgentID: "1000002"},
		eps, src, NewSessionStore(time.Minute),
		"https://console.example.com/callback", nil)
	if err != nil {
		t.Fatalf("NewLoginFlow err: %v", err)
	}
	return f, store
}

func TestNewLoginFlow_RejectsMP(t *testing.T) {
	t.Parallel()
	if _, err := NewLoginFlow(VariantMP, Credentials{}, Endpoints{}, nil, nil, "", nil); err == nil {
		t.Fatal("mp should not support the enterprise login flow")
	}
}

func TestStartLogin_QYWXParams(t *testing.T) {
	t.Parallel()
	f, _ := newTestFlow(t, VariantQYWX, Endpoints{Login: "https://wx.example.com/qrConnect"}, nil)

	loginURL, state, err := f.StartLogin(context.Background())
	if err != nil {
		t.Fatalf("StartLogin err: %v", err)
	}
	if state == "" {
		t.Fatal("empty state")
	}

	u, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("bad login url: %v", err)
	}
	q := u.Query()
	if q.Get("appid") != "corp-1" || q.Get("agentid") != "1000002" {
		t.Fatalf("qywx params wrong: %s", loginURL)
	}
	if q.Get("state") != state || q.Get("redirect_uri") != "https://console.example.com/callback" {
		t.Fatalf("state/redirect_uri wrong: %s", loginURL)
	}
}

func TestStartLogin_QYParams(t *testing.T) {
	t.Parallel()
	f, _ := newTestFlow(t, VariantQY, Endpoints{Login: "https://wx.example.com/loginpage"}, nil)

	loginURL, _, err := f.StartLogin(context.Background())
	if err != nil {
		t.Fatalf("StartLogin err: %v", err)
	}
	q, _ := url.Parse(loginURL)
	if q.Query().Get("corp_id") != "corp-1" || q.Query().Get("usertype") != "all" {
		t.Fatalf("qy params wrong: %s", loginURL)
	}
}

func TestRedeemState_SingleUse(t *testing.T) {
	t.Parallel()
	f, _ := newTestFlow(t, VariantQYWX, Endpoints{Login: "https://wx.example.com/qrConnect"}, nil)

	_, state, err := f.StartLogin(context.Background())
	if err != nil {
		t.Fatalf("StartLogin err: %v", err)
	}

	if _, ok := f.RedeemState(state); !ok {
		t.Fatal("first redeem should succeed")
	}
	if _, ok := f.RedeemState(state); ok {
		t.Fatal("state must be single-use")
	}
	if _, ok := f.RedeemState("otro-state"); ok {
		t.Fatal("unknown state must not redeem")
	}
	if _, ok := f.RedeemState(""); ok {
		t.Fatal("empty state must not redeem")
	}
}

func TestCompleteLogin_QYWX(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "tok-live" || r.URL.Query().Get("code") != "code-1" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 0, "UserId": "abc"})
	}))
	defer srv.Close()

	f, _ := newTestFlow(t, VariantQYWX, Endpoints{LoginUser: srv.URL}, nil)
	id, err := f.CompleteLogin(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("CompleteLogin err: %v", err)
	}
	if id.UserID != "abc" || id.Variant != VariantQYWX {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestCompleteLogin_QY(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		_ = json.Unmarshal(body, &req)
		if req["auth_code"] != "code-2" {
			t.Errorf("unexpected body: %s", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errcode":   0,
			"user_info": map[string]string{"userid": "maru"},
		})
	}))
	defer srv.Close()

	f, _ := newTestFlow(t, VariantQY, Endpoints{LoginInfo: srv.URL}, nil)
	id, err := f.CompleteLogin(context.Background(), "code-2")
	if err != nil {
		t.Fatalf("CompleteLogin err: %v", err)
	}
	if id.UserID != "maru" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestCompleteLogin_MissingIdentity(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 0})
	}))
	defer srv.Close()

	f, _ := newTestFlow(t, VariantQYWX, Endpoints{LoginUser: srv.URL}, nil)
	_, err := f.CompleteLogin(context.Background(), "code")
	le, ok := AsLoginError(err)
	if !ok || le.Reason != LoginMissingIdentity {
		t.Fatalf("expected LoginError(missing_identity), got %v", err)
	}
}

func TestCompleteLogin_RemoteRejected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 40029, "errmsg": "invalid code"})
	}))
	defer srv.Close()

	f, _ := newTestFlow(t, VariantQYWX, Endpoints{LoginUser: srv.URL}, nil)
	_, err := f.CompleteLogin(context.Background(), "code")
	le, ok := AsLoginError(err)
	if !ok || le.Reason != LoginRemoteRejected {
		t.Fatalf("expected LoginError(remote_rejected), got %v", err)
	}
}

func TestCompleteLogin_AuthExpiredInvalidatesToken(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"errcode": 42001, "errmsg": "access_token expired"})
	}))
	defer srv.Close()

	f, store := newTestFlow(t, VariantQYWX, Endpoints{LoginUser: srv.URL}, nil)
	// precalentar el cache para comprobar la invalidación
	if err := store.Put(context.Background(), freshRecord(VariantQYWX, "tok-live")); err != nil {
		t.Fatalf("Put err: %v", err)
	}

	if _, err := f.CompleteLogin(context.Background(), "code"); err == nil {
		t.Fatal("expected login error")
	}
	rec, err := store.Get(context.Background(), VariantQYWX)
	if err != nil || rec != nil {
		t.Fatalf("token should be invalidated after 42001, got %+v err=%v", rec, err)
	}
}

func TestCompleteLogin_RemoteUnavailable(t *testing.T) {
	t.Parallel()
	f, _ := newTestFlow(t, VariantQYWX, Endpoints{LoginUser: "http://127.0.0.1:1"}, nil)

	_, err := f.CompleteLogin(context.Background(), "code")
	le, ok := AsLoginError(err)
	if !ok || le.Reason != LoginRemoteUnavailable {
		t.Fatalf("expected LoginError(remote_unavailable), got %v", err)
	}
	if !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("cause sentinel lost: %v", err)
	}
}

func TestCompleteLogin_NoToken(t *testing.T) {
	t.Parallel()
	remoteCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remoteCalls++
	}))
	defer srv.Close()

	f, _ := newTestFlow(t, VariantQYWX, Endpoints{LoginUser: srv.URL}, &fakeProvider{err: ErrRemoteUnavailable})
	_, err := f.CompleteLogin(context.Background(), "code")
	le, ok := AsLoginError(err)
	if !ok || le.Reason != LoginNoToken {
		t.Fatalf("expected LoginError(no_token), got %v", err)
	}
	if remoteCalls != 0 {
		t.Fatal("exchange must not run without a token")
	}
}
