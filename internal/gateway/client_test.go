package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetWeixinAccessToken(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tokenPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad body: %v", err)
		}
		if req["bk_app_code"] != "console" || req["bk_app_secret"] != "s3cr3t" || req["bk_username"] != "admin" {
			t.Errorf("unexpected credentials: %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": true,
			"data":   map[string]string{"access_token": "tok-esb"},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AppCode: "console", AppSecret: "s3cr3t"}, nil)
	token, _, ok, err := c.GetWeixinAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetWeixinAccessToken err: %v", err)
	}
	if !ok || token != "tok-esb" {
		t.Fatalf("got token=%q ok=%v", token, ok)
	}
}

func TestGetWeixinAccessToken_Rejected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result":  false,
			"message": "app not authorized",
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", AppCode: "console", AppSecret: "bad"}, nil)
	token, msg, ok, err := c.GetWeixinAccessToken(context.Background())
	if err != nil {
		t.Fatalf("rejection is not a transport error: %v", err)
	}
	if ok || token != "" {
		t.Fatalf("expected rejection, got token=%q ok=%v", token, ok)
	}
	if msg != "app not authorized" {
		t.Fatalf("message lost: %q", msg)
	}
}

func TestGetWeixinAccessToken_BadReply(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway down</html>"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	if _, _, _, err := c.GetWeixinAccessToken(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestGetWeixinAccessToken_Unreachable(t *testing.T) {
	t.Parallel()
	c := New(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	if _, _, _, err := c.GetWeixinAccessToken(context.Background()); err == nil {
		t.Fatal("expected transport error")
	}
}
