package handlers

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/wxbridge/internal/wechat"
)

const testVerifyToken = "verify-secret"

// signQuery arma los query params firmados como lo hace la plataforma.
func signQuery(token, timestamp, nonce string) url.Values {
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))

	q := url.Values{}
	q.Set("timestamp", timestamp)
	q.Set("nonce", nonce)
	q.Set("signature", hex.EncodeToString(sum[:]))
	return q
}

type stubBinder struct {
	err    error
	ticket string
	openID string
}

func (b *stubBinder) BindScan(ctx context.Context, ticket, openID string) error {
	b.ticket, b.openID = ticket, openID
	return b.err
}

func newWebhookHandler(binder *stubBinder) *WebhookHandler {
	return NewWebhookHandler(testVerifyToken, wechat.NewEventRouter(binder, ""))
}

func TestWebhookEcho(t *testing.T) {
	h := newWebhookHandler(&stubBinder{})

	q := signQuery(testVerifyToken, "1700000000", "nonce-1")
	q.Set("echostr", "ping-123")
	req := httptest.NewRequest(http.MethodGet, "/webhook/mp?"+q.Encode(), nil)
	rec := httptest.NewRecorder()

	h.Echo(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ping-123", rec.Body.String())
}

func TestWebhookEcho_BadSignature(t *testing.T) {
	h := newWebhookHandler(&stubBinder{})

	q := signQuery("otro-token", "1700000000", "nonce-1")
	q.Set("echostr", "ping-123")
	req := httptest.NewRequest(http.MethodGet, "/webhook/mp?"+q.Encode(), nil)
	rec := httptest.NewRecorder()

	h.Echo(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWebhookReceive_ScanBinds(t *testing.T) {
	binder := &stubBinder{}
	h := newWebhookHandler(binder)

	payload := `<xml>
  <ToUserName><![CDATA[gh_account]]></ToUserName>
  <FromUserName><![CDATA[openid-77]]></FromUserName>
  <CreateTime>1700000000</CreateTime>
  <MsgType><![CDATA[event]]></MsgType>
  <Event><![CDATA[SCAN]]></Event>
  <Ticket><![CDATA[ticket-abc]]></Ticket>
</xml>`
	q := signQuery(testVerifyToken, "1700000001", "nonce-2")
	req := httptest.NewRequest(http.MethodPost, "/webhook/mp?"+q.Encode(), strings.NewReader(payload))
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ticket-abc", binder.ticket)
	assert.Equal(t, "openid-77", binder.openID)

	body := rec.Body.String()
	assert.Equal(t, "text/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "<ToUserName><![CDATA[openid-77]]></ToUserName>")
	assert.Contains(t, body, "<FromUserName><![CDATA[gh_account]]></FromUserName>")
	assert.Contains(t, body, "<Content><![CDATA["+wechat.DefaultBindSuccessText+"]]></Content>")
}

func TestWebhookReceive_BadSignatureSkipsParse(t *testing.T) {
	binder := &stubBinder{}
	h := newWebhookHandler(binder)

	q := signQuery(testVerifyToken, "1700000001", "nonce-2")
	q.Set("signature", "deadbeef")
	req := httptest.NewRequest(http.MethodPost, "/webhook/mp?"+q.Encode(), strings.NewReader("<xml></xml>"))
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, binder.ticket)
}

func TestWebhookReceive_UnparseableBody(t *testing.T) {
	h := newWebhookHandler(&stubBinder{})

	q := signQuery(testVerifyToken, "1700000001", "nonce-3")
	req := httptest.NewRequest(http.MethodPost, "/webhook/mp?"+q.Encode(), strings.NewReader("no es xml"))
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWebhookReceive_IgnoredEventEmptyReply(t *testing.T) {
	h := newWebhookHandler(&stubBinder{})

	payload := `<xml>
  <ToUserName><![CDATA[gh_account]]></ToUserName>
  <FromUserName><![CDATA[openid-77]]></FromUserName>
  <MsgType><![CDATA[event]]></MsgType>
  <Event><![CDATA[unsubscribe]]></Event>
</xml>`
	q := signQuery(testVerifyToken, "1700000001", "nonce-4")
	req := httptest.NewRequest(http.MethodPost, "/webhook/mp?"+q.Encode(), strings.NewReader(payload))
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
