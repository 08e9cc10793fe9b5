package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"time"
)

// QRCoder crea códigos QR temporales de escena en la cuenta pública.
// El ticket resultante se incrusta en la URL pública de showqrcode y el
// usuario lo escanea para disparar el evento SCAN del webhook.
type QRCoder struct {
	endpoints     Endpoints
	tokens        *TokenSource
	expireSeconds int
	http          *http.Client
}

func NewQRCoder(eps Endpoints, tokens *TokenSource, expireSeconds int, hc *http.Client) *QRCoder {
	if expireSeconds <= 0 {
		expireSeconds = 1800
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &QRCoder{endpoints: eps, tokens: tokens, expireSeconds: expireSeconds, http: hc}
}

// CreateSceneQR crea un QR temporal con un scene_id aleatorio de 31 bits
// y retorna el ticket.
func (q *QRCoder) CreateSceneQR(ctx context.Context) (string, error) {
	token, err := q.tokens.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	payload, _ := json.Marshal(map[string]any{
		"action_name":    "QR_SCENE",
		"expire_seconds": q.expireSeconds,
		"action_info": map[string]any{
			"scene": map[string]any{"scene_id": rand.Int31n(1<<31-1) + 1},
		},
	})

	u := q.endpoints.QRCreate + "?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := q.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	var body struct {
		Ticket  string `json:"ticket"`
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding qrcode response: %v", ErrMalformedResponse, err)
	}
	if body.ErrCode != 0 {
		re := &RemoteError{Variant: VariantMP, Op: "create_qrcode", Code: body.ErrCode, Msg: truncateRemote(body.ErrMsg)}
		if re.AuthExpired() {
			q.tokens.Invalidate(ctx)
		}
		return "", re
	}
	if body.Ticket == "" {
		return "", fmt.Errorf("%w: qrcode response without ticket", ErrMalformedResponse)
	}
	return body.Ticket, nil
}

// QRCodeURL arma la URL pública de la imagen del QR a partir del ticket.
func (q *QRCoder) QRCodeURL(ticket string) string {
	return q.endpoints.QRShow + "?ticket=" + url.QueryEscape(ticket)
}
