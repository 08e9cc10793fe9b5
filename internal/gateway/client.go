// Package gateway es el cliente mínimo contra el component gateway del
// deployment. Esta integración solo necesita una operación: pedir el
// access token de WeChat en nombre de la identidad de servicio.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const tokenPath = "/api/c/compapi/v2/esb/get_weixin_access_token/"

// Config del cliente.
type Config struct {
	BaseURL   string
	AppCode   string
	AppSecret string
	// Username es la identidad de servicio pre-autenticada en cuyo nombre
	// se pide el token (por defecto "admin").
	Username string
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config, hc *http.Client) *Client {
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: hc}
}

// tokenReply es la forma de respuesta del gateway.
type tokenReply struct {
	Result  bool   `json:"result"`
	Message string `json:"message"`
	Data    struct {
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

// GetWeixinAccessToken pide el token al gateway.
// ok=false significa rechazo explícito (result=false); message trae el
// texto del gateway para loguear, no para propagar al usuario.
func (c *Client) GetWeixinAccessToken(ctx context.Context) (token, message string, ok bool, err error) {
	payload, _ := json.Marshal(map[string]string{
		"bk_app_code":   c.cfg.AppCode,
		"bk_app_secret": c.cfg.AppSecret,
		"bk_username":   c.cfg.Username,
	})

	u := strings.TrimRight(c.cfg.BaseURL, "/") + tokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", "", false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", false, err
	}
	defer resp.Body.Close()

	var reply tokenReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", "", false, fmt.Errorf("gateway: decoding reply: %w", err)
	}
	if !reply.Result {
		return "", reply.Message, false, nil
	}
	return reply.Data.AccessToken, reply.Message, true, nil
}
