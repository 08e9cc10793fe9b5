// Package binding es el cliente del colaborador que vincula la identidad
// externa (openID + ticket de QR) con la cuenta local. La operación en sí
// vive en la consola; acá solo se la invoca.
package binding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client implementa wechat.Binder contra el servicio de cuentas.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// BindScan pide el binding. Si el servicio responde result=false, el
// message es texto para el usuario y viaja como error.
func (c *Client) BindScan(ctx context.Context, ticket, openID string) error {
	payload, _ := json.Marshal(map[string]string{
		"ticket":  ticket,
		"open_id": openID,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bind/scan", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("binding: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("binding: %w", err)
	}
	defer resp.Body.Close()

	var reply struct {
		Result  bool   `json:"result"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("binding: decoding reply: %w", err)
	}
	if !reply.Result {
		// message es user-facing, va tal cual en la respuesta del webhook
		return errors.New(reply.Message)
	}
	return nil
}

// disabled es el fallback cuando no hay servicio de binding configurado.
type disabled struct{}

func (disabled) BindScan(ctx context.Context, ticket, openID string) error {
	return errors.New("binding service not configured")
}

// Disabled retorna un binder que siempre falla con un mensaje claro.
func Disabled() disabled { return disabled{} }
