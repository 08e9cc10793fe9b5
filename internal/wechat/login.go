package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/wxbridge/internal/metrics"
	"github.com/dropDatabas3/wxbridge/internal/observability/logger"
)

// ExternalIdentity es el resultado de un login exitoso. Se consume de
// inmediato por el colaborador que vincula cuentas; no se persiste acá.
type ExternalIdentity struct {
	UserID  string  `json:"user_id"`
	Variant Variant `json:"variant"`
}

// LoginFlow coordina el handshake de login de un dialecto enterprise:
// arma la URL de login con state anti-CSRF y cambia el code del callback
// por el identificador externo del usuario.
//
// Máquina de estados por intento: Initiated -> Exchanging -> {Succeeded | Failed},
// terminal en ambos casos; la sesión es de un solo uso sin importar el resultado.
type LoginFlow struct {
	variant     Variant // VariantQY o VariantQYWX
	creds       Credentials
	endpoints   Endpoints
	tokens      *TokenSource
	sessions    SessionStore
	callbackURL string
	http        *http.Client
	log         *zap.Logger
}

func NewLoginFlow(v Variant, creds Credentials, eps Endpoints, tokens *TokenSource, sessions SessionStore, callbackURL string, hc *http.Client) (*LoginFlow, error) {
	if v != VariantQY && v != VariantQYWX {
		return nil, fmt.Errorf("wechat: login flow does not support variant %q", v)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &LoginFlow{
		variant:     v,
		creds:       creds,
		endpoints:   eps,
		tokens:      tokens,
		sessions:    sessions,
		callbackURL: callbackURL,
		http:        hc,
		log:         logger.Named("wechat.login").With(logger.Variant(string(v))),
	}, nil
}

// Variant expone el dialecto configurado.
func (f *LoginFlow) Variant() Variant { return f.variant }

// StartLogin genera una sesión fresca y arma la URL de login del dialecto.
// El state es un uuid (clase 128 bits); queda guardado en el SessionStore
// para validarlo contra el callback.
func (f *LoginFlow) StartLogin(ctx context.Context) (loginURL, state string, err error) {
	state = uuid.NewString()

	q := url.Values{}
	switch f.variant {
	case VariantQY:
		q.Set("corp_id", f.creds.CorpID)
		q.Set("usertype", "all")
	case VariantQYWX:
		q.Set("appid", f.creds.CorpID)
		q.Set("agentid", f.creds.AgentID)
	}
	q.Set("state", state)
	q.Set("redirect_uri", f.callbackURL)

	f.sessions.Put(LoginSession{State: state, Variant: f.variant, CreatedAt: time.Now()})
	return f.endpoints.Login + "?" + q.Encode(), state, nil
}

// RedeemState consume la sesión pendiente para un state. ok=false si el
// state no existe, ya fue usado, venció, o pertenece a otra variante.
// Tiene que llamarse antes de CompleteLogin: un state inválido corta el
// flujo sin tocar el remoto.
func (f *LoginFlow) RedeemState(state string) (LoginSession, bool) {
	if state == "" {
		return LoginSession{}, false
	}
	s, ok := f.sessions.Take(state)
	if !ok || s.Variant != f.variant {
		return LoginSession{}, false
	}
	return s, true
}

// CompleteLogin cambia el authorization code por la identidad externa.
// Cualquier falla sale como *LoginError con su sub-razón; el objeto de
// usuario crudo del remoto nunca cruza este boundary.
func (f *LoginFlow) CompleteLogin(ctx context.Context, code string) (*ExternalIdentity, error) {
	token, err := f.tokens.AccessToken(ctx)
	if err != nil {
		metrics.LoginCompletions.WithLabelValues(string(f.variant), "no_token").Inc()
		return nil, &LoginError{Variant: f.variant, Reason: LoginNoToken, cause: err}
	}

	var userID string
	switch f.variant {
	case VariantQY:
		userID, err = f.exchangeQY(ctx, token, code)
	case VariantQYWX:
		userID, err = f.exchangeQYWX(ctx, token, code)
	}
	if err != nil {
		var re *RemoteError
		if errors.As(err, &re) && re.AuthExpired() {
			f.tokens.Invalidate(ctx)
		}
		le := &LoginError{Variant: f.variant, Reason: LoginRemoteRejected, cause: err}
		switch {
		case errors.Is(err, ErrMalformedResponse):
			le.Reason = LoginMissingIdentity
		case errors.Is(err, ErrRemoteUnavailable):
			le.Reason = LoginRemoteUnavailable
		}
		f.log.Warn("login exchange failed", logger.Op("complete_login"), logger.Err(err))
		metrics.LoginCompletions.WithLabelValues(string(f.variant), string(le.Reason)).Inc()
		return nil, le
	}

	metrics.LoginCompletions.WithLabelValues(string(f.variant), "ok").Inc()
	return &ExternalIdentity{UserID: userID, Variant: f.variant}, nil
}

// exchangeQY: dialecto legado, POST del auth_code y lee user_info.userid.
func (f *LoginFlow) exchangeQY(ctx context.Context, token, code string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"auth_code": code})
	u := f.endpoints.LoginInfo + "?access_token=" + url.QueryEscape(token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	var body struct {
		ErrCode  int    `json:"errcode"`
		ErrMsg   string `json:"errmsg"`
		UserInfo struct {
			UserID string `json:"userid"`
		} `json:"user_info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding login info: %v", ErrMalformedResponse, err)
	}
	if body.ErrCode != 0 {
		return "", &RemoteError{Variant: f.variant, Op: "get_login_info", Code: body.ErrCode, Msg: truncateRemote(body.ErrMsg)}
	}
	if body.UserInfo.UserID == "" {
		return "", fmt.Errorf("%w: login info without user_info.userid", ErrMalformedResponse)
	}
	return body.UserInfo.UserID, nil
}

// exchangeQYWX: work chat, GET con el code y lee UserId.
func (f *LoginFlow) exchangeQYWX(ctx context.Context, token, code string) (string, error) {
	q := url.Values{}
	q.Set("access_token", token)
	q.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoints.LoginUser+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	var body struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
		UserID  string `json:"UserId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding user info: %v", ErrMalformedResponse, err)
	}
	if body.ErrCode != 0 {
		return "", &RemoteError{Variant: f.variant, Op: "getuserinfo", Code: body.ErrCode, Msg: truncateRemote(body.ErrMsg)}
	}
	if body.UserID == "" {
		return "", fmt.Errorf("%w: user info without UserId", ErrMalformedResponse)
	}
	return body.UserID, nil
}
