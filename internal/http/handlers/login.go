package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/wxbridge/internal/audit"
	httpx "github.com/dropDatabas3/wxbridge/internal/http"
	"github.com/dropDatabas3/wxbridge/internal/observability/logger"
	"github.com/dropDatabas3/wxbridge/internal/util"
	"github.com/dropDatabas3/wxbridge/internal/wechat"
)

// LoginHandler expone el flujo de login enterprise: emitir la URL de login
// y procesar el callback con code+state.
type LoginHandler struct {
	flows map[wechat.Variant]*wechat.LoginFlow
	log   *zap.Logger
}

func NewLoginHandler(flows ...*wechat.LoginFlow) *LoginHandler {
	m := make(map[wechat.Variant]*wechat.LoginFlow, len(flows))
	for _, f := range flows {
		m[f.Variant()] = f
	}
	return &LoginHandler{flows: m, log: logger.Named("http.login")}
}

func (h *LoginHandler) flow(w http.ResponseWriter, r *http.Request) (*wechat.LoginFlow, bool) {
	v, err := wechat.ParseVariant(chi.URLParam(r, "variant"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "unknown_variant", "variante desconocida", 130210)
		return nil, false
	}
	f, ok := h.flows[v]
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "variant_not_configured", "variante sin login configurado", 130211)
		return nil, false
	}
	return f, true
}

// StartURL arma una URL de login fresca con su state anti-CSRF.
// GET /login/{variant}/url
func (h *LoginHandler) StartURL(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	url, state, err := f.StartLogin(r.Context())
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "login_url_failed", "no se pudo armar la URL de login", 130212)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"login_url": url,
		"state":     state,
	})
}

// Callback completa el handshake: valida el state contra la sesión
// pendiente y recién ahí cambia el code por la identidad. Un state que no
// matchea (o ya consumido) corta antes de tocar el remoto.
// GET /login/{variant}/callback?code=...&state=...
func (h *LoginHandler) Callback(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "faltan code o state", 130213)
		return
	}

	if _, ok := f.RedeemState(state); !ok {
		h.log.Warn("login callback with invalid state", logger.Variant(string(f.Variant())))
		httpx.WriteError(w, http.StatusForbidden, "invalid_state", "state inválido o ya usado", 130214)
		return
	}

	identity, err := f.CompleteLogin(r.Context(), code)
	if err != nil {
		reason := "login_failed"
		if le, ok := wechat.AsLoginError(err); ok {
			reason = string(le.Reason)
		}
		httpx.WriteError(w, http.StatusBadGateway, reason, "no se pudo completar el login", 130215)
		return
	}

	audit.Log(r.Context(), "login_completed",
		logger.Variant(string(identity.Variant)),
		logger.String("user_id", util.MaskID(identity.UserID)),
	)
	httpx.WriteJSON(w, http.StatusOK, identity)
}
