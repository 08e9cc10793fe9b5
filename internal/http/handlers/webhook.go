package handlers

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	httpx "github.com/dropDatabas3/wxbridge/internal/http"
	"github.com/dropDatabas3/wxbridge/internal/observability/logger"
	"github.com/dropDatabas3/wxbridge/internal/wechat"
)

// maxWebhookBody limita el body de un push. Los eventos reales son chicos.
const maxWebhookBody = 64 << 10

// WebhookHandler atiende el endpoint de callbacks de la plataforma.
// El endpoint es no-autenticado a nivel transporte: TODO pasa primero por
// la verificación de firma. Y siempre responde 200 — la plataforma no
// tiene forma de que le reportemos errores, reintenta según su propia
// heurística sobre respuestas no-2xx o sin cuerpo.
type WebhookHandler struct {
	verifyToken string
	router      *wechat.EventRouter
	log         *zap.Logger
}

func NewWebhookHandler(verifyToken string, router *wechat.EventRouter) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		router:      router,
		log:         logger.Named("http.webhook"),
	}
}

// Echo responde el handshake de activación del endpoint: la plataforma
// manda un GET firmado con un echostr que hay que devolver tal cual.
func (h *WebhookHandler) Echo(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := wechat.VerifySignature(h.verifyToken, q.Get("timestamp"), q.Get("nonce"), q.Get("signature")); err != nil {
		h.log.Warn("echo handshake rejected", logger.Err(err))
		httpx.WriteXML(w, "")
		return
	}
	httpx.WriteXML(w, q.Get("echostr"))
}

// Receive procesa un push de evento. Firma inválida o payload imparseable
// se absorben acá: se loguean y se responde 200 vacío, nunca un error.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := wechat.VerifySignature(h.verifyToken, q.Get("timestamp"), q.Get("nonce"), q.Get("signature")); err != nil {
		h.log.Warn("webhook signature rejected", logger.Err(err), logger.ClientIP(r.RemoteAddr))
		httpx.WriteXML(w, "")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.log.Warn("webhook body read failed", logger.Err(err))
		httpx.WriteXML(w, "")
		return
	}

	ev, err := wechat.ParseEvent(body)
	if err != nil {
		h.log.Warn("webhook payload unparseable", logger.Err(err))
		httpx.WriteXML(w, "")
		return
	}

	httpx.WriteXML(w, h.router.Handle(r.Context(), ev))
}
