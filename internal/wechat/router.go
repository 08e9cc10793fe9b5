package wechat

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/wxbridge/internal/audit"
	"github.com/dropDatabas3/wxbridge/internal/metrics"
	"github.com/dropDatabas3/wxbridge/internal/observability/logger"
	"github.com/dropDatabas3/wxbridge/internal/util"
)

// Binder vincula una identidad externa (openID) con una cuenta local usando
// el ticket del QR escaneado. Es un colaborador externo a esta integración.
// Si falla, el texto del error se le muestra al usuario en la respuesta.
type Binder interface {
	BindScan(ctx context.Context, ticket, openID string) error
}

// EventRouter despacha un WebhookEvent y produce el cuerpo de la respuesta.
// Tres pasos por request: validar, despachar, responder. Nunca retorna error:
// todo lo no manejable se responde con string vacío, porque la plataforma
// reintenta según sus propias heurísticas sobre respuestas no-2xx/vacías.
type EventRouter struct {
	binder      Binder
	successText string
	log         *zap.Logger
}

// DefaultBindSuccessText es el texto de confirmación por defecto.
// El caller lo puede reemplazar por una versión localizada.
const DefaultBindSuccessText = "绑定成功"

func NewEventRouter(binder Binder, successText string) *EventRouter {
	if successText == "" {
		successText = DefaultBindSuccessText
	}
	return &EventRouter{
		binder:      binder,
		successText: successText,
		log:         logger.Named("wechat.router"),
	}
}

// Handle procesa un evento y retorna el XML de respuesta ("" = ack sin cuerpo).
// Solo se manejan eventos SCAN y subscribe; cualquier otro push se reconoce
// pero se ignora. unsubscribe y los clicks de menú no tienen handler a
// propósito.
func (r *EventRouter) Handle(ctx context.Context, ev *WebhookEvent) string {
	if ev == nil || ev.MsgType == "" || ev.FromUser == "" || ev.ToUser == "" {
		metrics.WebhookEvents.WithLabelValues("invalid").Inc()
		return ""
	}

	if ev.MsgType != "event" || (ev.Event != "SCAN" && ev.Event != "subscribe") {
		r.log.Debug("ignoring unhandled event",
			logger.String("msg_type", ev.MsgType),
			logger.EventType(ev.Event),
		)
		metrics.WebhookEvents.WithLabelValues("ignored").Inc()
		return ""
	}

	if err := r.binder.BindScan(ctx, ev.Ticket, ev.FromUser); err != nil {
		r.log.Warn("bind failed",
			logger.EventType(ev.Event),
			logger.OpenID(util.MaskID(ev.FromUser)),
			logger.Err(err),
		)
		metrics.WebhookEvents.WithLabelValues("bind_failed").Inc()
		return TextReply(ev.FromUser, ev.ToUser, err.Error())
	}

	audit.Log(ctx, "scan_bound",
		logger.EventType(ev.Event),
		logger.OpenID(util.MaskID(ev.FromUser)),
	)
	metrics.WebhookEvents.WithLabelValues("bound").Inc()
	return TextReply(ev.FromUser, ev.ToUser, r.successText)
}
