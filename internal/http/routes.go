package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/wxbridge/internal/cache"
)

// NewRouter arma el router del servicio. Los handlers llegan ya cableados
// desde el wiring principal (cmd) para no acoplar este paquete al de
// handlers.
func NewRouter(
	webhookEcho stdhttp.HandlerFunc, // GET  /webhook/mp (handshake)
	webhookReceive stdhttp.HandlerFunc, // POST /webhook/mp
	loginStart stdhttp.HandlerFunc, // GET  /login/{variant}/url
	loginCallback stdhttp.HandlerFunc, // GET  /login/{variant}/callback
	qrcodeCreate stdhttp.HandlerFunc, // POST /qrcode/mp
	readyz stdhttp.Handler,
	metricsHandler stdhttp.Handler,
	limit func(stdhttp.Handler) stdhttp.Handler, // rate limit de login/qrcode, nil deshabilita
) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID, WithRecover, WithLogging, WithMetrics)

	if limit == nil {
		limit = func(h stdhttp.Handler) stdhttp.Handler { return h }
	}

	// Health
	r.Get("/healthz", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(stdhttp.MethodGet, "/readyz", readyz)
	r.Method(stdhttp.MethodGet, "/metrics", metricsHandler)

	// Webhook (callback no autenticado; la firma se verifica en el handler)
	r.Get("/webhook/mp", webhookEcho)
	r.Post("/webhook/mp", webhookReceive)

	// Login enterprise (rate limited: cada callback pega al remoto)
	r.Group(func(g chi.Router) {
		g.Use(limit)
		g.Get("/login/{variant}/url", loginStart)
		g.Get("/login/{variant}/callback", loginCallback)

		// QR de binding
		g.Post("/qrcode/mp", qrcodeCreate)
	})

	return r
}

// NewReadyz reporta listo solo si el cache compartido responde.
func NewReadyz(c cache.Client) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.Ping(ctx); err != nil {
			WriteError(w, stdhttp.StatusServiceUnavailable, "not_ready", "cache no responde", 1503)
			return
		}
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ready"))
	})
}
