package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WeChat integration metrics. Definidas en un paquete standalone para evitar
// ciclos de import entre wechat (dominio) y los paquetes HTTP.

var (
	TokenFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wechat_token_fetches_total",
		Help: "Fetches de access token contra el remoto, por variante/modo/resultado",
	}, []string{"variant", "mode", "outcome"})

	TokenCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wechat_token_cache_hits_total",
		Help: "Lecturas de token resueltas desde el cache",
	}, []string{"variant"})

	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wechat_webhook_events_total",
		Help: "Eventos de webhook procesados, por resultado",
	}, []string{"outcome"})

	LoginCompletions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wechat_login_completions_total",
		Help: "Intentos de completar login, por variante/resultado",
	}, []string{"variant", "outcome"})
)

// RegisterWeChat registra las métricas de integración en el registry dado
// (o en el default si es nil).
func RegisterWeChat(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{TokenFetches, TokenCacheHits, WebhookEvents, LoginCompletions} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
