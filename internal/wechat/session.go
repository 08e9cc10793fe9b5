package wechat

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LoginSession es el estado anti-CSRF de un intento de login pendiente.
// Es de un solo uso: se consume en el callback que lo matchea, o muere
// por TTL, lo que pase primero.
type LoginSession struct {
	State     string
	Variant   Variant
	CreatedAt time.Time
}

// SessionStore guarda sesiones de login pendientes, indexadas por state.
type SessionStore interface {
	Put(s LoginSession)

	// Take busca y remueve la sesión en una sola operación. Un state ya
	// consumido o vencido retorna ok=false.
	Take(state string) (LoginSession, bool)
}

type memorySessions struct {
	c *gocache.Cache
}

// NewSessionStore crea un store en memoria con TTL para las sesiones.
func NewSessionStore(ttl time.Duration) SessionStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &memorySessions{c: gocache.New(ttl, time.Minute)}
}

func (m *memorySessions) Put(s LoginSession) {
	m.c.SetDefault(s.State, s)
}

func (m *memorySessions) Take(state string) (LoginSession, bool) {
	v, ok := m.c.Get(state)
	if !ok {
		return LoginSession{}, false
	}
	m.c.Delete(state)
	s, ok := v.(LoginSession)
	return s, ok
}
