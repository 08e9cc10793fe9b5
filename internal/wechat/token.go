package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/wxbridge/internal/cache"
)

// DefaultTokenTTL es el expires_in que asume el protocolo cuando el remoto
// no lo manda (7200s).
const DefaultTokenTTL = 7200

// TokenRecord es un access token cacheado para una variante.
// Lo crea el provider y lo posee el TokenStore; nadie más lo muta.
type TokenRecord struct {
	Variant   Variant
	Token     string
	FetchedAt time.Time
	ExpiresIn int // segundos
}

// ExpiresAt deriva el instante de expiración.
func (r *TokenRecord) ExpiresAt() time.Time {
	return r.FetchedAt.Add(time.Duration(r.ExpiresIn) * time.Second)
}

// Live indica si el token sigue usable en `now`.
func (r *TokenRecord) Live(now time.Time) bool {
	return r.Token != "" && now.Before(r.ExpiresAt())
}

// cachedToken es el layout JSON en el cache compartido.
// ACCESS_TOKEN/expires_in son contrato con el resto del deployment;
// fetched_at permite que el lector aplique el TTL él mismo (el TTL del
// backend es solo una red de seguridad secundaria).
type cachedToken struct {
	AccessToken string `json:"ACCESS_TOKEN"`
	ExpiresIn   int    `json:"expires_in"`
	FetchedAt   int64  `json:"fetched_at"`
}

func tokenKey(v Variant) string {
	return fmt.Sprintf("WEIXIN_%s_ACCESS_TOKEN", strings.ToUpper(string(v)))
}

// TokenStore guarda un TokenRecord por variante en un cache externo
// compartido entre workers. No hay garantía transaccional get+put: dos
// callers concurrentes pueden ver un miss y fetchear los dos; se acepta.
type TokenStore struct {
	cache cache.Client
	now   func() time.Time
}

func NewTokenStore(c cache.Client) *TokenStore {
	return &TokenStore{cache: c, now: time.Now}
}

// Get retorna el record vivo de la variante, o nil si no hay ninguno.
// Un valor corrupto o expirado cuenta como miss, no como error: el caller
// degrada a refetch. El error es solo por falla del backend.
func (s *TokenStore) Get(ctx context.Context, v Variant) (*TokenRecord, error) {
	raw, err := s.cache.Get(ctx, tokenKey(v))
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("token store get %s: %w", v, err)
	}

	var ct cachedToken
	if err := json.Unmarshal([]byte(raw), &ct); err != nil || ct.AccessToken == "" {
		return nil, nil
	}

	rec := &TokenRecord{
		Variant:   v,
		Token:     ct.AccessToken,
		FetchedAt: time.Unix(ct.FetchedAt, 0),
		ExpiresIn: ct.ExpiresIn,
	}
	if !rec.Live(s.now()) {
		return nil, nil
	}
	return rec, nil
}

// Put sobreescribe incondicionalmente el record de la variante.
// El TTL del backend se setea igual al expires_in como red de seguridad.
func (s *TokenStore) Put(ctx context.Context, rec *TokenRecord) error {
	b, err := json.Marshal(cachedToken{
		AccessToken: rec.Token,
		ExpiresIn:   rec.ExpiresIn,
		FetchedAt:   rec.FetchedAt.Unix(),
	})
	if err != nil {
		return err
	}
	ttl := time.Duration(rec.ExpiresIn) * time.Second
	if err := s.cache.Set(ctx, tokenKey(rec.Variant), string(b), ttl); err != nil {
		return fmt.Errorf("token store put %s: %w", rec.Variant, err)
	}
	return nil
}

// Invalidate borra el record antes de su TTL. Se usa cuando el remoto
// reporta una falla de autorización: el token cacheado quedó stale aunque
// el TTL optimista no haya vencido.
func (s *TokenStore) Invalidate(ctx context.Context, v Variant) error {
	if err := s.cache.Delete(ctx, tokenKey(v)); err != nil {
		return fmt.Errorf("token store invalidate %s: %w", v, err)
	}
	return nil
}
