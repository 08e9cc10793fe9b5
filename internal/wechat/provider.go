package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/wxbridge/internal/metrics"
	"github.com/dropDatabas3/wxbridge/internal/observability/logger"
)

// TokenProvider sabe traer un token fresco del remoto para una variante.
type TokenProvider interface {
	Fetch(ctx context.Context) (*TokenRecord, error)
}

// DirectProvider pide el token al endpoint de credenciales de WeChat
// con las credenciales propias de la variante.
type DirectProvider struct {
	variant   Variant
	creds     Credentials
	endpoints Endpoints
	http      *http.Client
}

func NewDirectProvider(v Variant, creds Credentials, eps Endpoints, hc *http.Client) *DirectProvider {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &DirectProvider{variant: v, creds: creds, endpoints: eps, http: hc}
}

func (p *DirectProvider) Fetch(ctx context.Context) (*TokenRecord, error) {
	q := url.Values{}
	switch p.variant {
	case VariantMP:
		q.Set("grant_type", "client_credential")
		q.Set("appid", p.creds.AppID)
		q.Set("secret", p.creds.Secret)
	default:
		q.Set("corpid", p.creds.CorpID)
		q.Set("corpsecret", p.creds.CorpSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoints.Token+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		// timeout y transporte se tratan igual
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		ErrCode     int    `json:"errcode"`
		ErrMsg      string `json:"errmsg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding token response: %v", ErrMalformedResponse, err)
	}
	if body.ErrCode != 0 {
		return nil, &RemoteError{Variant: p.variant, Op: "get_access_token", Code: body.ErrCode, Msg: truncateRemote(body.ErrMsg)}
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response without access_token", ErrMalformedResponse)
	}
	if body.ExpiresIn == 0 {
		body.ExpiresIn = DefaultTokenTTL
	}

	return &TokenRecord{
		Variant:   p.variant,
		Token:     body.AccessToken,
		FetchedAt: time.Now(),
		ExpiresIn: body.ExpiresIn,
	}, nil
}

// GatewayTokenFetcher es la única operación que esta integración necesita
// del component gateway: un token en nombre de la identidad de servicio
// ya autenticada. La implementación vive en internal/gateway.
type GatewayTokenFetcher interface {
	GetWeixinAccessToken(ctx context.Context) (token, message string, ok bool, err error)
}

// DelegatedProvider obtiene el token via el gateway intermediario confiable.
// Un rechazo del gateway se loguea con su mensaje pero al caller le llega
// ErrRemoteRejected, nunca el texto crudo del intermediario.
type DelegatedProvider struct {
	variant Variant
	gw      GatewayTokenFetcher
	log     *zap.Logger
}

func NewDelegatedProvider(v Variant, gw GatewayTokenFetcher) *DelegatedProvider {
	return &DelegatedProvider{
		variant: v,
		gw:      gw,
		log:     logger.Named("wechat.provider").With(logger.Variant(string(v))),
	}
}

func (p *DelegatedProvider) Fetch(ctx context.Context) (*TokenRecord, error) {
	token, message, ok, err := p.gw.GetWeixinAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway: %v", ErrRemoteUnavailable, err)
	}
	if !ok {
		p.log.Error("gateway rejected token request", logger.String("message", truncateRemote(message)))
		return nil, fmt.Errorf("%w: gateway result=false", ErrRemoteRejected)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: gateway reply without access_token", ErrMalformedResponse)
	}
	return &TokenRecord{
		Variant:   p.variant,
		Token:     token,
		FetchedAt: time.Now(),
		ExpiresIn: DefaultTokenTTL,
	}, nil
}

// TokenSource combina store y provider en el camino de lectura read-through.
// singleflight dedup-ea fetches concurrentes dentro del proceso; entre
// procesos la carrera sobre el cache compartido es benigna y aceptada.
type TokenSource struct {
	variant  Variant
	store    *TokenStore
	provider TokenProvider
	mode     string // direct | delegated (para métricas)
	sf       singleflight.Group
	log      *zap.Logger
}

func NewTokenSource(v Variant, store *TokenStore, provider TokenProvider, mode string) *TokenSource {
	return &TokenSource{
		variant:  v,
		store:    store,
		provider: provider,
		mode:     mode,
		log:      logger.Named("wechat.tokens").With(logger.Variant(string(v))),
	}
}

// AccessToken retorna un token vivo: primero el cache, si no hay fetch.
// El record fresco se guarda antes de retornarlo. Una falla del cache no
// frena el camino: se degrada a fetch y se loguea.
func (s *TokenSource) AccessToken(ctx context.Context) (string, error) {
	rec, err := s.store.Get(ctx, s.variant)
	if err != nil {
		s.log.Warn("token cache read failed, falling back to fetch", logger.Err(err))
	}
	if rec != nil {
		metrics.TokenCacheHits.WithLabelValues(string(s.variant)).Inc()
		return rec.Token, nil
	}

	v, err, _ := s.sf.Do(string(s.variant), func() (any, error) {
		rec, err := s.provider.Fetch(ctx)
		if err != nil {
			metrics.TokenFetches.WithLabelValues(string(s.variant), s.mode, "error").Inc()
			return nil, err
		}
		metrics.TokenFetches.WithLabelValues(string(s.variant), s.mode, "ok").Inc()
		if err := s.store.Put(ctx, rec); err != nil {
			s.log.Warn("token cache write failed", logger.Err(err))
		}
		return rec, nil
	})
	if err != nil {
		s.log.Error("token fetch failed", logger.Op("fetch"), logger.Err(err))
		return "", err
	}
	return v.(*TokenRecord).Token, nil
}

// Invalidate descarta el token cacheado (el remoto lo rechazó).
func (s *TokenSource) Invalidate(ctx context.Context) {
	if err := s.store.Invalidate(ctx, s.variant); err != nil {
		s.log.Warn("token invalidate failed", logger.Err(err))
	}
}

// Variant expone la variante del source.
func (s *TokenSource) Variant() Variant { return s.variant }
