package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/wxbridge/internal/binding"
	"github.com/dropDatabas3/wxbridge/internal/cache"
	"github.com/dropDatabas3/wxbridge/internal/config"
	"github.com/dropDatabas3/wxbridge/internal/gateway"
	httpx "github.com/dropDatabas3/wxbridge/internal/http"
	"github.com/dropDatabas3/wxbridge/internal/http/handlers"
	"github.com/dropDatabas3/wxbridge/internal/observability/logger"
	"github.com/dropDatabas3/wxbridge/internal/rate"
	"github.com/dropDatabas3/wxbridge/internal/wechat"

	rdb "github.com/redis/go-redis/v9"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// app agrupa el wiring compartido por los subcomandos.
type app struct {
	cfg     *config.Config
	cache   cache.Client
	sources map[wechat.Variant]*wechat.TokenSource
	flow    *wechat.LoginFlow
	qr      *wechat.QRCoder
	router  *wechat.EventRouter
}

func buildApp(cfgPath string) (*app, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "wxbridge",
	})

	cc, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Driver,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, nil, err
	}

	// Un solo transporte HTTP de por vida del proceso, compartido por todos
	// los colaboradores remotos. Timeout fijo por request saliente.
	hc := &http.Client{Timeout: 10 * time.Second}

	store := wechat.NewTokenStore(cc)
	qyVariant := wechat.Variant(cfg.WeChat.QY.Dialect)

	mpCreds := wechat.Credentials{AppID: cfg.WeChat.MP.AppID, Secret: cfg.WeChat.MP.Secret}
	qyCreds := wechat.Credentials{
		CorpID:     cfg.WeChat.QY.CorpID,
		CorpSecret: cfg.WeChat.QY.CorpSecret,
		AgentID:    cfg.WeChat.QY.AgentID,
	}

	provider := func(v wechat.Variant, creds wechat.Credentials) wechat.TokenProvider {
		if cfg.WeChat.TokenMode == "delegated" {
			gw := gateway.New(gateway.Config{
				BaseURL:   cfg.Gateway.BaseURL,
				AppCode:   cfg.Gateway.AppCode,
				AppSecret: cfg.Gateway.AppSecret,
				Username:  cfg.Gateway.Username,
			}, hc)
			return wechat.NewDelegatedProvider(v, gw)
		}
		return wechat.NewDirectProvider(v, creds, wechat.DefaultEndpoints(v), hc)
	}

	sources := map[wechat.Variant]*wechat.TokenSource{
		wechat.VariantMP: wechat.NewTokenSource(wechat.VariantMP, store, provider(wechat.VariantMP, mpCreds), cfg.WeChat.TokenMode),
		qyVariant:        wechat.NewTokenSource(qyVariant, store, provider(qyVariant, qyCreds), cfg.WeChat.TokenMode),
	}

	var binder wechat.Binder = binding.Disabled()
	if cfg.Binding.BaseURL != "" {
		binder = binding.New(cfg.Binding.BaseURL, hc)
	}

	sessions := wechat.NewSessionStore(cfg.SessionTTL())
	flow, err := wechat.NewLoginFlow(qyVariant, qyCreds, wechat.DefaultEndpoints(qyVariant), sources[qyVariant], sessions, cfg.WeChat.Login.CallbackURL, hc)
	if err != nil {
		return nil, nil, err
	}

	a := &app{
		cfg:     cfg,
		cache:   cc,
		sources: sources,
		flow:    flow,
		qr:      wechat.NewQRCoder(wechat.DefaultEndpoints(wechat.VariantMP), sources[wechat.VariantMP], cfg.WeChat.QRCode.ExpireSeconds, hc),
		router:  wechat.NewEventRouter(binder, ""),
	}
	cleanup := func() {
		_ = cc.Close()
		_ = logger.Sync()
	}
	return a, cleanup, nil
}

// buildLimiter arma el limitador según el backend de cache configurado.
// Con redis el contador es compartido entre réplicas; en memory queda por
// proceso. rate.max=0 apaga el corte.
func buildLimiter(cfg *config.Config) rate.Limiter {
	if cfg.Rate.Max <= 0 {
		return nil
	}
	if cfg.Cache.Driver == "redis" {
		client := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		return rate.NewRedisLimiter(client, "wxbridge:rl:", cfg.Rate.Max, cfg.RateWindow())
	}
	return rate.NewMemoryLimiter(cfg.Rate.Max, cfg.RateWindow())
}

func runServe(cfgPath string) error {
	a, cleanup, err := buildApp(cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()
	log := logger.Named("main")

	metricsHandler, err := httpx.RegisterMetrics(nil)
	if err != nil {
		return err
	}

	webhook := handlers.NewWebhookHandler(a.cfg.WeChat.VerifyToken, a.router)
	login := handlers.NewLoginHandler(a.flow)
	qrcode := handlers.NewQRCodeHandler(a.qr)

	mux := httpx.NewRouter(
		webhook.Echo,
		webhook.Receive,
		login.StartURL,
		login.Callback,
		qrcode.Create,
		httpx.NewReadyz(a.cache),
		metricsHandler,
		httpx.WithRateLimit(buildLimiter(a.cfg)),
	)

	srv := httpx.NewServer(a.cfg.Server.Addr, mux)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	log.Info("wxbridge listening", logger.String("addr", a.cfg.Server.Addr))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", logger.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func main() {
	// .env opcional, pisa nada que ya esté en el entorno
	_ = godotenv.Load()

	cfgPath := envOr("WXBRIDGE_CONFIG", "config.yaml")

	root := &cobra.Command{
		Use:   "wxbridge",
		Short: "Bridge de integración WeChat (tokens, webhooks, login enterprise)",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "ruta del config YAML (env WXBRIDGE_CONFIG)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servicio HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}

	var tokenVariant string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Trae (o refresca) el access token de una variante",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp(cfgPath)
			if err != nil {
				return err
			}
			defer cleanup()

			v, err := wechat.ParseVariant(tokenVariant)
			if err != nil {
				return err
			}
			src, ok := a.sources[v]
			if !ok {
				return fmt.Errorf("variante %s sin token source configurado", v)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			token, err := src.AccessToken(ctx)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenVariant, "variant", "mp", "variante: mp|qy|qywx")

	qrcodeCmd := &cobra.Command{
		Use:   "qrcode",
		Short: "Crea un QR temporal de binding y muestra su URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp(cfgPath)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			ticket, err := a.qr.CreateSceneQR(ctx)
			if err != nil {
				return err
			}
			fmt.Println(a.qr.QRCodeURL(ticket))
			return nil
		},
	}

	root.AddCommand(serveCmd, tokenCmd, qrcodeCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
