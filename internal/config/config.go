package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Cache struct {
		Driver string `yaml:"driver"` // memory | redis
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	WeChat struct {
		// direct: credenciales propias contra la API de WeChat
		// delegated: token via component gateway (identidad de servicio)
		TokenMode string `yaml:"token_mode"`

		// Token compartido para verificar la firma de los webhooks.
		VerifyToken string `yaml:"verify_token"`

		MP struct {
			AppID  string `yaml:"app_id"`
			Secret string `yaml:"secret"`
		} `yaml:"mp"`

		QY struct {
			// qy (dialecto legado) | qywx (work chat)
			Dialect    string `yaml:"dialect"`
			CorpID     string `yaml:"corp_id"`
			CorpSecret string `yaml:"corp_secret"`
			AgentID    string `yaml:"agent_id"`
		} `yaml:"qy"`

		Login struct {
			CallbackURL string `yaml:"callback_url"`
			// SessionTTL es una duración Go ("10m", "1h"). Se valida en
			// Validate y se parsea en el wiring.
			SessionTTL string `yaml:"session_ttl"`
		} `yaml:"login"`

		QRCode struct {
			ExpireSeconds int `yaml:"expire_seconds"`
		} `yaml:"qrcode"`
	} `yaml:"wechat"`

	// Rate limita por IP los endpoints de login y qrcode. max: 0 deshabilita.
	Rate struct {
		Max    int    `yaml:"max"`
		Window string `yaml:"window"`
	} `yaml:"rate"`

	Binding struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"binding"`

	Gateway struct {
		BaseURL   string `yaml:"base_url"`
		AppCode   string `yaml:"app_code"`
		AppSecret string `yaml:"app_secret"`
		Username  string `yaml:"username"`
	} `yaml:"gateway"`
}

func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.WeChat.TokenMode == "" {
		c.WeChat.TokenMode = "direct"
	}
	if c.WeChat.QY.Dialect == "" {
		c.WeChat.QY.Dialect = "qywx"
	}
	if c.WeChat.Login.SessionTTL == "" {
		c.WeChat.Login.SessionTTL = "10m"
	}
	if c.WeChat.QRCode.ExpireSeconds == 0 {
		c.WeChat.QRCode.ExpireSeconds = 1800
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Gateway.Username == "" {
		c.Gateway.Username = "admin"
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_DRIVER"); ok {
		c.Cache.Driver = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	// WECHAT
	if v, ok := getEnvStr("WECHAT_TOKEN_MODE"); ok {
		c.WeChat.TokenMode = strings.ToLower(v)
	}
	if v, ok := getEnvStr("WECHAT_VERIFY_TOKEN"); ok {
		c.WeChat.VerifyToken = v
	}
	if v, ok := getEnvStr("WECHAT_MP_APP_ID"); ok {
		c.WeChat.MP.AppID = v
	}
	if v, ok := getEnvStr("WECHAT_MP_SECRET"); ok {
		c.WeChat.MP.Secret = v
	}
	if v, ok := getEnvStr("WECHAT_QY_DIALECT"); ok {
		c.WeChat.QY.Dialect = strings.ToLower(v)
	}
	if v, ok := getEnvStr("WECHAT_QY_CORP_ID"); ok {
		c.WeChat.QY.CorpID = v
	}
	if v, ok := getEnvStr("WECHAT_QY_CORP_SECRET"); ok {
		c.WeChat.QY.CorpSecret = v
	}
	if v, ok := getEnvStr("WECHAT_QY_AGENT_ID"); ok {
		c.WeChat.QY.AgentID = v
	}
	if v, ok := getEnvStr("WECHAT_LOGIN_CALLBACK_URL"); ok {
		c.WeChat.Login.CallbackURL = v
	}
	if v, ok := getEnvStr("WECHAT_LOGIN_SESSION_TTL"); ok {
		c.WeChat.Login.SessionTTL = v
	}
	if v, ok := getEnvInt("WECHAT_QRCODE_EXPIRE_SECONDS"); ok {
		c.WeChat.QRCode.ExpireSeconds = v
	}

	// RATE
	if v, ok := getEnvInt("RATE_MAX"); ok {
		c.Rate.Max = v
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}

	// BINDING
	if v, ok := getEnvStr("BINDING_BASE_URL"); ok {
		c.Binding.BaseURL = v
	}

	// GATEWAY (modo delegated)
	if v, ok := getEnvStr("GATEWAY_BASE_URL"); ok {
		c.Gateway.BaseURL = v
	}
	if v, ok := getEnvStr("GATEWAY_APP_CODE"); ok {
		c.Gateway.AppCode = v
	}
	if v, ok := getEnvStr("GATEWAY_APP_SECRET"); ok {
		c.Gateway.AppSecret = v
	}
	if v, ok := getEnvStr("GATEWAY_USERNAME"); ok {
		c.Gateway.Username = v
	}
}

func (c *Config) Validate() error {
	switch c.WeChat.TokenMode {
	case "direct", "delegated":
	default:
		return fmt.Errorf("config: wechat.token_mode inválido: %q", c.WeChat.TokenMode)
	}
	if c.WeChat.TokenMode == "delegated" && c.Gateway.BaseURL == "" {
		return fmt.Errorf("config: gateway.base_url requerido en modo delegated")
	}
	switch c.WeChat.QY.Dialect {
	case "qy", "qywx":
	default:
		return fmt.Errorf("config: wechat.qy.dialect inválido: %q", c.WeChat.QY.Dialect)
	}
	if _, err := time.ParseDuration(c.WeChat.Login.SessionTTL); err != nil {
		return fmt.Errorf("config: wechat.login.session_ttl inválido: %q", c.WeChat.Login.SessionTTL)
	}
	if c.Rate.Max > 0 {
		if _, err := time.ParseDuration(c.Rate.Window); err != nil {
			return fmt.Errorf("config: rate.window inválido: %q", c.Rate.Window)
		}
	}
	return nil
}

// RateWindow parsea la ventana del limitador ya validada.
func (c *Config) RateWindow() time.Duration {
	d, err := time.ParseDuration(c.Rate.Window)
	if err != nil {
		return time.Minute
	}
	return d
}

// SessionTTL parsea la duración de sesión de login ya validada.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.WeChat.Login.SessionTTL)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}
