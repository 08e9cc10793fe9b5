// Package wechat implementa la integración con la plataforma WeChat:
// ciclo de vida de access tokens, verificación de firmas de webhooks,
// parseo y ruteo de eventos, y el handshake de login para los dialectos
// enterprise (qy legado y work chat).
package wechat

import "fmt"

// Variant identifica el canal externo. Se fija al arrancar y no cambia.
type Variant string

const (
	// VariantMP es la cuenta pública (公众号).
	VariantMP Variant = "mp"
	// VariantQY es el dialecto enterprise legado (企业号).
	VariantQY Variant = "qy"
	// VariantQYWX es work chat (企业微信).
	VariantQYWX Variant = "qywx"
)

// ParseVariant valida un string de variante (por ej. de un path param).
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantMP, VariantQY, VariantQYWX:
		return Variant(s), nil
	}
	return "", fmt.Errorf("wechat: unknown variant %q", s)
}

// Endpoints agrupa las URLs remotas de una variante.
// Cada dialecto tiene su propio mapa; se puede pisar via config para tests.
type Endpoints struct {
	Token       string // credenciales -> access_token
	QRCreate    string // solo mp: crear QR temporal
	QRShow      string // solo mp: URL pública del QR
	Login       string // qy/qywx: página de login por QR
	LoginInfo   string // qy: POST auth_code -> user_info
	LoginUser   string // qywx: GET code -> UserId
}

// DefaultEndpoints retorna las URLs de producción de cada variante.
func DefaultEndpoints(v Variant) Endpoints {
	switch v {
	case VariantMP:
		return Endpoints{
			Token:    "https://api.weixin.qq.com/cgi-bin/token",
			QRCreate: "https://api.weixin.qq.com/cgi-bin/qrcode/create",
			QRShow:   "https://mp.weixin.qq.com/cgi-bin/showqrcode",
		}
	case VariantQY:
		return Endpoints{
			Token:     "https://qyapi.weixin.qq.com/cgi-bin/gettoken",
			Login:     "https://qy.weixin.qq.com/cgi-bin/loginpage",
			LoginInfo: "https://qyapi.weixin.qq.com/cgi-bin/service/get_login_info",
		}
	case VariantQYWX:
		return Endpoints{
			Token:     "https://qyapi.weixin.qq.com/cgi-bin/gettoken",
			Login:     "https://open.work.weixin.qq.com/wwopen/sso/qrConnect",
			LoginUser: "https://qyapi.weixin.qq.com/cgi-bin/user/getuserinfo",
		}
	}
	return Endpoints{}
}

// Credentials son las credenciales de una variante.
// mp usa AppID/Secret; qy y qywx usan CorpID/CorpSecret (qywx además AgentID).
type Credentials struct {
	AppID      string
	Secret     string
	CorpID     string
	CorpSecret string
	AgentID    string
}
