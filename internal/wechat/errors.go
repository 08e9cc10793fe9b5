package wechat

import (
	"errors"
	"fmt"
)

// Taxonomía de errores de la integración. Los callers distinguen con errors.Is.
var (
	// ErrRemoteUnavailable: error de transporte o timeout contra la API remota.
	ErrRemoteUnavailable = errors.New("wechat: remote unavailable")

	// ErrRemoteRejected: la API remota respondió con un errcode/flag explícito.
	ErrRemoteRejected = errors.New("wechat: remote rejected request")

	// ErrMalformedResponse: la respuesta remota no trae los campos esperados.
	ErrMalformedResponse = errors.New("wechat: malformed remote response")

	// ErrParse: el payload del webhook no se pudo parsear.
	ErrParse = errors.New("wechat: unparseable webhook payload")
)

// RemoteError es un rechazo explícito del remoto (errcode != 0).
// errors.Is(err, ErrRemoteRejected) matchea via Unwrap.
type RemoteError struct {
	Variant Variant
	Op      string
	Code    int
	Msg     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("wechat: %s rejected (variant=%s, errcode=%d): %s", e.Op, e.Variant, e.Code, e.Msg)
}

func (e *RemoteError) Unwrap() error { return ErrRemoteRejected }

// AuthExpired indica los errcodes de credencial inválida o token vencido,
// que ameritan invalidar el token cacheado.
func (e *RemoteError) AuthExpired() bool {
	switch e.Code {
	case 40001, 40014, 42001:
		return true
	}
	return false
}

// truncateRemote recorta la respuesta remota para logging sin volcar
// payloads enteros (ni tokens) al log.
func truncateRemote(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// SignatureError describe por qué falló la verificación de firma.
// El campo faltante o la discrepancia queda en Reason para los audit logs.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "wechat: signature verification failed: " + e.Reason
}

// LoginReason clasifica las fallas del intercambio de login.
type LoginReason string

const (
	LoginNoToken           LoginReason = "no_token"
	LoginRemoteRejected    LoginReason = "remote_rejected"
	LoginRemoteUnavailable LoginReason = "remote_unavailable"
	LoginMissingIdentity   LoginReason = "missing_identity"
)

// LoginError es el único error que sale de CompleteLogin.
// Nunca filtra el objeto de usuario crudo del remoto.
type LoginError struct {
	Variant Variant
	Reason  LoginReason
	cause   error
}

func (e *LoginError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("wechat: login failed (%s, variant=%s): %v", e.Reason, e.Variant, e.cause)
	}
	return fmt.Sprintf("wechat: login failed (%s, variant=%s)", e.Reason, e.Variant)
}

func (e *LoginError) Unwrap() error { return e.cause }

// AsLoginError extrae un *LoginError si err lo es (directo o envuelto).
func AsLoginError(err error) (*LoginError, bool) {
	var le *LoginError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
