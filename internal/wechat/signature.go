package wechat

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// VerifySignature valida la firma de un callback de WeChat.
// Algoritmo del protocolo: ordenar {token, timestamp, nonce} lexicográficamente,
// concatenar y comparar el hex del SHA-1 con la firma recibida.
// Retorna nil si la firma es válida, o un *SignatureError con el motivo.
// Los campos faltantes cortan antes de calcular el digest.
func VerifySignature(token, timestamp, nonce, signature string) error {
	if signature == "" {
		return &SignatureError{Reason: "signature param is empty"}
	}
	if timestamp == "" {
		return &SignatureError{Reason: "timestamp param is empty"}
	}
	if nonce == "" {
		return &SignatureError{Reason: "nonce param is empty"}
	}

	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	want := hex.EncodeToString(sum[:])

	if subtle.ConstantTimeCompare([]byte(want), []byte(signature)) != 1 {
		return &SignatureError{Reason: "signature mismatch"}
	}
	return nil
}
