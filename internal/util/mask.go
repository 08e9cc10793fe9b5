package util

import "strings"

// MaskID enmascara un identificador externo (openid, userid) para logs.
// Deja la primera y las dos últimas runas visibles.
func MaskID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= 4 {
		return "***"
	}
	return string(r[:1]) + "…" + string(r[len(r)-2:])
}
