// redact прячет чувствительные значения перед записью в лог.
// Сырые credential'ы и пароли в лог не попадают никогда; для корреляции
// токенов используется короткий отпечаток Fingerprint.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Email маскирует local-part адреса, оставляя первые два символа.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := parts[0], parts[1]
	if r := []rune(local); len(r) > 2 {
		local = string(r[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Fingerprint возвращает первые 8 hex-символов SHA-256 от значения.
// Достаточно для корреляции записей лога, бесполезно для восстановления токена.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:4])
}

func Token() string    { return "[REDACTED_TOKEN]" }
func Password() string { return "[REDACTED_PASSWORD]" }
