package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// AuthMiddleware authenticates API clients by bearer key.
type AuthMiddleware struct {
	keys [][]byte
}

// NewAuthMiddleware creates a new auth middleware instance. With no keys
// every request is let through.
func NewAuthMiddleware(keys []string) *AuthMiddleware {
	m := &AuthMiddleware{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			m.keys = append(m.keys, []byte(k))
		}
	}
	return m
}

// Enabled reports whether any key is configured.
func (m *AuthMiddleware) Enabled() bool {
	return len(m.keys) > 0
}

// RequireKey rejects requests that do not carry a configured key, either as
// "Authorization: Bearer <key>" or in the X-API-Key header.
func (m *AuthMiddleware) RequireKey(c fiber.Ctx) error {
	if !m.Enabled() {
		return c.Next()
	}

	token := extractBearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		token = strings.TrimSpace(c.Get("X-API-Key"))
	}
	if token == "" || !m.valid(token) {
		c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="bulkpress"`)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status": "error",
			"error":  "unauthorized",
		})
	}

	c.Locals("authenticated", true)
	return c.Next()
}

func (m *AuthMiddleware) valid(token string) bool {
	t := []byte(token)
	ok := false
	for _, k := range m.keys {
		if subtle.ConstantTimeCompare(t, k) == 1 {
			ok = true
		}
	}
	return ok
}

// extractBearerToken returns the credentials of a Bearer authorization
// header, or "" for any other scheme.
func extractBearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
