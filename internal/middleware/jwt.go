package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// Locals keys populated for authenticated requests.
const (
	LocalUserID   = "user_id"
	LocalUserRole = "user_role"
)

var (
	errMissingCredentials = errors.New("authorization header missing")
	errMalformedHeader    = errors.New("invalid authorization header")
)

// JWTProtected authenticates requests with an HMAC-signed bearer token and stores the
// caller's id and role in the request locals. Websocket handshakes may carry the token
// in the access_token query parameter instead of the header.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		claims := jwt.MapClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}); err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		if id, ok := subjectID(claims); ok {
			c.Locals(LocalUserID, id)
		}
		if role := claimedRole(claims); role != "" {
			c.Locals(LocalUserRole, role)
		}

		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header == "" {
		if websocketUpgrade(c) {
			if token := strings.TrimSpace(c.Query("access_token")); token != "" {
				return token, nil
			}
		}
		return "", errMissingCredentials
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", errMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMalformedHeader
	}
	return token, nil
}

// subjectID reads the numeric user id from sub, user_id or id, in that order.
func subjectID(claims jwt.MapClaims) (uint, bool) {
	for _, name := range [...]string{"sub", "user_id", "id"} {
		switch v := claims[name].(type) {
		case float64:
			if v >= 0 {
				return uint(v), true
			}
		case string:
			if parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
				return uint(parsed), true
			}
		}
	}
	return 0, false
}

// claimedRole returns the lower-cased role, taking the first entry when roles is a list.
func claimedRole(claims jwt.MapClaims) string {
	for _, name := range [...]string{"role", "roles"} {
		switch v := claims[name].(type) {
		case string:
			if role := normalizeRole(v); role != "" {
				return role
			}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					if role := normalizeRole(s); role != "" {
						return role
					}
				}
			}
		}
	}
	return ""
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func websocketUpgrade(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket")
}
