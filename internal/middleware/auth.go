package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleSuperAdmin = "SUPER_ADMIN"

	claimsKey = "claims"
)

// Claims is the dashboard token payload.
type Claims struct {
	UserID     string `json:"id"`
	Role       string `json:"role"`
	MerchantID string `json:"merchantId,omitempty"`
	jwt.RegisteredClaims
}

// IsSuperAdmin reports whether the token may act on any merchant.
func (c *Claims) IsSuperAdmin() bool {
	return c.Role == RoleSuperAdmin
}

// RequireAuth validates the bearer token. EventSource cannot set headers, so
// the token is also accepted as ?token=.
func RequireAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
		}

		claims := &Claims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return fiber.NewError(fiber.StatusUnauthorized, "Token expired")
			}
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		}

		if !claims.IsSuperAdmin() && claims.MerchantID == "" {
			return fiber.NewError(fiber.StatusForbidden, "Token has no merchant")
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// RequireMerchantAccess checks the :merchantId route param against the token.
func RequireMerchantAccess() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFrom(c)
		if claims == nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
		}
		if claims.IsSuperAdmin() {
			return c.Next()
		}
		if claims.MerchantID == "" || claims.MerchantID != c.Params("merchantId") {
			return fiber.NewError(fiber.StatusForbidden, "No access to this merchant")
		}
		return c.Next()
	}
}

// ClaimsFrom returns the claims stored by RequireAuth, or nil.
func ClaimsFrom(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(claimsKey).(*Claims)
	return claims
}

// MerchantScope is the merchant a request is limited to; empty for super admins.
func MerchantScope(c *fiber.Ctx) string {
	claims := ClaimsFrom(c)
	if claims == nil || claims.IsSuperAdmin() {
		return ""
	}
	return claims.MerchantID
}

func bearerToken(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}
