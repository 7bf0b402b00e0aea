package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func token(t *testing.T, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func authApp() *fiber.App {
	app := fiber.New()
	app.Get("/api/merchants/:merchantId/orders", RequireAuth(testSecret), RequireMerchantAccess(), func(c *fiber.Ctx) error {
		return c.SendString("scope=" + MerchantScope(c))
	})
	return app
}

func TestRequireAuth(t *testing.T) {
	app := authApp()
	merchantToken := token(t, Claims{UserID: "u-1", Role: "MERCHANT", MerchantID: "m-1"})
	adminToken := token(t, Claims{UserID: "u-2", Role: RoleSuperAdmin})
	expired := token(t, Claims{UserID: "u-1", Role: "MERCHANT", MerchantID: "m-1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	noMerchant := token(t, Claims{UserID: "u-3", Role: "MERCHANT"})

	cases := []struct {
		name   string
		path   string
		auth   string
		status int
		body   string
	}{
		{"missing token", "/api/merchants/m-1/orders", "", http.StatusUnauthorized, ""},
		{"own merchant", "/api/merchants/m-1/orders", "Bearer " + merchantToken, http.StatusOK, "scope=m-1"},
		{"other merchant", "/api/merchants/m-2/orders", "Bearer " + merchantToken, http.StatusForbidden, ""},
		{"super admin", "/api/merchants/m-2/orders", "Bearer " + adminToken, http.StatusOK, "scope="},
		{"query token", "/api/merchants/m-1/orders?token=" + merchantToken, "", http.StatusOK, "scope=m-1"},
		{"expired", "/api/merchants/m-1/orders", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"garbage", "/api/merchants/m-1/orders", "Bearer not-a-jwt", http.StatusUnauthorized, ""},
		{"token without merchant", "/api/merchants/m-1/orders", "Bearer " + noMerchant, http.StatusForbidden, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.body != "" {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, tc.body, string(body))
			}
		})
	}
}

func TestValidateMetaSignature(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := fiber.New()
	app.Post("/webhooks/whatsapp", ValidateMetaSignature("app-secret", log), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	body := `{"object":"whatsapp_business_account"}`
	send := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
		if signature != "" {
			req.Header.Set(signatureHeader, signature)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, send(Sign("app-secret", []byte(body))))
	assert.Equal(t, http.StatusUnauthorized, send(Sign("other", []byte(body))))
	assert.Equal(t, http.StatusUnauthorized, send("deadbeef"))
	assert.Equal(t, http.StatusUnauthorized, send(""))
}

func TestValidateMetaSignature_Disabled(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := fiber.New()
	app.Post("/", ValidateMetaSignature("", log), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequireTriggerSecret(t *testing.T) {
	app := fiber.New()
	app.Post("/trigger", RequireTriggerSecret("s3cret"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusAccepted) })

	req := httptest.NewRequest(http.MethodPost, "/trigger", nil)
	req.Header.Set(TriggerSecretHeader, "s3cret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/trigger", nil)
	req.Header.Set(TriggerSecretHeader, "wrong")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
