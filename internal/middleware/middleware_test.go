package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujithprog/receipt-scanner/pkg/jwt"
)

func setupProtectedApp(jwtService jwt.JWTService, handlerCalls *int) *fiber.App {
	app := fiber.New()
	m := NewMiddleware()
	app.Get("/protected", m.AuthMiddleware(jwtService), func(c *fiber.Ctx) error {
		*handlerCalls++
		return c.JSON(fiber.Map{"user_id": c.Locals("user_id")})
	})
	return app
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	var handlerCalls int
	app := setupProtectedApp(jwt.NewJWTService(), &handlerCalls)

	req := httptest.NewRequest("GET", "/protected", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	// the handler must never run for an unauthenticated caller
	assert.Equal(t, 0, handlerCalls)
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	var handlerCalls int
	app := setupProtectedApp(jwt.NewJWTService(), &handlerCalls)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "token-without-bearer-prefix")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, handlerCalls)
}

func TestAuthMiddlewareInvalidToken(t *testing.T) {
	var handlerCalls int
	app := setupProtectedApp(jwt.NewJWTService(), &handlerCalls)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, handlerCalls)
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	jwtService := jwt.NewJWTService()
	var handlerCalls int
	app := setupProtectedApp(jwtService, &handlerCalls)

	token := jwtService.GenerateTokenUser("user-123", "user")

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, handlerCalls)
}
