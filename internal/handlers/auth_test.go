package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"chat-server/internal/hub"
	"chat-server/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// newAuthApp puts AuthMiddleware in front of a route that registers a hub
// session from the request locals, mirroring what the websocket handler does
// once the upgrade went through.
func newAuthApp(h *hub.Hub) *fiber.App {
	app := fiber.New()
	app.Use(AuthMiddleware)
	app.Get("/connect", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		username := c.Locals("username").(string)
		h.Register(hub.NewSession("conn-"+userID, userID, username, &recorderConn{}, 8))
		return c.JSON(fiber.Map{"user_id": userID, "username": username})
	})
	return app
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthMiddleware_RejectsBeforeRegistration(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "auth-test-secret")
	h := hub.New(hub.NewPresence(nil))
	app := newAuthApp(h)

	exp := time.Now().Add(time.Hour).Unix()
	cases := []struct {
		name  string
		query string
	}{
		{"missing token", ""},
		{"garbage token", "?token=not-a-token"},
		{"wrong secret", "?token=" + signToken(t, "some-other-secret",
			jwt.MapClaims{"user_id": "10000001", "username": "alice", "exp": exp})},
		{"missing user_id claim", "?token=" + signToken(t, "auth-test-secret",
			jwt.MapClaims{"username": "alice", "exp": exp})},
		{"expired token", "?token=" + signToken(t, "auth-test-secret",
			jwt.MapClaims{"user_id": "10000001", "username": "alice", "exp": time.Now().Add(-time.Hour).Unix()})},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", "/connect"+tc.query, nil))
		req.NoError(err, tc.name)
		req.Equal(fiber.StatusUnauthorized, resp.StatusCode, tc.name)
	}

	req.Zero(h.OnlineCount(), "rejected connections must never register presence")
}

func TestAuthMiddleware_ValidTokenSetsIdentity(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "auth-test-secret")
	h := hub.New(hub.NewPresence(nil))
	app := newAuthApp(h)

	token, err := services.GenerateJWT("10000001", "alice")
	req.NoError(err)

	resp, err := app.Test(httptest.NewRequest("GET", "/connect?token="+token, nil))
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)

	var body struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.Equal("10000001", body.UserID)
	req.Equal("alice", body.Username)
	req.Equal(1, h.OnlineCount())

	// The same token is accepted from the Authorization header.
	r := httptest.NewRequest("GET", "/connect", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(r)
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)
}
