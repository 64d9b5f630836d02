package handlers

import (
	"context"

	"chat-server/internal/hub"
	"chat-server/internal/logger"
	"chat-server/internal/models"
	"chat-server/internal/services"
	"chat-server/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebSocketHandler owns the session lifecycle: the token was already
// checked by AuthMiddleware before the upgrade, so by the time this runs
// the caller identity is authenticated. The session registers presence,
// auto-subscribes to every room the user belongs to plus the global room,
// and then loops reading events until the transport closes.
func WebSocketHandler(h *hub.Hub, rooms *services.RoomService, router *EventRouter) fiber.Handler {
	queueSize := utils.GetEnvInt("WS_SEND_QUEUE", 64)

	return websocket.New(func(c *websocket.Conn) {
		userID := c.Locals("user_id").(string)
		username := c.Locals("username").(string)
		connID := uuid.New().String()

		sess := hub.NewSession(connID, userID, username, c, queueSize)
		h.Register(sess)
		go sess.WritePump()

		ctx := context.Background()
		if roomIDs, err := rooms.RoomsFor(ctx, userID); err == nil {
			for _, id := range roomIDs {
				h.Join(sess, id)
			}
		} else {
			logger.Error("room auto-subscribe failed", zap.String("user_id", userID), zap.Error(err))
		}
		h.Join(sess, models.GlobalRoomID)

		h.BroadcastAll("online", models.OnlineEvent{Count: h.OnlineCount()})
		logger.Info("connected", zap.String("user_id", userID), zap.String("conn_id", connID))

		defer func() {
			if h.Unregister(connID) {
				h.BroadcastAll("online", models.OnlineEvent{Count: h.OnlineCount()})
			}
			logger.Info("disconnected", zap.String("user_id", userID), zap.String("conn_id", connID))
		}()

		for {
			msgType, msg, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Debug("read error", zap.String("conn_id", connID), zap.Error(err))
				}
				break
			}
			if msgType != websocket.TextMessage {
				continue
			}
			router.Dispatch(ctx, sess, msg)
		}
	})
}

// WSUpgradeMiddleware rejects plain HTTP requests on the websocket route.
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// AuthMiddleware verifies the JWT before the request proceeds (and before
// a websocket upgrade happens). The token comes from the `token` or
// `access_token` query parameter or a Bearer header.
func AuthMiddleware(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		token = c.Query("access_token")
	}
	if token == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}

	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
	}

	claims, err := services.ValidateToken(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	uid, ok := claims["user_id"].(string)
	if !ok || uid == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}
	c.Locals("user_id", uid)

	if u, ok := claims["username"].(string); ok {
		c.Locals("username", u)
	} else {
		c.Locals("username", uid)
	}

	return c.Next()
}
