package handlers

import (
	"errors"

	"chat-server/internal/models"
	"chat-server/internal/services"

	"github.com/gofiber/fiber/v2"
)

const defaultPageSize = 50

// HistoryHandler serves the legacy global feed, newest first.
func HistoryHandler(messages *services.MessageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := c.QueryInt("page", 1)
		items, hasMore, err := messages.History(c.Context(), page, defaultPageSize)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "failed to fetch history"})
		}
		if items == nil {
			items = []models.HistoryItem{}
		}
		return c.JSON(fiber.Map{"code": 0, "data": items, "has_more": hasMore})
	}
}

// RoomHistoryHandler serves one room's messages in ascending sequence
// order. Membership is required for non-global rooms.
func RoomHistoryHandler(messages *services.MessageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		roomID := int64(c.QueryInt("room_id", 0))
		page := c.QueryInt("page", 1)
		size := c.QueryInt("size", defaultPageSize)

		items, hasMore, err := messages.RoomHistory(c.Context(), userID, roomID, page, size)
		if err != nil {
			if errors.Is(err, services.ErrNotMember) {
				return c.Status(403).JSON(fiber.Map{"code": 1, "msg": "not a member of this room"})
			}
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "failed to fetch history"})
		}
		if items == nil {
			items = []models.RoomHistoryItem{}
		}
		return c.JSON(fiber.Map{"code": 0, "data": items, "has_more": hasMore})
	}
}
