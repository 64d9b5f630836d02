package handlers

import (
	"errors"

	"chat-server/internal/hub"
	"chat-server/internal/models"
	"chat-server/internal/services"

	"github.com/gofiber/fiber/v2"
)

// Friend endpoints: the minimal surface needed for the friend gate on room
// creation and for the targeted notification path.

func SendFriendRequestHandler(friends *services.FriendService, h *hub.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			FriendUserID string `json:"friend_user_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.FriendUserID == "" {
			return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "friend_user_id required"})
		}

		if err := friends.SendRequest(c.Context(), userID, req.FriendUserID); err != nil {
			switch {
			case errors.Is(err, services.ErrUserNotFound):
				return c.Status(404).JSON(fiber.Map{"code": 1, "msg": "user not found"})
			case errors.Is(err, services.ErrSelfTarget):
				return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "cannot add yourself"})
			case errors.Is(err, services.ErrRequestPending):
				return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "request already sent"})
			case errors.Is(err, services.ErrAlreadyFriends):
				return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "already friends"})
			}
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "failed to send request"})
		}

		h.SendToUser(req.FriendUserID, "new_friend_request", fiber.Map{"user_id": userID})
		return c.Status(201).JSON(fiber.Map{"code": 0, "msg": "friend request sent"})
	}
}

func HandleFriendRequestHandler(friends *services.FriendService, h *hub.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			FriendUserID string `json:"friend_user_id"`
			Accept       bool   `json:"accept"`
		}
		if err := c.BodyParser(&req); err != nil || req.FriendUserID == "" {
			return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "friend_user_id required"})
		}

		settled, err := friends.Handle(c.Context(), userID, req.FriendUserID, req.Accept)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "failed to handle request"})
		}
		if !settled {
			return c.Status(404).JSON(fiber.Map{"code": 1, "msg": "no pending request"})
		}

		h.SendToUser(req.FriendUserID, "friend_request_handled", fiber.Map{
			"user_id":  userID,
			"accepted": req.Accept,
		})
		return c.JSON(fiber.Map{"code": 0, "msg": "request handled"})
	}
}

func ListFriendsHandler(friends *services.FriendService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		list, err := friends.List(c.Context(), userID)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "failed to list friends"})
		}
		if list == nil {
			list = []models.User{}
		}
		return c.JSON(fiber.Map{"code": 0, "friends": list})
	}
}

func SearchUsersHandler(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := c.Query("query")
		if query == "" {
			return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "query required"})
		}
		found, err := users.Search(c.Context(), query)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "search failed"})
		}
		if found == nil {
			found = []models.User{}
		}
		return c.JSON(fiber.Map{"code": 0, "users": found})
	}
}
