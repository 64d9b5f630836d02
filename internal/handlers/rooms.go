package handlers

import (
	"errors"

	"chat-server/internal/hub"
	"chat-server/internal/models"
	"chat-server/internal/services"

	"github.com/gofiber/fiber/v2"
)

// Room management endpoints. These mutate the membership index and route
// the resulting notifications through the hub to whoever is online; the
// real-time core itself never calls them.

func CreatePrivateRoomHandler(rooms *services.RoomService, h *hub.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req models.CreatePrivateRoomRequest
		if err := c.BodyParser(&req); err != nil || req.TargetUserID == "" {
			return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "target_user_id required"})
		}

		roomID, created, err := rooms.CreatePrivate(c.Context(), userID, req.TargetUserID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrSelfTarget):
				return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "cannot chat with yourself"})
			case errors.Is(err, services.ErrUserNotFound):
				return c.Status(404).JSON(fiber.Map{"code": 1, "msg": "user not found"})
			case errors.Is(err, services.ErrNotFriends):
				return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "can only chat with friends"})
			}
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "failed to create room"})
		}

		if !created {
			return c.JSON(fiber.Map{"code": 0, "room_id": roomID, "msg": "private room already exists"})
		}

		h.SendToUser(req.TargetUserID, "new_private_chat", fiber.Map{
			"room_id":        roomID,
			"friend_user_id": userID,
		})
		return c.Status(201).JSON(fiber.Map{"code": 0, "room_id": roomID, "msg": "private room created"})
	}
}

func CreateGroupRoomHandler(rooms *services.RoomService, h *hub.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req models.CreateGroupRoomRequest
		if err := c.BodyParser(&req); err != nil || req.RoomName == "" {
			return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "room_name required"})
		}

		roomID, added, err := rooms.CreateGroup(c.Context(), userID, req.RoomName, req.MemberIDs)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "failed to create group"})
		}

		for _, memberID := range added {
			if memberID == userID {
				continue
			}
			h.SendToUser(memberID, "new_group", fiber.Map{
				"room_id":    roomID,
				"room_name":  req.RoomName,
				"creator_id": userID,
			})
		}
		return c.Status(201).JSON(fiber.Map{"code": 0, "room_id": roomID, "msg": "group created"})
	}
}

func AddMemberHandler(rooms *services.RoomService, h *hub.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req models.AddMemberRequest
		if err := c.BodyParser(&req); err != nil || req.RoomID == 0 || req.MemberID == "" {
			return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "room_id and member_id required"})
		}

		room, err := rooms.AddMember(c.Context(), userID, req.RoomID, req.MemberID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrRoomNotFound):
				return c.Status(404).JSON(fiber.Map{"code": 1, "msg": "room not found"})
			case errors.Is(err, services.ErrNotGroup):
				return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "cannot add members to a private room"})
			case errors.Is(err, services.ErrNotOwner):
				return c.Status(403).JSON(fiber.Map{"code": 1, "msg": "only the owner may add members"})
			case errors.Is(err, services.ErrNotFriends):
				return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "can only add friends"})
			}
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "failed to add member"})
		}

		h.SendToUser(req.MemberID, "added_to_group", fiber.Map{
			"room_id":   req.RoomID,
			"room_name": room.Name,
			"added_by":  userID,
		})
		h.BroadcastRoom(req.RoomID, "new_member", fiber.Map{
			"room_id":   req.RoomID,
			"member_id": req.MemberID,
		})
		return c.JSON(fiber.Map{"code": 0, "msg": "member added"})
	}
}

func LeaveRoomHandler(rooms *services.RoomService, h *hub.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		username, _ := c.Locals("username").(string)

		var req models.LeaveRoomRequest
		if err := c.BodyParser(&req); err != nil || req.RoomID == 0 {
			return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "room_id required"})
		}

		res, err := rooms.Leave(c.Context(), userID, req.RoomID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrRoomNotFound):
				return c.Status(404).JSON(fiber.Map{"code": 1, "msg": "room not found"})
			case errors.Is(err, services.ErrNotMember):
				return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "not a member of this room"})
			}
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "failed to leave room"})
		}

		// Stop routing room events to the departed user's live sessions.
		h.LeaveUser(userID, req.RoomID)

		if res.NewOwner != nil {
			h.BroadcastRoom(req.RoomID, "owner_changed", fiber.Map{
				"room_id":        req.RoomID,
				"new_owner_id":   res.NewOwner.ID,
				"new_owner_name": res.NewOwner.Username,
			})
		}
		if !res.Deleted {
			h.BroadcastRoom(req.RoomID, "member_left", fiber.Map{
				"room_id":  req.RoomID,
				"user_id":  userID,
				"username": username,
			})
		}
		return c.JSON(fiber.Map{"code": 0, "msg": "left room"})
	}
}

func ListRoomsHandler(rooms *services.RoomService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		list, err := rooms.ListForUser(c.Context(), userID)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "failed to list rooms"})
		}
		if list == nil {
			list = []models.RoomInfo{}
		}
		return c.JSON(fiber.Map{"code": 0, "rooms": list})
	}
}

func SearchRoomsHandler(rooms *services.RoomService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := c.Query("query")
		if query == "" {
			return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "query required"})
		}
		found, err := rooms.SearchGroups(c.Context(), query)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"code": 1, "msg": "search failed"})
		}
		out := make([]fiber.Map, 0, len(found))
		for _, r := range found {
			out = append(out, fiber.Map{"room_id": r.ID, "name": r.Name})
		}
		return c.JSON(fiber.Map{"code": 0, "rooms": out})
	}
}
