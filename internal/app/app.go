package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"chat-server/internal/db"
	"chat-server/internal/handlers"
	"chat-server/internal/hub"
	"chat-server/internal/logger"
	"chat-server/internal/models"
	"chat-server/internal/services"
	"chat-server/internal/store"
	"chat-server/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func Run() {
	// Load Env
	if err := utils.LoadEnv(); err != nil {
		logger.Warn(".env file not found")
	}

	ctx := context.Background()

	// Persistence gateway: Postgres when configured, in-memory otherwise.
	var st store.Store
	if connString := utils.GetEnv("DATABASE_URL", ""); connString != "" {
		pool, err := db.Connect(ctx, connString)
		if err != nil {
			logger.Error("failed to connect to database", zap.Error(err))
			os.Exit(1)
		}
		defer pool.Close()

		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("migration failed", zap.Error(err))
			os.Exit(1)
		}
		st = pg
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemory()
	}

	// Optional Redis mirror for presence state.
	var rdb *redis.Client
	if redisURL := utils.GetEnv("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", zap.Error(err))
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, presence mirror disabled", zap.Error(err))
			rdb = nil
		}
	}

	// Core wiring: every component gets its collaborators explicitly.
	presence := hub.NewPresence(rdb)
	h := hub.New(presence)

	userService := services.NewUserService(st)
	messageService := services.NewMessageService(st)
	roomService := services.NewRoomService(st)
	friendService := services.NewFriendService(st)
	eventRouter := handlers.NewEventRouter(h, roomService, messageService)

	// Fiber App
	app := fiber.New()

	// Middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// Routes
	api := app.Group("/api")

	// Public Routes
	api.Post("/register", func(c *fiber.Ctx) error {
		var req models.RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "invalid request"})
		}
		user, err := userService.Register(c.Context(), req)
		if err != nil {
			if errors.Is(err, services.ErrUserExists) {
				return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "username already exists"})
			}
			return c.Status(400).JSON(fiber.Map{"code": 1, "msg": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"code": 0, "user_id": user.ID, "username": user.Username})
	})

	api.Post("/login", func(c *fiber.Ctx) error {
		var req models.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"code": 1, "msg": "invalid request"})
		}
		res, err := userService.Login(c.Context(), req)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"code": 1, "msg": "invalid credentials"})
		}
		return c.JSON(fiber.Map{
			"code": 0, "token": res.Token, "user_id": res.UserID, "username": res.Username,
		})
	})

	// Protected Routes
	protected := api.Group("/")
	protected.Use(handlers.AuthMiddleware)

	// History
	protected.Get("/history", handlers.HistoryHandler(messageService))
	protected.Get("/room_history", handlers.RoomHistoryHandler(messageService))

	// Rooms
	protected.Post("/rooms/private", handlers.CreatePrivateRoomHandler(roomService, h))
	protected.Post("/rooms/group", handlers.CreateGroupRoomHandler(roomService, h))
	protected.Post("/rooms/add_member", handlers.AddMemberHandler(roomService, h))
	protected.Post("/rooms/leave", handlers.LeaveRoomHandler(roomService, h))
	protected.Get("/rooms", handlers.ListRoomsHandler(roomService))
	protected.Get("/rooms/search", handlers.SearchRoomsHandler(roomService))

	// Friends
	protected.Post("/friends/request", handlers.SendFriendRequestHandler(friendService, h))
	protected.Post("/friends/handle", handlers.HandleFriendRequestHandler(friendService, h))
	protected.Get("/friends", handlers.ListFriendsHandler(friendService))
	protected.Get("/friends/search", handlers.SearchUsersHandler(userService))

	// Health Check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "online": h.OnlineCount()})
	})

	// WebSocket Route
	// Note: Middleware order matters. AuthMiddleware checks the token
	// before the upgrade, so unauthenticated sockets never reach the hub.
	app.Use("/ws", handlers.WSUpgradeMiddleware)
	app.Use("/ws", handlers.AuthMiddleware)
	app.Get("/ws", handlers.WebSocketHandler(h, roomService, eventRouter))

	// Start Server
	port := utils.GetEnv("PORT", "3001")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			logger.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Graceful Shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c // Block until signal
	logger.Info("gracefully shutting down...")
	_ = app.Shutdown()
	logger.Info("server shutdown complete")
}
