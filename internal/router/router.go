// Package router assembles the fiber application and its route table.
package router

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tao2825/library-borrow-system/internal/handler"
	"github.com/tao2825/library-borrow-system/internal/metrics"
	"github.com/tao2825/library-borrow-system/internal/middleware"
	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/internal/service"
	"github.com/tao2825/library-borrow-system/internal/ws"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Deps are the services the HTTP layer serves.
type Deps struct {
	Auth        service.AuthService
	Users       service.UserService
	Books       service.BookService
	Members     service.MemberService
	Circulation service.CirculationService
	Reports     service.ReportService
	Hub         *ws.Hub
	// Ping reports storage health for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error
}

// Options tune the app itself.
type Options struct {
	AppName        string
	AllowedOrigins string
	AccessLog      bool
}

// New builds the fiber app with middleware and every route registered.
func New(d Deps, opts Options) *fiber.App {
	if opts.AppName == "" {
		opts.AppName = "Library Circulation v1.0"
	}

	app := fiber.New(fiber.Config{
		AppName:     opts.AppName,
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	if opts.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(recover.New())
	corsCfg := cors.Config{}
	if opts.AllowedOrigins != "" {
		corsCfg.AllowOrigins = opts.AllowedOrigins
	}
	app.Use(cors.New(corsCfg))
	app.Use(metrics.Middleware())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if d.Ping != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := d.Ping(ctx); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	register(app, d)

	if d.Hub != nil {
		mountWebSocket(app, d.Hub)
	}
	return app
}

func register(app *fiber.App, d Deps) {
	authHandler := handler.NewAuthHandler(d.Auth, d.Users)
	userHandler := handler.NewUserHandler(d.Users)
	bookHandler := handler.NewBookHandler(d.Books)
	memberHandler := handler.NewMemberHandler(d.Members)
	circHandler := handler.NewCirculationHandler(d.Circulation)
	reportHandler := handler.NewReportHandler(d.Reports)

	api := app.Group("/api/v1")

	// ============ PUBLIC ROUTES ============
	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)

	// ============ PROTECTED ROUTES ============
	protected := api.Group("", middleware.RequireAuth(d.Auth))

	protected.Get("/auth/me", authHandler.Me)
	protected.Post("/auth/change-password", authHandler.ChangePassword)

	// Everything below needs a rotated password; the two routes above stay reachable.
	protected = protected.Group("", middleware.RequirePasswordRotated())

	circulation := middleware.RequirePermission(model.PermCirculation)

	// Books
	protected.Get("/books", circulation, bookHandler.GetBooks)
	protected.Get("/books/available", circulation, bookHandler.GetAvailableBooks)
	protected.Get("/books/:id", circulation, bookHandler.GetBook)
	protected.Post("/books", middleware.RequirePermission(model.PermManageBooks), bookHandler.CreateBook)
	protected.Put("/books/:id", middleware.RequirePermission(model.PermManageBooks), bookHandler.UpdateBook)
	protected.Delete("/books/:id", middleware.RequirePermission(model.PermManageBooks), bookHandler.DeleteBook)

	// Members
	protected.Get("/members", circulation, memberHandler.GetMembers)
	protected.Get("/members/active", circulation, memberHandler.GetActiveMembers)
	protected.Get("/members/:id", circulation, memberHandler.GetMember)
	protected.Post("/members", middleware.RequirePermission(model.PermManageMembers), memberHandler.CreateMember)
	protected.Put("/members/:id", middleware.RequirePermission(model.PermManageMembers), memberHandler.UpdateMember)
	protected.Delete("/members/:id", middleware.RequirePermission(model.PermManageMembers), memberHandler.DeleteMember)

	// Circulation
	protected.Post("/borrows", circulation, circHandler.CreateBorrow)
	protected.Get("/borrows/active", circulation, circHandler.GetActiveItems)
	protected.Post("/borrows/items/return", circulation, circHandler.ReturnItems)
	protected.Post("/borrows/items/:id/return", circulation, circHandler.ReturnItem)
	protected.Get("/borrows/:id", circulation, circHandler.GetTransaction)

	// User management
	manageUsers := middleware.RequirePermission(model.PermManageUsers)
	protected.Get("/users", manageUsers, userHandler.GetUsers)
	protected.Get("/users/:id", manageUsers, userHandler.GetUser)
	protected.Post("/users", manageUsers, userHandler.CreateUser)
	protected.Put("/users/:id/role", manageUsers, userHandler.SetRole)
	protected.Put("/users/:id/active", manageUsers, userHandler.SetActive)

	// Reports
	reports := protected.Group("/reports", middleware.RequirePermission(model.PermViewReports))
	reports.Get("/summary", reportHandler.GetSummary)
	reports.Get("/monthly", reportHandler.GetMonthly)
	reports.Get("/ledger", reportHandler.GetLedger)
	reports.Get("/history", reportHandler.GetHistory)
	reports.Get("/dashboard", reportHandler.GetDashboard)
}

func mountWebSocket(app *fiber.App, hub *ws.Hub) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		if !hub.Join(c) {
			return
		}
		defer hub.Leave(c)

		for {
			// Keep alive loop
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))
}
