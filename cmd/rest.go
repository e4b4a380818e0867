package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/az-connect/core/config"
	"github.com/AzielCF/az-connect/pkg/msgworker"
	"github.com/AzielCF/az-connect/ui/rest"
	"github.com/AzielCF/az-connect/ui/rest/middleware"
	"github.com/AzielCF/az-connect/ui/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the channel API and provider webhooks over http",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	cfg := coreconfig.Global

	if len(cfg.App.BasicAuth) == 0 {
		logrus.Fatalln("APP_BASIC_AUTH is required. Nothing should be public; please set APP_BASIC_AUTH=<user>:<secret>[,<user2>:<secret2>] and restart.")
	}
	account := make(map[string]string)
	for _, basicAuth := range cfg.App.BasicAuth {
		ba := strings.Split(basicAuth, ":")
		if len(ba) != 2 {
			logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
		}
		account[ba[0]] = ba[1]
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := buildEngine(ctx, cfg)
	if err != nil {
		logrus.Fatalf("[APP] Failed to start engine: %v", err)
	}
	e.start(ctx)

	app := fiber.New(fiber.Config{
		EnableTrustedProxyCheck: true,
		Network:                 "tcp",
		AppName:                 "Az-Connect Channel Engine",
		ServerHeader:            "Hidden",
	})

	// Security: RequestID for audit trails
	app.Use(requestid.New())

	origins := strings.Join(cfg.App.CorsAllowedOrigins, ", ")
	if !strings.Contains(origins, cfg.App.BaseUrl) {
		origins += ", " + cfg.App.BaseUrl
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())

	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	if cfg.App.Debug {
		app.Use(logger.New())
	}

	base := app.Group(cfg.App.BasePath)

	// Providers authenticate with verify tokens and body signatures, not basic auth.
	rest.InitRestWebhook(base, e.manager, e.cloud)
	rest.InitRestHealth(base, cfg.App.Version, healthChecks(e), func() msgworker.QueueStats { return e.queue.Stats() })

	apiGroup := base.Group("/api")
	apiGroup.Use(basicauth.New(basicauth.Config{
		Users: account,
		Next: func(c *fiber.Ctx) bool {
			// Allow CORS preflight without credentials.
			return c.Method() == fiber.MethodOptions
		},
	}))

	rest.InitRestChannel(apiGroup, e.manager)
	websocket.RegisterRoutes(apiGroup, e.hub)

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Errorf("[REST] Failed to start: %v", err)
	}

	cancel()
	e.stop()
}

func healthChecks(e *engine) map[string]rest.HealthCheck {
	checks := map[string]rest.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := e.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if e.vk != nil {
		checks["valkey"] = e.vk.Ping
	}
	return checks
}
