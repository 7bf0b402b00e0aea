package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/Ananth-NQI/orderline-backend/database"
	"github.com/Ananth-NQI/orderline-backend/internal/config"
	"github.com/Ananth-NQI/orderline-backend/internal/events"
	"github.com/Ananth-NQI/orderline-backend/internal/handlers"
	"github.com/Ananth-NQI/orderline-backend/internal/jobs"
	"github.com/Ananth-NQI/orderline-backend/internal/logger"
	"github.com/Ananth-NQI/orderline-backend/internal/middleware"
	"github.com/Ananth-NQI/orderline-backend/internal/routes"
	"github.com/Ananth-NQI/orderline-backend/internal/services"
	"github.com/Ananth-NQI/orderline-backend/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:           "orderline",
		Short:         "WhatsApp ordering backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context())
			},
		},
		migrateCmd(),
		sendTestEventCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	return cfg, log, nil
}

// openStore picks the in-memory store or postgres. ping is nil for memory.
func openStore(cfg *config.Config, log *slog.Logger) (storage.Store, func(context.Context) error, error) {
	if cfg.UseMemoryStore {
		log.Warn("using in-memory storage (not for production)")
		return storage.NewMemoryStore(), nil, nil
	}

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db, log); err != nil {
		return nil, nil, err
	}
	ping := func(ctx context.Context) error { return database.Ping(ctx, db) }
	return storage.NewDatabaseStore(db), ping, nil
}

func serve(ctx context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	store, ping, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	storageType := "postgres"
	if ping == nil {
		storageType = "memory"
	}

	if cfg.Responder.APIKey == "" {
		log.Warn("OPENAI_API_KEY not set, every turn will get the fallback reply")
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, dashboard API will reject every token")
	}

	broadcaster := events.NewBroadcaster(log)
	hours := services.NewBusinessHoursService(store, cfg.Location(), log)
	sessions := services.NewSessionManager(store, broadcaster, cfg.SessionExpiration(), log)
	orders := services.NewOrderService(store, broadcaster, log)
	whatsapp := services.NewWhatsAppClient(cfg.Meta.GraphAPIBase, cfg.Meta.GraphVersion, cfg.Meta.Timeout, cfg.Meta.RatePerSecond, log)
	responder := services.NewOpenAIResponder(cfg.Responder.APIKey, cfg.Responder.Model, cfg.Responder.BaseURL, cfg.Responder.Timeout, log)
	conversation := services.NewConversationService(
		store, hours, sessions, orders, responder,
		services.NewDispatcher(whatsapp, log),
		services.NewLocalProofStorage(cfg.UploadDir),
		broadcaster,
		services.ConversationOptions{HistoryLimit: cfg.HistoryLimit, ResponderTimeout: cfg.Responder.Timeout},
		log,
	)

	stream := handlers.NewStreamHandler(broadcaster, handlers.DefaultHeartbeat, log)

	app := fiber.New(fiber.Config{
		AppName:      "Orderline Backend v" + routes.Version,
		ErrorHandler: handlers.ErrorHandler(log),
	})

	// Middleware
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-SSE-Secret",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))
	app.Static("/uploads", cfg.UploadDir)

	routes.SetupRoutes(app, routes.Handlers{
		Webhook:  handlers.NewWebhookHandler(conversation, cfg.Meta.VerifyToken, log),
		Stream:   stream,
		Sessions: handlers.NewSessionHandler(sessions, conversation, log),
		Orders:   handlers.NewOrderHandler(orders),
		Admin:    handlers.NewAdminHandler(store, hours, log),
		Health:   handlers.NewHealthHandler(routes.Version, storageType, ping),
	}, routes.Options{
		Environment:   cfg.Environment,
		JWTSecret:     cfg.JWTSecret,
		MetaAppSecret: cfg.Meta.AppSecret,
		TriggerSecret: cfg.SSETriggerSecret,
		Logger:        log,
	})

	sweeper := jobs.NewSessionSweeper(sessions, jobs.DefaultSweepSchedule, log)
	if err := sweeper.Start(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		stream.Close()
		sweeper.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("shutdown failed", slog.Any("error", err))
		}
	}()

	log.Info("orderline backend starting",
		slog.String("port", cfg.Port),
		slog.String("environment", cfg.Environment),
		slog.String("storage", storageType),
		slog.String("graph_version", cfg.Meta.GraphVersion),
		slog.String("model", cfg.Responder.Model),
	)
	return app.Listen(":" + cfg.Port)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Connect(cfg.Database, log)
			if err != nil {
				return err
			}
			return database.Migrate(db, log)
		},
	}
}

func sendTestEventCmd() *cobra.Command {
	var (
		baseURL   string
		eventType string
		data      string
	)
	cmd := &cobra.Command{
		Use:   "send-test-event <merchantId>",
		Short: "Publish a synthetic event to a merchant's live dashboards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.SSETriggerSecret == "" {
				return errors.New("SSE_TRIGGER_SECRET is not set")
			}
			if baseURL == "" {
				baseURL = "http://localhost:" + cfg.Port
			}

			body := fmt.Sprintf(`{"type":%q,"data":%s}`, eventType, data)
			agent := fiber.Post(baseURL + "/api/merchants/" + args[0] + "/trigger-event")
			agent.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			agent.Set(middleware.TriggerSecretHeader, cfg.SSETriggerSecret)
			agent.Body([]byte(body))
			code, resp, errs := agent.Bytes()
			if len(errs) > 0 {
				return errors.Join(errs...)
			}
			if code != fiber.StatusAccepted {
				return fmt.Errorf("trigger-event returned %d: %s", code, resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(resp))
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "server base URL (default http://localhost:$PORT)")
	cmd.Flags().StringVar(&eventType, "type", string(events.OrderCreated), "event type")
	cmd.Flags().StringVar(&data, "data", `{"test":true}`, "event data as JSON")
	return cmd
}
