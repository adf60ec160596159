package main

import (
	"context"
	"fmt"
	"log"

	common_api "github.com/Ranguvenu/skf-sub003/internal/common/api"
	"github.com/Ranguvenu/skf-sub003/internal/config"
	"github.com/Ranguvenu/skf-sub003/internal/database"
	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/internal/engine/executor"
	"github.com/Ranguvenu/skf-sub003/internal/engine/permission"
	"github.com/Ranguvenu/skf-sub003/internal/engine/sqlgate"
	"github.com/Ranguvenu/skf-sub003/internal/features/report"
	"github.com/Ranguvenu/skf-sub003/internal/features/schedule"
	"github.com/Ranguvenu/skf-sub003/internal/logger"
	"github.com/Ranguvenu/skf-sub003/internal/middleware"
	"github.com/Ranguvenu/skf-sub003/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// NewReportExecutor builds the engine executor from the report database
// and the configured security posture.
func NewReportExecutor(db *database.ReportDB, logger *zap.Logger, cfg *config.Config) executor.Executor {
	return executor.NewExecutor(db, logger, executor.Options{
		Prefix:   cfg.TablePrefix,
		WWWRoot:  cfg.WWWRoot,
		Security: sqlgate.Mode(cfg.SQLSecurity),
	})
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),    // Cast to Interface
		fx.ResultTags(`group:"routes"`), // Add to Group
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	log.Printf("Registering %d routes...\n", len(routes))
	for _, route := range routes {
		route.Setup(app)
	}
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			utils.SetSecret(cfg.JWTSecret)
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Databases
			database.NewDatabase,
			database.NewReportDB,

			// Initialize Engine
			NewReportExecutor,
			permission.NewChecker,

			// Initialize Repository
			report.NewReportRepository,
			schedule.NewScheduleRepository,

			// Initialize Service
			report.NewReportService,
			schedule.NewScheduleService,

			// Interface Adapters
			func(db *database.ReportDB) engine.DB { return db },
			func(c *permission.Checker) middleware.CapabilityChecker { return c },

			// Initialize Controller
			report.NewReportController,
			schedule.NewScheduleController,

			// Initialize API Routes
			AsRoute(report.NewReportApi),
			AsRoute(schedule.NewScheduleApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(lc fx.Lifecycle, scheduleService schedule.ScheduleService) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return scheduleService.InitializeScheduler(ctx)
					},
					OnStop: func(ctx context.Context) error {
						return scheduleService.StopScheduler()
					},
				})
			},
		),
	)

	app.Run()
}
