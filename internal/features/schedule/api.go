package schedule

import (
	"github.com/Ranguvenu/skf-sub003/internal/config"
	"github.com/Ranguvenu/skf-sub003/internal/engine/permission"
	"github.com/Ranguvenu/skf-sub003/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ScheduleApi struct {
	ScheduleController *ScheduleController
	Config             *config.Config
	Checker            middleware.CapabilityChecker
}

func NewScheduleApi(scheduleController *ScheduleController, config *config.Config, checker middleware.CapabilityChecker) *ScheduleApi {
	return &ScheduleApi{
		ScheduleController: scheduleController,
		Config:             config,
		Checker:            checker,
	}
}

func (api *ScheduleApi) Setup(app *fiber.App) {
	group := app.Group("/api/schedules", middleware.AuthMiddleware(api.Config.SkipAuth))

	// Scheduled runs execute with system privileges, so everything here
	// is restricted to report managers.
	manage := middleware.RequireCapability(api.Checker, permission.CapManage)

	group.Post("/", manage, api.ScheduleController.Create)
	group.Get("/", manage, api.ScheduleController.List)
	group.Get("/:id", manage, api.ScheduleController.Get)
	group.Put("/:id", manage, api.ScheduleController.Update)
	group.Delete("/:id", manage, api.ScheduleController.Delete)
	group.Post("/:id/execute", manage, api.ScheduleController.Execute)
	group.Get("/:id/logs", manage, api.ScheduleController.Logs)
}
