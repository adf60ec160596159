package report

import (
	"github.com/Ranguvenu/skf-sub003/internal/config"
	"github.com/Ranguvenu/skf-sub003/internal/engine/permission"
	"github.com/Ranguvenu/skf-sub003/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ReportApi struct {
	ReportController *ReportController
	Config           *config.Config
	Checker          middleware.CapabilityChecker
}

func NewReportApi(reportController *ReportController, config *config.Config, checker middleware.CapabilityChecker) *ReportApi {
	return &ReportApi{
		ReportController: reportController,
		Config:           config,
		Checker:          checker,
	}
}

func (api *ReportApi) Setup(app *fiber.App) {
	group := app.Group("/api/reports", middleware.AuthMiddleware(api.Config.SkipAuth))

	view := middleware.RequireCapability(api.Checker, permission.CapView)
	manage := middleware.RequireCapability(api.Checker, permission.CapManage)

	group.Post("/", manage, api.ReportController.Create)
	group.Get("/", view, api.ReportController.List)
	group.Get("/:id", view, api.ReportController.Get)
	group.Put("/:id", manage, api.ReportController.Update)
	group.Delete("/:id", manage, api.ReportController.Delete)
	group.Post("/:id/run", view, api.ReportController.Run)
	group.Get("/:id/export", view, api.ReportController.Export)

	// Editor helper for the custom-SQL report type
	group.Post("/sql/validate", manage, api.ReportController.ValidateSQL)
}
