package report

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/internal/engine/permission"
	"github.com/Ranguvenu/skf-sub003/internal/engine/sqlgate"
	"github.com/Ranguvenu/skf-sub003/internal/middleware"
	"github.com/Ranguvenu/skf-sub003/pkg/setexpr"
)

type ReportController struct {
	ReportService ReportService
}

func NewReportController(reportService ReportService) *ReportController {
	return &ReportController{ReportService: reportService}
}

// Create godoc
func (c *ReportController) Create(ctx *fiber.Ctx) error {
	var report Report
	if err := ctx.BodyParser(&report); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if identity, ok := middleware.Identity(ctx); ok {
		report.CreatedBy = identity.UserID
	}

	if err := c.ReportService.CreateReport(ctx.Context(), &report); err != nil {
		return errorResponse(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(report)
}

// List godoc
func (c *ReportController) List(ctx *fiber.Ctx) error {
	reports, err := c.ReportService.ListReports(ctx.Context())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(reports)
}

// Get godoc
func (c *ReportController) Get(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	report, err := c.ReportService.GetReport(ctx.Context(), id)
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Report not found"})
	}
	return ctx.JSON(report)
}

// Update godoc
func (c *ReportController) Update(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	var report Report
	if err := ctx.BodyParser(&report); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if identity, ok := middleware.Identity(ctx); ok {
		report.UpdatedBy = identity.UserID
	}

	if err := c.ReportService.UpdateReport(ctx.Context(), id, &report); err != nil {
		return errorResponse(ctx, err)
	}

	return ctx.JSON(report)
}

// Delete godoc
func (c *ReportController) Delete(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	if err := c.ReportService.DeleteReport(ctx.Context(), id); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// Run godoc
func (c *ReportController) Run(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	identity, ok := middleware.Identity(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var opts RunOptions
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&opts); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	result, err := c.ReportService.RunReport(ctx.Context(), id, identity, opts)
	if err != nil {
		return errorResponse(ctx, err)
	}
	return ctx.JSON(result)
}

// Export godoc
func (c *ReportController) Export(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	format := ctx.Query("format", "csv")

	identity, ok := middleware.Identity(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	data, filename, err := c.ReportService.ExportReport(ctx.Context(), id, format, identity, RunOptions{})
	if err != nil {
		return errorResponse(ctx, err)
	}

	if format == "xlsx" {
		ctx.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	} else {
		ctx.Set("Content-Type", "text/csv")
	}
	ctx.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	return ctx.Send(data)
}

// ValidateSQL godoc
func (c *ReportController) ValidateSQL(ctx *fiber.Ctx) error {
	var request struct {
		SQL string `json:"sql"`
	}
	if err := ctx.BodyParser(&request); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := c.ReportService.ValidateSQL(request.SQL); err != nil {
		var rej *sqlgate.RejectedError
		if errors.As(err, &rej) {
			return ctx.JSON(fiber.Map{"valid": false, "rule": rej.Rule, "detail": rej.Detail})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"valid": true})
}

// errorResponse maps the engine's error taxonomy to HTTP statuses.
func errorResponse(ctx *fiber.Ctx, err error) error {
	var (
		cfg      *engine.ConfigError
		invalid  *setexpr.InvalidExpressionError
		awaiting *engine.AwaitingParametersError
		rejected *sqlgate.RejectedError
		execErr  *engine.ExecutionError
	)
	switch {
	case errors.As(err, &cfg):
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": cfg.Error()})
	case errors.As(err, &invalid):
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": invalid.Error()})
	case errors.As(err, &rejected):
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": rejected.Error()})
	case errors.As(err, &awaiting):
		// Not a failure: tells the client which parameters to collect.
		return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"awaiting_parameters": awaiting.Missing,
		})
	case errors.Is(err, permission.ErrDenied):
		return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden: Insufficient permissions"})
	case errors.As(err, &execErr):
		// Diagnostics stay in the log; the client gets a generic failure.
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  "Report execution failed",
			"run_id": execErr.RunID,
		})
	}
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
