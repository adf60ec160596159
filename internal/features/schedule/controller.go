package schedule

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Ranguvenu/skf-sub003/internal/middleware"
)

type ScheduleController struct {
	ScheduleService ScheduleService
}

func NewScheduleController(scheduleService ScheduleService) *ScheduleController {
	return &ScheduleController{ScheduleService: scheduleService}
}

// Create godoc
func (c *ScheduleController) Create(ctx *fiber.Ctx) error {
	var schedule Schedule
	if err := ctx.BodyParser(&schedule); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if identity, ok := middleware.Identity(ctx); ok {
		schedule.CreatedBy = identity.UserID
	}

	if err := c.ScheduleService.CreateSchedule(ctx.Context(), &schedule); err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusCreated).JSON(schedule)
}

// List godoc
func (c *ScheduleController) List(ctx *fiber.Ctx) error {
	schedules, err := c.ScheduleService.ListSchedules(ctx.Context())
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(schedules)
}

// Get godoc
func (c *ScheduleController) Get(ctx *fiber.Ctx) error {
	schedule, err := c.ScheduleService.GetSchedule(ctx.Context(), ctx.Params("id"))
	if err != nil || schedule == nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Schedule not found"})
	}
	return ctx.JSON(schedule)
}

// Update godoc
func (c *ScheduleController) Update(ctx *fiber.Ctx) error {
	var schedule Schedule
	if err := ctx.BodyParser(&schedule); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	oid, err := primitive.ObjectIDFromHex(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid schedule ID"})
	}
	schedule.ID = oid

	if err := c.ScheduleService.UpdateSchedule(ctx.Context(), &schedule); err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(schedule)
}

// Delete godoc
func (c *ScheduleController) Delete(ctx *fiber.Ctx) error {
	if err := c.ScheduleService.DeleteSchedule(ctx.Context(), ctx.Params("id")); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// Execute godoc
func (c *ScheduleController) Execute(ctx *fiber.Ctx) error {
	if err := c.ScheduleService.ExecuteSchedule(ctx.Context(), ctx.Params("id")); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"status": "executed"})
}

// Logs godoc
func (c *ScheduleController) Logs(ctx *fiber.Ctx) error {
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	logs, err := c.ScheduleService.GetScheduleLogs(ctx.Context(), ctx.Params("id"), limit)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(logs)
}
