package api

import "github.com/gofiber/fiber/v2"

// Route is implemented by every feature's API type; Setup registers its
// endpoints on the shared app.
type Route interface {
	Setup(app *fiber.App)
}
