package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/journey-tracker/internal/metrics"
)

// Metrics считает запросы по шаблону маршрута, а не по фактическому пути
func Metrics(m *metrics.Collector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		m.HTTPRequest(c.Method(), c.Route().Path, status)
		return err
	}
}
