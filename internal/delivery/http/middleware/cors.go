package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS разрешает браузерной карте поездок читать API. origins через запятую.
func CORS(origins string) fiber.Handler {
	if origins == "" {
		origins = "*"
	}
	// fiber запрещает credentials вместе с wildcard
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,PATCH,OPTIONS",
		AllowHeaders:     "Content-Type,Accept,Authorization,X-Device-ID",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: origins != "*",
		MaxAge:           600,
	})
}
