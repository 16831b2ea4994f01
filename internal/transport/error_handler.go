package transport

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler maps handler errors to a JSON body and logs them with the
// request correlation id when one is present.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		correlationID, _ := c.Locals("requestid").(string)
		if correlationID != "" {
			fields = append(fields, zap.String("correlationId", correlationID))
		}
		logger.Error("request error", fields...)

		body := fiber.Map{"error": err.Error()}
		if correlationID != "" {
			body["correlationId"] = correlationID
		}
		return c.Status(code).JSON(body)
	}
}
