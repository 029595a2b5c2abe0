package logging

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestLogger logs one line per request once the handler chain and the
// error handler have produced a status
func RequestLogger(logger *Logger) fiber.Handler {
	if logger == nil {
		logger = Nop()
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()
		chainErr := c.Next()

		status := c.Response().StatusCode()
		if chainErr != nil {
			if ferr := c.App().ErrorHandler(c, chainErr); ferr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			status = c.Response().StatusCode()
		}

		event := logger.zl.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.zl.Error()
		case status >= fiber.StatusBadRequest:
			event = logger.zl.Warn()
		}

		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.IP()).
			Msg("request")

		return nil
	}
}
