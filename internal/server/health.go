package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// LivenessCheck reports that the process is up. It never touches
// dependencies, so orchestrators don't restart the service on a flaky DB.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ReadinessCheck probes the database and Redis. Redis being down degrades the
// service (no page cache) but does not make it unready.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx := c.UserContext()

	checks := fiber.Map{"cache": "disabled"}
	ready := true

	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			checks["database"] = "down"
			ready = false
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "in-memory"
	}

	if s.pages.Enabled() {
		if err := s.pages.Ping(ctx); err != nil {
			checks["cache"] = "down"
		} else {
			checks["cache"] = "ok"
		}
	}

	status := fiber.StatusOK
	state := "ready"
	if !ready {
		status = fiber.StatusServiceUnavailable
		state = "unready"
	}
	return c.Status(status).JSON(fiber.Map{
		"status": state,
		"checks": checks,
		"time":   time.Now().UTC(),
	})
}
