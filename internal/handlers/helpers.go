package handlers

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/vandalsquat/backend/internal/services"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func isValidUsername(value string) bool {
	return usernamePattern.MatchString(value)
}

func clientMeta(c *fiber.Ctx) services.ClientMeta {
	return services.ClientMeta{
		UserAgent: c.Get("User-Agent"),
		IPAddress: c.IP(),
	}
}
