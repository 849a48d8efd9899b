package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/vandalsquat/backend/internal/middleware"
	"github.com/vandalsquat/backend/internal/services"
	"github.com/vandalsquat/backend/pkg/utils"
	"gorm.io/gorm"
)

type DevicesHandler struct {
	Devices *services.DeviceTrustService
}

func NewDevicesHandler(devices *services.DeviceTrustService) *DevicesHandler {
	return &DevicesHandler{Devices: devices}
}

func (h *DevicesHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	devices, err := h.Devices.List(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list devices")
	}

	items := make([]fiber.Map, 0, len(devices))
	for _, d := range devices {
		description := d.DeviceName
		if description == "" {
			description = services.DescribeUserAgent(d.UserAgent).String()
		}
		items = append(items, fiber.Map{
			"id":          d.ID,
			"description": description,
			"createdAt":   d.CreatedAt,
			"lastUsedAt":  d.LastUsedAt,
			"expiresAt":   d.ExpiresAt,
			"active":      !d.Expired(),
		})
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"devices": items})
}

func (h *DevicesHandler) Revoke(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	deviceID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid device id")
	}

	if err := h.Devices.Revoke(user, deviceID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "device not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed to revoke device")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "device revoked"})
}

func (h *DevicesHandler) RevokeAll(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	count, err := h.Devices.RevokeAll(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to revoke devices")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"revoked": count})
}
