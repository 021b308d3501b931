package controller

import (
	"voicebridge/internal/config"
	"voicebridge/internal/model"
	"voicebridge/internal/service"
	"voicebridge/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type EnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type ManagedDeviceResponse struct {
	ID           string                   `json:"id"`
	Name         string                   `json:"name"`
	Label        string                   `json:"label,omitempty"`
	Type         string                   `json:"type"`
	Capabilities model.DeviceCapabilities `json:"capabilities"`
}

// DevicesController is the management surface for capability documents:
// listing, configuring and toggling devices for the assistant.
type DevicesController struct {
	router  *gin.RouterGroup
	devices *service.DeviceService
	users   []config.User
}

func NewDevicesController(router *gin.RouterGroup, devices *service.DeviceService, users []config.User) *DevicesController {
	return &DevicesController{
		router:  router,
		devices: devices,
		users:   users,
	}
}

func (controller *DevicesController) SetupRoutes() {
	devicesGroup := controller.router.Group("/devices")
	devicesGroup.GET("", controller.listHandler)
	devicesGroup.GET("/:id", controller.getHandler)
	devicesGroup.POST("/:id/capabilities", controller.capabilitiesHandler)
	devicesGroup.POST("/:id/enabled", controller.enabledHandler)
}

// canManage requires the token to belong to one of the configured users.
// Assistant-linked tokens whose user was since removed from the user list
// keep working for fulfillment but lose management access.
func (controller *DevicesController) canManage(c *gin.Context) bool {
	token := c.MustGet("token").(*model.Token)

	if _, found := utils.GetUser(controller.users, token.UserID); !found {
		log.Warn().Str("userId", token.UserID).Msg("Management access denied")
		c.JSON(403, gin.H{"error": "forbidden"})
		return false
	}

	return true
}

func (controller *DevicesController) listHandler(c *gin.Context) {
	if !controller.canManage(c) {
		return
	}

	token := c.MustGet("token").(*model.Token)

	devices, err := controller.devices.DescribeDevices(c.Request.Context(), token.TenantID)

	if err != nil {
		log.Error().Err(err).Msg("Failed to list devices")
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}

	res := make([]ManagedDeviceResponse, 0, len(devices))

	for _, device := range devices {
		res = append(res, managedDevice(device))
	}

	c.JSON(200, res)
}

func (controller *DevicesController) getHandler(c *gin.Context) {
	if !controller.canManage(c) {
		return
	}

	token := c.MustGet("token").(*model.Token)

	devices, err := controller.devices.DescribeDevices(c.Request.Context(), token.TenantID)

	if err != nil {
		log.Error().Err(err).Msg("Failed to list devices")
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}

	for _, device := range devices {
		if device.ID == c.Param("id") {
			c.JSON(200, managedDevice(device))
			return
		}
	}

	c.JSON(404, gin.H{"error": "device not found"})
}

func (controller *DevicesController) capabilitiesHandler(c *gin.Context) {
	if !controller.canManage(c) {
		return
	}

	token := c.MustGet("token").(*model.Token)

	var capabilities model.DeviceCapabilities

	if err := c.ShouldBindJSON(&capabilities); err != nil {
		c.JSON(400, gin.H{"error": "malformed request"})
		return
	}

	device, err := controller.devices.ConfigureCapabilities(c.Request.Context(), token.TenantID, c.Param("id"), capabilities)

	if err != nil {
		log.Error().Err(err).Str("deviceId", c.Param("id")).Msg("Failed to configure capabilities")
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}

	c.JSON(200, managedDevice(*device))
}

func (controller *DevicesController) enabledHandler(c *gin.Context) {
	if !controller.canManage(c) {
		return
	}

	token := c.MustGet("token").(*model.Token)

	var req EnabledRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "malformed request"})
		return
	}

	device, err := controller.devices.SetEnabled(c.Request.Context(), token.TenantID, c.Param("id"), req.Enabled)

	if err != nil {
		log.Error().Err(err).Str("deviceId", c.Param("id")).Msg("Failed to toggle device")
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}

	c.JSON(200, managedDevice(*device))
}

func managedDevice(device service.AssistantDevice) ManagedDeviceResponse {
	return ManagedDeviceResponse{
		ID:           device.ID,
		Name:         device.Name,
		Label:        device.Label,
		Type:         device.Type,
		Capabilities: device.Capabilities,
	}
}
