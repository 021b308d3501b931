package controller

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"voicebridge/internal/jsonval"
	"voicebridge/internal/model"
	"voicebridge/internal/platform"
	"voicebridge/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type SkillCommandRequest struct {
	Command string        `json:"command"`
	Params  jsonval.Value `json:"params"`
}

type SkillDeviceResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Traits   []string `json:"traits"`
	RoomHint string   `json:"roomHint,omitempty"`
}

type SkillTelemetryPoint struct {
	Key   string `json:"key"`
	TS    int64  `json:"ts"`
	Value any    `json:"value"`
}

// SkillController serves the flat REST surface used by skill-style
// assistant integrations, authenticated the same way as fulfillment.
type SkillController struct {
	router    *gin.RouterGroup
	devices   *service.DeviceService
	states    *service.StateService
	telemetry platform.TelemetryClient
}

func NewSkillController(router *gin.RouterGroup, devices *service.DeviceService, states *service.StateService, telemetry platform.TelemetryClient) *SkillController {
	return &SkillController{
		router:    router,
		devices:   devices,
		states:    states,
		telemetry: telemetry,
	}
}

func (controller *SkillController) SetupRoutes() {
	skillGroup := controller.router.Group("/skill")
	skillGroup.GET("/devices", controller.listHandler)
	skillGroup.GET("/devices/:id", controller.getHandler)
	skillGroup.GET("/devices/:id/state", controller.stateHandler)
	skillGroup.GET("/devices/:id/telemetry", controller.telemetryHandler)
	skillGroup.POST("/devices/:id/command", controller.commandHandler)
}

func (controller *SkillController) listHandler(c *gin.Context) {
	token := c.MustGet("token").(*model.Token)

	devices, err := controller.devices.EnabledDevices(c.Request.Context(), token.TenantID)

	if err != nil {
		log.Error().Err(err).Msg("Failed to list devices")
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}

	res := make([]SkillDeviceResponse, 0, len(devices))

	for _, device := range devices {
		res = append(res, skillDevice(device))
	}

	c.JSON(200, res)
}

func (controller *SkillController) getHandler(c *gin.Context) {
	token := c.MustGet("token").(*model.Token)

	device, err := controller.devices.GetDevice(c.Request.Context(), token.TenantID, c.Param("id"))

	if err != nil {
		deviceError(c, err)
		return
	}

	c.JSON(200, skillDevice(*device))
}

func (controller *SkillController) stateHandler(c *gin.Context) {
	token := c.MustGet("token").(*model.Token)

	device, err := controller.devices.GetDevice(c.Request.Context(), token.TenantID, c.Param("id"))

	if err != nil {
		deviceError(c, err)
		return
	}

	state := controller.states.QueryState(c.Request.Context(), device.ID, device.Capabilities.Traits)

	c.JSON(200, gin.H{
		"online": state.Online,
		"states": state.Properties,
	})
}

func (controller *SkillController) telemetryHandler(c *gin.Context) {
	token := c.MustGet("token").(*model.Token)

	device, err := controller.devices.GetDevice(c.Request.Context(), token.TenantID, c.Param("id"))

	if err != nil {
		deviceError(c, err)
		return
	}

	rawKeys := c.Query("keys")

	if rawKeys == "" {
		c.JSON(400, gin.H{"error": "missing keys"})
		return
	}

	keys := strings.Split(rawKeys, ",")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))

	if err != nil || limit < 1 {
		c.JSON(400, gin.H{"error": "invalid limit"})
		return
	}

	points, err := controller.telemetry.Timeseries(c.Request.Context(), device.ID, keys, 24*time.Hour, limit)

	if err != nil {
		log.Warn().Err(err).Str("deviceId", device.ID).Msg("Telemetry lookup failed")
		c.JSON(502, gin.H{"error": "telemetry unavailable"})
		return
	}

	res := make([]SkillTelemetryPoint, 0, len(points))

	for _, point := range points {
		res = append(res, SkillTelemetryPoint{
			Key:   point.Key,
			TS:    point.TS,
			Value: point.Value.Interface(),
		})
	}

	c.JSON(200, res)
}

func (controller *SkillController) commandHandler(c *gin.Context) {
	token := c.MustGet("token").(*model.Token)

	var req SkillCommandRequest

	if err := c.ShouldBindJSON(&req); err != nil || req.Command == "" {
		c.JSON(400, gin.H{"error": "malformed request"})
		return
	}

	err := controller.devices.ExecuteCommand(c.Request.Context(), token.TenantID, c.Param("id"), req.Command, req.Params)

	if err != nil {
		if errors.Is(err, service.ErrDeviceNotFound) {
			c.JSON(404, gin.H{"error": "device not found"})
			return
		}
		log.Warn().Err(err).Str("deviceId", c.Param("id")).Msg("Command dispatch failed")
		c.JSON(502, gin.H{"error": "device offline"})
		return
	}

	c.JSON(200, gin.H{"status": "SUCCESS"})
}

func skillDevice(device service.AssistantDevice) SkillDeviceResponse {
	return SkillDeviceResponse{
		ID:       device.ID,
		Name:     device.DisplayName(),
		Type:     device.Capabilities.DeviceType,
		Traits:   device.Capabilities.Traits,
		RoomHint: device.Capabilities.RoomHint,
	}
}

func deviceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrDeviceNotFound) {
		c.JSON(404, gin.H{"error": "device not found"})
		return
	}
	log.Error().Err(err).Msg("Device lookup failed")
	c.JSON(500, gin.H{"error": "internal error"})
}
