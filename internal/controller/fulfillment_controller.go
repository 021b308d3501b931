package controller

import (
	"encoding/json"
	"strings"

	"voicebridge/internal/config"
	"voicebridge/internal/jsonval"
	"voicebridge/internal/model"
	"voicebridge/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type FulfillmentRequest struct {
	RequestID string             `json:"requestId"`
	Inputs    []FulfillmentInput `json:"inputs"`
}

type FulfillmentInput struct {
	Intent  string          `json:"intent"`
	Payload json.RawMessage `json:"payload"`
}

type QueryPayload struct {
	Devices []DeviceRef `json:"devices"`
}

type ExecutePayload struct {
	Commands []ExecuteCommand `json:"commands"`
}

type ExecuteCommand struct {
	Devices   []DeviceRef `json:"devices"`
	Execution []Execution `json:"execution"`
}

type DeviceRef struct {
	ID string `json:"id"`
}

type Execution struct {
	Command string        `json:"command"`
	Params  jsonval.Value `json:"params"`
}

type SyncDevice struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Traits          []string       `json:"traits"`
	Name            SyncDeviceName `json:"name"`
	WillReportState bool           `json:"willReportState"`
	RoomHint        string         `json:"roomHint,omitempty"`
	DeviceInfo      SyncDeviceInfo `json:"deviceInfo"`
	Attributes      map[string]any `json:"attributes,omitempty"`
}

type SyncDeviceName struct {
	Name      string   `json:"name"`
	Nicknames []string `json:"nicknames,omitempty"`
}

type SyncDeviceInfo struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	HwVersion    string `json:"hwVersion"`
	SwVersion    string `json:"swVersion"`
}

type ExecuteResult struct {
	IDs       []string       `json:"ids"`
	Status    string         `json:"status"`
	States    map[string]any `json:"states,omitempty"`
	ErrorCode string         `json:"errorCode,omitempty"`
}

type FulfillmentController struct {
	router  *gin.RouterGroup
	devices *service.DeviceService
	states  *service.StateService
	oauth   *service.OAuthService
}

func NewFulfillmentController(router *gin.RouterGroup, devices *service.DeviceService, states *service.StateService, oauth *service.OAuthService) *FulfillmentController {
	return &FulfillmentController{
		router:  router,
		devices: devices,
		states:  states,
		oauth:   oauth,
	}
}

func (controller *FulfillmentController) SetupRoutes() {
	controller.router.POST("/fulfillment", controller.fulfillmentHandler)
}

func (controller *FulfillmentController) fulfillmentHandler(c *gin.Context) {
	var req FulfillmentRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Failed to bind fulfillment request")
		c.JSON(400, gin.H{"error": "malformed request"})
		return
	}

	if len(req.Inputs) == 0 {
		c.JSON(400, gin.H{"error": "missing inputs"})
		return
	}

	token := c.MustGet("token").(*model.Token)
	input := req.Inputs[0]

	log.Debug().Str("requestId", req.RequestID).Str("intent", input.Intent).Msg("Fulfillment request")

	var payload any
	var err error

	switch input.Intent {
	case config.IntentSync:
		payload, err = controller.handleSync(c, token)
	case config.IntentQuery:
		payload, err = controller.handleQuery(c, token, input.Payload)
	case config.IntentExecute:
		payload, err = controller.handleExecute(c, token, input.Payload)
	case config.IntentDisconnect:
		payload = controller.handleDisconnect(token)
	default:
		log.Warn().Str("intent", input.Intent).Msg("Unknown fulfillment intent")
		c.JSON(400, gin.H{"error": "unknown intent"})
		return
	}

	if err != nil {
		log.Error().Err(err).Str("intent", input.Intent).Msg("Fulfillment failed")
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}

	c.JSON(200, gin.H{
		"requestId": req.RequestID,
		"payload":   payload,
	})
}

func (controller *FulfillmentController) handleSync(c *gin.Context, token *model.Token) (any, error) {
	devices, err := controller.devices.EnabledDevices(c.Request.Context(), token.TenantID)

	if err != nil {
		return nil, err
	}

	syncDevices := make([]SyncDevice, 0, len(devices))

	for _, device := range devices {
		traits := make([]string, 0, len(device.Capabilities.Traits))
		for _, trait := range device.Capabilities.Traits {
			traits = append(traits, qualifyTrait(trait))
		}

		syncDevices = append(syncDevices, SyncDevice{
			ID:              device.ID,
			Type:            device.Capabilities.DeviceType,
			Traits:          traits,
			Name:            SyncDeviceName{Name: device.DisplayName(), Nicknames: device.Capabilities.Nicknames},
			WillReportState: device.Capabilities.WillReportState,
			RoomHint:        device.Capabilities.RoomHint,
			DeviceInfo: SyncDeviceInfo{
				Manufacturer: "voicebridge",
				Model:        device.Type,
				HwVersion:    "1.0",
				SwVersion:    config.Version,
			},
			Attributes: device.Capabilities.Attributes,
		})
	}

	return gin.H{
		"agentUserId": token.ExternalUserID,
		"devices":     syncDevices,
	}, nil
}

func (controller *FulfillmentController) handleQuery(c *gin.Context, token *model.Token, raw json.RawMessage) (any, error) {
	var payload QueryPayload

	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	results := make(map[string]any, len(payload.Devices))

	for _, ref := range payload.Devices {
		device, err := controller.devices.GetDevice(c.Request.Context(), token.TenantID, ref.ID)

		if err != nil {
			log.Warn().Err(err).Str("deviceId", ref.ID).Msg("Query failed for device")
			results[ref.ID] = gin.H{
				"status":    "ERROR",
				"errorCode": "deviceOffline",
				"online":    false,
			}
			continue
		}

		traits := make([]string, 0, len(device.Capabilities.Traits))
		for _, trait := range device.Capabilities.Traits {
			traits = append(traits, strings.TrimPrefix(trait, config.TraitPrefix))
		}

		state := controller.states.QueryState(c.Request.Context(), ref.ID, traits)

		entry := map[string]any{
			"status": "SUCCESS",
			"online": state.Online,
		}
		for key, value := range state.Properties {
			entry[key] = value
		}

		results[ref.ID] = entry
	}

	return gin.H{"devices": results}, nil
}

func (controller *FulfillmentController) handleExecute(c *gin.Context, token *model.Token, raw json.RawMessage) (any, error) {
	var payload ExecutePayload

	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	var results []ExecuteResult

	for _, command := range payload.Commands {
		for _, ref := range command.Devices {
			for _, execution := range command.Execution {
				err := controller.devices.ExecuteCommand(c.Request.Context(), token.TenantID, ref.ID, execution.Command, execution.Params)

				if err != nil {
					log.Warn().Err(err).Str("deviceId", ref.ID).Str("command", execution.Command).Msg("Execute failed for device")
					results = append(results, ExecuteResult{
						IDs:       []string{ref.ID},
						Status:    "ERROR",
						ErrorCode: "deviceOffline",
					})
					continue
				}

				states := map[string]any{"online": true}
				if execution.Params.IsObject() {
					for _, member := range execution.Params.Members() {
						states[member.Key] = member.Value.Interface()
					}
				}

				results = append(results, ExecuteResult{
					IDs:    []string{ref.ID},
					Status: "SUCCESS",
					States: states,
				})
			}
		}
	}

	if results == nil {
		results = []ExecuteResult{}
	}

	return gin.H{"commands": results}, nil
}

func (controller *FulfillmentController) handleDisconnect(token *model.Token) any {
	if err := controller.oauth.RevokeToken(token.AccessToken); err != nil {
		log.Error().Err(err).Msg("Failed to revoke token on disconnect")
	}
	return gin.H{}
}

func qualifyTrait(trait string) string {
	if strings.HasPrefix(trait, config.TraitPrefix) {
		return trait
	}
	return config.TraitPrefix + trait
}
