package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voicebridge/internal/config"
	"voicebridge/internal/jsonval"
	"voicebridge/internal/model"
	"voicebridge/internal/platform"

	"github.com/rs/zerolog/log"
)

// ErrDeviceNotFound covers both unknown devices and devices whose
// assistant integration is disabled: neither is addressable.
var ErrDeviceNotFound = fmt.Errorf("device not found or assistant integration not enabled")

// AssistantDevice is a platform device together with its decoded
// capability document.
type AssistantDevice struct {
	ID           string
	Name         string
	Label        string
	Type         string
	Capabilities model.DeviceCapabilities
}

// DisplayName prefers the label over the raw platform name.
func (d AssistantDevice) DisplayName() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Name
}

type DeviceServiceConfig struct {
	RPCTimeout time.Duration
}

// DeviceService reads capability documents from the device registry and
// dispatches translated commands over the RPC transport.
type DeviceService struct {
	Config     DeviceServiceConfig
	Registry   platform.DeviceRegistry
	RPC        platform.RPCClient
	Translator *TranslatorService
}

func NewDeviceService(config DeviceServiceConfig, registry platform.DeviceRegistry, rpc platform.RPCClient, translator *TranslatorService) *DeviceService {
	if config.RPCTimeout == 0 {
		config.RPCTimeout = 10 * time.Second
	}
	return &DeviceService{
		Config:     config,
		Registry:   registry,
		RPC:        rpc,
		Translator: translator,
	}
}

func (ds *DeviceService) Init() error {
	return nil
}

// EnabledDevices lists the tenant's devices with assistant integration
// enabled. Devices with malformed capability documents are skipped.
func (ds *DeviceService) EnabledDevices(ctx context.Context, tenantID string) ([]AssistantDevice, error) {
	devices, err := ds.Registry.ListDevices(ctx, tenantID)

	if err != nil {
		return nil, fmt.Errorf("failed to list tenant devices: %w", err)
	}

	var enabled []AssistantDevice

	for _, device := range devices {
		capabilities, ok := decodeCapabilities(device.AdditionalInfo)
		if !ok || !capabilities.Enabled {
			continue
		}

		enabled = append(enabled, AssistantDevice{
			ID:           device.ID,
			Name:         device.Name,
			Label:        device.Label,
			Type:         device.Type,
			Capabilities: capabilities,
		})
	}

	log.Debug().Str("tenantId", tenantID).Int("count", len(enabled)).Msg("Listed assistant-enabled devices")
	return enabled, nil
}

// DescribeDevices lists all tenant devices regardless of assistant state,
// attaching a default capability document where none is configured yet.
func (ds *DeviceService) DescribeDevices(ctx context.Context, tenantID string) ([]AssistantDevice, error) {
	devices, err := ds.Registry.ListDevices(ctx, tenantID)

	if err != nil {
		return nil, fmt.Errorf("failed to list tenant devices: %w", err)
	}

	described := make([]AssistantDevice, 0, len(devices))

	for _, device := range devices {
		capabilities, ok := decodeCapabilities(device.AdditionalInfo)
		if !ok {
			capabilities = DefaultCapabilities(device.Type)
		}

		described = append(described, AssistantDevice{
			ID:           device.ID,
			Name:         device.Name,
			Label:        device.Label,
			Type:         device.Type,
			Capabilities: capabilities,
		})
	}

	return described, nil
}

// GetDevice returns one addressable device. Disabled devices are rejected
// the same way as unknown ones.
func (ds *DeviceService) GetDevice(ctx context.Context, tenantID string, deviceID string) (*AssistantDevice, error) {
	device, err := ds.Registry.GetDevice(ctx, tenantID, deviceID)

	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}

	capabilities, ok := decodeCapabilities(device.AdditionalInfo)
	if !ok || !capabilities.Enabled {
		return nil, ErrDeviceNotFound
	}

	return &AssistantDevice{
		ID:           device.ID,
		Name:         device.Name,
		Label:        device.Label,
		Type:         device.Type,
		Capabilities: capabilities,
	}, nil
}

// ExecuteCommand translates the assistant command for the device and sends
// it as a one-way RPC with a bounded timeout.
func (ds *DeviceService) ExecuteCommand(ctx context.Context, tenantID string, deviceID string, command string, params jsonval.Value) error {
	device, err := ds.GetDevice(ctx, tenantID, deviceID)

	if err != nil {
		return err
	}

	method, payload := ds.Translator.Translate(command, params, &device.Capabilities)

	ctx, cancel := context.WithTimeout(ctx, ds.Config.RPCTimeout)
	defer cancel()

	log.Debug().Str("deviceId", deviceID).Str("method", method).Msg("Dispatching device RPC")

	if err := ds.RPC.SendOneWay(ctx, deviceID, method, payload); err != nil {
		return fmt.Errorf("failed to execute command on device %s: %w", deviceID, err)
	}

	return nil
}

// ConfigureCapabilities writes the capability document into the device's
// additional info (last-write-wins on the JSON document).
func (ds *DeviceService) ConfigureCapabilities(ctx context.Context, tenantID string, deviceID string, capabilities model.DeviceCapabilities) (*AssistantDevice, error) {
	device, err := ds.Registry.GetDevice(ctx, tenantID, deviceID)

	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}

	if err := encodeCapabilities(device, capabilities); err != nil {
		return nil, err
	}

	if _, err := ds.Registry.SaveDevice(ctx, tenantID, device); err != nil {
		return nil, fmt.Errorf("failed to save device %s: %w", deviceID, err)
	}

	log.Debug().Str("deviceId", deviceID).Msg("Capability document updated")

	return &AssistantDevice{
		ID:           device.ID,
		Name:         device.Name,
		Label:        device.Label,
		Type:         device.Type,
		Capabilities: capabilities,
	}, nil
}

// SetEnabled flips the enabled flag, creating a default capability
// document from the device type when none exists yet.
func (ds *DeviceService) SetEnabled(ctx context.Context, tenantID string, deviceID string, enabled bool) (*AssistantDevice, error) {
	device, err := ds.Registry.GetDevice(ctx, tenantID, deviceID)

	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}

	capabilities, ok := decodeCapabilities(device.AdditionalInfo)
	if !ok {
		capabilities = DefaultCapabilities(device.Type)
	}

	capabilities.Enabled = enabled

	if err := encodeCapabilities(device, capabilities); err != nil {
		return nil, err
	}

	if _, err := ds.Registry.SaveDevice(ctx, tenantID, device); err != nil {
		return nil, fmt.Errorf("failed to save device %s: %w", deviceID, err)
	}

	log.Debug().Str("deviceId", deviceID).Bool("enabled", enabled).Msg("Assistant integration toggled")

	return &AssistantDevice{
		ID:           device.ID,
		Name:         device.Name,
		Label:        device.Label,
		Type:         device.Type,
		Capabilities: capabilities,
	}, nil
}

// DefaultCapabilities maps a platform device type to an assistant device
// type and its default traits, disabled until the owner opts in.
func DefaultCapabilities(deviceType string) model.DeviceCapabilities {
	var assistantType string
	var traits []string

	switch deviceType {
	case "light", "lamp", "bulb":
		assistantType = config.DeviceTypePrefix + "LIGHT"
		traits = []string{"OnOff", "Brightness"}
	case "switch":
		assistantType = config.DeviceTypePrefix + "SWITCH"
		traits = []string{"OnOff"}
	case "outlet", "smartplug":
		assistantType = config.DeviceTypePrefix + "OUTLET"
		traits = []string{"OnOff"}
	case "thermostat", "hvac":
		assistantType = config.DeviceTypePrefix + "THERMOSTAT"
		traits = []string{"TemperatureSetting"}
	case "fan":
		assistantType = config.DeviceTypePrefix + "FAN"
		traits = []string{"OnOff", "FanSpeed"}
	case "lock", "door_lock":
		assistantType = config.DeviceTypePrefix + "LOCK"
		traits = []string{"LockUnlock"}
	case "curtain", "curtain_track", "curtain_robot":
		assistantType = config.DeviceTypePrefix + "CURTAIN"
		traits = []string{"OpenClose"}
	default:
		assistantType = config.DeviceTypePrefix + "SWITCH"
		traits = []string{"OnOff"}
	}

	return model.DeviceCapabilities{
		Enabled:         false,
		DeviceType:      assistantType,
		Traits:          traits,
		WillReportState: false,
	}
}

func decodeCapabilities(additionalInfo json.RawMessage) (model.DeviceCapabilities, bool) {
	if len(additionalInfo) == 0 {
		return model.DeviceCapabilities{}, false
	}

	var info map[string]json.RawMessage
	if err := json.Unmarshal(additionalInfo, &info); err != nil {
		return model.DeviceCapabilities{}, false
	}

	raw, ok := info[config.CapabilitiesKey]
	if !ok {
		return model.DeviceCapabilities{}, false
	}

	var capabilities model.DeviceCapabilities
	if err := json.Unmarshal(raw, &capabilities); err != nil {
		log.Warn().Err(err).Msg("Malformed capability document")
		return model.DeviceCapabilities{}, false
	}

	return capabilities, true
}

func encodeCapabilities(device *platform.Device, capabilities model.DeviceCapabilities) error {
	info := map[string]json.RawMessage{}

	if len(device.AdditionalInfo) > 0 {
		if err := json.Unmarshal(device.AdditionalInfo, &info); err != nil {
			// Unreadable additional info is replaced rather than corrupted further
			info = map[string]json.RawMessage{}
		}
	}

	raw, err := json.Marshal(capabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capability document: %w", err)
	}

	info[config.CapabilitiesKey] = raw

	merged, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode device additional info: %w", err)
	}

	device.AdditionalInfo = merged
	return nil
}
