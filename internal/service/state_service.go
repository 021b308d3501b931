package service

import (
	"context"
	"time"

	"voicebridge/internal/jsonval"
	"voicebridge/internal/platform"

	"github.com/rs/zerolog/log"
)

const telemetryWindow = 24 * time.Hour

// DeviceState is the resolved flat state map for one device.
type DeviceState struct {
	Online     bool
	Properties map[string]any
}

type StateServiceConfig struct {
	QueryTimeout time.Duration
}

// StateService resolves a device's current state from its declared traits.
// Each trait reads the newest telemetry point for its backing key, falls
// back to the client-scope attribute of the same key and finally to the
// trait's default. A failing trait is skipped, never fatal.
type StateService struct {
	Config    StateServiceConfig
	Telemetry platform.TelemetryClient
}

func NewStateService(config StateServiceConfig, telemetry platform.TelemetryClient) *StateService {
	if config.QueryTimeout == 0 {
		config.QueryTimeout = 10 * time.Second
	}
	return &StateService{
		Config:    config,
		Telemetry: telemetry,
	}
}

func (ss *StateService) Init() error {
	return nil
}

// QueryState assembles the state map for the device's traits. Online is
// true unless the caller has independent liveness information.
func (ss *StateService) QueryState(ctx context.Context, deviceID string, traits []string) DeviceState {
	state := DeviceState{
		Online:     true,
		Properties: make(map[string]any),
	}

	ctx, cancel := context.WithTimeout(ctx, ss.Config.QueryTimeout)
	defer cancel()

	for _, trait := range traits {
		ss.resolveTrait(ctx, deviceID, trait, state.Properties)
	}

	return state
}

func (ss *StateService) resolveTrait(ctx context.Context, deviceID string, trait string, out map[string]any) {
	switch trait {
	case "OnOff":
		value, found := ss.lookup(ctx, deviceID, "on")
		if found {
			out["on"] = value.Truthy()
		} else {
			out["on"] = false
		}

	case "Brightness":
		value, found := ss.lookup(ctx, deviceID, "brightness")
		if found {
			out["brightness"] = value.Int()
		} else {
			out["brightness"] = 0
		}

	case "ColorSetting":
		// Omitted entirely when no value exists, not defaulted
		value, found := ss.lookup(ctx, deviceID, "color")
		if found {
			out["color"] = map[string]any{"spectrumRgb": value.Int()}
		}

	case "TemperatureSetting":
		setpoint, found := ss.lookup(ctx, deviceID, "temperature")
		if found {
			out["thermostatTemperatureSetpoint"] = setpoint.Float()
		} else {
			out["thermostatTemperatureSetpoint"] = 20.0
		}

		mode, found := ss.lookup(ctx, deviceID, "mode")
		if found {
			out["thermostatMode"] = mode.Text()
		} else {
			out["thermostatMode"] = "heat"
		}

	case "FanSpeed":
		value, found := ss.lookup(ctx, deviceID, "fanSpeed")
		if found {
			out["fanSpeed"] = value.Text()
		} else {
			out["fanSpeed"] = "medium"
		}

	case "LockUnlock":
		value, found := ss.lookup(ctx, deviceID, "locked")
		if found {
			out["isLocked"] = value.Truthy()
		} else {
			out["isLocked"] = false
		}

	default:
		log.Debug().Str("trait", trait).Str("deviceId", deviceID).Msg("No state resolution for trait")
	}
}

// lookup implements the telemetry-then-attribute chain. Failures count as
// not found so a single bad key cannot fail the whole state query.
func (ss *StateService) lookup(ctx context.Context, deviceID string, key string) (jsonval.Value, bool) {
	value, found, err := ss.Telemetry.LatestTimeseries(ctx, deviceID, key, telemetryWindow)

	if err != nil {
		log.Warn().Err(err).Str("deviceId", deviceID).Str("key", key).Msg("Timeseries lookup failed")
	} else if found {
		return value, true
	}

	value, found, err = ss.Telemetry.ClientAttribute(ctx, deviceID, key)

	if err != nil {
		log.Warn().Err(err).Str("deviceId", deviceID).Str("key", key).Msg("Attribute lookup failed")
		return jsonval.Null(), false
	}

	return value, found
}
