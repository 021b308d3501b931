package service

import (
	"strings"

	"voicebridge/internal/config"
	"voicebridge/internal/jsonval"
	"voicebridge/internal/model"

	"github.com/rs/zerolog/log"
)

type paramKind int

const (
	paramBool paramKind = iota
	paramInt
	paramFloat
	paramString
)

type paramRule struct {
	target string // RPC parameter name
	source string // assistant parameter name
	nested string // optional nested field inside source
	kind   paramKind
}

type commandSpec struct {
	method string
	params []paramRule
}

// commandTable maps canonical assistant commands to platform RPC methods.
// Param order matters: it is the insertion order of the standard payload,
// which "first field" custom-mapping rules depend on.
var commandTable = map[string]commandSpec{
	"OnOff": {
		method: "setPower",
		params: []paramRule{{target: "state", source: "on", kind: paramBool}},
	},
	"BrightnessAbsolute": {
		method: "setBrightness",
		params: []paramRule{{target: "brightness", source: "brightness", kind: paramInt}},
	},
	"ColorAbsolute": {
		method: "setColor",
		params: []paramRule{{target: "color", source: "color", nested: "spectrumRGB", kind: paramInt}},
	},
	"ThermostatTemperatureSetpoint": {
		method: "setTemperature",
		params: []paramRule{{target: "temperature", source: "thermostatTemperatureSetpoint", kind: paramFloat}},
	},
	"ThermostatSetMode": {
		method: "setMode",
		params: []paramRule{{target: "mode", source: "thermostatMode", kind: paramString}},
	},
	"SetFanSpeed": {
		method: "setFanSpeed",
		params: []paramRule{{target: "speed", source: "fanSpeed", kind: paramString}},
	},
	"LockUnlock": {
		method: "setLocked",
		params: []paramRule{{target: "locked", source: "lock", kind: paramBool}},
	},
	"OpenClose": {
		method: "setOpenPercent",
		params: []paramRule{{target: "openPercent", source: "openPercent", kind: paramInt}},
	},
}

// TranslatorService converts assistant commands into platform RPC calls,
// applying per-device custom mappings for non-standard firmware.
type TranslatorService struct{}

func NewTranslatorService() *TranslatorService {
	return &TranslatorService{}
}

func (ts *TranslatorService) Init() error {
	return nil
}

// Translate returns the RPC method name and parameter payload for the
// command. The payload is opaque past this point: it may be an object, a
// primitive number or a primitive string depending on the device mapping.
func (ts *TranslatorService) Translate(command string, params jsonval.Value, capabilities *model.DeviceCapabilities) (string, jsonval.Value) {
	canonical := strings.TrimPrefix(command, config.CommandPrefix)

	method, payload := ts.standardCall(canonical, params)

	if capabilities != nil && capabilities.RPCMapping != nil {
		if mapping, ok := capabilities.RPCMapping[method]; ok {
			log.Debug().Str("method", method).Str("custom", mapping.Method).Msg("Applying custom RPC mapping")
			return mapping.Method, applyCustomMapping(payload, mapping)
		}
	}

	return method, payload
}

func (ts *TranslatorService) standardCall(command string, params jsonval.Value) (string, jsonval.Value) {
	spec, known := commandTable[command]

	if !known {
		// Pass-through: unknown commands keep their name, scalar values are
		// wrapped as a single "value" field
		log.Debug().Str("command", command).Msg("Unknown assistant command, passing through")
		if params.IsScalar() {
			return command, jsonval.Object(jsonval.Member{Key: "value", Value: params})
		}
		if params.IsObject() {
			return command, params
		}
		return command, jsonval.Object()
	}

	payload := jsonval.Object()

	for _, rule := range spec.params {
		value, ok := params.Get(rule.source)
		if !ok {
			continue
		}

		if rule.nested != "" {
			value, ok = value.Get(rule.nested)
			if !ok {
				continue
			}
		}

		payload.Set(rule.target, coerceParam(value, rule.kind))
	}

	return spec.method, payload
}

func coerceParam(value jsonval.Value, kind paramKind) jsonval.Value {
	switch kind {
	case paramBool:
		return jsonval.Bool(value.Truthy())
	case paramInt:
		return jsonval.Int(value.Int())
	case paramFloat:
		return jsonval.Number(value.Float())
	case paramString:
		return jsonval.String(value.Text())
	}
	return value
}

func applyCustomMapping(payload jsonval.Value, mapping model.RPCMethodMapping) jsonval.Value {
	switch mapping.ParamFormat {
	case "numeric":
		// Single primitive number; booleans collapse to 1/0
		if state, ok := payload.Get("state"); ok {
			return boolToNumber(state.Truthy())
		}
		if brightness, ok := payload.Get("brightness"); ok {
			return jsonval.Int(brightness.Int())
		}
		if members := payload.Members(); len(members) > 0 {
			first := members[0].Value
			if first.Kind() == jsonval.KindBool {
				return boolToNumber(first.Bool())
			}
			return jsonval.Int(first.Int())
		}

	case "string":
		// Single primitive string from the first field
		if members := payload.Members(); len(members) > 0 {
			return jsonval.String(members[0].Value.Text())
		}

	case "template":
		// Pre-configured literal chosen by the on/off interpretation of the
		// standard payload; used by firmwares expecting opaque command strings
		isOn := false
		if state, ok := payload.Get("state"); ok {
			isOn = state.Truthy()
		} else if openPercent, ok := payload.Get("openPercent"); ok {
			isOn = openPercent.Int() > 0
		} else if members := payload.Members(); len(members) > 0 {
			isOn = members[0].Value.Truthy()
		}

		value := mapping.OffValue
		if isOn {
			value = mapping.OnValue
		}

		if value != "" {
			return jsonval.String(value)
		}
		return payload

	case "object":
		if mapping.ParamMapping == nil {
			break
		}
		remapped := jsonval.Object()
		for _, member := range payload.Members() {
			key := member.Key
			if custom, ok := mapping.ParamMapping[key]; ok {
				key = custom
			}
			remapped.Set(key, member.Value)
		}
		return remapped
	}

	return payload
}

func boolToNumber(b bool) jsonval.Value {
	if b {
		return jsonval.Int(1)
	}
	return jsonval.Int(0)
}
