package model

// DeviceCapabilities is the per-device assistant integration document,
// stored in the device's additional-info JSON on the platform
// (last-write-wins, not versioned).
type DeviceCapabilities struct {
	Enabled         bool                        `json:"enabled"`
	DeviceType      string                      `json:"deviceType"`
	Traits          []string                    `json:"traits"`
	Attributes      map[string]any              `json:"attributes,omitempty"`
	WillReportState bool                        `json:"willReportState"`
	RoomHint        string                      `json:"roomHint,omitempty"`
	Nicknames       []string                    `json:"nicknames,omitempty"`
	RPCMapping      map[string]RPCMethodMapping `json:"rpcMapping,omitempty"`
}

// RPCMethodMapping overrides how one normalized RPC method is sent to a
// device with non-standard firmware.
//
// Supported paramFormat values:
//   - "object": standard object payload, optionally re-keyed via ParamMapping
//   - "numeric": single primitive number (1/0 for booleans)
//   - "string": single primitive string
//   - "template": pre-configured OnValue/OffValue literal chosen by on/off state
type RPCMethodMapping struct {
	Method       string            `json:"method"`
	ParamFormat  string            `json:"paramFormat,omitempty"`
	ParamMapping map[string]string `json:"paramMapping,omitempty"`
	OnValue      string            `json:"onValue,omitempty"`
	OffValue     string            `json:"offValue,omitempty"`
}
