// Package platform defines the external collaborators of the bridge: the
// device registry holding capability documents, the telemetry/attribute
// store and the device RPC transport.
package platform

import (
	"context"
	"encoding/json"
	"time"

	"voicebridge/internal/jsonval"
)

// Device is a platform device record. AdditionalInfo carries the raw
// capability document among other platform metadata.
type Device struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Label          string          `json:"label"`
	Type           string          `json:"type"`
	AdditionalInfo json.RawMessage `json:"additionalInfo"`
}

type DeviceRegistry interface {
	// ListDevices returns all devices of the tenant.
	ListDevices(ctx context.Context, tenantID string) ([]Device, error)
	// GetDevice returns one device or an error when it does not exist.
	GetDevice(ctx context.Context, tenantID string, deviceID string) (*Device, error)
	// SaveDevice persists the device document (last-write-wins).
	SaveDevice(ctx context.Context, tenantID string, device *Device) (*Device, error)
}

// TelemetryPoint is a single timestamped telemetry or attribute value.
type TelemetryPoint struct {
	Key   string
	TS    int64
	Value jsonval.Value
}

type TelemetryClient interface {
	// LatestTimeseries returns the newest point for the key inside the
	// window, or ok=false when there is none.
	LatestTimeseries(ctx context.Context, deviceID string, key string, window time.Duration) (jsonval.Value, bool, error)
	// ClientAttribute returns the device's current client-scope attribute
	// for the key, or ok=false when there is none.
	ClientAttribute(ctx context.Context, deviceID string, key string) (jsonval.Value, bool, error)
	// Timeseries returns recent points for the given keys, newest first.
	Timeseries(ctx context.Context, deviceID string, keys []string, window time.Duration, limit int) ([]TelemetryPoint, error)
}

type RPCClient interface {
	// SendOneWay dispatches a fire-and-forget RPC to the device. Params may
	// be an object or a primitive, depending on the device's firmware.
	SendOneWay(ctx context.Context, deviceID string, method string, params jsonval.Value) error
}

// Client bundles the three collaborator roles; the HTTP implementation
// satisfies all of them against one platform API.
type Client interface {
	DeviceRegistry
	TelemetryClient
	RPCClient
}
