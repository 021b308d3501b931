package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voicebridge/internal/config"
	"voicebridge/internal/jsonval"
	"voicebridge/internal/model"
	"voicebridge/internal/platform"
)

// fakePlatform is an in-memory stand-in for the IoT platform used by the
// service and controller tests.
type fakePlatform struct {
	devices    map[string]*platform.Device
	timeseries map[string]map[string]jsonval.Value
	attributes map[string]map[string]jsonval.Value

	rpcCalls []rpcCall
	rpcErr   map[string]error
}

type rpcCall struct {
	DeviceID string
	Method   string
	Params   jsonval.Value
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		devices:    map[string]*platform.Device{},
		timeseries: map[string]map[string]jsonval.Value{},
		attributes: map[string]map[string]jsonval.Value{},
		rpcErr:     map[string]error{},
	}
}

func (f *fakePlatform) addDevice(id string, deviceType string, capabilities *model.DeviceCapabilities) {
	device := &platform.Device{
		ID:   id,
		Name: id,
		Type: deviceType,
	}

	if capabilities != nil {
		raw, _ := json.Marshal(capabilities)
		info, _ := json.Marshal(map[string]json.RawMessage{config.CapabilitiesKey: raw})
		device.AdditionalInfo = info
	}

	f.devices[id] = device
}

func (f *fakePlatform) setTimeseries(deviceID string, key string, value jsonval.Value) {
	if f.timeseries[deviceID] == nil {
		f.timeseries[deviceID] = map[string]jsonval.Value{}
	}
	f.timeseries[deviceID][key] = value
}

func (f *fakePlatform) setAttribute(deviceID string, key string, value jsonval.Value) {
	if f.attributes[deviceID] == nil {
		f.attributes[deviceID] = map[string]jsonval.Value{}
	}
	f.attributes[deviceID][key] = value
}

func (f *fakePlatform) ListDevices(ctx context.Context, tenantID string) ([]platform.Device, error) {
	devices := make([]platform.Device, 0, len(f.devices))
	for _, device := range f.devices {
		devices = append(devices, *device)
	}
	return devices, nil
}

func (f *fakePlatform) GetDevice(ctx context.Context, tenantID string, deviceID string) (*platform.Device, error) {
	device, ok := f.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s does not exist", deviceID)
	}
	copied := *device
	return &copied, nil
}

func (f *fakePlatform) SaveDevice(ctx context.Context, tenantID string, device *platform.Device) (*platform.Device, error) {
	copied := *device
	f.devices[device.ID] = &copied
	return device, nil
}

func (f *fakePlatform) LatestTimeseries(ctx context.Context, deviceID string, key string, window time.Duration) (jsonval.Value, bool, error) {
	value, ok := f.timeseries[deviceID][key]
	return value, ok, nil
}

func (f *fakePlatform) ClientAttribute(ctx context.Context, deviceID string, key string) (jsonval.Value, bool, error) {
	value, ok := f.attributes[deviceID][key]
	return value, ok, nil
}

func (f *fakePlatform) Timeseries(ctx context.Context, deviceID string, keys []string, window time.Duration, limit int) ([]platform.TelemetryPoint, error) {
	var points []platform.TelemetryPoint
	for _, key := range keys {
		if value, ok := f.timeseries[deviceID][key]; ok {
			points = append(points, platform.TelemetryPoint{Key: key, TS: time.Now().UnixMilli(), Value: value})
		}
	}
	return points, nil
}

func (f *fakePlatform) SendOneWay(ctx context.Context, deviceID string, method string, params jsonval.Value) error {
	if err := f.rpcErr[deviceID]; err != nil {
		return err
	}
	f.rpcCalls = append(f.rpcCalls, rpcCall{DeviceID: deviceID, Method: method, Params: params})
	return nil
}
