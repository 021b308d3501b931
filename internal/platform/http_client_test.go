package platform_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"voicebridge/internal/jsonval"
	"voicebridge/internal/platform"

	"gotest.tools/v3/assert"
)

type fakeServer struct {
	*httptest.Server
	logins   atomic.Int64
	rpcBody  atomic.Value
	failures atomic.Int64
}

func newFakeServer(t *testing.T) *fakeServer {
	fake := &fakeServer{}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		fake.logins.Add(1)

		var creds map[string]string
		json.NewDecoder(r.Body).Decode(&creds)
		if creds["username"] != "svc" || creds["password"] != "svcpass" {
			w.WriteHeader(401)
			return
		}

		json.NewEncoder(w).Encode(map[string]string{"token": "opaque-platform-token"})
	})

	authenticated := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Authorization") != "Bearer opaque-platform-token" {
				w.WriteHeader(401)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("/api/tenant/devices", authenticated(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")

		device := func(id string) map[string]any {
			return map[string]any{
				"id":   map[string]string{"id": id},
				"name": id,
				"type": "light",
			}
		}

		if page == "0" {
			json.NewEncoder(w).Encode(map[string]any{
				"data":    []any{device("dev-1"), device("dev-2")},
				"hasNext": true,
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"data":    []any{device("dev-3")},
			"hasNext": false,
		})
	}))

	mux.HandleFunc("/api/device/dev-1", authenticated(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":    map[string]string{"id": "dev-1"},
			"name":  "dev-1",
			"label": "Living room lamp",
			"type":  "light",
		})
	}))

	mux.HandleFunc("/api/plugins/telemetry/DEVICE/dev-1/values/timeseries", authenticated(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"on":         []map[string]any{{"ts": 1000, "value": "true"}},
			"brightness": []map[string]any{{"ts": 1000, "value": "70"}},
		})
	}))

	mux.HandleFunc("/api/plugins/telemetry/DEVICE/dev-1/values/attributes/CLIENT_SCOPE", authenticated(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"key": "mode", "value": "cool"},
		})
	}))

	mux.HandleFunc("/api/plugins/rpc/oneway/dev-1", authenticated(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		json.NewDecoder(r.Body).Decode(&body)
		fake.rpcBody.Store(body)
		w.WriteHeader(200)
	}))

	mux.HandleFunc("/api/plugins/rpc/oneway/flaky", authenticated(func(w http.ResponseWriter, r *http.Request) {
		if fake.failures.Add(1) == 1 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
	}))

	mux.HandleFunc("/api/plugins/rpc/oneway/missing", authenticated(func(w http.ResponseWriter, r *http.Request) {
		fake.failures.Add(1)
		w.WriteHeader(404)
	}))

	fake.Server = httptest.NewServer(mux)
	t.Cleanup(fake.Server.Close)

	return fake
}

func setupClient(t *testing.T) (*platform.HTTPClient, *fakeServer) {
	server := newFakeServer(t)

	client := platform.NewHTTPClient(platform.HTTPClientConfig{
		BaseURL:  server.URL,
		Username: "svc",
		Password: "svcpass",
		Timeout:  5 * time.Second,
	})

	assert.NilError(t, client.Init())

	return client, server
}

func TestInitRejectsBadBaseURL(t *testing.T) {
	badURLs := []string{
		"",
		"not a url",
		"platform.example.com",
		"ftp://platform.example.com",
		"http://",
	}

	for _, baseURL := range badURLs {
		client := platform.NewHTTPClient(platform.HTTPClientConfig{
			BaseURL:  baseURL,
			Username: "svc",
			Password: "svcpass",
		})
		assert.Assert(t, client.Init() != nil, "expected %q to be rejected", baseURL)
	}
}

func TestListDevicesPagination(t *testing.T) {
	client, server := setupClient(t)

	devices, err := client.ListDevices(context.Background(), "tenant")
	assert.NilError(t, err)
	assert.Equal(t, len(devices), 3)
	assert.Equal(t, devices[0].ID, "dev-1")
	assert.Equal(t, devices[2].ID, "dev-3")

	// The login happens once and the JWT is reused across pages
	assert.Equal(t, server.logins.Load(), int64(1))
}

func TestGetDevice(t *testing.T) {
	client, _ := setupClient(t)

	device, err := client.GetDevice(context.Background(), "tenant", "dev-1")
	assert.NilError(t, err)
	assert.Equal(t, device.Label, "Living room lamp")
	assert.Equal(t, device.Type, "light")
}

func TestLatestTimeseriesCoercesStringlyValues(t *testing.T) {
	client, _ := setupClient(t)

	value, found, err := client.LatestTimeseries(context.Background(), "dev-1", "on", 24*time.Hour)
	assert.NilError(t, err)
	assert.Assert(t, found)
	assert.Equal(t, value.Kind(), jsonval.KindBool)
	assert.Assert(t, value.Bool())
}

func TestClientAttribute(t *testing.T) {
	client, _ := setupClient(t)

	value, found, err := client.ClientAttribute(context.Background(), "dev-1", "mode")
	assert.NilError(t, err)
	assert.Assert(t, found)
	assert.Equal(t, value.Text(), "cool")

	_, found, err = client.ClientAttribute(context.Background(), "dev-1", "absent")
	assert.NilError(t, err)
	assert.Assert(t, !found)
}

func TestSendOneWay(t *testing.T) {
	client, server := setupClient(t)

	params := jsonval.Object(jsonval.Member{Key: "state", Value: jsonval.Bool(true)})

	err := client.SendOneWay(context.Background(), "dev-1", "setPower", params)
	assert.NilError(t, err)

	body := server.rpcBody.Load().(map[string]json.RawMessage)
	assert.Equal(t, string(body["method"]), `"setPower"`)
	assert.Equal(t, string(body["params"]), `{"state":true}`)
}

func TestRequestRetriesServerErrors(t *testing.T) {
	client, server := setupClient(t)

	err := client.SendOneWay(context.Background(), "flaky", "setPower", jsonval.Object())
	assert.NilError(t, err)
	assert.Equal(t, server.failures.Load(), int64(2))
}

func TestRequestDoesNotRetryClientErrors(t *testing.T) {
	client, server := setupClient(t)

	err := client.SendOneWay(context.Background(), "missing", "setPower", jsonval.Object())
	assert.Assert(t, err != nil)
	assert.Assert(t, strings.Contains(fmt.Sprint(err), "404"))
	assert.Equal(t, server.failures.Load(), int64(1))
}
