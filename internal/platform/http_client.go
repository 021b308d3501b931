package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"voicebridge/internal/jsonval"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type HTTPClientConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// HTTPClient talks to the IoT platform's REST API with a service account.
// The platform issues a short-lived JWT on login; the client re-logs-in
// shortly before the token expires.
type HTTPClient struct {
	Config HTTPClientConfig
	Client *http.Client

	mutex    sync.Mutex
	jwtToken string
	jwtExp   time.Time
}

func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	return &HTTPClient{
		Config: config,
		Client: &http.Client{Timeout: config.Timeout},
	}
}

func (pc *HTTPClient) Init() error {
	parsed, err := url.ParseRequestURI(pc.Config.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid platform URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid platform URL scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("platform URL is missing a host")
	}
	return nil
}

func (pc *HTTPClient) token(ctx context.Context) (string, error) {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	// Re-login a minute before the platform JWT expires
	if pc.jwtToken != "" && time.Until(pc.jwtExp) > time.Minute {
		return pc.jwtToken, nil
	}

	log.Debug().Str("url", pc.Config.BaseURL).Msg("Logging in to platform")

	body, err := json.Marshal(map[string]string{
		"username": pc.Config.Username,
		"password": pc.Config.Password,
	})

	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.Config.BaseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := pc.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("platform login failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("platform login failed with status %d", res.StatusCode)
	}

	var loginRes struct {
		Token string `json:"token"`
	}

	if err := json.NewDecoder(res.Body).Decode(&loginRes); err != nil {
		return "", fmt.Errorf("failed to decode platform login response: %w", err)
	}

	pc.jwtToken = loginRes.Token
	pc.jwtExp = jwtExpiry(loginRes.Token)

	return pc.jwtToken, nil
}

// jwtExpiry reads the unverified exp claim; the platform signed the token,
// we only need to know when to ask for a new one.
func jwtExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()

	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		log.Warn().Err(err).Msg("Failed to parse platform JWT, assuming short lifetime")
		return time.Now().Add(5 * time.Minute)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Now().Add(5 * time.Minute)
	}

	return exp.Time
}

// request performs one authenticated call, retrying transient failures
// with exponential backoff. 4xx responses are not retried.
func (pc *HTTPClient) request(ctx context.Context, method string, path string, body []byte) ([]byte, error) {
	operation := func() ([]byte, error) {
		token, err := pc.token(ctx)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, pc.Config.BaseURL+path, reader)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		req.Header.Set("X-Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		res, err := pc.Client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		data, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, err
		}

		switch {
		case res.StatusCode == http.StatusUnauthorized:
			// Platform JWT was invalidated early, force a fresh login
			pc.mutex.Lock()
			pc.jwtToken = ""
			pc.mutex.Unlock()
			return nil, fmt.Errorf("platform rejected credentials")
		case res.StatusCode >= 500:
			return nil, fmt.Errorf("platform returned status %d", res.StatusCode)
		case res.StatusCode >= 400:
			return nil, backoff.Permanent(fmt.Errorf("platform returned status %d: %s", res.StatusCode, strings.TrimSpace(string(data))))
		}

		return data, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
}

type pageResponse struct {
	Data []struct {
		ID struct {
			ID string `json:"id"`
		} `json:"id"`
		Name           string          `json:"name"`
		Label          string          `json:"label"`
		Type           string          `json:"type"`
		AdditionalInfo json.RawMessage `json:"additionalInfo"`
	} `json:"data"`
	HasNext bool `json:"hasNext"`
}

func (pc *HTTPClient) ListDevices(ctx context.Context, tenantID string) ([]Device, error) {
	var devices []Device

	for page := 0; ; page++ {
		data, err := pc.request(ctx, http.MethodGet, fmt.Sprintf("/api/tenant/devices?pageSize=100&page=%d", page), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}

		var res pageResponse
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, fmt.Errorf("failed to decode device page: %w", err)
		}

		for _, d := range res.Data {
			devices = append(devices, Device{
				ID:             d.ID.ID,
				Name:           d.Name,
				Label:          d.Label,
				Type:           d.Type,
				AdditionalInfo: d.AdditionalInfo,
			})
		}

		if !res.HasNext {
			break
		}
	}

	return devices, nil
}

func (pc *HTTPClient) GetDevice(ctx context.Context, tenantID string, deviceID string) (*Device, error) {
	data, err := pc.request(ctx, http.MethodGet, "/api/device/"+url.PathEscape(deviceID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}

	var res struct {
		ID struct {
			ID string `json:"id"`
		} `json:"id"`
		Name           string          `json:"name"`
		Label          string          `json:"label"`
		Type           string          `json:"type"`
		AdditionalInfo json.RawMessage `json:"additionalInfo"`
	}

	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode device: %w", err)
	}

	return &Device{
		ID:             res.ID.ID,
		Name:           res.Name,
		Label:          res.Label,
		Type:           res.Type,
		AdditionalInfo: res.AdditionalInfo,
	}, nil
}

func (pc *HTTPClient) SaveDevice(ctx context.Context, tenantID string, device *Device) (*Device, error) {
	payload := map[string]any{
		"id":             map[string]string{"id": device.ID, "entityType": "DEVICE"},
		"name":           device.Name,
		"label":          device.Label,
		"type":           device.Type,
		"additionalInfo": device.AdditionalInfo,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	if _, err := pc.request(ctx, http.MethodPost, "/api/device", body); err != nil {
		return nil, fmt.Errorf("failed to save device %s: %w", device.ID, err)
	}

	return device, nil
}

func (pc *HTTPClient) LatestTimeseries(ctx context.Context, deviceID string, key string, window time.Duration) (jsonval.Value, bool, error) {
	points, err := pc.Timeseries(ctx, deviceID, []string{key}, window, 1)
	if err != nil {
		return jsonval.Null(), false, err
	}
	if len(points) == 0 {
		return jsonval.Null(), false, nil
	}
	return points[0].Value, true, nil
}

func (pc *HTTPClient) Timeseries(ctx context.Context, deviceID string, keys []string, window time.Duration, limit int) ([]TelemetryPoint, error) {
	now := time.Now().UnixMilli()
	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/values/timeseries?keys=%s&startTs=%d&endTs=%d&limit=%d&sortOrder=DESC",
		url.PathEscape(deviceID), url.QueryEscape(strings.Join(keys, ",")), now-window.Milliseconds(), now, limit)

	data, err := pc.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeseries: %w", err)
	}

	var res map[string][]struct {
		TS    int64           `json:"ts"`
		Value json.RawMessage `json:"value"`
	}

	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode timeseries: %w", err)
	}

	var points []TelemetryPoint
	for key, entries := range res {
		for _, entry := range entries {
			value, err := jsonval.Parse(entry.Value)
			if err != nil {
				continue
			}
			points = append(points, TelemetryPoint{Key: key, TS: entry.TS, Value: coerceScalar(value)})
		}
	}

	return points, nil
}

func (pc *HTTPClient) ClientAttribute(ctx context.Context, deviceID string, key string) (jsonval.Value, bool, error) {
	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/values/attributes/CLIENT_SCOPE?keys=%s",
		url.PathEscape(deviceID), url.QueryEscape(key))

	data, err := pc.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return jsonval.Null(), false, fmt.Errorf("failed to query attributes: %w", err)
	}

	var res []struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}

	if err := json.Unmarshal(data, &res); err != nil {
		return jsonval.Null(), false, fmt.Errorf("failed to decode attributes: %w", err)
	}

	for _, entry := range res {
		if entry.Key != key {
			continue
		}
		value, err := jsonval.Parse(entry.Value)
		if err != nil {
			return jsonval.Null(), false, err
		}
		return coerceScalar(value), true, nil
	}

	return jsonval.Null(), false, nil
}

func (pc *HTTPClient) SendOneWay(ctx context.Context, deviceID string, method string, params jsonval.Value) error {
	paramsJSON, err := params.MarshalJSON()
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"method": method,
		"params": json.RawMessage(paramsJSON),
	})

	if err != nil {
		return err
	}

	if _, err := pc.request(ctx, http.MethodPost, "/api/plugins/rpc/oneway/"+url.PathEscape(deviceID), body); err != nil {
		return fmt.Errorf("rpc to device %s failed: %w", deviceID, err)
	}

	return nil
}

// The platform reports telemetry values as strings; coerceScalar restores
// boolean and numeric types so trait defaults and truthiness work.
func coerceScalar(v jsonval.Value) jsonval.Value {
	if v.Kind() != jsonval.KindString {
		return v
	}
	text := v.Text()
	if b, err := strconv.ParseBool(text); err == nil {
		return jsonval.Bool(b)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return jsonval.Number(f)
	}
	return v
}
