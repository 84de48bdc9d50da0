// Package cloud provides a client for the device-management cloud service and
// a machine.Connection backed by it.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"laundry-control-backend/internal/machine"
)

const (
	DefaultAuthURL = "https://auth.things5.digital/auth/realms/hswsnc/protocol/openid-connect"
	DefaultAPIURL  = "https://api.things5.digital/v1"

	defaultTimeout     = 4 * time.Second
	defaultAuthTimeout = 8 * time.Second

	// configurationAsset is the parameter asset that carries machine settings
	// and command verbs.
	configurationAsset = "configuration"
)

// Options configures the endpoints and per-call timeouts of a Client.
type Options struct {
	AuthURL     string
	APIURL      string
	Timeout     time.Duration
	AuthTimeout time.Duration
}

// Client performs authenticated REST calls. It holds no session state: every
// call receives the bearer token and device id it operates on.
type Client struct {
	authURL     string
	apiURL      string
	timeout     time.Duration
	authTimeout time.Duration
	httpClient  *http.Client
	now         func() time.Time
}

// NewClient creates a new cloud API client.
func NewClient(opts Options) *Client {
	if opts.AuthURL == "" {
		opts.AuthURL = DefaultAuthURL
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = defaultAuthTimeout
	}

	return &Client{
		authURL:     strings.TrimRight(opts.AuthURL, "/"),
		apiURL:      strings.TrimRight(opts.APIURL, "/"),
		timeout:     opts.Timeout,
		authTimeout: opts.AuthTimeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now: time.Now,
	}
}

// parameterValue is one entry of a parameter write request.
type parameterValue struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type parameterAsset struct {
	Name   string           `json:"name"`
	Values []parameterValue `json:"values"`
}

type parameterWrite struct {
	Assets []parameterAsset `json:"assets"`
}

// parameterVariable is a variable echoed back by the parameters endpoint.
type parameterVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

type assetVariables struct {
	Name      string              `json:"name"`
	Variables []parameterVariable `json:"variables"`
}

type writeResponse struct {
	Assets []assetVariables `json:"assets"`
	Errors []string         `json:"errors"`
}

// stateSample is one time-series sample returned by the states endpoint.
type stateSample struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Value     string  `json:"value"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Metadata  *string `json:"metadata"`
}

// Authorize exchanges user credentials for an access token with a password grant.
func (c *Client) Authorize(ctx context.Context, user, password string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.authTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("client_id", "api")
	form.Set("grant_type", "password")
	form.Set("scope", "openid")
	form.Set("username", user)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", machine.NetworkError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Authorization request failed")
		return "", machine.NetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", machine.ProtocolError(fmt.Sprintf("read body: %v", err))
	}

	log.Debug().Int("status", resp.StatusCode).Msg("Authorization response")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", machine.ValueError(fmt.Sprintf("authorization rejected with status %d", resp.StatusCode))
	}

	var tokenResp struct {
		AccessToken *string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", machine.ProtocolError(fmt.Sprintf("parse token response: %v", err))
	}
	if tokenResp.AccessToken == nil {
		return "", machine.ValueError("access_token missing from response")
	}

	return *tokenResp.AccessToken, nil
}

// Devices lists the machines visible to token.
func (c *Client) Devices(ctx context.Context, token string) ([]machine.Device, error) {
	var resp struct {
		Data *[]machine.Device `json:"data"`
	}
	if err := c.getJSON(ctx, c.apiURL+"/devices", token, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, machine.ProtocolError("devices: data missing")
	}
	return *resp.Data, nil
}

// DeviceDetails returns the display name and connectivity flag of a device.
func (c *Client) DeviceDetails(ctx context.Context, token, deviceID string) (string, bool, error) {
	var resp struct {
		Data *struct {
			Name        *string `json:"name"`
			IsConnected *bool   `json:"is_connected"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.deviceURL(deviceID, ""), token, &resp); err != nil {
		return "", false, err
	}
	if resp.Data == nil || resp.Data.Name == nil || resp.Data.IsConnected == nil {
		return "", false, machine.ProtocolError("device details: name or is_connected missing")
	}
	return *resp.Data.Name, *resp.Data.IsConnected, nil
}

// StateAndStatistics reads the samples of the last second and folds them by
// name into a telemetry snapshot and the usage counters. Values that do not
// parse are read as zero.
func (c *Client) StateAndStatistics(ctx context.Context, token, deviceID string) (machine.State, machine.Statistics, error) {
	const layout = "2006-01-02T15:04:05Z"

	to := c.now().UTC()
	from := to.Add(-time.Second)

	q := url.Values{}
	q.Set("from", from.Format(layout))
	q.Set("to", to.Format(layout))

	var resp struct {
		Data *[]stateSample `json:"data"`
	}
	if err := c.getJSON(ctx, c.deviceURL(deviceID, "/states")+"?"+q.Encode(), token, &resp); err != nil {
		return machine.State{}, machine.Statistics{}, err
	}
	if resp.Data == nil {
		return machine.State{}, machine.Statistics{}, machine.ProtocolError("states: data missing")
	}

	state, stats := foldSamples(*resp.Data)
	return state, stats, nil
}

// PreviewConfiguration reads the configuration asset variables: machine
// name, firmware versions and the program catalog.
func (c *Client) PreviewConfiguration(ctx context.Context, token, deviceID string) (machine.Configuration, error) {
	var resp struct {
		Assets *[]assetVariables `json:"assets"`
	}
	if err := c.getJSON(ctx, c.deviceURL(deviceID, "/parameters"), token, &resp); err != nil {
		return machine.Configuration{}, err
	}
	if resp.Assets == nil {
		return machine.Configuration{}, machine.ProtocolError("parameters: assets missing")
	}

	asset, ok := findAsset(*resp.Assets, configurationAsset)
	if !ok {
		return machine.Configuration{}, machine.ProtocolError("parameters: configuration asset missing")
	}
	return configurationFromVariables(asset.Variables), nil
}

// RefreshDataIngestion asks the cloud backend to pull fresh data from the device.
func (c *Client) RefreshDataIngestion(ctx context.Context, token, deviceID string) error {
	_, err := c.writeParameter(ctx, token, deviceID, parameterValue{Name: "active", Type: "integer", Value: "1"})
	return err
}

// CurrentMachine downloads the active configuration blob.
func (c *Client) CurrentMachine(ctx context.Context, token, deviceID string) ([]byte, error) {
	resp, err := c.writeParameter(ctx, token, deviceID, parameterValue{Name: "machine", Type: "integer", Value: ""})
	if err != nil {
		return nil, err
	}

	asset, ok := findAsset(resp.Assets, configurationAsset)
	if ok {
		for _, v := range asset.Variables {
			if v.Name == "machine" {
				return decodeMachine(v.Value)
			}
		}
	}
	return nil, machine.ProtocolError("machine variable missing from response")
}

// PutCurrentMachine uploads data as the active configuration blob.
func (c *Client) PutCurrentMachine(ctx context.Context, token, deviceID string, data []byte) error {
	_, err := c.writeParameter(ctx, token, deviceID, parameterValue{Name: "machine", Type: "integer", Value: encodeMachine(data)})
	return err
}

// SendCommand dispatches a command verb through the parameter write endpoint.
func (c *Client) SendCommand(ctx context.Context, token, deviceID, verb, value string) error {
	_, err := c.writeParameter(ctx, token, deviceID, parameterValue{Name: verb, Type: "string", Value: value})
	return err
}

func (c *Client) Start(ctx context.Context, token, deviceID string, program uint16) error {
	return c.SendCommand(ctx, token, deviceID, "start", fmt.Sprintf("%d", program))
}

func (c *Client) Restart(ctx context.Context, token, deviceID string) error {
	return c.SendCommand(ctx, token, deviceID, "start", "")
}

func (c *Client) Pause(ctx context.Context, token, deviceID string) error {
	return c.SendCommand(ctx, token, deviceID, "pause", "")
}

func (c *Client) Stop(ctx context.Context, token, deviceID string) error {
	return c.SendCommand(ctx, token, deviceID, "stop", "")
}

func (c *Client) ClearAlarms(ctx context.Context, token, deviceID string) error {
	return c.SendCommand(ctx, token, deviceID, "clear_alarms", "")
}

func (c *Client) deviceURL(deviceID, suffix string) string {
	return c.apiURL + "/devices/" + url.PathEscape(deviceID) + suffix
}

// writeParameter posts a single-value parameter write and decodes the echo.
// A non-empty errors list is reported as a server error.
func (c *Client) writeParameter(ctx context.Context, token, deviceID string, value parameterValue) (*writeResponse, error) {
	payload := parameterWrite{
		Assets: []parameterAsset{{Name: configurationAsset, Values: []parameterValue{value}}},
	}

	body, err := c.postJSON(ctx, c.deviceURL(deviceID, "/parameters"), token, payload)
	if err != nil {
		return nil, err
	}

	var resp writeResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, machine.JSONError(err)
		}
	}
	if len(resp.Errors) > 0 {
		log.Warn().Str("device", deviceID).Strs("errors", resp.Errors).Msg("Parameter write rejected")
		return nil, machine.ServerError(resp.Errors[0])
	}
	return &resp, nil
}

// do sends an authenticated request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, target, token string, body io.Reader) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, machine.NetworkError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug().Str("method", method).Str("url", target).Msg("Cloud request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("url", target).Msg("Cloud request failed")
		return nil, machine.NetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, machine.ProtocolError(fmt.Sprintf("read body: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Str("method", method).Str("url", target).Int("status", resp.StatusCode).Bytes("body", data).Msg("Cloud error response")
		return nil, machine.ValueError(fmt.Sprintf("%s %s: status %d", method, target, resp.StatusCode))
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, target, token string, out any) error {
	data, err := c.do(ctx, http.MethodGet, target, token, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return machine.ProtocolError(fmt.Sprintf("GET %s: %v", target, err))
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, target, token string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, machine.JSONError(err)
	}
	return c.do(ctx, http.MethodPost, target, token, bytes.NewReader(body))
}

func findAsset(assets []assetVariables, name string) (assetVariables, bool) {
	for _, a := range assets {
		if a.Name == name {
			return a, true
		}
	}
	return assetVariables{}, false
}
