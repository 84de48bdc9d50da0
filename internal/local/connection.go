// Package local talks to the web server embedded in a washing machine on the LAN.
package local

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

const defaultTimeout = 4 * time.Second

// Options tunes the HTTP session with the device.
type Options struct {
	Timeout time.Duration
}

// statisticsPair is the envelope served by GET /statistics.
type statisticsPair struct {
	Total machine.Statistics `json:"total"`
}

// Connection is a direct HTTP session with one machine.
type Connection struct {
	address string
	baseURL string
	timeout time.Duration
	client  *http.Client
	state   machine.ConnectionState
}

var _ machine.Connection = (*Connection)(nil)

// Dial performs the first connection against address. The returned
// Connection is always usable; inspect ConnectionState to learn whether the
// bootstrap succeeded.
func Dial(ctx context.Context, address string, opts Options) *Connection {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	base := address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	c := &Connection{
		address: address,
		baseURL: strings.TrimRight(base, "/"),
		timeout: opts.Timeout,
		client:  &http.Client{Timeout: opts.Timeout},
	}
	c.state = c.firstConnection(ctx)
	return c
}

func (c *Connection) Kind() machine.Kind {
	return machine.KindLocal
}

func (c *Connection) ConnectionState() machine.ConnectionState {
	return c.state
}

// firstConnection fetches state, configuration and statistics in order.
// Any failure collapses the whole bootstrap into the error state.
func (c *Connection) firstConnection(ctx context.Context) machine.ConnectionState {
	var (
		state         machine.State
		configuration machine.Configuration
		stats         statisticsPair
	)

	if err := c.getJSON(ctx, "state", &state); err != nil {
		log.Warn().Err(err).Str("address", c.address).Msg("First connection failed")
		return machine.Failed()
	}
	if err := c.getJSON(ctx, "machine", &configuration); err != nil {
		log.Warn().Err(err).Str("address", c.address).Msg("First connection failed")
		return machine.Failed()
	}
	if err := c.getJSON(ctx, "statistics", &stats); err != nil {
		log.Warn().Err(err).Str("address", c.address).Msg("First connection failed")
		return machine.Failed()
	}

	log.Info().Str("address", c.address).Msg("First connection successful")
	return machine.Connected(c.address, true, state, configuration, stats.Total)
}

// RefreshData re-reads state and statistics, keeping the configuration.
// From the error state it runs the full bootstrap again.
func (c *Connection) RefreshData(ctx context.Context) {
	if !c.state.IsConnected() {
		c.state = c.firstConnection(ctx)
		return
	}

	var (
		state machine.State
		stats statisticsPair
	)
	if err := c.getJSON(ctx, "state", &state); err != nil {
		log.Warn().Err(err).Str("address", c.address).Msg("State refresh failed")
		c.state = machine.Failed()
		return
	}
	if err := c.getJSON(ctx, "statistics", &stats); err != nil {
		log.Warn().Err(err).Str("address", c.address).Msg("Statistics refresh failed")
		c.state = machine.Failed()
		return
	}

	c.state = machine.Connected(c.state.Name, c.state.Active, state, *c.state.Configuration, stats.Total)
}

// RefreshConfiguration re-reads only the configuration archive.
func (c *Connection) RefreshConfiguration(ctx context.Context) {
	if !c.state.IsConnected() {
		c.state = c.firstConnection(ctx)
		return
	}

	var configuration machine.Configuration
	if err := c.getJSON(ctx, "machine", &configuration); err != nil {
		log.Warn().Err(err).Str("address", c.address).Msg("Configuration refresh failed")
		c.state = machine.Failed()
		return
	}

	c.state = machine.Connected(c.state.Name, c.state.Active, *c.state.State, configuration, *c.state.Statistics)
}

func (c *Connection) SendMachineConfiguration(ctx context.Context, archive string, data []byte) error {
	if archive == "" {
		return machine.ValueError("archive name is required")
	}
	return c.post(ctx, "machine/"+url.PathEscape(archive), "application/octet-stream", bytes.NewReader(data))
}

// GetMachineConfiguration downloads an archive. The device must announce the
// payload size; a response without Content-Length is a protocol error.
func (c *Connection) GetMachineConfiguration(ctx context.Context, archive string) ([]byte, error) {
	if archive == "" {
		return nil, machine.ValueError("archive name is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("machine/"+url.PathEscape(archive)), nil)
	if err != nil {
		return nil, machine.NetworkError(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, machine.NetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("status", resp.StatusCode).Str("archive", archive).Msg("Failed to download machine config")
		return nil, machine.ProtocolError(fmt.Sprintf("status %d", resp.StatusCode))
	}
	if resp.ContentLength < 0 {
		log.Warn().Str("archive", archive).Msg("Machine config download without Content-Length")
		return nil, machine.ProtocolError("missing Content-Length")
	}

	data := make([]byte, 0, resp.ContentLength)
	buf := bytes.NewBuffer(data)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, machine.ProtocolError(err.Error())
	}

	log.Info().Str("archive", archive).Int("bytes", buf.Len()).Msg("Downloaded machine config")
	return buf.Bytes(), nil
}

func (c *Connection) SelectMachineConfiguration(ctx context.Context, archive string) error {
	if archive == "" {
		return machine.ValueError("archive name is required")
	}
	return c.post(ctx, "select_machine/"+url.PathEscape(archive), "", nil)
}

func (c *Connection) StartProgram(ctx context.Context, program uint16) error {
	body, err := json.Marshal(map[string]uint16{"cycle": program})
	if err != nil {
		return machine.JSONError(err)
	}
	return c.post(ctx, "start", "application/json", bytes.NewReader(body))
}

func (c *Connection) Restart(ctx context.Context) error {
	return c.post(ctx, "start", "", nil)
}

func (c *Connection) Pause(ctx context.Context) error {
	return c.post(ctx, "pause", "", nil)
}

func (c *Connection) Stop(ctx context.Context) error {
	return c.post(ctx, "stop", "", nil)
}

func (c *Connection) ClearAlarms(ctx context.Context) error {
	return c.post(ctx, "clear_alarms", "", nil)
}

func (c *Connection) url(target string) string {
	return c.baseURL + "/" + target
}

// getJSON decodes the JSON document served at target into out.
func (c *Connection) getJSON(ctx context.Context, target string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(target), nil)
	if err != nil {
		return machine.NetworkError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return machine.NetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return machine.NetworkError(fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return machine.ProtocolError(fmt.Sprintf("GET /%s: status %d", target, resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		log.Warn().Err(err).Str("target", target).Bytes("body", body).Msg("Invalid JSON")
		return machine.ProtocolError(fmt.Sprintf("GET /%s: %v", target, err))
	}
	return nil
}

// post sends a command or upload. The device closes the socket after each
// request, so keep-alive is disabled explicitly.
func (c *Connection) post(ctx context.Context, target, contentType string, body io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(target), body)
	if err != nil {
		return machine.NetworkError(fmt.Errorf("create request: %w", err))
	}
	req.Close = true
	req.Header.Set("Connection", "close")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("POST failed")
		return machine.NetworkError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return machine.ValueError(fmt.Sprintf("POST /%s: status %d", target, resp.StatusCode))
	}
	return nil
}
