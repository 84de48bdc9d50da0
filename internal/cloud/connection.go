package cloud

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"laundry-control-backend/internal/machine"
)

const defaultIngestionWindow = 120 * time.Second

// ConnectionOptions tunes the cloud-backed connection.
type ConnectionOptions struct {
	// IngestionWindow is the minimum spacing between full refreshes that ask
	// the cloud to pull fresh data from the device.
	IngestionWindow time.Duration
}

// Connection is a machine.Connection mediated by the cloud service for one device.
type Connection struct {
	client   *Client
	token    string
	deviceID string

	window time.Duration
	ingest *rate.Limiter
	now    func() time.Time

	state machine.ConnectionState
}

var _ machine.Connection = (*Connection)(nil)

// Dial triggers a data ingestion on the cloud and then bootstraps the
// connection state from device details, telemetry and configuration.
func Dial(ctx context.Context, client *Client, token, deviceID string, opts ConnectionOptions) *Connection {
	c := newConnection(client, token, deviceID, opts, time.Now)
	c.state = c.fullRefresh(ctx)
	return c
}

func newConnection(client *Client, token, deviceID string, opts ConnectionOptions, now func() time.Time) *Connection {
	if opts.IngestionWindow <= 0 {
		opts.IngestionWindow = defaultIngestionWindow
	}
	return &Connection{
		client:   client,
		token:    token,
		deviceID: deviceID,
		window:   opts.IngestionWindow,
		now:      now,
	}
}

func (c *Connection) Kind() machine.Kind {
	return machine.KindCloud
}

func (c *Connection) ConnectionState() machine.ConnectionState {
	return c.state
}

// RefreshData runs a full ingestion refresh at most once per window. Between
// full refreshes only details, telemetry and statistics are re-read and the
// cached configuration is reused. Recovery from the error state always runs
// the full refresh.
func (c *Connection) RefreshData(ctx context.Context) {
	if !c.state.IsConnected() || c.ingest.AllowN(c.now(), 1) {
		c.state = c.fullRefresh(ctx)
		return
	}

	name, active, err := c.client.DeviceDetails(ctx, c.token, c.deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device", c.deviceID).Msg("Device details refresh failed")
		c.state = machine.Failed()
		return
	}
	state, stats, err := c.client.StateAndStatistics(ctx, c.token, c.deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device", c.deviceID).Msg("Telemetry refresh failed")
		c.state = machine.Failed()
		return
	}

	c.state = machine.Connected(name, active, state, *c.state.Configuration, stats)
}

func (c *Connection) RefreshConfiguration(ctx context.Context) {
	if !c.state.IsConnected() {
		c.state = c.fullRefresh(ctx)
		return
	}

	configuration, err := c.client.PreviewConfiguration(ctx, c.token, c.deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device", c.deviceID).Msg("Configuration refresh failed")
		c.state = machine.Failed()
		return
	}
	c.state = machine.Connected(c.state.Name, c.state.Active, *c.state.State, configuration, *c.state.Statistics)
}

// fullRefresh requests a data ingestion and bootstraps from scratch. It
// restarts the ingestion window whether or not it succeeds.
func (c *Connection) fullRefresh(ctx context.Context) machine.ConnectionState {
	c.ingest = rate.NewLimiter(rate.Every(c.window), 1)
	c.ingest.AllowN(c.now(), 1)

	if err := c.client.RefreshDataIngestion(ctx, c.token, c.deviceID); err != nil {
		log.Warn().Err(err).Str("device", c.deviceID).Msg("Could not refresh data ingestion")
		return machine.Failed()
	}

	name, active, err := c.client.DeviceDetails(ctx, c.token, c.deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device", c.deviceID).Msg("First connection failed")
		return machine.Failed()
	}
	state, stats, err := c.client.StateAndStatistics(ctx, c.token, c.deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device", c.deviceID).Msg("First connection failed")
		return machine.Failed()
	}
	configuration, err := c.client.PreviewConfiguration(ctx, c.token, c.deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device", c.deviceID).Msg("First connection failed")
		return machine.Failed()
	}

	log.Info().Str("device", c.deviceID).Str("name", name).Msg("Cloud connection established")
	return machine.Connected(name, active, state, configuration, stats)
}

// SendMachineConfiguration replaces the device's single configuration slot;
// the cloud has no notion of named archives.
func (c *Connection) SendMachineConfiguration(ctx context.Context, _ string, data []byte) error {
	return c.client.PutCurrentMachine(ctx, c.token, c.deviceID, data)
}

func (c *Connection) GetMachineConfiguration(ctx context.Context, _ string) ([]byte, error) {
	return c.client.CurrentMachine(ctx, c.token, c.deviceID)
}

// SelectMachineConfiguration is a no-op: the cloud service does not expose
// archive selection. It reports success so the operator is not shown a
// failure for a capability the backend simply lacks.
func (c *Connection) SelectMachineConfiguration(context.Context, string) error {
	return nil
}

func (c *Connection) StartProgram(ctx context.Context, program uint16) error {
	return c.client.Start(ctx, c.token, c.deviceID, program)
}

func (c *Connection) Restart(ctx context.Context) error {
	return c.client.Restart(ctx, c.token, c.deviceID)
}

func (c *Connection) Pause(ctx context.Context) error {
	return c.client.Pause(ctx, c.token, c.deviceID)
}

func (c *Connection) Stop(ctx context.Context) error {
	return c.client.Stop(ctx, c.token, c.deviceID)
}

func (c *Connection) ClearAlarms(ctx context.Context) error {
	return c.client.ClearAlarms(ctx, c.token, c.deviceID)
}
