// Package controller runs the single-threaded session loop: it receives
// operator commands, drives the active machine connection, schedules refreshes
// and emits every outbound event.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"laundry-control-backend/internal/discovery"
	"laundry-control-backend/internal/machine"
)

// Config holds the loop cadence.
type Config struct {
	PollInterval         time.Duration
	QuickRefreshDelay    time.Duration
	LocalRefreshInterval time.Duration
	CloudRefreshInterval time.Duration
	CommandBuffer        int
}

// DefaultConfig returns the standard cadence: a 100 ms poll, a 300 ms quick
// refresh debounce and regular refreshes every 1 s (local) or 5 s (cloud).
func DefaultConfig() Config {
	return Config{
		PollInterval:         100 * time.Millisecond,
		QuickRefreshDelay:    300 * time.Millisecond,
		LocalRefreshInterval: time.Second,
		CloudRefreshInterval: 5 * time.Second,
		CommandBuffer:        32,
	}
}

// Preferences is the key/value store for operator settings.
type Preferences interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CloudAPI is the subset of the cloud client used for login.
type CloudAPI interface {
	Authorize(ctx context.Context, user, password string) (string, error)
	Devices(ctx context.Context, token string) ([]machine.Device, error)
}

// Discoverer finds machines on the local network.
type Discoverer interface {
	Poll(ctx context.Context) ([]discovery.Address, error)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Emitter     Emitter
	Preferences Preferences
	Cloud       CloudAPI
	Discovery   Discoverer
	DialLocal   func(ctx context.Context, address string) machine.Connection
	DialCloud   func(ctx context.Context, token, deviceID string) machine.Connection
}

type envelope struct {
	cmd Command
	err error
}

// Controller owns the active connection and every refresh timestamp. All of
// its state is touched only by the goroutine running Run.
type Controller struct {
	cfg  Config
	deps Deps

	commands chan envelope
	results  chan result

	conn        machine.Connection
	lastRefresh time.Time
	quickAt     time.Time
}

// New creates a Controller. Zero-valued cadence fields fall back to DefaultConfig.
func New(cfg Config, deps Deps) *Controller {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.QuickRefreshDelay <= 0 {
		cfg.QuickRefreshDelay = def.QuickRefreshDelay
	}
	if cfg.LocalRefreshInterval <= 0 {
		cfg.LocalRefreshInterval = def.LocalRefreshInterval
	}
	if cfg.CloudRefreshInterval <= 0 {
		cfg.CloudRefreshInterval = def.CloudRefreshInterval
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = def.CommandBuffer
	}

	return &Controller{
		cfg:      cfg,
		deps:     deps,
		commands: make(chan envelope, cfg.CommandBuffer),
		results:  make(chan result, cfg.CommandBuffer),
	}
}

// Submit decodes a raw command and queues it. A payload that fails to decode
// is still queued so the loop can reject it with a notification; the
// returned error only reports that the queue could not be reached.
func (c *Controller) Submit(ctx context.Context, raw []byte) error {
	cmd, err := DecodeCommand(raw)
	return c.enqueue(ctx, envelope{cmd: cmd, err: err})
}

// Send queues an already decoded command.
func (c *Controller) Send(ctx context.Context, cmd Command) error {
	return c.enqueue(ctx, envelope{cmd: cmd})
}

func (c *Controller) enqueue(ctx context.Context, env envelope) error {
	select {
	case c.commands <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the session until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	log.Info().Msg("Starting controller loop")

	c.emitState()
	c.loadPreferences(ctx)
	c.lastRefresh = time.Now()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Controller loop stopped")
			return ctx.Err()
		case env := <-c.commands:
			c.dispatch(ctx, env)
		case res := <-c.results:
			res.apply(ctx, c)
		case <-ticker.C:
		}

		c.maybeRefresh(ctx, time.Now())
	}
}

// maybeRefresh runs a pending quick refresh once it is old enough, otherwise
// a regular refresh when the interval for the connection kind has elapsed.
func (c *Controller) maybeRefresh(ctx context.Context, now time.Time) {
	if c.conn == nil {
		return
	}

	if !c.quickAt.IsZero() {
		if now.Sub(c.quickAt) >= c.cfg.QuickRefreshDelay {
			c.refresh(ctx, now)
			c.quickAt = time.Time{}
		}
		return
	}

	if now.Sub(c.lastRefresh) >= c.refreshInterval() {
		c.refresh(ctx, now)
	}
}

func (c *Controller) refresh(ctx context.Context, now time.Time) {
	c.conn.RefreshData(ctx)
	c.emitState()
	c.lastRefresh = now
}

func (c *Controller) refreshInterval() time.Duration {
	if c.conn.Kind() == machine.KindCloud {
		return c.cfg.CloudRefreshInterval
	}
	return c.cfg.LocalRefreshInterval
}

func (c *Controller) scheduleQuickRefresh() {
	c.quickAt = time.Now()
}

func (c *Controller) dispatch(ctx context.Context, env envelope) {
	if err := c.handle(ctx, env); err != nil {
		switch {
		case errors.Is(err, ErrMalformedCommand):
			log.Warn().Err(err).Msg("Rejected command")
			c.notify(NotifyInvalidCommand)
		case errors.Is(err, ErrNoConnection):
			log.Warn().Err(err).Str("kind", string(env.cmd.Kind)).Msg("Rejected command")
			c.notify(NotifyNoConnection)
		default:
			log.Error().Err(err).Str("kind", string(env.cmd.Kind)).Msg("Command failed")
		}
	}
}

func (c *Controller) handle(ctx context.Context, env envelope) error {
	if env.err != nil {
		return env.err
	}

	cmd := env.cmd
	if cmd.requiresConnection() && c.conn == nil {
		return fmt.Errorf("%s: %w", cmd.Kind, ErrNoConnection)
	}

	log.Debug().Str("kind", string(cmd.Kind)).Msg("Handling command")

	switch cmd.Kind {
	case KindRefresh:
		c.emitState()
	case KindConnectLocal:
		c.connect(c.deps.DialLocal(ctx, cmd.Address))
	case KindConnectCloud:
		c.connect(c.deps.DialCloud(ctx, cmd.Token, cmd.DeviceID))
	case KindCloudLogin:
		c.login(ctx, cmd.Username, cmd.Password)
	case KindSearchMachines:
		c.search(ctx)
	case KindSendConfiguration:
		c.sendConfiguration(ctx, cmd.Archive, cmd.Data)
	case KindGetConfiguration:
		c.getConfiguration(ctx, cmd.Archive)
	case KindSelectConfiguration:
		c.selectConfiguration(ctx, cmd.Archive)
	case KindStartProgram:
		c.control(cmd.Kind, c.conn.StartProgram(ctx, cmd.Program))
	case KindRestart:
		c.control(cmd.Kind, c.conn.Restart(ctx))
	case KindPause:
		c.control(cmd.Kind, c.conn.Pause(ctx))
	case KindStop:
		c.control(cmd.Kind, c.conn.Stop(ctx))
	case KindClearAlarms:
		c.control(cmd.Kind, c.conn.ClearAlarms(ctx))
	case KindSetPreferences:
		c.savePreferences(ctx, cmd.Language, cmd.MachineKind)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedCommand, cmd.Kind)
	}
	return nil
}

func (c *Controller) emit(topic string, payload any) {
	if c.deps.Emitter == nil {
		return
	}
	c.deps.Emitter.Emit(topic, payload)
}

func (c *Controller) notify(key string) {
	c.emit(TopicNotification, key)
}

// emitState publishes the current connection state, or nil when there is none.
func (c *Controller) emitState() {
	if c.conn == nil {
		c.emit(TopicStateUpdate, nil)
		return
	}
	c.emit(TopicStateUpdate, c.conn.ConnectionState())
}
