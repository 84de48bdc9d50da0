package controller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"laundry-control-backend/internal/discovery"
	"laundry-control-backend/internal/machine"
)

// connect replaces the active connection only when the new one bootstrapped.
// A failed attempt leaves the previous connection in place.
func (c *Controller) connect(conn machine.Connection) {
	if conn == nil || !conn.ConnectionState().IsConnected() {
		log.Warn().Msg("Connection attempt failed")
		c.notify(NotifyConnectionFailed)
		return
	}

	log.Info().Str("kind", string(conn.Kind())).Str("name", conn.ConnectionState().Name).Msg("Connected")
	c.conn = conn
	c.quickAt = time.Time{}
	c.notify(NotifyConnected)
	c.emitState()
	c.lastRefresh = time.Now()
}

func (c *Controller) sendConfiguration(ctx context.Context, archive string, data []byte) {
	if err := c.conn.SendMachineConfiguration(ctx, archive, data); err != nil {
		log.Error().Err(err).Str("archive", archive).Msg("Unable to upload machine configuration")
		c.notify(NotifyUploadFailed)
	} else {
		c.notify(NotifyConfigurationUploaded)
	}
	c.scheduleQuickRefresh()
}

func (c *Controller) getConfiguration(ctx context.Context, archive string) {
	data, err := c.conn.GetMachineConfiguration(ctx, archive)
	if err != nil {
		log.Error().Err(err).Str("archive", archive).Msg("Unable to download machine configuration")
		c.notify(NotifyDownloadFailed)
		return
	}
	c.emit(TopicRemoteConfiguration, data)
	c.notify(NotifyConfigurationLoaded)
}

func (c *Controller) selectConfiguration(ctx context.Context, archive string) {
	if err := c.conn.SelectMachineConfiguration(ctx, archive); err != nil {
		log.Error().Err(err).Str("archive", archive).Msg("Unable to select machine configuration")
		c.notify(NotifyFailure)
		return
	}
	c.conn.RefreshConfiguration(ctx)
	c.notify(NotifySuccess)
	c.scheduleQuickRefresh()
}

// control reports a failed verb. A quick refresh is scheduled either way.
func (c *Controller) control(kind Kind, err error) {
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Control command failed")
		c.notify(NotifyFailure)
	}
	c.scheduleQuickRefresh()
}

func (c *Controller) savePreferences(ctx context.Context, language, machineKind string) {
	if c.deps.Preferences == nil {
		c.notify(NotifyFailure)
		return
	}

	values := []struct{ key, value string }{
		{PrefLanguage, language},
		{PrefMachineKind, machineKind},
	}
	for _, v := range values {
		if v.value == "" {
			continue
		}
		if err := c.deps.Preferences.Set(ctx, v.key, v.value); err != nil {
			log.Error().Err(err).Str("key", v.key).Msg("Unable to save preference")
			c.notify(NotifyFailure)
			return
		}
	}
	c.notify(NotifyPreferencesSaved)
}

// loadPreferences publishes the saved settings and restores the cloud session
// from a stored token. Load failures count as missing preferences.
func (c *Controller) loadPreferences(ctx context.Context) {
	if c.deps.Preferences == nil {
		return
	}

	var saved SavedPreferences
	saved.Language = c.preference(ctx, PrefLanguage)
	saved.MachineKind = c.preference(ctx, PrefMachineKind)
	c.emit(TopicSavedPreferences, saved)

	if token := c.preference(ctx, PrefCloudToken); token != "" && c.deps.Cloud != nil {
		log.Info().Msg("Restoring saved cloud session")
		go func() {
			devices, err := c.deps.Cloud.Devices(ctx, token)
			c.post(ctx, loginResult{token: token, devices: devices, devicesErr: err, restored: true})
		}()
	}
}

func (c *Controller) preference(ctx context.Context, key string) string {
	value, ok, err := c.deps.Preferences.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Error while loading preferences")
		return ""
	}
	if !ok {
		return ""
	}
	return value
}

// login authorizes in the background and posts the outcome to the loop.
func (c *Controller) login(ctx context.Context, username, password string) {
	if c.deps.Cloud == nil {
		c.notify(NotifyNetworkError)
		return
	}

	log.Info().Str("username", username).Msg("Login attempt")
	go func() {
		token, err := c.deps.Cloud.Authorize(ctx, username, password)
		if err != nil {
			c.post(ctx, loginResult{err: err})
			return
		}
		devices, devErr := c.deps.Cloud.Devices(ctx, token)
		c.post(ctx, loginResult{token: token, devices: devices, devicesErr: devErr})
	}()
}

// search runs a discovery poll in the background.
func (c *Controller) search(ctx context.Context) {
	if c.deps.Discovery == nil {
		log.Warn().Msg("Discovery is not configured")
		return
	}

	log.Info().Msg("Searching for machines")
	go func() {
		addrs, err := c.deps.Discovery.Poll(ctx)
		c.post(ctx, discoveryResult{addresses: addrs, err: err})
	}()
}

func (c *Controller) post(ctx context.Context, res result) {
	select {
	case c.results <- res:
	case <-ctx.Done():
	}
}

// result is the outcome of a background task, applied on the loop goroutine.
type result interface {
	apply(ctx context.Context, c *Controller)
}

type loginResult struct {
	token      string
	err        error
	devices    []machine.Device
	devicesErr error
	restored   bool
}

func (r loginResult) apply(ctx context.Context, c *Controller) {
	if r.err != nil {
		log.Warn().Err(r.err).Msg("Login failed")
		if errors.Is(r.err, machine.ErrValue) {
			c.notify(NotifyInvalidCredentials)
		} else {
			c.notify(NotifyNetworkError)
		}
		return
	}

	if r.restored && r.devicesErr != nil {
		log.Warn().Err(r.devicesErr).Msg("Saved cloud token rejected")
		return
	}

	c.emit(TopicCloudLogin, r.token)
	if r.devicesErr != nil {
		log.Warn().Err(r.devicesErr).Msg("Unable to list cloud devices")
		return
	}
	c.emit(TopicCloudDevices, r.devices)

	if !r.restored && c.deps.Preferences != nil {
		if err := c.deps.Preferences.Set(ctx, PrefCloudToken, r.token); err != nil {
			log.Error().Err(err).Msg("Unable to save cloud token")
		}
	}
	log.Info().Int("devices", len(r.devices)).Msg("Login successful")
}

type discoveryResult struct {
	addresses []discovery.Address
	err       error
}

func (r discoveryResult) apply(ctx context.Context, c *Controller) {
	if r.err != nil {
		log.Warn().Err(r.err).Msg("Discovery failed")
		return
	}
	log.Info().Int("count", len(r.addresses)).Msg("Machines found")
	c.emit(TopicDiscoveredAddresses, r.addresses)
}
