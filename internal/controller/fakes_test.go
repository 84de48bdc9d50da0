package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"laundry-control-backend/internal/discovery"
	"laundry-control-backend/internal/machine"
)

type event struct {
	topic   string
	payload any
}

// recorder is an Emitter that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Emit(topic string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{topic: topic, payload: payload})
}

func (r *recorder) payloads(topic string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.topic == topic {
			out = append(out, e.payload)
		}
	}
	return out
}

func (r *recorder) notifications() []string {
	var out []string
	for _, p := range r.payloads(TopicNotification) {
		out = append(out, p.(string))
	}
	return out
}

func (r *recorder) hasNotification(key string) bool {
	for _, n := range r.notifications() {
		if n == key {
			return true
		}
	}
	return false
}

// fakeConn is a scripted machine.Connection.
type fakeConn struct {
	mu            sync.Mutex
	kind          machine.Kind
	state         machine.ConnectionState
	refreshes     int
	refreshTimes  []time.Time
	configRefresh int
	calls         []string
	commandErr    error
	selectErr     error
	data          []byte
}

func connectedConn(kind machine.Kind, name string) *fakeConn {
	return &fakeConn{
		kind:  kind,
		state: machine.Connected(name, true, machine.State{}, machine.Configuration{Name: name}, machine.Statistics{}),
	}
}

func failedConn() *fakeConn {
	return &fakeConn{kind: machine.KindLocal, state: machine.Failed()}
}

func (f *fakeConn) Kind() machine.Kind { return f.kind }

func (f *fakeConn) RefreshData(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	f.refreshTimes = append(f.refreshTimes, time.Now())
}

func (f *fakeConn) RefreshConfiguration(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configRefresh++
}

func (f *fakeConn) ConnectionState() machine.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.commandErr
}

func (f *fakeConn) SendMachineConfiguration(_ context.Context, archive string, data []byte) error {
	f.mu.Lock()
	f.data = data
	f.mu.Unlock()
	return f.record("send:" + archive)
}

func (f *fakeConn) GetMachineConfiguration(_ context.Context, archive string) ([]byte, error) {
	if err := f.record("get:" + archive); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, nil
}

func (f *fakeConn) SelectMachineConfiguration(_ context.Context, archive string) error {
	f.record("select:" + archive)
	return f.selectErr
}

func (f *fakeConn) StartProgram(context.Context, uint16) error { return f.record("start") }
func (f *fakeConn) Restart(context.Context) error              { return f.record("restart") }
func (f *fakeConn) Pause(context.Context) error                { return f.record("pause") }
func (f *fakeConn) Stop(context.Context) error                 { return f.record("stop") }
func (f *fakeConn) ClearAlarms(context.Context) error          { return f.record("clear_alarms") }

func (f *fakeConn) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeConn) configRefreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configRefresh
}

func (f *fakeConn) lastRefreshAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.refreshTimes) == 0 {
		return time.Time{}
	}
	return f.refreshTimes[len(f.refreshTimes)-1]
}

func (f *fakeConn) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// memPrefs is an in-memory Preferences.
type memPrefs struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

func newMemPrefs(kv ...string) *memPrefs {
	p := &memPrefs{values: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		p.values[kv[i]] = kv[i+1]
	}
	return p
}

func (p *memPrefs) Get(_ context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return "", false, p.getErr
	}
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *memPrefs) Set(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return nil
}

func (p *memPrefs) value(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[key]
}

// fakeCloud answers logins for a single account.
type fakeCloud struct {
	password string
	token    string
	devices  []machine.Device
	netDown  bool
}

func (f *fakeCloud) Authorize(_ context.Context, _, password string) (string, error) {
	if f.netDown {
		return "", machine.NetworkError(errors.New("unreachable"))
	}
	if password != f.password {
		return "", machine.ValueError("bad credentials")
	}
	return f.token, nil
}

func (f *fakeCloud) Devices(_ context.Context, token string) ([]machine.Device, error) {
	if token != f.token {
		return nil, machine.ValueError("unauthorized")
	}
	return f.devices, nil
}

type fakeDiscoverer struct {
	addrs []discovery.Address
}

func (f fakeDiscoverer) Poll(context.Context) ([]discovery.Address, error) {
	return f.addrs, nil
}

// dialer hands out scripted connections in order.
type dialer struct {
	mu    sync.Mutex
	conns []machine.Connection
	addrs []string
}

func (d *dialer) next(addr string) machine.Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addrs = append(d.addrs, addr)
	if len(d.conns) == 0 {
		return failedConn()
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c
}

func (d *dialer) local(_ context.Context, address string) machine.Connection {
	return d.next(address)
}

func (d *dialer) cloud(_ context.Context, token, deviceID string) machine.Connection {
	return d.next(token + "/" + deviceID)
}

// testConfig uses a fast poll and a regular refresh far in the future so
// tests only observe refreshes they trigger.
func testConfig() Config {
	return Config{
		PollInterval:         10 * time.Millisecond,
		QuickRefreshDelay:    300 * time.Millisecond,
		LocalRefreshInterval: time.Hour,
		CloudRefreshInterval: time.Hour,
	}
}

func startController(t *testing.T, cfg Config, deps Deps) *Controller {
	t.Helper()
	c := New(cfg, deps)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}
