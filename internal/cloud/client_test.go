package cloud

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-control-backend/internal/machine"
)

func TestAuthorize(t *testing.T) {
	fake := newFakeCloud()
	_, client := fake.start(t)

	token, err := client.Authorize(context.Background(), "operator", "secret")
	require.NoError(t, err)
	assert.Equal(t, testToken, token)

	_, err = client.Authorize(context.Background(), "operator", "wrong")
	assert.True(t, errors.Is(err, machine.ErrValue), "bad credentials must be a value error")
}

func TestAuthorize_ResponseShapes(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{name: "Missing access_token", status: http.StatusOK, body: `{"token_type":"bearer"}`, expected: machine.ErrValue},
		{name: "Unparsable body", status: http.StatusOK, body: `<html>`, expected: machine.ErrProtocol},
		{name: "Server error", status: http.StatusInternalServerError, body: ``, expected: machine.ErrValue},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(Options{AuthURL: server.URL})
			_, err := client.Authorize(context.Background(), "u", "p")
			assert.True(t, errors.Is(err, tc.expected), "got %v", err)
		})
	}
}

func TestAuthorize_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := NewClient(Options{AuthURL: server.URL})
	_, err := client.Authorize(context.Background(), "u", "p")

	assert.True(t, errors.Is(err, machine.ErrNetwork))
}

func TestDevicesAndDetails(t *testing.T) {
	fake := newFakeCloud()
	_, client := fake.start(t)
	ctx := context.Background()

	devices, err := client.Devices(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, []machine.Device{{ID: "dev-1", Name: "Lavanderia 1"}}, devices)

	name, connected, err := client.DeviceDetails(ctx, testToken, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "Lavanderia 1", name)
	assert.True(t, connected)

	_, err = client.Devices(ctx, "expired")
	assert.True(t, errors.Is(err, machine.ErrValue))
}

func TestStateAndStatistics_QueriesLastSecond(t *testing.T) {
	fake := newFakeCloud()
	_, client := fake.start(t)
	client.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 5, 0, time.UTC) }

	state, stats, err := client.StateAndStatistics(context.Background(), testToken, "dev-1")

	require.NoError(t, err)
	assert.Equal(t, uint16(5), state.Credit)
	assert.True(t, state.PortholeOpen)
	assert.Equal(t, uint32(120), stats.Cycles)
	assert.Equal(t, "from=2024-03-01T10%3A00%3A04Z&to=2024-03-01T10%3A00%3A05Z", fake.query())
}

func TestStateAndStatistics_GarbledValuesDefaultToZero(t *testing.T) {
	fake := newFakeCloud()
	fake.samples = []stateSample{
		{Name: "cycles", Value: "abc"},
		{Name: "temperature", Value: "-3"},
		{Name: "speed", Value: "800"},
		{Name: "unknown_metric", Value: "1"},
	}
	_, client := fake.start(t)

	state, stats, err := client.StateAndStatistics(context.Background(), testToken, "dev-1")

	require.NoError(t, err)
	assert.Equal(t, uint32(0), stats.Cycles)
	assert.Equal(t, uint16(0), state.Temperature)
	assert.Equal(t, uint16(800), state.Speed)
}

func TestPreviewConfiguration(t *testing.T) {
	fake := newFakeCloud()
	_, client := fake.start(t)

	config, err := client.PreviewConfiguration(context.Background(), testToken, "dev-1")

	require.NoError(t, err)
	assert.Equal(t, "Lavatrice", config.Name)
	assert.Equal(t, "1.2", config.AppVersion)
	assert.Equal(t, "7", config.MachineVersion)
	assert.Equal(t, []machine.ProgramPreview{{Name: "Cotone", WashType: 1}, {Name: "Lana", WashType: 2}}, config.Programs)
}

func TestCurrentMachine_RoundTrip(t *testing.T) {
	fake := newFakeCloud()
	_, client := fake.start(t)
	ctx := context.Background()
	payload := []byte("machine-config-v2")

	require.NoError(t, client.PutCurrentMachine(ctx, testToken, "dev-1", payload))
	got, err := client.CurrentMachine(ctx, testToken, "dev-1")

	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWrite_ErrorsListIsServerError(t *testing.T) {
	fake := newFakeCloud()
	fake.writeErrors = []string{"device offline", "second"}
	_, client := fake.start(t)

	err := client.PutCurrentMachine(context.Background(), testToken, "dev-1", []byte{1})

	require.Error(t, err)
	assert.True(t, errors.Is(err, machine.ErrServer))
	assert.Contains(t, err.Error(), "device offline")
}

func TestWrite_UndecodableResponseIsJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(Options{APIURL: server.URL})
	err := client.Pause(context.Background(), testToken, "dev-1")

	assert.True(t, errors.Is(err, machine.ErrJSON))
}

func TestCommandVerbs(t *testing.T) {
	fake := newFakeCloud()
	_, client := fake.start(t)
	ctx := context.Background()

	require.NoError(t, client.Start(ctx, testToken, "dev-1", 4))
	require.NoError(t, client.Restart(ctx, testToken, "dev-1"))
	require.NoError(t, client.Pause(ctx, testToken, "dev-1"))
	require.NoError(t, client.Stop(ctx, testToken, "dev-1"))
	require.NoError(t, client.ClearAlarms(ctx, testToken, "dev-1"))

	assert.Equal(t, []string{"start", "start", "pause", "stop", "clear_alarms"}, fake.writeNames())
	assert.Equal(t, "4", fake.write(0).Values[0].Value)
	assert.Equal(t, "configuration", fake.write(0).Name)
}
