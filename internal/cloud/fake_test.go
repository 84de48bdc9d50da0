package cloud

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const testToken = "tok-123"

// fakeCloud emulates the subset of the device-management API used by the client.
type fakeCloud struct {
	mu          sync.Mutex
	samples     []stateSample
	programs    string
	machine     string
	writeErrors []string
	fail        map[string]bool
	hits        map[string]int
	writes      []parameterWrite
	lastQuery   string
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		samples: []stateSample{
			{Name: "credit", Value: "5"},
			{Name: "cycles", Value: "120"},
			{Name: "porthole_open", Value: "true"},
		},
		programs: "Cotone,1,Lana,2",
		machine:  "AAEC",
		fail:     make(map[string]bool),
		hits:     make(map[string]int),
	}
}

func (f *fakeCloud) start(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)
	client := NewClient(Options{AuthURL: server.URL + "/auth", APIURL: server.URL + "/v1"})
	return server, client
}

func (f *fakeCloud) track(name string, w http.ResponseWriter, r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[name]++
	if r.Header.Get("Authorization") != "Bearer "+testToken && name != "token" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	if f.fail[name] {
		w.WriteHeader(http.StatusInternalServerError)
		return false
	}
	return true
}

func (f *fakeCloud) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		if !f.track("token", w, r) {
			return
		}
		r.ParseForm()
		if r.Form.Get("grant_type") != "password" || r.Form.Get("client_id") != "api" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Form.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": testToken})
	})
	mux.HandleFunc("GET /v1/devices", func(w http.ResponseWriter, r *http.Request) {
		if !f.track("devices", w, r) {
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"id": "dev-1", "name": "Lavanderia 1"}}})
	})
	mux.HandleFunc("GET /v1/devices/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !f.track("details", w, r) {
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"name": "Lavanderia 1", "is_connected": true}})
	})
	mux.HandleFunc("GET /v1/devices/{id}/states", func(w http.ResponseWriter, r *http.Request) {
		if !f.track("states", w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]any{"data": f.samples})
	})
	mux.HandleFunc("GET /v1/devices/{id}/parameters", func(w http.ResponseWriter, r *http.Request) {
		if !f.track("preview", w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"assets": []map[string]any{{
			"name": "configuration",
			"variables": []map[string]string{
				{"name": "name", "value": "Lavatrice"},
				{"name": "app_version", "value": "1.2"},
				{"name": "machine_version", "value": "7"},
				{"name": "programs", "value": f.programs},
			},
		}}})
	})
	mux.HandleFunc("POST /v1/devices/{id}/parameters", func(w http.ResponseWriter, r *http.Request) {
		if !f.track("write", w, r) {
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req parameterWrite
		json.Unmarshal(body, &req)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.writes = append(f.writes, req)
		value := req.Assets[0].Values[0]
		if value.Name == "machine" && value.Value != "" {
			f.machine = value.Value
		}
		echo := value.Value
		if value.Name == "machine" {
			echo = f.machine
		}
		json.NewEncoder(w).Encode(map[string]any{
			"assets": []map[string]any{{
				"name":      "configuration",
				"variables": []map[string]string{{"name": value.Name, "value": echo, "type": value.Type}},
			}},
			"errors": f.writeErrors,
		})
	})
	return mux
}

func (f *fakeCloud) hitCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[name]
}

func (f *fakeCloud) setFail(name string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = fail
}

func (f *fakeCloud) writeNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, w := range f.writes {
		names = append(names, w.Assets[0].Values[0].Name)
	}
	return names
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (f *fakeCloud) query() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func (f *fakeCloud) write(i int) parameterAsset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[i].Assets[0]
}
