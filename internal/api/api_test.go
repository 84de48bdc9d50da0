package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"laundry-control-backend/internal/model"
	"laundry-control-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeSink records submitted commands.
type fakeSink struct {
	mu       sync.Mutex
	commands []string
	err      error
}

func (s *fakeSink) Submit(_ context.Context, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.commands = append(s.commands, string(raw))
	return nil
}

func (s *fakeSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// fakeDispatcher records push notification keys.
type fakeDispatcher struct {
	mu   sync.Mutex
	keys []string
}

func (d *fakeDispatcher) Dispatch(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, key)
}

func (d *fakeDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.keys...)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Preference{}, &model.PushSubscription{}))
	return store.NewGormStore(db)
}

type testEnv struct {
	hub    *Hub
	sink   *fakeSink
	push   *fakeDispatcher
	router *gin.Engine
}

func newTestEnv(t *testing.T, webpushOptions *webpush.Options) *testEnv {
	t.Helper()
	push := &fakeDispatcher{}
	hub := NewHub(time.Minute, push)
	sink := &fakeSink{}
	h := NewHandler(newTestStore(t), webpushOptions, hub, sink)
	router := NewRouter(h, RouterOptions{RateLimitPerSec: 1000, RateLimitBurst: 1000})
	return &testEnv{hub: hub, sink: sink, push: push, router: router}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	e.router.ServeHTTP(w, req)
	return w
}

var errQueueClosed = errors.New("controller stopped")
