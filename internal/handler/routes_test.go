package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/team-telnyx/demo-conference-node/internal/config"
	"github.com/team-telnyx/demo-conference-node/internal/core/event"
)

type telnyxRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (f *telnyxRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"data":{"id":"conf-1"}}`))
}

func (f *telnyxRecorder) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func testConfig(baseURL string) *config.ConferenceConfig {
	return &config.ConferenceConfig{
		AppName: "telnyx-conf",
		Telnyx: config.TelnyxConfig{
			APIVersion: config.APIVersionV2,
			BaseURL:    baseURL,
			APIAuthV2:  "token",
			WaitingURL: "https://example.com/wait.mp3",
			Timeout:    2 * time.Second,
		},
		IVR: config.IVRConfig{
			ConferenceName: "myconf",
			Voice:          "female",
			Language:       "en-US",
			DefaultRegion:  "US",
		},
		Worker: config.WorkerConfig{Shards: 2, QueueSize: 8},
	}
}

func newTestManager(t *testing.T) (*HandlerManager, *mux.Router, *telnyxRecorder) {
	t.Helper()
	fake := &telnyxRecorder{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	hm, err := NewHandlerManager(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)

	router := mux.NewRouter()
	hm.SetupAllRoutes(router)
	return hm, router, fake
}

func TestHandlerManager_Health(t *testing.T) {
	hm, router, _ := newTestManager(t)
	defer hm.Shutdown(context.Background())

	rec := get(router, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "telnyx-conf", body.App)
	assert.Equal(t, "no-conf", body.Conference)
}

func TestHandlerManager_WebhookFormsConference(t *testing.T) {
	hm, router, fake := newTestManager(t)

	rec := postWebhook(router, `{"data":{"event_type":"call.answered","payload":{"call_control_id":"leg-a","direction":"incoming","from":"+15550001","to":"+15550002"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, hm.Shutdown(context.Background()))

	assert.Equal(t, []string{
		"/v2/calls/leg-a/actions/speak",
		"/v2/conferences",
	}, fake.Paths())
	assert.Equal(t, "conf-1", hm.store.ConferenceID())
}

func TestHandlerManager_AdminRoutesReachService(t *testing.T) {
	hm, router, _ := newTestManager(t)
	defer hm.Shutdown(context.Background())

	assert.Equal(t, http.StatusNotFound, get(router, "/telnyx-conf/list").Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/telnyx-conf/mute?participant=leg-a").Code)
}

func TestHandlerManager_AdminRoutesRequireKeyWhenConfigured(t *testing.T) {
	fake := &telnyxRecorder{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.AdminSecretKey = "admin-secret"
	hm, err := NewHandlerManager(context.Background(), cfg)
	require.NoError(t, err)
	defer hm.Shutdown(context.Background())

	router := mux.NewRouter()
	hm.SetupAllRoutes(router)

	assert.Equal(t, http.StatusUnauthorized, get(router, "/telnyx-conf/list").Code)
	assert.Equal(t, http.StatusOK, get(router, "/health").Code)

	webhook := httptest.NewRequest(http.MethodPost, "/telnyx-conf/start", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, webhook)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerManager_JournalRouteNeedsDatabase(t *testing.T) {
	hm, router, _ := newTestManager(t)
	defer hm.Shutdown(context.Background())

	rec := get(router, "/telnyx-conf/journal?conference=conf-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerManager_UnparseableWebhookIsPublished(t *testing.T) {
	hm, router, fake := newTestManager(t)
	malformed := make(chan *event.ConferenceEvent, 1)
	require.NoError(t, hm.bus.Subscribe(event.EventMalformed, func(e *event.ConferenceEvent) { malformed <- e }))

	rec := postWebhook(router, `{"data":`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, hm.Shutdown(context.Background()))

	require.Len(t, malformed, 1)
	assert.NotEmpty(t, (<-malformed).ErrorText)
	assert.Empty(t, fake.Paths())
}
