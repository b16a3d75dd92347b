package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apisguard/edge/pkg/clips"
	"github.com/apisguard/edge/pkg/hub"
)

type fakeControl struct {
	armed      bool
	detections int
}

func (f *fakeControl) Status() Status {
	return Status{Armed: f.armed, UptimeSec: 42, DetectionsToday: f.detections}
}

func (f *fakeControl) SetArmed(armed bool) { f.armed = armed }

func (f *fakeControl) Health() Health {
	return Health{Status: "ok", Temp: 51.5, StoragePct: 37}
}

func newTestServer(t *testing.T) (*Server, *fakeControl, *clips.Store) {
	t.Helper()
	store, err := clips.NewStore(t.TempDir(), 90, func(string) (float64, error) { return 0, nil })
	require.NoError(t, err)

	ctl := &fakeControl{armed: true}
	reg := prometheus.NewRegistry()
	s := New(ctl, store, hub.NewFrameBus(), hub.New("events"), reg)
	return s, ctl, store
}

func TestStatusEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/status", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.True(t, st.Armed)
	assert.Equal(t, 42, st.UptimeSec)
}

func TestArmDisarm(t *testing.T) {
	s, ctl, _ := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("POST", "/disarm", nil))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	assert.False(t, ctl.armed)

	resp, err = s.app.Test(httptest.NewRequest("POST", "/arm", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	assert.True(t, ctl.armed)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["armed"])
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 37, h.StoragePct)
}

func TestClipListingAndDownload(t *testing.T) {
	s, _, store := newTestServer(t)

	// Empty store lists as an empty array, not null.
	resp, err := s.app.Test(httptest.NewRequest("GET", "/clips", nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, "[]", string(raw))

	id := clips.NewID()
	meta := clips.Metadata{
		ID:          id,
		Timestamp:   time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
		DurationSec: 4,
		Frames:      2,
	}
	require.NoError(t, store.Save(meta, [][]byte{{0xff, 0xd8}, {0xff, 0xd9}}))

	resp, err = s.app.Test(httptest.NewRequest("GET", "/clips", nil))
	require.NoError(t, err)
	var list []clips.Metadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	resp, err = s.app.Test(httptest.NewRequest("GET", "/clips/"+id, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "video/x-motion-jpeg", resp.Header.Get("Content-Type"))
	raw, _ = io.ReadAll(resp.Body)
	assert.Len(t, raw, 4)
}

func TestClipNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/clips/does-not-exist", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestWebsocketUpgradeRequired(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/ws/events", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 426, resp.StatusCode)
}
