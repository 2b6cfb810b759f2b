package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/oplog"
	"github.com/daohu527/vconsole/pkg/session"
	"github.com/daohu527/vconsole/pkg/shadow"
)

type fakeConsole struct {
	mu     sync.Mutex
	log    *oplog.Log
	view   session.View
	edges  []session.Edge
	motors []string
	err    error
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{
		log:  oplog.New(10, log.NewNopLogger()),
		view: session.View{SessionID: "ui", Speed: 50},
	}
}

func (f *fakeConsole) View() session.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeConsole) Log() *oplog.Log { return f.log }

func (f *fakeConsole) OnEdge(e session.Edge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edges = append(f.edges, e)
	return f.err
}

func (f *fakeConsole) SetSpeed(v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view.Speed = v
	return f.err
}

func (f *fakeConsole) ToggleControl() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view.ControlHeld = !f.view.ControlHeld
	return f.view.ControlHeld, f.err
}

func (f *fakeConsole) ClickMap(p shadow.Position) (session.WaypointFields, error) {
	return session.WaypointFields{Latitude: "1.000000", Longitude: "2.000000", LatHemisphere: session.North, LongHemisphere: session.East}, f.err
}

func (f *fakeConsole) ConfirmWaypoint(rawLat, rawLong string, latH, longH session.Hemisphere) error {
	if rawLat == "bad" {
		return &session.ValidationError{Field: "latitude", Value: rawLat, Reason: "not a number"}
	}
	return f.err
}

func (f *fakeConsole) DeleteWaypoint() error { return f.err }

func (f *fakeConsole) SwitchMotor(motor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.motors = append(f.motors, motor)
	return f.err
}

func newTestServer(t *testing.T) (*Server, *fakeConsole, *httptest.Server) {
	t.Helper()
	c := newFakeConsole()
	s := New(Config{StreamPeriod: 10 * time.Millisecond}, c, log.NewNopLogger())
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, c, ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthzAndMetrics(t *testing.T) {
	_, _, ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/healthz", "").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/metrics", "").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, ts, http.MethodPost, "/api/v1/view", "").StatusCode)
}

func TestInput(t *testing.T) {
	_, c, ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/api/v1/input", `{"source":"key","key":38,"phase":"down"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, c.edges, 1)
	assert.Equal(t, session.Edge{Source: session.SourceKey, Key: session.KeyUp, Phase: session.Down}, c.edges[0])

	resp = do(t, ts, http.MethodPost, "/api/v1/input", `{"source":"sideways","phase":"down"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/v1/input", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSpeedRequiresValue(t *testing.T) {
	_, c, ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, do(t, ts, http.MethodPut, "/api/v1/speed", `{}`).StatusCode)

	resp := do(t, ts, http.MethodPut, "/api/v1/speed", `{"value":70}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 70, c.View().Speed)
}

func TestToggleControl(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/api/v1/control/toggle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["control_held"])
}

func TestWaypointRoutes(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/api/v1/waypoint/click", `{"lat":1,"lng":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fields session.WaypointFields
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fields))
	assert.Equal(t, session.North, fields.LatHemisphere)

	assert.Equal(t, http.StatusBadRequest,
		do(t, ts, http.MethodPost, "/api/v1/waypoint/click", `{"lat":1}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		do(t, ts, http.MethodPost, "/api/v1/waypoint/confirm", `{"lat":"bad","long":"2","lat_dir":"N","long_dir":"E"}`).StatusCode)
	assert.Equal(t, http.StatusAccepted,
		do(t, ts, http.MethodPost, "/api/v1/waypoint/confirm", `{"lat":"1","long":"2","lat_dir":"n","long_dir":"e"}`).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodDelete, "/api/v1/waypoint", "").StatusCode)
}

func TestClosedSessionIsUnavailable(t *testing.T) {
	_, c, ts := newTestServer(t)
	c.err = session.ErrClosed

	resp := do(t, ts, http.MethodPost, "/api/v1/motor", `{"name":"Wave-Glider"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestLogLimit(t *testing.T) {
	_, c, ts := newTestServer(t)
	c.log.Info("one")
	c.log.Sent("two")
	c.log.Received("three")

	resp := do(t, ts, http.MethodGet, "/api/v1/log?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []oplog.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Text)
	assert.Equal(t, "three", entries[1].Text)

	assert.Equal(t, http.StatusBadRequest, do(t, ts, http.MethodGet, "/api/v1/log?limit=x", "").StatusCode)
}

func TestStreamPushesViewAndLog(t *testing.T) {
	s, c, ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.run(ctx)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first StreamMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "view", first.Kind)
	require.NotNil(t, first.View)
	assert.Equal(t, "ui", first.View.SessionID)

	require.Eventually(t, func() bool { return s.hub.count() == 1 }, time.Second, 5*time.Millisecond)
	c.log.Received("Robot stop")

	var next StreamMessage
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "log", next.Kind)
	require.NotNil(t, next.Entry)
	assert.Equal(t, "Robot stop", next.Entry.Text)
}
