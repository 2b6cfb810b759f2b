package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/protocol"
)

type recorded struct {
	path        string
	contentType string
	session     string
	body        string
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recorded
	reply    func(path string) (int, string)
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.requests = append(b.requests, recorded{
		path:        r.URL.Path,
		contentType: r.Header.Get("Content-Type"),
		session:     r.Header.Get(protocol.HeaderSession),
		body:        string(body),
	})
	b.mu.Unlock()

	status, text := http.StatusOK, "ok"
	if b.reply != nil {
		status, text = b.reply(r.URL.Path)
	}
	w.WriteHeader(status)
	io.WriteString(w, text)
}

func (b *fakeBackend) last() recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

func newTestClient(t *testing.T, b *fakeBackend) *Client {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, SessionID: "sess-1", Timeout: time.Second}, log.NewNopLogger())
	require.NoError(t, err)
	return c
}

func TestMoveBody(t *testing.T) {
	b := &fakeBackend{}
	c := newTestClient(t, b)

	ack, err := c.Move(context.Background(), protocol.CommandTurnLeft, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "ok", ack)

	got := b.last()
	assert.Equal(t, "/move", got.path)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, "sess-1", got.session)
	assert.JSONEq(t, `[{"command":"turnLeft","speed":0.5}]`, got.body)
}

func TestGoToAndMotorBodies(t *testing.T) {
	b := &fakeBackend{}
	c := newTestClient(t, b)

	_, err := c.GoToCoordinates(context.Background(), "-37.5", "80.0")
	require.NoError(t, err)
	assert.Equal(t, "/goToCoordinates", b.last().path)
	assert.JSONEq(t, `[{"lat_py":"-37.5","long_py":"80.0"}]`, b.last().body)

	_, err = c.SwitchMotor(context.Background(), protocol.MotorHeavePlate)
	require.NoError(t, err)
	assert.Equal(t, "/switchMotor", b.last().path)
	assert.Equal(t, "Heave-Plate", b.last().body)

	require.NoError(t, c.RequestLiveControl(context.Background(), true))
	assert.JSONEq(t, `{"enable":true}`, b.last().body)
}

func TestNon2xxIsTransportError(t *testing.T) {
	b := &fakeBackend{reply: func(string) (int, string) {
		return http.StatusInternalServerError, "motor controller offline"
	}}
	c := newTestClient(t, b)

	_, err := c.Move(context.Background(), protocol.CommandMoveForward, 1)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "moveForward", te.Command)
	assert.Equal(t, http.StatusInternalServerError, te.Status)
	assert.Equal(t, "moveForward failed: 500 motor controller offline", te.Error())
}

func TestUnreachableBackend(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, log.NewNopLogger())
	require.NoError(t, err)

	err = c.OpenWindow(context.Background())
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.Status)
}

func TestPollingEndpoints(t *testing.T) {
	b := &fakeBackend{reply: func(path string) (int, string) {
		switch path {
		case "/getNumUsers":
			return 200, "3\n"
		case "/getDirection":
			return 200, "270"
		case "/getCoordinates":
			return 200, `{"lat":37.2284,"long":-80.4234}`
		}
		return 404, ""
	}}
	c := newTestClient(t, b)
	ctx := context.Background()

	n, err := c.NumUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(3), n)

	d, err := c.Direction(ctx)
	require.NoError(t, err)
	assert.Equal(t, 270.0, d)

	pos, err := c.Coordinates(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.Coordinates{Latitude: 37.2284, Longitude: -80.4234}, pos)
}

func TestNumUsersRejectsGarbage(t *testing.T) {
	b := &fakeBackend{reply: func(string) (int, string) { return 200, "many" }}
	c := newTestClient(t, b)

	_, err := c.NumUsers(context.Background())
	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestCloseWindowIsBeacon(t *testing.T) {
	release := make(chan struct{})
	hit := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit <- r.URL.Path
		<-release
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, log.NewNopLogger())
	require.NoError(t, err)

	start := time.Now()
	c.CloseWindow()
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	assert.Equal(t, "/closeWindow", <-hit)
	assert.False(t, c.Flush(20*time.Millisecond))

	close(release)
	assert.True(t, c.Flush(2*time.Second))
}
