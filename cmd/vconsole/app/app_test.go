package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daohu527/vconsole/cmd/vconsole/app/options"
	"github.com/daohu527/vconsole/pkg/journal"
	"github.com/daohu527/vconsole/pkg/log"
	genericoptions "github.com/daohu527/vconsole/pkg/options"
	"github.com/daohu527/vconsole/pkg/oplog"
	"github.com/daohu527/vconsole/pkg/transport"
)

func TestStatusPrintsLiveView(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/view", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"session_id":"s-1","intent":{"direction":"turnLeft","speed_fraction":0.5},"speed":50,
			"control_held":true,"vehicle":{"position":{"lat":-37.5,"lng":80.25},"heading":12,
			"battery_voltage":24.1,"battery_percent":71,"operational_state":"manual","active_user_count":2}}`))
	})
	mux.HandleFunc("/api/v1/log", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"id":"1","time":"2024-05-01T10:00:00Z","kind":"sent","text":"Turn left command sent"}]`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	var out bytes.Buffer
	require.NoError(t, printLive(context.Background(), &out, ts.URL, 5))

	s := out.String()
	assert.Contains(t, s, "s-1")
	assert.Contains(t, s, "turnLeft")
	assert.Contains(t, s, "-37.500000, 80.250000")
	assert.Contains(t, s, "Turn left command sent")
	assert.Contains(t, s, "held")
}

func TestStatusReportsAPIErrors(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	err := printLive(context.Background(), &bytes.Buffer{}, ts.URL, 5)
	assert.ErrorContains(t, err, "404")
}

func TestStatusReadsJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oplog.db")
	j, err := journal.Open(path, "s-9", log.NewNopLogger())
	require.NoError(t, err)
	l := oplog.New(10, log.NewNopLogger())
	l.Register(j.Listener())
	l.Received("Robot moving to (1.0000, 2.0000)")
	require.NoError(t, j.Close())

	var out bytes.Buffer
	require.NoError(t, printJournal(context.Background(), &out, path, 10))
	assert.Contains(t, out.String(), "s-9")
	assert.Contains(t, out.String(), "Robot moving to (1.0000, 2.0000)")
}

func TestTelemetrySourceFollowsMode(t *testing.T) {
	client, err := transport.NewClient(transport.Config{BaseURL: "http://127.0.0.1:5000"}, log.NewNopLogger())
	require.NoError(t, err)

	for _, mode := range []string{genericoptions.TelemetrySocket, genericoptions.TelemetryMQTT, genericoptions.TelemetryPoll} {
		opts := options.NewConsoleOptions()
		opts.Console.TelemetryMode = mode
		src, err := newTelemetrySource(opts, client, nil, log.NewNopLogger())
		require.NoError(t, err)
		assert.Equal(t, mode, src.Name())
	}

	opts := options.NewConsoleOptions()
	opts.Console.TelemetryMode = "carrier-pigeon"
	_, err = newTelemetrySource(opts, client, nil, log.NewNopLogger())
	assert.Error(t, err)
}

func TestConsoleOptionsValidate(t *testing.T) {
	opts := options.NewConsoleOptions()
	assert.NoError(t, opts.Validate())

	opts.Console.DefaultSpeed = 120
	opts.TLS.CertFile = "cert.pem"
	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "console.default-speed")

	// broker settings only matter in mqtt mode
	opts = options.NewConsoleOptions()
	opts.MQTT.VehicleID = ""
	assert.NoError(t, opts.Validate())
	opts.Console.TelemetryMode = genericoptions.TelemetryMQTT
	assert.Error(t, opts.Validate())
}

func TestRunCommandRejectsInvalidOptions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cmd := NewConsoleCommand(ctx)
	cmd.SetArgs([]string{"run", "--console.telemetry-mode=smoke"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "console.telemetry-mode")
}
