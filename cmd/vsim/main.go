// Command vsim is a simulated vehicle backend for vconsole.
//
// Usage:
//
//	vsim --http.addr :5000 --sim.video-file clip.h264
//	vsim --sim.publish-mqtt --mqtt.broker tls://broker:8883 --mqtt.vehicle-id boat-001 \
//	     --tls.cert-file sim.crt --tls.key-file sim.key --tls.ca-file ca.crt
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/daohu527/vconsole/cmd/vsim/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.NewSimulatorCommand(ctx).Execute(); err != nil {
		stop()
		os.Exit(1)
	}
}
