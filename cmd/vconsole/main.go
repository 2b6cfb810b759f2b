// Command vconsole is the teleoperation console daemon.
//
// It opens one session with the vehicle backend, keeps movement commands
// alive while a key or button is held, fuses telemetry into the vehicle
// shadow and serves the console API for the operator front end.
//
// Usage:
//
//	vconsole run --console.backend-url https://boat:5000 \
//	             --console.telemetry-url wss://boat:5000/telemetry \
//	             --tls.ca-file /etc/vconsole/certs/ca.crt
//	vconsole status --api http://127.0.0.1:8080
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/daohu527/vconsole/cmd/vconsole/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.NewConsoleCommand(ctx).Execute(); err != nil {
		stop()
		os.Exit(1)
	}
}
