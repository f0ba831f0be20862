// Command gymnasticon bridges a proprietary indoor cycling bike to
// standard BLE GATT cycling services and an ANT+ Bike Power channel.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"gymnasticon/internal/app"
	"gymnasticon/internal/config"
	"gymnasticon/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logging.New()

	fs := flag.NewFlagSet("gymnasticon", flag.ContinueOnError)
	values := config.Register(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		log.WithError(err).Error("flag parse failed")
		return 1
	}

	cfg, err := config.Load(values.ConfigPath)
	if err != nil {
		log.WithError(err).Error("config load failed")
		return 1
	}
	config.OverlayFlags(cfg, fs, values)

	a := app.New(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}
