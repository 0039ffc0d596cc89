package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"blastbot/internal/app"
	"blastbot/pkg/logx"
)

func main() {
	// Missing .env is fine; the config file can carry the token instead.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to the config file (YAML or JSON)")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "how long to wait for a clean stop")
	flag.Parse()

	if err := run(*configPath, *shutdownTimeout); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string, shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(configPath)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.Stop(sctx)
		return err
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.Logger().Info("running", logx.String("config", configPath))

	<-ctx.Done()
	stop()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Stop(sctx)
}
