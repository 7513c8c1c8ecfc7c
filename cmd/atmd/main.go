package main

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/exp/slog"

	"github.com/bankops/balance-dispense/dispense"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout))

	config := dispense.DefaultConfig()
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		config.HTTPAddr = v
	}
	if v := os.Getenv("ISO8583_ADDR"); v != "" {
		config.ISO8583Addr = v
	}

	app := dispense.NewApp(logger, config)
	if err := app.Start(); err != nil {
		logger.Error("starting app", "err", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.Shutdown()
}
