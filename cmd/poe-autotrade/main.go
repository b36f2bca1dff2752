package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"poe-autotrade/internal/app"
	"poe-autotrade/internal/ipc"
	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

// run returns the process exit code. Cleanup is deferred here since os.Exit
// skips deferred calls.
func run() int {
	configPath := flag.String("config", "", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	command := flag.String("cmd", "", "send a command to the running instance, e.g. \"status\" or \"test-push discord\"")
	flag.Parse()

	logLevel := zerolog.InfoLevel
	if *debug {
		logLevel = zerolog.DebugLevel
	}

	opts := []logger.Option{logger.WithConsole(), logger.WithLevel(logLevel)}
	if *command != "" {
		// Client mode writes warnings to stderr only, unless debugging.
		if !*debug {
			logLevel = zerolog.WarnLevel
		}
		opts = []logger.Option{logger.WithLevel(logLevel), logger.WithoutFile()}
	}
	log, err := logger.NewLogger(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Close()

	cfg, err := config.FindConfig(*configPath, log)
	if err != nil {
		log.Error("Failed to load configuration", err, "provided_path", *configPath)
		return 1
	}

	if *command != "" {
		return sendCommand(cfg.SocketPath, *command, log)
	}

	log.Info("Starting PoE auto-trade",
		"version", version,
		"pid", os.Getpid(),
		"os", runtime.GOOS,
		"arch", runtime.GOARCH,
		"debug", *debug)

	log.Info("Configuration loaded successfully",
		"config_path", cfg.Path(),
		"keyword_count", len(cfg.Keywords),
		"auto_trade", cfg.AutoTrade.Enabled)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("Failed to create application", err)
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting application")
	if err := a.Run(ctx); err != nil {
		log.Error("Application error", err)
		return 1
	}
	log.Info("Shutdown complete")
	return 0
}

func sendCommand(socketPath, line string, log *logger.Logger) int {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		fmt.Fprintln(os.Stderr, "empty command")
		return 2
	}

	resp, err := ipc.NewClient(socketPath, log).Send(parts[0], parts[1:]...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	if len(resp.Data) > 0 {
		var out bytes.Buffer
		if err := json.Indent(&out, resp.Data, "", "  "); err == nil {
			fmt.Println(out.String())
		} else {
			fmt.Println(string(resp.Data))
		}
	}
	if resp.Status != ipc.StatusSuccess {
		return 1
	}
	return 0
}
