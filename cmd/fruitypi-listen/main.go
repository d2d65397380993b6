// ABOUTME: Entry point for the FruityPi debug listener
// ABOUTME: Parses flags and shows colors sent by visualizers
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/FruityPi/fruitypi-go/internal/listener"
	"github.com/FruityPi/fruitypi-go/internal/logging"
	"github.com/FruityPi/fruitypi-go/pkg/protocol"
	flag "github.com/spf13/pflag"
)

var (
	port     = flag.IntP("port", "p", protocol.DefaultPort, "UDP and WebSocket port")
	host     = flag.String("host", "", "Address to bind (default: all interfaces)")
	name     = flag.String("name", "", "Listener friendly name (default: hostname-fruitypi-listen)")
	logFile  = flag.String("log-file", "fruitypi-listen.log", "Log file path")
	logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	noMDNS   = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	useTUI   = flag.Bool("tui", false, "Show a full-screen TUI instead of one line per color")
)

func main() {
	flag.Parse()

	logger, err := logging.New(logging.Options{
		Level:   *logLevel,
		File:    *logFile,
		Console: !*useTUI,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-fruitypi-listen", hostname)
	}

	logger.Info().Str("name", serverName).Int("port", *port).Str("log_file", *logFile).Msg("Starting FruityPi listener")

	srv := listener.New(listener.Config{
		Host:       *host,
		Port:       *port,
		Name:       serverName,
		EnableMDNS: !*noMDNS,
		UseTUI:     *useTUI,
		Out:        os.Stdout,
		Logger:     logger.Logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("Listener error")
		logger.Close()
		os.Exit(1)
	}
}
