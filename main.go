// Command ultron relays WSJT-X, JTDX and MSHV UDP traffic and automates
// contacts: it answers new stations calling CQ, follows each contact to
// completion and keeps the ADIF log of stations worked.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cwsl/ultron/qso"
)

// Version is set at build time.
var Version = "dev"

// DebugMode enables verbose logging
var DebugMode bool

var (
	configFile string
	debugFlag  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ultron",
		Short:   "WSJT-X/JTDX/MSHV relay and QSO automation",
		Version: Version,
		Long: `ultron listens for the UDP messages of WSJT-X family clients, forwards them
to another consumer, and answers new stations automatically.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// environment variable takes precedence
			DebugMode = debugFlag
			if debugEnv := os.Getenv("DEBUG"); debugEnv != "" {
				DebugMode = debugEnv == "true" || debugEnv == "1" || debugEnv == "yes"
			}
			qso.DebugMode = DebugMode
			if DebugMode {
				log.Println("Debug mode enabled")
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(LookupCmd())
	rootCmd.AddCommand(WorkedCmd())
	rootCmd.AddCommand(LogQSOCmd())
	rootCmd.AddCommand(UnworkedCmd())
	return rootCmd
}

// loadConfig reads --config. The default file may be absent, in which case
// the built-in defaults apply; an explicitly named file must exist.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	path := configFile
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func run(cfg *Config) error {
	app := NewApp(cfg)

	conn, err := ListenUDP(cfg.Relay)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
			log.Println("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	sinks := Sinks{NewConsole(os.Stdout)}
	if cfg.Prometheus.Enabled {
		sinks = append(sinks, NewPrometheusMetrics(prometheus.DefaultRegisterer))
	}

	var hub *FeedHub
	if cfg.Server.EnableWS {
		hub = NewFeedHub(app.commands, cfg.Server.ReplayBuffer)
		sinks = append(sinks, hub)
	}

	if cfg.MQTT.Enabled {
		publisher, err := NewMQTTPublisher(&cfg.MQTT, prometheus.DefaultGatherer, app.commands)
		if err != nil {
			log.Printf("MQTT: %v (publishing disabled)", err)
		} else {
			sinks = append(sinks, publisher)
			publisher.StartPublisher(ctx)
			defer publisher.Disconnect()
		}
	}

	if cfg.Server.Listen != "" {
		startHTTPServer(ctx, cfg.Server.Listen, newHTTPHandler(cfg, app.commands, hub, prometheus.DefaultGatherer))
	}

	relay, err := NewRelay(cfg.Relay, conn, app.engine, app.Decoder(), RelayOptions{
		Sink:           sinks,
		StationGrid:    cfg.Station.Grid,
		MinPeerVersion: cfg.Automation.MinPeerVersion,
	})
	if err != nil {
		conn.Close()
		return err
	}
	return relay.Run(ctx)
}
