package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cwsl/ultron/adif"
	"github.com/cwsl/ultron/dxcc"
	"github.com/cwsl/ultron/qso"
	"github.com/cwsl/ultron/wsjtx"
)

// App is the engine with its resolver, log and command surface, built from
// one configuration.
type App struct {
	cfg      *Config
	table    *dxcc.Table
	store    *adif.Store
	engine   *qso.Engine
	commands *Commands
}

// NewApp loads the DXCC dataset, the contact log and the whitelist. None of
// them is fatal: a missing dataset resolves every call to unknown, an
// unreadable log starts empty and a bad whitelist allows every target.
func NewApp(cfg *Config) *App {
	table, err := dxcc.Load(cfg.DXCC.Dataset)
	if err != nil {
		log.Printf("DXCC: %v (running without entity data)", err)
	} else {
		log.Printf("DXCC: loaded %d entities from %s", table.Len(), cfg.DXCC.Dataset)
	}

	store, err := adif.Open(cfg.Log.Path)
	if err != nil {
		log.Printf("ADIF: %v (starting with an empty log)", err)
	} else {
		log.Printf("ADIF: %d contacts in %s", store.Len(), cfg.Log.Path)
	}

	var policy qso.TargetPolicy
	if cfg.Whitelist.Path != "" {
		wl, err := qso.LoadWhitelist(cfg.Whitelist.Path)
		if err != nil {
			log.Printf("Whitelist: %v (whitelist disabled)", err)
		} else {
			policy = qso.NewWhitelist(*wl, nil)
			log.Printf("Whitelist: %s mode, %d entries", wl.Mode, wl.Size())
		}
	}

	engine := qso.NewEngine(cfg.EngineConfig(), table, store, policy)
	return &App{
		cfg:      cfg,
		table:    table,
		store:    store,
		engine:   engine,
		commands: NewCommands(engine, table, true),
	}
}

// Decoder returns the packet decoder configured with the station defaults.
func (a *App) Decoder() *wsjtx.Decoder {
	return wsjtx.NewDecoder(a.cfg.Station.DefaultID, a.cfg.Station.DefaultMode)
}

// newHTTPHandler mounts the API, MCP, live feed and metrics endpoints that
// are enabled in cfg.
func newHTTPHandler(cfg *Config, cmds *Commands, hub *FeedHub, gatherer prometheus.Gatherer) http.Handler {
	limiter := NewIPRateLimiter(cfg.Server.RateLimit)
	mux := http.NewServeMux()
	mux.Handle("/api/", limiter.Middleware(NewAPIHandler(cmds)))

	if cfg.Server.EnableMCP {
		mcpServer := NewMCPServer(cmds, Version)
		mux.Handle("/mcp", limiter.Middleware(http.HandlerFunc(mcpServer.HandleMCP)))
	}
	if hub != nil {
		mux.Handle("/ws", hub)
	}
	if cfg.Prometheus.Enabled {
		mux.Handle("/metrics", prometheusHandler(&cfg.Prometheus, gatherer))
	}
	return mux
}

// startHTTPServer serves handler until ctx is done.
func startHTTPServer(ctx context.Context, listen string, handler http.Handler) *http.Server {
	server := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP: listening on %s", listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP: server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP: shutdown error: %v", err)
		}
	}()
	return server
}
