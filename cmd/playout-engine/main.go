// Command playout-engine runs one channel's continuous-output playout
// session: it loads a channel's YAML configuration, opens the
// configured transport sink, and drives the tick loop until a signal
// requests shutdown. Blocks are supplied externally via the control
// API (internal/playout/control); this binary does not schedule
// programming itself.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alxayo/playout-engine/internal/logger"
	"github.com/alxayo/playout-engine/internal/playout/asset"
	"github.com/alxayo/playout-engine/internal/playout/clock"
	"github.com/alxayo/playout-engine/internal/playout/config"
	"github.com/alxayo/playout-engine/internal/playout/control"
	"github.com/alxayo/playout-engine/internal/playout/hooks"
	"github.com/alxayo/playout-engine/internal/playout/metrics"
	"github.com/alxayo/playout-engine/internal/playout/pipeline"
	"github.com/alxayo/playout-engine/internal/playout/producer"
	"github.com/alxayo/playout-engine/internal/playout/seam"
	"github.com/alxayo/playout-engine/internal/playout/sink"
	"github.com/alxayo/playout-engine/internal/playout/sink/tsmux"
)

const houseSampleRate = 48000
const houseChannels = 2

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	channel, err := config.Load(cfg.configPath)
	if err != nil {
		log.Error("failed to load channel config", "error", err)
		os.Exit(1)
	}

	fps, err := channel.FPS.Resolve()
	if err != nil {
		log.Error("invalid fps", "error", err)
		os.Exit(1)
	}
	sourceFPS, err := channel.SourceFPS.Resolve()
	if err != nil {
		log.Error("invalid source_fps", "error", err)
		os.Exit(1)
	}

	resolver, err := asset.NewResolver(channel.Asset.Resolve())
	if err != nil {
		log.Error("failed to start asset resolver", "error", err)
		os.Exit(1)
	}
	defer resolver.Close()

	hookMgr := buildHookManager(channel.Hooks, log)
	defer hookMgr.Close()

	m := metrics.New(channel.ChannelID)

	network := "tcp"
	if channel.Sink.Transport == "uds" {
		network = "unix"
	}
	s := sink.NewTransportSink(network, channel.Sink.Addr, func(w io.Writer) sink.Muxer {
		return tsmux.New(w, houseSampleRate, nil)
	}, sink.BackpressureConfig{}, func(st sink.Status) {
		log.Info("sink status changed", "status", st.String())
	}, log)

	prodCfg := producer.Config{
		SampleRate: houseSampleRate,
		Channels:   houseChannels,
		SourceFPS:  sourceFPS,
	}

	oc := clock.New(fps, time.Now(), clock.RealWait{})

	decoderFactory := newPlaceholderDecoderFactory()
	pipelineCfg := pipeline.Config{
		ChannelID:   channel.ChannelID,
		Width:       channel.Width,
		Height:      channel.Height,
		FPS:         fps,
		ProducerCfg: prodCfg,
		Sink:        s,
		Metrics:     m,
		Logger:      log,
		Clock:       oc,
		NewPreparer: func() *seam.Preparer {
			return seam.New(resolver.Resolve, decoderFactory, channel.Width, channel.Height, prodCfg)
		},
	}

	session := control.New(channel.ChannelID, channel.Width, channel.Height, pipelineCfg, hookMgr, log)

	var metricsServer *http.Server
	if channel.MetricsListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{Addr: channel.MetricsListenAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	if err := session.Start(); err != nil {
		log.Error("failed to start session", "error", err)
		os.Exit(1)
	}
	log.Info("playout session started", "channel_id", channel.ChannelID, "width", channel.Width, "height", channel.Height, "fps", fps.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		session.Stop()
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("session stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after shutdown timeout")
	}
}

// buildHookManager constructs the lifecycle hook manager and registers
// every script/webhook binding named in the channel config.
func buildHookManager(cfg config.HooksConfig, log *slog.Logger) *hooks.Manager {
	mgr := hooks.NewManager(cfg.Config, log.With("component", "hooks"))
	for _, b := range cfg.Scripts {
		if err := mgr.RegisterHook(hooks.EventType(b.Event), hooks.NewShellHook(b.Event+"-script", b.Script, 30*time.Second)); err != nil {
			log.Warn("failed to register hook script", "event", b.Event, "script", b.Script, "error", err)
		}
	}
	for _, b := range cfg.Webhooks {
		if err := mgr.RegisterHook(hooks.EventType(b.Event), hooks.NewWebhookHook(b.Event+"-webhook", b.URL, 30*time.Second)); err != nil {
			log.Warn("failed to register hook webhook", "event", b.Event, "url", b.URL, "error", err)
		}
	}
	return mgr
}
