package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nodebridge/nodebridge/pkg/audit"
	"github.com/nodebridge/nodebridge/pkg/config"
	"github.com/nodebridge/nodebridge/pkg/dispatch"
	"github.com/nodebridge/nodebridge/pkg/events"
	"github.com/nodebridge/nodebridge/pkg/graph"
	"github.com/nodebridge/nodebridge/pkg/handlers"
	"github.com/nodebridge/nodebridge/pkg/host"
	"github.com/nodebridge/nodebridge/pkg/logging"
	"github.com/nodebridge/nodebridge/pkg/metrics"
	"github.com/nodebridge/nodebridge/pkg/risk"
	"github.com/nodebridge/nodebridge/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	listenAddr := flag.String("listen", "", "Command listener address (overrides config)")
	metricsAddr := flag.String("metrics", "", "Metrics HTTP address (overrides config)")
	eventsAddr := flag.String("events", "", "Event publisher address, e.g. tcp://127.0.0.1:9401 (overrides config)")
	auditDir := flag.String("audit-dir", "", "Directory for the audit log file (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *eventsAddr != "" {
		cfg.EventsAddr = *eventsAddr
	}
	if *auditDir != "" {
		cfg.AuditDir = *auditDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	logger.Info("nodebridge server starting", logging.F("listen", cfg.ListenAddr))

	registry := metrics.NewRegistry()

	// Editor host. MemHost carries a demo scene so the server is usable
	// out of the box; a production embedding supplies its own Accessor.
	memHost := buildDemoGraph()
	editor := graph.NewEditor(memHost)
	thread := host.NewThread(cfg.HostQueueSize, cfg.HostTimeout.Std())
	thread.Start()
	defer thread.Stop()
	registry.ObserveHostQueue(thread.QueueDepth)

	// Mutation event fan-out, optionally bridged onto an external socket.
	hub := events.NewHub()
	defer hub.Close()
	if cfg.EventsAddr != "" {
		publisher, err := events.NewPublisher(cfg.EventsAddr, logger)
		if err != nil {
			logger.Error("event publisher setup failed", logging.Err(err))
			os.Exit(1)
		}
		if err := publisher.Start(); err != nil {
			logger.Error("event publisher failed to start", logging.Err(err))
			os.Exit(1)
		}
		defer publisher.Stop()
		sub := hub.Subscribe(context.Background())
		publisher.Attach(sub)
		logger.Info("event publisher listening", logging.F("addr", cfg.EventsAddr))
	}

	trail := audit.NewTrail(cfg.AuditBufferSize)
	if cfg.AuditDir != "" {
		sink, err := audit.NewFileSink(cfg.AuditDir)
		if err != nil {
			logger.Error("audit file sink failed to open", logging.Err(err))
			os.Exit(1)
		}
		defer sink.Close()
		trail.SetSink(sink)
		logger.Info("audit trail persisted", logging.F("dir", cfg.AuditDir))
	}

	classifier := risk.NewClassifier()
	dispatcher := dispatch.NewDispatcher(dispatch.NewRegistry(), classifier, registry, trail, logger)

	graphHandlers := handlers.NewGraphHandlers(editor, thread, hub, registry)
	if err := graphHandlers.Register(dispatcher); err != nil {
		log.Fatalf("Failed to register graph handlers: %v", err)
	}
	consoleHandlers := handlers.NewConsoleHandlers(demoConsole{logger: logger})
	if err := consoleHandlers.Register(dispatcher); err != nil {
		log.Fatalf("Failed to register console handlers: %v", err)
	}
	projectHandlers := handlers.NewProjectHandlers(demoProject{started: time.Now()})
	if err := projectHandlers.Register(dispatcher); err != nil {
		log.Fatalf("Failed to register project handlers: %v", err)
	}
	queryHandlers := handlers.NewQueryHandlers(editor, thread, trail)
	if err := queryHandlers.Register(dispatcher); err != nil {
		log.Fatalf("Failed to register query handlers: %v", err)
	}

	srv := server.New(cfg, dispatcher, registry, logger)
	if err := srv.Start(); err != nil {
		logger.Error("server failed to start", logging.Err(err))
		os.Exit(1)
	}

	var metricsServer *server.HTTPServer
	if cfg.MetricsAddr != "" {
		metricsServer = server.NewHTTPServer(cfg.MetricsAddr, registry.Handler(), logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", logging.F("signal", sig.String()))

	if metricsServer != nil {
		_ = metricsServer.Shutdown(cfg.ShutdownTimeout.Std())
	}
	if err := srv.Stop(cfg.ShutdownTimeout.Std()); err != nil {
		logger.Error("shutdown incomplete", logging.Err(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// buildDemoGraph assembles a small scene with scalar and composite pins so
// the full command surface is exercisable against a fresh server.
func buildDemoGraph() *graph.MemHost {
	h := graph.NewMemHost()
	_ = h.AddNode("oscillator",
		graph.PinSpec{Name: "frequency", Direction: graph.DirInput, Type: graph.TypeFloat, Default: 440.0},
		graph.PinSpec{Name: "enabled", Direction: graph.DirInput, Type: graph.TypeBool, Default: true},
		graph.PinSpec{Name: "signal", Direction: graph.DirOutput, Type: graph.TypeFloat},
	)
	_ = h.AddNode("mixer",
		graph.PinSpec{Name: "inputs", Direction: graph.DirInput, Type: graph.TypeFloat, MultiInput: true},
		graph.PinSpec{Name: "gain", Direction: graph.DirInput, Type: graph.TypeFloat, Default: 1.0},
		graph.PinSpec{Name: "out", Direction: graph.DirOutput, Type: graph.TypeFloat},
	)
	_ = h.AddNode("transform",
		graph.PinSpec{Name: "position", Direction: graph.DirInput, Type: graph.TypeVector3,
			Default: map[string]any{"x": 0.0, "y": 0.0, "z": 0.0}},
		graph.PinSpec{Name: "color", Direction: graph.DirInput, Type: graph.TypeColor,
			Default: map[string]any{"r": 1.0, "g": 1.0, "b": 1.0, "a": 1.0}},
		graph.PinSpec{Name: "label", Direction: graph.DirInput, Type: graph.TypeString, Default: "node"},
		graph.PinSpec{Name: "world", Direction: graph.DirOutput, Type: graph.TypeTransform},
	)
	_ = h.AddNode("sink",
		graph.PinSpec{Name: "value", Direction: graph.DirInput, Type: graph.TypeFloat},
		graph.PinSpec{Name: "world", Direction: graph.DirInput, Type: graph.TypeTransform},
	)
	return h
}

// demoConsole echoes console commands instead of driving a real host
// console. Embedders replace this with a bridge into their application.
type demoConsole struct {
	logger logging.Logger
}

func (d demoConsole) RunConsole(_ context.Context, command string) (string, error) {
	d.logger.Info("console command", logging.F("command", command))
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("empty console command")
	}
	return fmt.Sprintf("executed: %s", command), nil
}

// demoProject reports static project state for the demo scene.
type demoProject struct {
	started time.Time
}

func (d demoProject) ProjectStatus(_ context.Context) (map[string]any, error) {
	return map[string]any{
		"name":           "demo",
		"dirty":          false,
		"uptime_seconds": int(time.Since(d.started).Seconds()),
	}, nil
}

func (d demoProject) SaveProject(_ context.Context) error {
	return nil
}
