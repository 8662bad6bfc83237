// Command analyzerd is the long-lived daemon: it wires the storage
// backend, capture scheduler, LLM manager, orchestrator, status actor
// and cleanup sweep together and runs until signaled.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrel-dev/screenlens/pkg/capture"
	"github.com/kestrel-dev/screenlens/pkg/cleanup"
	"github.com/kestrel-dev/screenlens/pkg/config"
	"github.com/kestrel-dev/screenlens/pkg/eventbus"
	"github.com/kestrel-dev/screenlens/pkg/llm/manager"
	"github.com/kestrel-dev/screenlens/pkg/llm/provider/agentproc"
	"github.com/kestrel-dev/screenlens/pkg/llm/provider/cloudvision"
	"github.com/kestrel-dev/screenlens/pkg/orchestrator"
	"github.com/kestrel-dev/screenlens/pkg/status"
	"github.com/kestrel-dev/screenlens/pkg/storage"
	"github.com/kestrel-dev/screenlens/pkg/storage/cache"
	"github.com/kestrel-dev/screenlens/pkg/storage/mysqlstore"
	"github.com/kestrel-dev/screenlens/pkg/storage/sqlitestore"
	"github.com/kestrel-dev/screenlens/pkg/video"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// noopCapturer is the boundary stand-in for the platform screenshot
// primitive, which is explicitly out of scope: a real deployment
// replaces this with an implementation of capture.Capturer backed by
// the host's screen-grab API.
type noopCapturer struct{}

func (noopCapturer) Capture() (capture.Frame, error) {
	return capture.Frame{}, capture.ErrScreenLocked
}

func main() {
	dataDir := flag.String("data-dir", getEnv("ANALYZER_DATA_DIR", "./data"), "application data directory")
	metricsAddr := flag.String("metrics-addr", getEnv("ANALYZER_METRICS_ADDR", ":9090"), "internal metrics listen address")
	flag.Parse()

	if err := config.LoadDotEnv(filepath.Join(*dataDir, ".env")); err != nil {
		log.Printf("warning: %v", err)
	}

	cfgStore, err := config.Load(filepath.Join(*dataDir, "config.json"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := cfgStore.Get()

	framesDir := filepath.Join(*dataDir, "frames")
	videosDir := filepath.Join(*dataDir, "videos")
	for _, d := range []string{framesDir, videosDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			log.Fatalf("create %s: %v", d, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.DatabaseConfig, *dataDir)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer store.Close()
	if err := store.InitializeTables(ctx); err != nil {
		log.Fatalf("initialize schema: %v", err)
	}
	cachedStore, err := cache.New(store)
	if err != nil {
		log.Fatalf("wrap cache: %v", err)
	}

	bus := eventbus.New(eventbus.DefaultCapacity)
	statusAct := status.New()
	defer statusAct.Stop()

	assembler, err := video.New()
	if err != nil {
		slog.Warn("video encoder binary not found, clip assembly will fail", "error", err)
		assembler = &video.Assembler{}
	}

	mgr := manager.New()
	defer mgr.Stop()
	if err := selectProvider(ctx, mgr, cfg); err != nil {
		log.Fatalf("configure LLM provider: %v", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		DeviceID:        hostDeviceID(),
		FramesDir:       framesDir,
		VideosDir:       videosDir,
		Resolution:      video.ResolutionFromConfig(cfg.CaptureSettings.Resolution),
		SpeedMultiplier: cfg.VideoConfig.SpeedMultiplier,
		AddTimestamp:    cfg.VideoConfig.AddTimestamp,
	}, cachedStore, mgr, assembler, statusAct, bus)
	orch.Start(ctx)
	defer orch.Stop()

	scheduler := capture.New(capture.Config{
		FramesDir:      framesDir,
		CaptureInterval: time.Duration(cfg.CaptureInterval) * time.Second,
		WindowDuration: time.Duration(cfg.SummaryInterval) * time.Minute,
		DeviceID:       hostDeviceID(),
	}, noopCapturer{}, bus)
	scheduler.Start(ctx)
	defer scheduler.Stop()
	statusAct.SetCapturing(true)

	cleaner := cleanup.NewService(cleanup.Config{
		RetentionDays: cfg.RetentionDays,
		FramesDir:     framesDir,
		VideosDir:     videosDir,
	}, cachedStore)
	cleaner.Start(ctx)
	defer cleaner.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	slog.Info("analyzerd started", "data_dir", *dataDir, "metrics_addr", *metricsAddr)
	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, dbCfg config.DatabaseConfig, dataDir string) (storage.Store, error) {
	switch dbCfg.Backend {
	case "mysql":
		mcfg := mysqlstore.DefaultConfig()
		mcfg.Host, mcfg.Port, mcfg.User, mcfg.Password, mcfg.Database =
			dbCfg.Host, dbCfg.Port, dbCfg.User, dbCfg.Password, dbCfg.Database
		return mysqlstore.Open(ctx, mcfg)
	default:
		path := dbCfg.Path
		if path == "" {
			path = filepath.Join(dataDir, "analyzer.db")
		}
		return sqlitestore.Open(ctx, path)
	}
}

func selectProvider(ctx context.Context, mgr *manager.Manager, cfg *config.Config) error {
	var p interface {
		Configure([]byte) error
	}
	switch cfg.LLMProvider {
	case "agent":
		pr := agentproc.New()
		if err := mgr.SwitchProvider(ctx, pr); err != nil {
			return err
		}
		p = pr
	default:
		pr := cloudvision.New()
		if err := mgr.SwitchProvider(ctx, pr); err != nil {
			return err
		}
		p = pr
	}
	raw, err := json.Marshal(cfg.LLMConfig)
	if err != nil {
		return err
	}
	return p.Configure(raw)
}

func hostDeviceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown-device"
}
