// Command analyzerctl is a one-shot CLI over pkg/rpc.CoreAPI: each
// invocation opens the same data directory a running analyzerd uses,
// performs one operation, and exits. There is no daemon RPC transport
// (spec places the UI/command layer out of scope) — this binary and
// analyzerd simply agree on the same on-disk data directory.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kestrel-dev/screenlens/pkg/cleanup"
	"github.com/kestrel-dev/screenlens/pkg/config"
	"github.com/kestrel-dev/screenlens/pkg/eventbus"
	"github.com/kestrel-dev/screenlens/pkg/llm/manager"
	"github.com/kestrel-dev/screenlens/pkg/llm/provider/cloudvision"
	"github.com/kestrel-dev/screenlens/pkg/orchestrator"
	"github.com/kestrel-dev/screenlens/pkg/rpc"
	"github.com/kestrel-dev/screenlens/pkg/status"
	"github.com/kestrel-dev/screenlens/pkg/storage/sqlitestore"
	"github.com/kestrel-dev/screenlens/pkg/video"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	dataDir := flag.String("data-dir", getEnv("ANALYZER_DATA_DIR", "./data"), "application data directory")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: analyzerctl [-data-dir DIR] <verb> [args...]")
		os.Exit(2)
	}
	verb := args[0]

	ctx := context.Background()
	api, teardown, err := buildAPI(ctx, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyzerctl: %v\n", err)
		os.Exit(1)
	}
	defer teardown()

	result, err := dispatch(ctx, api, verb, args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyzerctl: %s: %v\n", verb, err)
		os.Exit(1)
	}
	if result != nil {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	}
}

func buildAPI(ctx context.Context, dataDir string) (*rpc.API, func(), error) {
	cfgStore, err := config.Load(filepath.Join(dataDir, "config.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg := cfgStore.Get()

	store, err := sqlitestore.Open(ctx, filepath.Join(dataDir, "analyzer.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	mgr := manager.New()
	provider := cloudvision.New()
	if err := mgr.SwitchProvider(ctx, provider); err != nil {
		mgr.Stop()
		store.Close()
		return nil, nil, err
	}
	if raw, err := json.Marshal(cfg.LLMConfig); err == nil {
		_ = provider.Configure(raw)
	}

	statusAct := status.New()
	assembler, err := video.New()
	if err != nil {
		assembler = &video.Assembler{}
	}
	bus := eventbus.New(0)

	framesDir := filepath.Join(dataDir, "frames")
	videosDir := filepath.Join(dataDir, "videos")

	orch := orchestrator.New(orchestrator.Config{
		FramesDir: framesDir, VideosDir: videosDir,
		Resolution:      video.ResolutionFromConfig(cfg.CaptureSettings.Resolution),
		SpeedMultiplier: cfg.VideoConfig.SpeedMultiplier,
		AddTimestamp:    cfg.VideoConfig.AddTimestamp,
	}, store, mgr, assembler, statusAct, bus)

	cleaner := cleanup.NewService(cleanup.Config{
		RetentionDays: cfg.RetentionDays, FramesDir: framesDir, VideosDir: videosDir,
	}, store)

	api := &rpc.API{
		Store: store, ConfigStore: cfgStore, Manager: mgr, Status: statusAct,
		Orchestrator: orch, Assembler: assembler, Cleanup: cleaner,
		VideosDir: videosDir, FramesDir: framesDir,
	}

	teardown := func() {
		mgr.Stop()
		statusAct.Stop()
		store.Close()
	}
	return api, teardown, nil
}

func dispatch(ctx context.Context, api *rpc.API, verb string, args []string) (any, error) {
	switch verb {
	case "get_database_status", "get_storage_stats":
		return api.GetStorageStats(ctx)
	case "get_day_sessions":
		return api.GetDaySessions(ctx, arg(args, 0))
	case "get_day_summary":
		return api.GetDaySummary(ctx, arg(args, 0), arg(args, 1) == "true")
	case "get_session_detail":
		id, err := strconv.ParseInt(arg(args, 0), 10, 64)
		if err != nil {
			return nil, err
		}
		return api.GetSessionDetail(ctx, id)
	case "get_app_config":
		return api.GetAppConfig(ctx)
	case "get_system_status":
		return api.GetSystemStatus(ctx)
	case "toggle_capture":
		return nil, api.ToggleCapture(ctx, arg(args, 0) == "true")
	case "trigger_analysis":
		return nil, api.TriggerAnalysis(ctx)
	case "cleanup_storage":
		return nil, api.CleanupStorage(ctx)
	case "migrate_timezone_to_local":
		return nil, api.MigrateTimezoneToLocal(ctx)
	case "retry_session_analysis":
		id, err := strconv.ParseInt(arg(args, 0), 10, 64)
		if err != nil {
			return nil, err
		}
		return nil, api.RetrySessionAnalysis(ctx, id)
	case "regenerate_timeline":
		return nil, api.RegenerateTimeline(ctx, arg(args, 0))
	case "delete_session":
		id, err := strconv.ParseInt(arg(args, 0), 10, 64)
		if err != nil {
			return nil, err
		}
		return nil, api.DeleteSession(ctx, id)
	case "open_storage_folder":
		return nil, api.OpenStorageFolder(ctx, arg(args, 0))
	case "test_capture":
		return api.TestCapture(ctx)
	default:
		return nil, fmt.Errorf("unknown verb %q", verb)
	}
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
