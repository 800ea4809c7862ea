// Command agentd is the headless bootstrap: it wires every component into
// the single-consumer scheduler loop §5 describes (one logical scheduler
// owns the bus and the running-queue maps; N worker goroutines perform
// I/O). Grounded on main.go's wiring order (logger → storage → engine →
// config → control server), generalized from a GUI/tray app bootstrap
// into a plain daemon.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"project-tachyon/internal/api"
	"project-tachyon/internal/cache"
	"project-tachyon/internal/config"
	"project-tachyon/internal/diagnostics"
	"project-tachyon/internal/dlinfo"
	"project-tachyon/internal/eventbus"
	"project-tachyon/internal/logger"
	"project-tachyon/internal/monitor"
	"project-tachyon/internal/notify"
	"project-tachyon/internal/policy"
	"project-tachyon/internal/qos"
	"project-tachyon/internal/runqueue"
	"project-tachyon/internal/statesync"
	"project-tachyon/internal/taskstore"
	"project-tachyon/internal/transport"
	"project-tachyon/internal/worker"
)

const (
	debugAPIPort   = 47890
	eventBusBuffer = 256
	dlinfoCapacity = 256
)

func main() {
	appDir, err := defaultAppDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentd: resolve app dir:", err)
		os.Exit(1)
	}

	log, err := logger.New(os.Stdout, filepath.Join(appDir, "logs"), func(logger.Record) {})
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentd: init logger:", err)
		os.Exit(1)
	}

	store, err := openStore(appDir)
	if err != nil {
		log.Error("init task store", "error", err)
		os.Exit(1)
	}

	cfg := config.New(store)
	bus := eventbus.New(eventBusBuffer)

	transportClient, err := transport.New(transport.DefaultConfig())
	if err != nil {
		log.Error("init transport", "error", err)
		os.Exit(1)
	}

	policyEval := policy.New(nil)
	allocator := diagnostics.NewAllocator()
	organizer := diagnostics.NewOrganizer()
	verifier := worker.NewVerifier()
	congestion := worker.NewCongestionController(1, 16)
	notifyBridge := notify.NewNoopBridge(log)
	infoStore := dlinfo.New(dlinfoCapacity)

	workerDeps := worker.Deps{
		Transport:  transportClient,
		Store:      store,
		Policy:     policyEval,
		Bus:        bus,
		Config:     cfg,
		Allocator:  allocator,
		Organizer:  organizer,
		Verifier:   verifier,
		Logger:     log,
		Congestion: congestion,
		Notify:     notifyBridge,
		DLInfo:     infoStore,
	}
	manager := worker.NewManager(workerDeps)

	queue := runqueue.New(manager, store.Get)

	cacheDir := filepath.Join(appDir, "cache")
	cacheEngine := cache.New(&transportFetcher{client: transportClient}, cacheDir)

	statesyncEngine := statesync.New(store, bus, log)

	networkMon := monitor.NewNetworkMonitor()
	accountMon := monitor.NewAccountMonitor(noopAccountSource{})

	apiServer := api.New(store, queue, cacheEngine, infoStore, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := apiServer.Serve(debugAPIPort); err != nil && err != http.ErrServerClosed {
			log.Warn("debug api server stopped", "error", err)
		}
	}()

	go runScheduler(ctx, bus, store, queue, statesyncEngine, cfg, networkMon, accountMon, log)

	waitForSignal(log)
	cancel()
}

// runScheduler is the single bus consumer §5 requires: it dispatches
// state-sync events inline (never via statesync.Engine.Run, which would
// start a second competing consumer on the same bus) and recomputes the
// admission plan whenever a Reschedule envelope arrives.
func runScheduler(
	ctx context.Context,
	bus *eventbus.Bus,
	store *taskstore.Store,
	queue *runqueue.Queue,
	statesyncEngine *statesync.Engine,
	cfg *config.Manager,
	networkMon *monitor.NetworkMonitor,
	accountMon *monitor.AccountMonitor,
	log interface {
		Warn(msg string, args ...any)
	},
) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reschedule(ctx, store, queue, cfg, networkMon, accountMon, log)
		case env, ok := <-bus.Receive():
			if !ok {
				return
			}
			switch env.Kind {
			case eventbus.NetworkChanged, eventbus.AccountChanged, eventbus.ForegroundChanged, eventbus.AppUninstall:
				statesyncEngine.Handle(ctx, env)
			case eventbus.Reschedule:
				reschedule(ctx, store, queue, cfg, networkMon, accountMon, log)
			}
		}
	}
}

func reschedule(
	ctx context.Context,
	store *taskstore.Store,
	queue *runqueue.Queue,
	cfg *config.Manager,
	networkMon *monitor.NetworkMonitor,
	accountMon *monitor.AccountMonitor,
	log interface {
		Warn(msg string, args ...any)
	},
) {
	rows, err := store.QueryByStates(taskstore.Waiting, taskstore.Running, taskstore.Retrying, taskstore.Initialized)
	if err != nil {
		log.Warn("reschedule: query candidate tasks", "error", err)
		return
	}

	divisor := cfg.GetAccountDivisor()
	if divisor == 0 {
		divisor = 200000
	}
	net := networkMon.Snapshot()
	cond := qos.Conditions{
		ForegroundAbilities: accountMon.ActiveUIDs(),
		TopAccount:          accountMon.Foreground() / divisor,
		AccountDivisor:      divisor,
		NetworkOnline:       net.Online,
		Metered:             net.Metered,
		Roaming:             net.Roaming,
	}
	caps := qos.ConcurrencyCaps{
		MaxDownload: cfg.GetMaxConcurrentDownloads(),
		MaxUpload:   cfg.GetMaxConcurrentUploads(),
	}

	plan := qos.Plan(rows, cond, caps)
	if err := queue.Reschedule(ctx, plan); err != nil {
		log.Warn("reschedule: apply admission plan", "error", err)
	}
}

// noopAccountSource is used until a real platform account source is
// wired; Refresh reports no accounts active, matching the "starts empty
// until the first platform callback" contract monitor.NewNetworkMonitor
// documents for networks.
type noopAccountSource struct{}

func (noopAccountSource) Refresh() (uint64, map[uint64]struct{}, error) {
	return 0, map[uint64]struct{}{}, nil
}

// transportFetcher adapts *transport.Client to cache.Fetcher.
type transportFetcher struct {
	client *transport.Client
}

func (f *transportFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	resp, err := f.client.RangeGet(ctx, url, nil, 0)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("agentd: cache fetch %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

func defaultAppDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "tachyon-agent")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func openStore(appDir string) (*taskstore.Store, error) {
	dbPath := filepath.Join(appDir, "agent.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	return taskstore.New(db)
}

func waitForSignal(log interface {
	Info(msg string, args ...any)
}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("agentd: shutdown signal received")
}
