package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"ibkr-sma-scanner/internal/assistant"
	"ibkr-sma-scanner/internal/broker"
	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/llm"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/marketdata"
	"ibkr-sma-scanner/internal/report"
	"ibkr-sma-scanner/internal/report/kafkapub"
	"ibkr-sma-scanner/internal/report/reportobs"
	"ibkr-sma-scanner/internal/scanlog"
	"ibkr-sma-scanner/internal/scanner"
	"ibkr-sma-scanner/internal/session"
	"ibkr-sma-scanner/internal/smacache"
	"ibkr-sma-scanner/internal/store"
	"ibkr-sma-scanner/internal/trace"
	"ibkr-sma-scanner/internal/types"
	"ibkr-sma-scanner/internal/universe"
)

// App wires one broker session to the cache, scanner and assistant.
type App struct {
	Cfg       *store.Config
	Manager   *session.Manager
	Snapshots *marketdata.SnapshotFetcher
	History   *marketdata.HistoricalFetcher
	Store     interfaces.CacheStore
	Cache     *smacache.Cache
	Scanner   *scanner.Orchestrator
	Live      *scanner.LiveScanner
	Assistant *assistant.Assistant

	publisher *kafkapub.Publisher
	now       func() time.Time
}

// InitSystem loads .env and sets up logging and tracing.
func InitSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// Shutdown flushes tracing and logging.
func Shutdown(ctx context.Context) {
	_ = trace.Shutdown(ctx)
	_ = logger.Shutdown(ctx)
}

func LoadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// New builds every component. Nothing connects yet.
func New(ctx context.Context, cfg *store.Config) (*App, error) {
	sess, err := broker.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}

	h, m, _ := cfg.CutoffClock()
	clock := smacache.NewMarketClock(h, m)

	correlator := session.NewCorrelator()
	mgr := session.NewManager(sess, correlator, session.Options{
		Host:            cfg.Broker.Host,
		Port:            cfg.Broker.Port,
		BaseClientID:    cfg.Broker.ClientID,
		MaxAttempts:     cfg.Broker.ConnectAttempts,
		ConnectTimeout:  cfg.ConnectTimeout(),
		ReconnectDelays: cfg.ReconnectDelayDurations(),
	})

	snapshots := marketdata.NewSnapshotFetcher(sess, correlator, cfg.BatchPause())
	history := marketdata.NewHistoricalFetcher(sess, cfg.RequestTimeout())
	cache := smacache.New(st, history, clock)
	var publisher *kafkapub.Publisher
	var reporter interfaces.ScanReporter = report.NewCSVReporter(cfg.ReportDir)
	if len(cfg.Publish.KafkaBrokers) > 0 {
		publisher = kafkapub.Open(cfg.Publish.KafkaBrokers, cfg.Publish.KafkaTopic)
		reporter = report.Multi(reporter, publisher)
	}
	reporter = reportobs.Wrap(reporter)
	orch := scanner.NewOrchestrator(snapshots, cache, reporter, scanner.Options{
		BatchSize: cfg.Scan.BatchSize,
		Settle:    cfg.SettleWindow(),
	})

	answerer, err := llm.New(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &App{
		Cfg:       cfg,
		Manager:   mgr,
		Snapshots: snapshots,
		History:   history,
		Store:     st,
		Cache:     cache,
		Scanner:   orch,
		Live:      scanner.NewLiveScanner(history, reporter, cfg.PacingDelay()),
		Assistant: assistant.New(snapshots, history, answerer, cfg.SettleWindow()),
		publisher: publisher,
		now:       time.Now,
	}, nil
}

// OpenStore opens the configured cache backend.
func OpenStore(ctx context.Context, cfg *store.Config) (interfaces.CacheStore, error) {
	switch cfg.Cache.Backend {
	case "postgres":
		return smacache.OpenPostgres(cfg.Cache.DSN)
	case "redis":
		return smacache.OpenRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisKey)
	default:
		return smacache.OpenSQLite(cfg.Cache.Path)
	}
}

func (a *App) Universe() ([]string, error) {
	return universe.Load(a.Cfg.UniverseFile)
}

func (a *App) Connect(ctx context.Context) error {
	return a.Manager.Connect(ctx)
}

// RebuildCache recomputes the SMA cache for the whole universe and records
// the outcome in the rebuild log.
func (a *App) RebuildCache(ctx context.Context) (int, error) {
	tickers, err := a.Universe()
	if err != nil {
		return 0, err
	}
	n, err := a.Cache.Rebuild(ctx, tickers, a.Cfg.Cache.Windows, a.Cfg.PacingDelay())

	entry := scanlog.RebuildEntry{
		AsOf:     a.Cache.Clock().ExpectedAsOfDate(a.now()),
		Universe: len(tickers),
		Written:  n,
	}
	if err != nil {
		entry.Err = err.Error()
	}
	if lerr := scanlog.AppendRebuild(a.now(), entry); lerr != nil {
		logger.Warn(ctx, "Failed to append rebuild log", "error", lerr)
	}
	return n, err
}

// Scan runs one scan over tickers, or the configured universe when empty.
func (a *App) Scan(ctx context.Context, tickers []string) (types.ScanResult, error) {
	if len(tickers) == 0 {
		u, err := a.Universe()
		if err != nil {
			return types.ScanResult{}, err
		}
		tickers = u
	}
	res, err := a.Scanner.Run(ctx, tickers)
	if err != nil {
		return res, err
	}
	if lerr := scanlog.AppendScan(a.now(), scanlog.EntryFor(len(tickers), res)); lerr != nil {
		logger.Warn(ctx, "Failed to append scan log", "error", lerr)
	}
	return res, nil
}

// LiveScan scans without the cache, one historical request per ticker.
func (a *App) LiveScan(ctx context.Context, tickers []string) (types.ScanResult, error) {
	if len(tickers) == 0 {
		u, err := a.Universe()
		if err != nil {
			return types.ScanResult{}, err
		}
		tickers = u
	}
	res, err := a.Live.Run(ctx, tickers)
	if err != nil {
		return res, err
	}
	if lerr := scanlog.AppendScan(a.now(), scanlog.EntryFor(len(tickers), res)); lerr != nil {
		logger.Warn(ctx, "Failed to append scan log", "error", lerr)
	}
	return res, nil
}

// Run satisfies the server's Scanner by scanning through the scan log.
func (a *App) Run(ctx context.Context, tickers []string) (types.ScanResult, error) {
	return a.Scan(ctx, tickers)
}

// CompressLogs applies SCAN_LOG_RETENTION_DAYS when set.
func CompressLogs(ctx context.Context) {
	v := os.Getenv("SCAN_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Invalid SCAN_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := scanlog.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

// Close disconnects gracefully and releases the store.
func (a *App) Close(ctx context.Context) {
	if err := a.Manager.GracefulDisconnect(ctx); err != nil {
		logger.Warn(ctx, "Disconnect failed", "error", err)
	}
	a.Manager.Close()
	if err := a.Store.Close(); err != nil {
		logger.Warn(ctx, "Failed to close cache store", "error", err)
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.Warn(ctx, "Failed to close kafka publisher", "error", err)
		}
	}
}
