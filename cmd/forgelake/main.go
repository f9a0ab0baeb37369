package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	_ "net/http/pprof"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/hyperforge-labs/forgelake/pkg/catalog"
	"github.com/hyperforge-labs/forgelake/pkg/duck"
	"github.com/hyperforge-labs/forgelake/pkg/logger"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline"
	"github.com/hyperforge-labs/forgelake/pkg/pipeline/metrics"
	"github.com/hyperforge-labs/forgelake/pkg/schema"
	"github.com/hyperforge-labs/forgelake/pkg/serving"
	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultMetricsAddr     = "0.0.0.0:0"
	defaultDBPath          = ".tmp/forge/forge.duckdb"
	defaultCatalogName     = "forge"
	defaultStorageURI      = "file://.tmp/forge/data"
	defaultSeed            = 42
	defaultWindowDays      = 180
	defaultRefreshInterval = time.Hour
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	if cfg.PrintSchema {
		out, err := schema.Warehouse.JSON()
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	log := logger.New(cfg.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.EnablePprof {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	metricsServerErrCh := make(chan error, 1)
	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
			}
		}()
	}

	clock := clockwork.NewRealClock()
	start, end, err := resolveWindow(cfg, clock.Now().UTC())
	if err != nil {
		return err
	}

	// DuckLake when a catalog URI is configured, the local DuckDB file
	// otherwise.
	var db duck.DB
	if cfg.CatalogURI != "" {
		s3Config, err := duck.PrepareS3ConfigForStorageURI(ctx, log, cfg.StorageURI)
		if err != nil {
			return err
		}
		log.Info("initializing ducklake warehouse",
			"catalog", cfg.CatalogName,
			"catalogURI", duck.RedactURI(cfg.CatalogURI),
			"storageURI", duck.RedactURI(cfg.StorageURI))
		db, err = duck.NewLake(ctx, log, cfg.CatalogName, cfg.CatalogURI, cfg.StorageURI, s3Config)
		if err != nil {
			return fmt.Errorf("failed to create DuckLake database: %w", err)
		}
	} else {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = duck.NewDB(ctx, cfg.DBPath, log)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}()

	fleet := catalog.DefaultFleet()
	if cfg.FleetFile != "" {
		fleet, err = catalog.Load(cfg.FleetFile)
		if err != nil {
			return fmt.Errorf("failed to load fleet catalog: %w", err)
		}
		log.Info("loaded fleet catalog", "path", cfg.FleetFile, "assets", len(fleet.Assets))
	}

	pipelineCfg := pipeline.Config{
		Logger:          log,
		Clock:           clock,
		DB:              db,
		Catalog:         fleet,
		Seed:            cfg.Seed,
		Workers:         cfg.Workers,
		RefreshInterval: cfg.RefreshInterval,
		HealthFloor:     cfg.HealthFloor,
		EmergencyRate:   cfg.EmergencyRate,
	}

	if cfg.ClickHouseAddr != "" {
		mirror, err := serving.NewWriter(ctx,
			serving.WithLogger(log),
			serving.WithAddr(cfg.ClickHouseAddr),
			serving.WithDatabase(cfg.ClickHouseDatabase),
			serving.WithUsername(cfg.ClickHouseUsername),
			serving.WithPassword(cfg.ClickHousePassword),
		)
		if err != nil {
			return fmt.Errorf("failed to create clickhouse mirror: %w", err)
		}
		defer func() {
			if err := mirror.Close(); err != nil {
				log.Error("failed to close clickhouse mirror", "error", err)
			}
		}()
		pipelineCfg.Mirror = mirror
	}

	p, err := pipeline.New(pipelineCfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	if !cfg.Daemon {
		_, err := p.RunOnce(ctx, sim.NewWindow(start, end))
		return err
	}

	p.Start(ctx, start)

	select {
	case <-ctx.Done():
		log.Info("forgelake: shutting down")
		return nil
	case err := <-metricsServerErrCh:
		return err
	}
}

type Config struct {
	ShowVersion bool
	Verbose     bool
	EnablePprof bool
	PrintSchema bool
	MetricsAddr string

	DBPath      string
	CatalogName string
	CatalogURI  string
	StorageURI  string

	FleetFile     string
	Seed          int64
	Start         string
	End           string
	WindowDays    int
	Workers       int
	HealthFloor   float64
	EmergencyRate float64

	Daemon          bool
	RefreshInterval time.Duration

	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func loadConfig() (Config, error) {
	var cfg Config

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.BoolVar(&cfg.EnablePprof, "enable-pprof", false, "enable pprof server")
	flag.BoolVar(&cfg.PrintSchema, "print-schema", false, "print the warehouse schema as JSON and exit")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", defaultMetricsAddr), "address to listen on for prometheus metrics (env: METRICS_ADDR)")

	flag.StringVar(&cfg.DBPath, "db-path", getenv("FORGE_DB_PATH", defaultDBPath), "path to the local DuckDB file; ignored when a DuckLake catalog URI is set (env: FORGE_DB_PATH)")
	flag.StringVar(&cfg.CatalogName, "ducklake-catalog-name", getenv("DUCKLAKE_CATALOG_NAME", defaultCatalogName), "name of the DuckLake catalog (env: DUCKLAKE_CATALOG_NAME)")
	flag.StringVar(&cfg.CatalogURI, "ducklake-catalog-uri", getenv("DUCKLAKE_CATALOG_URI", ""), "URI to the DuckLake catalog; empty uses the local DuckDB file (env: DUCKLAKE_CATALOG_URI)")
	flag.StringVar(&cfg.StorageURI, "ducklake-storage-uri", getenv("DUCKLAKE_STORAGE_URI", defaultStorageURI), "URI to the DuckLake storage directory (env: DUCKLAKE_STORAGE_URI)")

	flag.StringVar(&cfg.FleetFile, "fleet-file", getenv("FORGE_FLEET_FILE", ""), "fleet catalog JSON file; the built-in demo fleet when unset (env: FORGE_FLEET_FILE)")
	flag.Int64Var(&cfg.Seed, "seed", defaultSeed, "master seed; identical seeds reproduce the warehouse bit for bit")
	flag.StringVar(&cfg.Start, "start", getenv("FORGE_START", ""), "window start, RFC3339 or YYYY-MM-DD; defaults to end minus --window-days (env: FORGE_START)")
	flag.StringVar(&cfg.End, "end", getenv("FORGE_END", ""), "window end, RFC3339 or YYYY-MM-DD; defaults to now, ignored with --daemon (env: FORGE_END)")
	flag.IntVar(&cfg.WindowDays, "window-days", defaultWindowDays, "simulated span in days when --start is unset")
	flag.IntVar(&cfg.Workers, "workers", pipeline.DefaultWorkers, "per-asset generation concurrency")
	flag.Float64Var(&cfg.HealthFloor, "health-floor", 0, "health score floor; 0 keeps the generator default")
	flag.Float64Var(&cfg.EmergencyRate, "emergency-rate", 0, "daily emergency failure probability per asset; 0 keeps the generator default")

	flag.BoolVar(&cfg.Daemon, "daemon", getenvBool("FORGE_DAEMON", false), "keep running and refresh the window on an interval (env: FORGE_DAEMON)")
	flag.DurationVar(&cfg.RefreshInterval, "refresh-interval", defaultRefreshInterval, "refresh cadence in daemon mode")

	flag.StringVar(&cfg.ClickHouseAddr, "clickhouse-addr", getenv("CLICKHOUSE_ADDR", ""), "ClickHouse address (host:port); the mirror is disabled when empty (env: CLICKHOUSE_ADDR)")
	flag.StringVar(&cfg.ClickHouseDatabase, "clickhouse-database", getenv("CLICKHOUSE_DATABASE", "forge"), "ClickHouse database for the mirror (env: CLICKHOUSE_DATABASE)")
	flag.StringVar(&cfg.ClickHouseUsername, "clickhouse-username", getenv("CLICKHOUSE_USERNAME", "default"), "ClickHouse username for the mirror (env: CLICKHOUSE_USERNAME)")
	flag.StringVar(&cfg.ClickHousePassword, "clickhouse-password", getenv("CLICKHOUSE_PASSWORD", ""), "ClickHouse password for the mirror (env: CLICKHOUSE_PASSWORD)")

	flag.Parse()

	if cfg.WindowDays <= 0 {
		return Config{}, fmt.Errorf("window-days must be positive, got %d", cfg.WindowDays)
	}

	return cfg, nil
}

// resolveWindow turns the start/end flags into a concrete simulation window.
// End defaults to now, start to end minus the configured span.
func resolveWindow(cfg Config, now time.Time) (time.Time, time.Time, error) {
	end := now
	if cfg.End != "" {
		var err error
		end, err = parseTime(cfg.End)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
	}

	start := end.Add(-time.Duration(cfg.WindowDays) * 24 * time.Hour)
	if cfg.Start != "" {
		var err error
		start, err = parseTime(cfg.Start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
		}
	}

	return start, end, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q (want RFC3339 or YYYY-MM-DD)", s)
}
