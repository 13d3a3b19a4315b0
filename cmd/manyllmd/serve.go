package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"manyllmd/internal/arbiter"
	"manyllmd/internal/catalog"
	"manyllmd/internal/common/fsutil"
	"manyllmd/internal/config"
	"manyllmd/internal/download"
	"manyllmd/internal/hostprobe"
	"manyllmd/internal/httpapi"
	"manyllmd/internal/manager"
	"manyllmd/internal/store"
	"manyllmd/internal/verify"
)

var (
	flagAddr        string
	flagModelsDir   string
	flagCatalogURL  string
	flagConcurrency int
	flagRetries     int
	flagMarginMB    int
	flagEngine      string
	flagCORS        bool
	flagCORSOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP daemon",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&flagAddr, "addr", envOr("MANYLLMD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	f.StringVar(&flagModelsDir, "models-dir", envOr("MANYLLMD_MODELS_DIR", "~/models/llm"), "Directory for managed artifact files")
	f.StringVar(&flagCatalogURL, "catalog-url", envOr("MANYLLMD_CATALOG_URL", ""), "Remote catalog index URL")
	f.IntVar(&flagConcurrency, "download-concurrency", envOrInt("MANYLLMD_DOWNLOAD_CONCURRENCY", 0), "Max simultaneous downloads (0=default)")
	f.IntVar(&flagRetries, "download-retries", envOrInt("MANYLLMD_DOWNLOAD_RETRIES", 0), "Max transient retries per download (0=default)")
	f.IntVar(&flagMarginMB, "memory-margin-mb", envOrInt("MANYLLMD_MEMORY_MARGIN_MB", 0), "Reserved memory margin in MB kept free during planning")
	f.StringVar(&flagEngine, "engine", envOr("MANYLLMD_ENGINE", ""), "Preferred engine backend: llama, cpu (empty=auto)")
	f.BoolVar(&flagCORS, "cors-enabled", false, "Enable CORS middleware")
	f.StringSliceVar(&flagCORSOrigins, "cors-origins", nil, "Allowed CORS origins")
}

func envOrInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// mergeConfig overlays explicitly-set flags onto the file config and fills
// remaining zero values from the flag defaults.
func mergeConfig(cmd *cobra.Command, cfg config.Config) config.Config {
	set := cmd.Flags().Changed
	if cfg.Addr == "" || set("addr") {
		cfg.Addr = flagAddr
	}
	if cfg.ModelsDir == "" || set("models-dir") {
		cfg.ModelsDir = flagModelsDir
	}
	if cfg.CatalogURL == "" || set("catalog-url") {
		cfg.CatalogURL = flagCatalogURL
	}
	if cfg.DownloadConcurrency == 0 || set("download-concurrency") {
		cfg.DownloadConcurrency = flagConcurrency
	}
	if cfg.DownloadRetries == 0 || set("download-retries") {
		cfg.DownloadRetries = flagRetries
	}
	if cfg.MemoryMarginMB == 0 || set("memory-margin-mb") {
		cfg.MemoryMarginMB = flagMarginMB
	}
	if cfg.Engine == "" || set("engine") {
		cfg.Engine = flagEngine
	}
	if set("cors-enabled") {
		cfg.CORSEnabled = flagCORS
	}
	if set("cors-origins") {
		cfg.CORSOrigins = flagCORSOrigins
	}
	return cfg
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()

	fileCfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Str("path", flagConfig).Msg("loading config failed")
		return err
	}
	cfg := mergeConfig(cmd, fileCfg)

	dir, err := fsutil.ExpandHome(cfg.ModelsDir)
	if err != nil {
		log.Error().Err(err).Msg("resolving models dir failed")
		return err
	}
	st, err := store.New(dir, log)
	if err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("opening store failed")
		return err
	}
	if err := st.Reconcile(); err != nil {
		log.Error().Err(err).Msg("store reconcile failed")
		return err
	}

	probe := hostprobe.NewSystem()
	arb := arbiter.New(probe, cfg.MemoryMarginMB, log)
	cat := catalog.New(cfg.CatalogURL, nil, st, log)
	dl := download.NewCoordinator(download.Config{
		Concurrency: cfg.DownloadConcurrency,
		MaxRetries:  cfg.DownloadRetries,
	}, nil, st, verify.Verify, log)

	mgr := manager.New(manager.Config{
		Store:           st,
		Verify:          verify.Verify,
		Arbiter:         arb,
		Probe:           probe,
		Catalog:         cat,
		Downloads:       dl,
		PreferredEngine: cfg.Engine,
		Logger:          log,
	})

	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)
	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr)}

	// Pressure watcher logs level changes for the life of the process.
	go func() {
		for range arb.WatchPressure(baseCtx, 0) {
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", dir).Msg("manyllmd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
		return err
	case <-baseCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	if err := mgr.Deactivate(); err != nil {
		log.Warn().Err(err).Msg("deactivate on shutdown failed")
	}
	return nil
}
