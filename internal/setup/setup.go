// Package setup bootstraps every subsystem of the avatar service in
// dependency order and tears them down in reverse.
package setup

import (
	"context"
	"image"
	"log"
	"path/filepath"
	"time"

	"github.com/fableforge/avatard/internal/cache"
	"github.com/fableforge/avatard/internal/database"
	"github.com/fableforge/avatard/internal/parts"
	"github.com/fableforge/avatard/internal/redis"
	"github.com/fableforge/avatard/internal/render"
	"github.com/fableforge/avatard/internal/setup/client"
	"github.com/fableforge/avatard/internal/setup/config"
	"github.com/fableforge/avatard/internal/storage"
	axonet "github.com/jaxron/axonet/pkg/client"
	"go.uber.org/zap"
)

// Cache tier defaults, applied where the config leaves a field zero.
const (
	defaultResultMaxEntries = 50
	defaultResultMaxBytes   = 50 << 20
	defaultResultTTL        = time.Hour
	defaultPartMaxEntries   = 200
	defaultPartMaxBytes     = 256 << 20
	defaultPartTTL          = time.Hour
	defaultDiskMaxAge       = 7 * 24 * time.Hour
	defaultRequestTimeout   = 10 * time.Second

	// sweepInterval is how often the disk tiers drop aged entries.
	sweepInterval = 24 * time.Hour
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config      // Application configuration
	Logger       *zap.Logger         // Main application logger
	DB           database.Client     // Database connection pool
	RedisManager *redis.Manager      // Redis connection manager
	Store        *storage.Client     // Object-store client
	Loader       *parts.Loader       // Part-sprite loader
	Results      *cache.Result       // Three-tier result cache
	Coordinator  *render.Coordinator // Render queue and workers
	pprofServer  *pprofServer        // Debug HTTP server for pprof
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logger, err := NewLogger(&cfg.Debug)
	if err != nil {
		return nil, err
	}

	// Redis manager provides the optional CDN response cache pool
	redisManager := redis.NewManager(&cfg.Redis, logger)

	db, err := database.NewConnection(ctx, &cfg.PostgreSQL, logger)
	if err != nil {
		return nil, err
	}

	// CDN client is configured with the reliability middleware chain
	requestTimeout := defaultRequestTimeout
	if cfg.Server.RequestTimeout > 0 {
		requestTimeout = time.Duration(cfg.Server.RequestTimeout) * time.Millisecond
	}

	cdnClient, err := client.GetCDNClient(cfg, redisManager, logger, requestTimeout)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewClient(&cfg.Spaces, &cfg.CircuitBreaker, logger)
	if err != nil {
		return nil, err
	}

	loader, results, err := buildCaches(ctx, cfg, cdnClient, db, store, logger)
	if err != nil {
		return nil, err
	}

	renderer := render.NewRenderer(db.Items(), loader, logger)
	coordinator := render.NewCoordinator(renderer, results, &cfg.Queue, logger)

	// Start pprof server if enabled
	var pprofSrv *pprofServer

	if cfg.Debug.EnablePprof {
		srv, err := startPprofServer(cfg.Debug.PprofPort, logger)
		if err != nil {
			logger.Error("Failed to start pprof server", zap.Error(err))
		} else {
			pprofSrv = srv

			logger.Warn("pprof debugging endpoint enabled - this should not be used in production!")
		}
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		RedisManager: redisManager,
		Store:        store,
		Loader:       loader,
		Results:      results,
		Coordinator:  coordinator,
		pprofServer:  pprofSrv,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse
// initialization order. Logs but does not fail on cleanup errors so every
// component gets a cleanup attempt.
func (s *App) Cleanup(ctx context.Context) {
	// Shutdown pprof server if running
	if s.pprofServer != nil {
		if err := s.pprofServer.srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown pprof server", zap.Error(err))
		}

		s.pprofServer.listener.Close()
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need them
	s.RedisManager.Close()
}

// buildCaches assembles the part loader and the result cache with their
// memory and disk tiers, and starts the daily disk sweepers.
func buildCaches(
	ctx context.Context, cfg *config.Config, cdn *axonet.Client,
	db database.Client, store *storage.Client, logger *zap.Logger,
) (*parts.Loader, *cache.Result, error) {
	cacheCfg := &cfg.Cache

	resultEntries := cacheCfg.ResultMaxEntries
	if resultEntries <= 0 {
		resultEntries = defaultResultMaxEntries
	}

	resultBytes := cacheCfg.ResultMaxBytes
	if resultBytes <= 0 {
		resultBytes = defaultResultMaxBytes
	}

	resultTTL := defaultResultTTL
	if cacheCfg.ResultTTLMinutes > 0 {
		resultTTL = time.Duration(cacheCfg.ResultTTLMinutes) * time.Minute
	}

	partEntries := cacheCfg.PartMaxEntries
	if partEntries <= 0 {
		partEntries = defaultPartMaxEntries
	}

	partBytes := cacheCfg.PartMaxBytes
	if partBytes <= 0 {
		partBytes = defaultPartMaxBytes
	}

	partTTL := defaultPartTTL
	if cacheCfg.PartTTLMinutes > 0 {
		partTTL = time.Duration(cacheCfg.PartTTLMinutes) * time.Minute
	}

	diskMaxAge := defaultDiskMaxAge
	if cacheCfg.DiskMaxAgeDays > 0 {
		diskMaxAge = time.Duration(cacheCfg.DiskMaxAgeDays) * 24 * time.Hour
	}

	root := cacheCfg.Dir
	if root == "" {
		root = "."
	}

	basesDir := cacheCfg.BasesDir
	if basesDir == "" {
		basesDir = filepath.Join(root, "_bases")
	}

	resultMemory, err := cache.NewMemory[uint32, []byte](resultEntries, resultBytes, resultTTL, cache.SizeOfBytes)
	if err != nil {
		return nil, nil, err
	}

	resultDisk, err := cache.NewDisk(filepath.Join(root, "avatars"), diskMaxAge, logger)
	if err != nil {
		return nil, nil, err
	}

	partMemory, err := cache.NewMemory[string, *image.NRGBA](partEntries, partBytes, partTTL, parts.SizeOfNRGBA)
	if err != nil {
		return nil, nil, err
	}

	partDisk, err := cache.NewDisk(filepath.Join(root, "cache"), diskMaxAge, logger)
	if err != nil {
		return nil, nil, err
	}

	resultDisk.StartSweeper(ctx, sweepInterval)
	partDisk.StartSweeper(ctx, sweepInterval)

	loader := parts.NewLoader(
		cdn, partMemory, partDisk, basesDir,
		cfg.CDN.BaseURL, cacheCfg.PartFetchLimit, logger,
	)
	results := cache.NewResult(resultMemory, resultDisk, store, db, logger)

	return loader, results, nil
}
