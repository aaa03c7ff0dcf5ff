// Package wire provides dependency injection for the coordination core.
// It creates singleton services with lazy initialization.
package wire

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/example/coord/internal/adapters/bus"
	"github.com/example/coord/internal/adapters/filesystem"
	"github.com/example/coord/internal/adapters/httpapi"
	"github.com/example/coord/internal/adapters/sqlite"
	"github.com/example/coord/internal/app"
	"github.com/example/coord/internal/config"
	"github.com/example/coord/internal/db"
	"github.com/example/coord/internal/ports/primary"
)

var (
	cfg               *config.Config
	configPath        string
	logger            *slog.Logger
	raciProvider      *filesystem.RaciProvider
	reconcilerService *app.ReconcilerServiceImpl
	messengerService  *app.MessengerServiceImpl
	raciService       primary.RaciService
	lifecycleService  primary.LifecycleService
	spendService      primary.SpendService
	monitorService    primary.MonitorService
	once              sync.Once
)

// SetConfigPath overrides the configuration file location. Must be called
// before the first service accessor.
func SetConfigPath(path string) {
	configPath = path
}

// Config returns the loaded configuration.
func Config() *config.Config {
	once.Do(initServices)
	return cfg
}

// Logger returns the shared structured logger.
func Logger() *slog.Logger {
	once.Do(initServices)
	return logger
}

// ReconcilerService returns the singleton ReconcilerService instance.
func ReconcilerService() primary.ReconcilerService {
	once.Do(initServices)
	return reconcilerService
}

// MessengerService returns the singleton MessengerService instance.
func MessengerService() primary.MessengerService {
	once.Do(initServices)
	return messengerService
}

// RaciService returns the singleton RaciService instance.
func RaciService() primary.RaciService {
	once.Do(initServices)
	return raciService
}

// LifecycleService returns the singleton LifecycleService instance.
func LifecycleService() primary.LifecycleService {
	once.Do(initServices)
	return lifecycleService
}

// SpendService returns the singleton SpendService instance.
func SpendService() primary.SpendService {
	once.Do(initServices)
	return spendService
}

// MonitorService returns the singleton MonitorService instance.
func MonitorService() primary.MonitorService {
	once.Do(initServices)
	return monitorService
}

// RaciProvider returns the loaded responsibility matrix.
func RaciProvider() *filesystem.RaciProvider {
	once.Do(initServices)
	return raciProvider
}

// HTTPServer builds an API server over the singleton services.
func HTTPServer() *httpapi.Server {
	once.Do(initServices)
	return httpapi.NewServer(cfg.Server.Addr, httpapi.Services{
		Reconciler: reconcilerService,
		Messenger:  messengerService,
		Raci:       raciService,
		Lifecycle:  lifecycleService,
		Spend:      spendService,
		Monitor:    monitorService,
	}, logger)
}

// Recover rebuilds in-process state (message timers) from persisted rows.
// Called once at server startup.
func Recover(ctx context.Context) error {
	once.Do(initServices)
	return messengerService.Recover(ctx)
}

// PromoteAged ages the messenger dispatch queue, lifting long-waiting
// messages one priority lane and retrying delivery.
func PromoteAged(ctx context.Context) int {
	once.Do(initServices)
	return messengerService.PromoteAged(ctx)
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			log.Fatalf("failed to locate config: %v", err)
		}
	}
	var err error
	cfg, err = config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := openDatabase()
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	raciProvider, err = filesystem.NewRaciProvider(cfg.RaciFile)
	if err != nil {
		log.Fatalf("failed to load raci matrix: %v", err)
	}

	authority, err := cfg.Reconciler.BuildAuthority()
	if err != nil {
		log.Fatalf("failed to build authority table: %v", err)
	}

	// Repository adapters (secondary ports) - sqlite adapters with injected DB.
	executionRepo := sqlite.NewExecutionRepository(database)
	eventRepo := sqlite.NewStateEventRepository(database)
	instanceRepo := sqlite.NewInstanceRepository(database)
	lifecycleRepo := sqlite.NewLifecycleRepository(database)
	messageRepo := sqlite.NewMessageRepository(database)
	approvalRepo := sqlite.NewApprovalRepository(database)
	spendLedger := sqlite.NewSpendLedger(database)
	metricRepo := sqlite.NewMetricRepository(database)
	alertRepo := sqlite.NewAlertRepository(database)
	healthRepo := sqlite.NewHealthCheckRepository(database)

	messageBus := bus.NewMemory()

	// Services (primary port implementations).
	monitorService = app.NewMonitorService(metricRepo, alertRepo, healthRepo, lifecycleRepo,
		app.DefaultAlertRules(), cfg.Lifecycle.ErrorWindow(), logger)
	messengerService = app.NewMessengerService(messageRepo, messageBus, monitorService, app.MessengerTuning{
		DefaultAckTimeout:      cfg.Messenger.DefaultAckTimeout(),
		DefaultResponseTimeout: cfg.Messenger.DefaultResponseTimeout(),
		MaxRedeliveries:        cfg.Messenger.MaxRedeliveries,
		AgingThreshold:         cfg.Messenger.AgingThreshold(),
	}, logger)
	raciService = app.NewRaciService(raciProvider, approvalRepo, instanceRepo, messengerService, logger)
	lifecycleService = app.NewLifecycleService(instanceRepo, lifecycleRepo, healthRepo, monitorService,
		cfg.Lifecycle.ErrorWindow(), logger)
	spendService = app.NewSpendService(instanceRepo, spendLedger, monitorService,
		cfg.Spend.ThresholdPct, logger)
	reconcilerService = app.NewReconcilerService(executionRepo, eventRepo, instanceRepo,
		raciService, messengerService, monitorService, authority, cfg.Reconciler.Window(), logger)

	// Unacknowledged handoffs feed back into re-resolution.
	messengerService.SetTimeoutHandler(reconcilerService)
}

func openDatabase() (*sql.DB, error) {
	if cfg.Database.Path != "" {
		return db.Open(cfg.Database.Path)
	}
	return db.GetDB()
}
