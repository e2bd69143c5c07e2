// Package app wires configuration, clients and services into one App.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bobmcallan/sharesrus/internal/circuitbreaker"
	"github.com/bobmcallan/sharesrus/internal/clients/dataservice"
	"github.com/bobmcallan/sharesrus/internal/clients/pricestream"
	"github.com/bobmcallan/sharesrus/internal/common"
	apperrors "github.com/bobmcallan/sharesrus/internal/errors"
	"github.com/bobmcallan/sharesrus/internal/interfaces"
	"github.com/bobmcallan/sharesrus/internal/models"
	"github.com/bobmcallan/sharesrus/internal/services/chart"
	"github.com/bobmcallan/sharesrus/internal/services/events"
	"github.com/bobmcallan/sharesrus/internal/services/subscription"
	"github.com/bobmcallan/sharesrus/internal/services/valuation"
	"github.com/bobmcallan/sharesrus/internal/services/view"
	"github.com/bobmcallan/sharesrus/internal/storage/historycache"
)

// App holds all initialized clients and services.
type App struct {
	Config       *common.Config
	Logger       *common.Logger
	DataService  interfaces.DataServiceClient
	Transport    interfaces.PriceTransport
	PriceStream  *pricestream.Client // nil when the transport is injected
	HistoryCache interfaces.HistoryCache
	Store        *valuation.Store
	Charts       *chart.Aggregator
	Reconciler   *subscription.Reconciler
	Dispatcher   *subscription.Dispatcher
	Hub          *events.Hub
	Views        *view.Manager
	StartupTime  time.Time

	streamCancel context.CancelFunc
	streamMu     sync.Mutex
	streamDown   bool
}

// Deps are the external collaborators. Nil fields are built from config.
type Deps struct {
	DataService  interfaces.DataServiceClient
	Transport    interfaces.PriceTransport
	HistoryCache interfaces.HistoryCache
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp loads configuration and initializes every client and service.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("SHARES_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "sharesrus.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/sharesrus.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	return New(config, logger, Deps{})
}

// New assembles the App from config, building any collaborator not
// supplied in deps.
func New(config *common.Config, logger *common.Logger, deps Deps) (*App, error) {
	startupStart := time.Now()
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	a := &App{
		Config:      config,
		Logger:      logger,
		StartupTime: startupStart,
	}

	a.DataService = deps.DataService
	if a.DataService == nil {
		breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			Name:        "dataservice",
			MaxFailures: config.DataService.Breaker.MaxFailures,
			Timeout:     config.DataService.Breaker.GetOpenTimeout(),
			IsFailure:   dataservice.IsServerFailure,
		}, logger)

		a.DataService = dataservice.NewClient(
			dataservice.WithBaseURL(config.DataService.BaseURL),
			dataservice.WithLogger(logger),
			dataservice.WithRateLimit(config.DataService.RateLimit),
			dataservice.WithTimeout(config.DataService.GetTimeout()),
			dataservice.WithBreaker(breaker),
		)
	}

	a.Transport = deps.Transport
	if a.Transport == nil {
		a.PriceStream = pricestream.NewClient(config.PriceStream.URL,
			pricestream.WithLogger(logger),
			pricestream.WithBackoff(config.PriceStream.GetMinBackoff(), config.PriceStream.GetMaxBackoff()),
			pricestream.WithSendBuffer(config.PriceStream.SendBuffer),
			pricestream.WithPingInterval(config.PriceStream.GetPingInterval()),
			pricestream.WithStateHandler(a.onStreamState),
		)
		a.Transport = a.PriceStream
	}

	a.HistoryCache = deps.HistoryCache
	if a.HistoryCache == nil && config.Cache.Enabled {
		cache, err := historycache.NewRedisCache(&config.Cache, logger)
		if err != nil {
			logger.Warn().Err(err).Str("addr", config.Cache.Addr).Msg("History cache unavailable - continuing without it")
		} else {
			a.HistoryCache = cache
		}
	}

	var history interfaces.HistorySource = a.DataService
	storeOpts := []valuation.Option{}
	if a.HistoryCache != nil {
		history = historycache.NewCachedSource(a.DataService, a.HistoryCache, logger)
		storeOpts = append(storeOpts, valuation.WithHistoryCache(a.HistoryCache))
	}

	a.Store = valuation.NewStore(a.DataService, logger, storeOpts...)
	a.Charts = chart.NewAggregator(history, logger)
	a.Reconciler = subscription.NewReconciler(a.Transport, logger)
	a.Dispatcher = subscription.NewDispatcher(a.Transport, logger)
	a.Hub = events.NewHub(logger)
	a.Views = view.NewManager(a.Store, a.Charts, a.Reconciler, a.Dispatcher, logger,
		view.WithPublisher(a.Hub),
		view.WithFetchTimeout(config.DataService.GetTimeout()),
	)

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Start launches the event hub and the price stream connection loop.
func (a *App) Start() {
	go a.Hub.Run()

	if a.PriceStream != nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.streamCancel = cancel
		a.PriceStream.Start(ctx)
	}
}

// StreamConnected reports whether live prices are flowing. Injected
// transports are assumed connected.
func (a *App) StreamConnected() bool {
	if a.PriceStream == nil {
		return true
	}
	return a.PriceStream.Connected()
}

// onStreamState turns price stream drops into view notifications. Prices
// already held stay as last known values.
func (a *App) onStreamState(connected bool, err error) {
	a.streamMu.Lock()
	wasDown := a.streamDown
	a.streamDown = !connected
	a.streamMu.Unlock()

	if !connected {
		dropped := apperrors.NewTransportDropped(err)
		a.Logger.Warn().Err(err).Msg("Price stream dropped")
		a.Views.NotifyAll(models.NotifyWarning, apperrors.UserMessage(dropped))
		return
	}
	if wasDown {
		a.Logger.Info().Msg("Price stream restored")
		a.Views.NotifyAll(models.NotifySuccess, "Live prices restored")
	}
}

// Close releases all resources held by the App.
// Shutdown order: close views, stop the price stream, stop the hub, close the cache.
func (a *App) Close() {
	if a.Views != nil {
		a.Views.CloseAll()
	}
	if a.streamCancel != nil {
		a.streamCancel()
		a.streamCancel = nil
	}
	if a.PriceStream != nil {
		a.PriceStream.Stop()
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.HistoryCache != nil {
		if err := a.HistoryCache.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close history cache")
		}
		a.HistoryCache = nil
	}
}
