package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rileyseaburg/venue-trader/algorithm"
	"github.com/rileyseaburg/venue-trader/algorithm/algo"
	"github.com/rileyseaburg/venue-trader/api"
	"github.com/rileyseaburg/venue-trader/config"
	"github.com/rileyseaburg/venue-trader/logger"
	"github.com/rileyseaburg/venue-trader/notification"
	"github.com/rileyseaburg/venue-trader/risk"
	"github.com/rileyseaburg/venue-trader/store"
	"github.com/rileyseaburg/venue-trader/types"
	"github.com/rileyseaburg/venue-trader/venue"
	"github.com/rileyseaburg/venue-trader/venue/alpaca"
	"github.com/rileyseaburg/venue-trader/venue/paper"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration")
	envFile := flag.String("env", ".env", "Optional dotenv file with API keys")
	port := flag.String("port", "", "Port to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	paperSim := flag.Bool("paper-sim", false, "Trade against simulated in-memory venues")
	autostart := flag.Bool("autostart", false, "Start trading as soon as the server is up")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.App.Port = *port
	}
	if *logLevel != "" {
		cfg.App.LogLevel = *logLevel
	}

	log := logger.New(cfg.App.LogLevel, cfg.App.PrettyLogs).With().Str("app", cfg.App.Name).Logger()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	secrets, err := config.LoadEnv(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment")
	}

	if err := run(cfg, secrets, *paperSim, *autostart, log); err != nil {
		log.Fatal().Err(err).Msg("trader exited")
	}
}

func run(cfg *config.Config, secrets *config.Secrets, paperSim, autostart bool, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var adapters []venue.Adapter
	var err error
	if paperSim {
		var sims []*paper.Venue
		adapters, sims = buildPaperVenues(cfg)
		market := newSimMarket(sims, cfg.Universe, cfg.Strategy.ScanInterval(), 2*cfg.Strategy.HistoryBars)
		go market.run(ctx, cfg.Strategy.ScanInterval())
		log.Warn().Int("assets", len(cfg.Universe)).Msg("paper simulation mode, no orders reach a broker")
	} else {
		adapters, err = buildAlpacaVenues(cfg, secrets, log)
		if err != nil {
			return err
		}
	}
	registry := venue.NewRegistry(adapters...)

	recorder, history, closeRecorder, err := openRecorder(cfg, secrets, log)
	if err != nil {
		return err
	}
	defer closeRecorder()

	notes := notification.NewManager(notification.DefaultCapacity)
	riskManager := risk.NewManager(cfg.Risk, log)
	engine := algo.NewEngine(cfg.Strategy.IndicatorPeriod, cfg.Strategy.OversoldThreshold, cfg.Strategy.OverboughtThreshold)
	scanner := algorithm.NewScanner(registry, engine, algorithm.ScannerConfig{
		HistoryBars:  cfg.Strategy.HistoryBars,
		AssetTimeout: cfg.Strategy.AssetTimeout(),
		Concurrency:  cfg.Strategy.ScanConcurrency,
	}, log)
	trader := algorithm.NewTradingAlgorithm(registry, scanner, riskManager, algorithm.Config{
		ScanInterval:      cfg.Strategy.ScanInterval(),
		AdapterTimeout:    cfg.Strategy.AdapterTimeout(),
		MinSignalStrength: cfg.Strategy.SignalThreshold(),
		TopCandidateCount: cfg.Strategy.TopCandidateCount,
		FXRates:           cfg.FXRates(),
	}, log, algorithm.WithRecorder(recorder), algorithm.WithNotifier(notes))

	hub := api.NewHub(log)
	var serverOpts []api.Option
	if history != nil {
		serverOpts = append(serverOpts, api.WithTradeHistory(history))
	}
	srv := api.NewServer(trader, cfg.Universe, notes, hub, log, serverOpts...)
	trader.OnStatus(srv.PublishStatus)
	notes.Subscribe(srv.PublishNotification)

	httpServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Int("venues", registry.Len()).Int("assets", len(cfg.Universe)).Msg("control server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if autostart {
		if err := trader.Start(ctx, cfg.Universe); err != nil {
			log.Error().Err(err).Msg("autostart failed, waiting for a start request")
		}
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			trader.Stop()
			trader.Wait()
			return fmt.Errorf("control server: %w", err)
		}
	}

	trader.Stop()
	trader.Wait()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("control server shutdown")
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func buildAlpacaVenues(cfg *config.Config, secrets *config.Secrets, log zerolog.Logger) ([]venue.Adapter, error) {
	var adapters []venue.Adapter
	if _, ok := cfg.Venues[types.VenueEquities]; ok {
		if !secrets.HasEquitiesKeys() {
			return nil, errors.New("equities venue enabled but EQUITIES_ALPACA_API_KEY/EQUITIES_ALPACA_SECRET_KEY are not set")
		}
		client, md := alpaca.NewClients(alpaca.Credentials{APIKey: secrets.EquitiesAPIKey, APISecret: secrets.EquitiesSecretKey, Paper: secrets.Paper})
		eq, err := alpaca.NewEquities(client, md, cfg.Strategy.Timeframe, log)
		if err != nil {
			return nil, fmt.Errorf("equities venue: %w", err)
		}
		adapters = append(adapters, eq)
	}
	if vc, ok := cfg.Venues[types.VenueCrypto]; ok {
		if !secrets.HasCryptoKeys() {
			return nil, errors.New("crypto venue enabled but CRYPTO_ALPACA_API_KEY/CRYPTO_ALPACA_SECRET_KEY are not set")
		}
		client, md := alpaca.NewClients(alpaca.Credentials{APIKey: secrets.CryptoAPIKey, APISecret: secrets.CryptoSecretKey, Paper: secrets.Paper})
		cr, err := alpaca.NewCrypto(client, md, cfg.Strategy.Timeframe, vc.MinimumOrderSizes, log)
		if err != nil {
			return nil, fmt.Errorf("crypto venue: %w", err)
		}
		adapters = append(adapters, cr)
	}
	if !secrets.Paper {
		log.Warn().Msg("LIVE trading enabled")
	}
	return adapters, nil
}

// openRecorder returns a nil history when no database is configured
func openRecorder(cfg *config.Config, secrets *config.Secrets, log zerolog.Logger) (store.Recorder, api.TradeHistory, func(), error) {
	opt, ok := cfg.StoreOption(secrets)
	if !ok {
		log.Info().Msg("no database configured, trade events are not persisted")
		return store.Nop{}, nil, func() {}, nil
	}
	rec, err := store.Open(opt)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open event store: %w", err)
	}
	log.Info().Msg("recording trades and signals to postgres")
	return rec, rec, func() {
		if err := rec.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event store")
		}
	}, nil
}
