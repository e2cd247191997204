package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"peertrust/internal/adapters/chainrpc"
	httpadapter "peertrust/internal/adapters/http"
	"peertrust/internal/adapters/keyring"
	pg "peertrust/internal/adapters/postgres"
	"peertrust/internal/config"
	"peertrust/internal/ports"
	"peertrust/internal/services/analytics"
	"peertrust/internal/services/blacklist"
	"peertrust/internal/services/reputation"
	"peertrust/internal/services/scoring"
	"peertrust/internal/services/validator"
	"peertrust/internal/workers/confirmer"
)

func main() {
	cfg, err := config.Load()

	log := newLogger(cfg.Env)
	defer func() { _ = log.Sync() }()

	if err != nil && !errors.Is(err, config.ErrDatabaseURLNotSet) {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required for the Postgres adapters")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pg.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect error", zap.Error(err))
	}
	defer db.Close()

	keys := loadKeyring(cfg, log)
	observer := loadObserver(cfg, log)

	// Wire repositories to services (ports)
	var _ ports.VerdictRepository = db
	var _ ports.ReplayGuardRepository = db
	var _ ports.BlacklistRepository = db

	engine := scoring.NewEngine(cfg.Reputation, db, log.Named("scoring"))
	blm := blacklist.NewManager(cfg.Reputation, db, log.Named("blacklist"))
	engine.SetObserver(blm)
	vld := validator.New(keys, db, cfg.Reputation, log.Named("validator"))
	tracker := confirmer.NewTracker(observer, engine, cfg.Reputation, log.Named("confirmer"))
	agg := analytics.New(engine, blm)
	rep := reputation.New(vld, tracker, engine, blm, agg, log.Named("reputation"))

	// Rebuild in-memory state from the durable log before serving.
	if err := vld.Replay(ctx); err != nil {
		log.Fatal("replay guard state failed", zap.Error(err))
	}
	if err := engine.Replay(ctx); err != nil {
		log.Fatal("verdict log replay failed", zap.Error(err))
	}
	if err := blm.Replay(ctx); err != nil {
		log.Fatal("blacklist replay failed", zap.Error(err))
	}

	go tracker.Run(ctx, cfg.PollInterval, cfg.PollConcurrency)
	go pruneLoop(ctx, db, cfg.Reputation, log)

	srv := httpadapter.New(rep, log.Named("http"))
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	log.Info("listening", zap.String("addr", cfg.ListenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.Stringer("signal", sig))
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		log.Fatal("server error", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	if env == "development" {
		log, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return log
	}
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return log
}

func loadKeyring(cfg config.Config, log *zap.Logger) *keyring.Keyring {
	if cfg.KeyringFile == "" {
		log.Warn("KEYRING_FILE not set; all signatures will fail verification")
		return keyring.New()
	}
	keys, err := keyring.LoadFile(cfg.KeyringFile)
	if err != nil {
		log.Fatal("keyring load failed", zap.Error(err))
	}
	return keys
}

func loadObserver(cfg config.Config, log *zap.Logger) ports.ChainObserver {
	if cfg.ObserverURL == "" {
		log.Warn("CHAIN_OBSERVER_URL not set; payment-backed verdicts will expire unconfirmed")
		return unavailableObserver{}
	}
	return chainrpc.New(cfg.ObserverURL)
}

// unavailableObserver stands in when no chain endpoint is configured. It
// always reports unavailability, which keeps pending verdicts pending.
type unavailableObserver struct{}

func (unavailableObserver) Confirmations(context.Context, string) (int, error) {
	return 0, errors.New("chain observer not configured")
}

// pruneLoop drops verdicts past the retention window once a day.
func pruneLoop(ctx context.Context, db *pg.DB, cfg config.Reputation, log *zap.Logger) {
	if cfg.VerdictRetentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -cfg.VerdictRetentionDays)
			pruned, err := db.PruneVerdicts(ctx, cutoff)
			if err != nil {
				log.Error("verdict prune failed", zap.Error(err))
				continue
			}
			if pruned > 0 {
				log.Info("verdicts pruned", zap.Int64("count", pruned))
			}
		}
	}
}
