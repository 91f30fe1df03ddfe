package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"reservemint/internal/compliance"
	custodymetrics "reservemint/internal/custody/metrics"
	custodyservice "reservemint/internal/custody/service"
	custodystore "reservemint/internal/custody/store"
	explorermetrics "reservemint/internal/explorer/metrics"
	"reservemint/internal/explorer/publisher"
	explorerservice "reservemint/internal/explorer/service"
	explorerstore "reservemint/internal/explorer/store"
	injmetrics "reservemint/internal/injection/metrics"
	injservice "reservemint/internal/injection/service"
	injstore "reservemint/internal/injection/store"
	lockmetrics "reservemint/internal/lock/metrics"
	lockservice "reservemint/internal/lock/service"
	lockstore "reservemint/internal/lock/store"
	mintmetrics "reservemint/internal/minting/metrics"
	mintservice "reservemint/internal/minting/service"
	mintstore "reservemint/internal/minting/store"
	"reservemint/internal/oracle"
	"reservemint/internal/platform/config"
	"reservemint/internal/platform/httpserver"
	"reservemint/internal/platform/logger"
	"reservemint/internal/platform/middleware"
	platformredis "reservemint/internal/platform/redis"
	"reservemint/internal/roles"
	"reservemint/internal/signature"
	signaturemodels "reservemint/internal/signature/models"
	signaturestore "reservemint/internal/signature/store"
	httptransport "reservemint/internal/transport/http"
	"reservemint/pkg/domain"
)

// main wires stores, services and transport. Business rules live in the
// internal service packages; this file only selects backends from config
// and owns the process lifecycle.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Backends. Postgres backs custody and the explorer trail when
	// configured; locks, injections and mint records use the memory
	// stores until their Postgres variants land.
	var (
		accountStore custodystore.AccountStore = custodystore.NewInMemory()
		entryStore   explorerstore.EntryStore  = explorerstore.NewInMemory()
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		accountStore = custodystore.NewPostgres(db)
		entryStore = explorerstore.NewPostgres(db)
		log.Info("postgres stores enabled")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	var windowStore injstore.WindowStore = injstore.NewMemoryWindowStore()
	if redisClient != nil {
		defer redisClient.Close()
		windowStore = injstore.NewRedisWindowStore(redisClient.Client)
		log.Info("redis rate-limit window enabled")
	}

	// Consumed contracts: role registry and compliance gate.
	roleRegistry := roles.NewInMemory()
	for _, grant := range cfg.RoleGrants {
		role, principal, ok := strings.Cut(grant, ":")
		if !ok {
			log.Warn("skipping malformed role grant", "grant", grant)
			continue
		}
		roleRegistry.Grant(role, principal)
	}

	var gate compliance.Gate = compliance.NewStaticGate()
	if cfg.ComplianceURL != "" {
		gate = compliance.NewHTTPGate(cfg.ComplianceURL, cfg.UpstreamTimeout)
	} else {
		log.Warn("no compliance gate configured, using permissive static gate")
	}
	guardedGate := compliance.NewGuard(gate, cfg.UpstreamTimeout)

	// Price oracle. Without an external feed the fixed source pins 1:1
	// and a refresher keeps the quote inside the staleness threshold.
	priceFeed := oracle.NewFixedSource()
	priceFeed.SetQuote(oracle.Quote{
		CurrencyCode: cfg.CurrencyCode,
		PriceMicros:  domain.MicrosPerUnit,
		AsOf:         time.Now().UTC(),
	})
	prices := oracle.NewStalenessGuard(priceFeed, cfg.OracleStaleness, cfg.UpstreamTimeout)

	// Signature verification.
	mode, ok := signaturemodels.ParseVerificationMode(cfg.VerificationMode)
	if !ok {
		log.Error("invalid verification mode", "mode", cfg.VerificationMode)
		os.Exit(1)
	}
	verifier := signature.NewVerifier(signaturestore.NewInMemory(), mode,
		signature.WithLogger(log))

	// Domain services.
	custody := custodyservice.NewLedger(accountStore,
		custodyservice.WithLogger(log),
		custodyservice.WithMetrics(custodymetrics.New()))

	lockStore := lockstore.NewInMemory()
	locks := lockservice.NewRegistry(lockStore, verifier, roleRegistry,
		lockservice.WithLogger(log),
		lockservice.WithMetrics(lockmetrics.New()),
		lockservice.WithLockTTL(cfg.LockTTL))

	dailyCap, err := domain.ParseAmount(cfg.DailyCap)
	if err != nil {
		log.Error("invalid daily cap", "value", cfg.DailyCap, "error", err)
		os.Exit(1)
	}
	anomalyThreshold, err := domain.ParseAmount(cfg.AnomalyThreshold)
	if err != nil {
		log.Error("invalid anomaly threshold", "value", cfg.AnomalyThreshold, "error", err)
		os.Exit(1)
	}
	injections := injservice.NewController(
		injstore.NewInMemory(),
		windowStore,
		custody,
		locks,
		guardedGate,
		prices,
		roleRegistry,
		injservice.Policy{
			DailyCap:         dailyCap,
			AnomalyThreshold: anomalyThreshold,
			WindowDuration:   cfg.WindowDuration,
			PerAccountWindow: cfg.PerAccountWindow,
			CurrencyCode:     cfg.CurrencyCode,
		},
		injservice.WithLogger(log),
		injservice.WithMetrics(injmetrics.New()))

	// Rejecting a lock must release the custody reservation its injection
	// made; the registry calls back into the controller.
	locks.SetReservationReleaser(injections)

	explorerMetrics := explorermetrics.New()
	explorer := explorerservice.NewExplorer(entryStore, lockStore,
		explorerservice.WithLogger(log),
		explorerservice.WithMetrics(explorerMetrics))

	mints := mintservice.NewLedger(
		mintstore.NewInMemory(),
		locks,
		injections,
		explorer,
		guardedGate,
		roleRegistry,
		mintservice.WithLogger(log),
		mintservice.WithMetrics(mintmetrics.New()))

	// Transport.
	router := httptransport.NewRouter(httptransport.Deps{
		Custody:    custody,
		Injections: injections,
		Locks:      locks,
		Mints:      mints,
		Explorer:   explorer,
		Keys:       verifier,
		Admin:      injections,
		Validator:  middleware.NewTokenValidator(cfg.JWTSigningKey),
		Logger:     log,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("reservemint listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Keep the pinned development quote fresh. A real deployment replaces
	// the fixed source with the feed client and drops this loop.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.OracleStaleness / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				priceFeed.SetQuote(oracle.Quote{
					CurrencyCode: cfg.CurrencyCode,
					PriceMicros:  domain.MicrosPerUnit,
					AsOf:         time.Now().UTC(),
				})
			}
		}
	})

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := publisher.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer sink.Close()

		worker := publisher.NewWorker(entryStore, sink, 5*time.Second, log,
			publisher.WithMetrics(explorerMetrics))
		g.Go(func() error { return worker.Run(ctx) })
		log.Info("explorer kafka publisher enabled", "topic", cfg.KafkaTopic)
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
