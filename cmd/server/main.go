package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/config"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/escrow"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/idempotency"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/program"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/server"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/trade"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	log.SetLevel(cfg.Service.LogLevel)
	if cfg.Auth.Disabled {
		log.Warn("wallet signature checks are disabled")
	}

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("idempotency store error: %v", err)
	}
	defer closeStore()

	rpcClient, err := escrow.NewRPCClient(escrow.RPCClientConfig{
		RPCURL:     cfg.Chain.RPCURL,
		Commitment: cfg.Chain.Commitment,
	})
	if err != nil {
		log.Fatalf("rpc client error: %v", err)
	}

	deriver, err := program.NewDeriver(program.EscrowProgramID, cfg.Chain.DerivationCacheSize)
	if err != nil {
		log.Fatalf("deriver error: %v", err)
	}

	apiServer := server.NewServer(cfg, trade.NewPlanner(rpcClient, deriver), rpcClient, store)

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.AppConfig) (idempotency.Store, func(), error) {
	switch cfg.Store.Kind {
	case config.StorePostgres:
		pg, err := idempotency.NewPostgresStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		go pruneExpired(pg, cfg.Store.IdempotencyWindow)
		return pg, pg.Close, nil
	case config.StoreFile:
		fs, err := idempotency.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	default:
		return idempotency.NewMemoryStore(), func() {}, nil
	}
}

// pruneExpired deletes expired postgres records once per window.
func pruneExpired(pg *idempotency.PostgresStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		n, err := pg.DeleteExpired(context.Background())
		if err != nil {
			log.WithError(err).Warn("idempotency prune failed")
			continue
		}
		log.WithField("deleted", n).Debug("idempotency records pruned")
	}
}
