package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"liquidity_go/internal/domain"
	"liquidity_go/internal/engine"
	"liquidity_go/internal/event"
	"liquidity_go/internal/infra"
	"liquidity_go/internal/infra/chain"
	"liquidity_go/internal/infra/storage"
	"liquidity_go/internal/infra/venue"
	"liquidity_go/internal/service"
)

const inboxSize = 1024

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Store     domain.PoolStore
	Pool      *service.PoolService
	Sequencer *engine.Sequencer
	Feed      *chain.BlockFeed

	assets  *storage.Storage // nil unless the sqlite driver is selected
	closers []io.Closer
	seqDone chan struct{}
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and wires storage, clients, the pool service and the feed.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping liquidity keeper...", slog.String("pool", cfg.Pool.Address))

	// 3. Initialize Storage
	if err := b.openStore(); err != nil {
		return err
	}
	if err := b.Store.Init(ctx, cfg.Pool.ObservationsCapacity, cfg.Orderbook()); err != nil {
		return fmt.Errorf("init pool store: %w", err)
	}
	slog.Info("✅ Pool store initialized", slog.String("driver", cfg.Storage.Driver), slog.Int("capacity", cfg.Pool.ObservationsCapacity))

	// 4. Asset precisions
	precisions, err := b.syncAssets()
	if err != nil {
		return err
	}

	// 5. Balance clients
	bank := chain.NewBankClient(cfg.Chain.LCDURL, time.Duration(cfg.Chain.TimeoutSec)*time.Second)
	signer := venue.NewSigner(cfg.Venue.AccessKey, cfg.Venue.SecretKey, cfg.Venue.Passphrase)
	venueClient := venue.NewClient(cfg.Venue.RestURL, time.Duration(cfg.Venue.TimeoutSec)*time.Second, signer)
	reconciler := service.NewReconciler(precisions, bank, venueClient)

	// 6. Pool service, sequencer and feed
	b.Pool = service.NewPoolService(cfg.PoolInfo(), b.Store, reconciler, infra.GlobalMetrics)
	if _, err := b.Pool.Restore(ctx); err != nil {
		return err
	}

	event.Warmup()
	b.Sequencer = engine.NewSequencer(inboxSize, b.Pool, infra.GlobalMetrics)
	b.Feed = chain.NewBlockFeed(chain.FeedConfig{
		URL:       cfg.Chain.WSURL,
		SwapQuery: cfg.Chain.SwapQuery,
		EventType: cfg.Chain.EventType,
		BaseDenom: cfg.Pool.Assets[0].Denom,
	}, b.Sequencer.Inbox(), infra.GlobalMetrics)

	return nil
}

func (b *Bootstrap) openStore() error {
	cfg := b.Config
	switch cfg.Storage.Driver {
	case infra.DriverSQLite:
		db, err := storage.NewStorage(cfg.Storage.Path)
		if err != nil {
			return err
		}
		b.assets = db
		b.closers = append(b.closers, db)
		b.Store = db.PoolStore(cfg.Pool.Address)
	case infra.DriverLevelDB:
		db, err := storage.OpenLevelDB(cfg.Storage.Path)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, db)
		b.Store = db.PoolStore(cfg.Pool.Address)
	case infra.DriverMemory:
		slog.Warn("⚠️ Memory storage selected: observations are lost on restart")
		b.Store = storage.NewMemoryStore(cfg.Pool.Address)
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unknown driver %q", cfg.Storage.Driver)}
	}
	return nil
}

// syncAssets registers the configured precisions. With sqlite the asset
// table becomes the resolver so operators can correct decimals in place.
func (b *Bootstrap) syncAssets() (domain.PrecisionResolver, error) {
	if b.assets == nil {
		return b.Config.Precisions(), nil
	}

	for _, a := range b.Config.Pool.Assets {
		info := &domain.AssetInfo{Denom: a.Denom, Decimals: a.Decimals, IsActive: true, UpdatedAt: time.Now()}
		existing, err := b.assets.GetAsset(a.Denom)
		if err != nil {
			return nil, fmt.Errorf("load asset %s: %w", a.Denom, err)
		}
		if existing != nil {
			info.CreatedAt = existing.CreatedAt
		}
		if err := b.assets.UpsertAsset(info); err != nil {
			return nil, fmt.Errorf("upsert asset %s: %w", a.Denom, err)
		}
	}
	slog.Info("✨ Asset precisions synchronized", slog.Int("assets", len(b.Config.Pool.Assets)))
	return b.assets, nil
}

// StartSequencer runs the sequencer until ctx is canceled.
func (b *Bootstrap) StartSequencer(ctx context.Context) {
	b.seqDone = make(chan struct{})
	go func() {
		defer close(b.seqDone)
		b.Sequencer.Run(ctx)
	}()
}

// Close releases storage handles once the sequencer has stopped.
// The context passed to StartSequencer must be canceled first.
func (b *Bootstrap) Close() {
	if b.seqDone != nil {
		<-b.seqDone
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			slog.Error("Failed to close resource", slog.Any("error", err))
		}
	}
	b.closers = nil
}
