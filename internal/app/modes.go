package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kprasolov/betledger/internal/auth"
	"github.com/kprasolov/betledger/internal/crypto"
	"github.com/kprasolov/betledger/internal/domain"
	"github.com/kprasolov/betledger/internal/ledger"
	"github.com/kprasolov/betledger/internal/server"
	"github.com/kprasolov/betledger/internal/server/handler"
	"github.com/kprasolov/betledger/internal/server/middleware"
	"github.com/kprasolov/betledger/internal/server/ws"
	"github.com/kprasolov/betledger/internal/service"
	"golang.org/x/sync/errgroup"
)

// writerLockKey guards the single-writer invariant: at most one serve process
// applies ledger actions at a time.
const writerLockKey = "ledger:writer"

// ServeMode runs the API node: ledger, HTTP + WebSocket server, and the
// optional archival loop. It blocks until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	// Writer lock. Held for the lifetime of the process and refreshed in the
	// background; a crashed writer frees the slot after the TTL.
	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, writerLockKey, a.cfg.Ledger.WriterLockTTL.Duration)
		if err != nil {
			return fmt.Errorf("serve mode: acquire writer lock: %w", err)
		}
		defer unlock()
	}

	// Ledger and the orchestrating service.
	svc := service.NewMarketService(ledger.New(), a.logger)
	if deps.MarketStore != nil {
		svc = svc.WithMirror(deps.MarketStore, deps.BetStore, deps.EventStore, deps.AuditStore)
	}
	if deps.MarketCache != nil {
		svc = svc.WithCache(deps.MarketCache)
	}
	if deps.SignalBus != nil {
		svc = svc.WithBus(deps.SignalBus)
	}
	if deps.Notifier != nil {
		svc = svc.WithNotifier(deps.Notifier)
	}

	if a.cfg.Ledger.RehydrateOnStart && deps.MarketStore != nil {
		if err := svc.Rehydrate(ctx); err != nil {
			return fmt.Errorf("serve mode: rehydrate: %w", err)
		}
	}

	// Wallet login: token issuer plus nonce storage. Without Redis nonces live
	// in process memory, which is fine for a single node.
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:           a.cfg.Auth.TokenSecret,
		EncryptedSecretPath: a.cfg.Auth.EncryptedSecretPath,
		Passphrase:          a.cfg.Auth.SecretPassphrase,
	})
	if err != nil {
		return fmt.Errorf("serve mode: load token secret: %w", err)
	}
	issuer := auth.NewTokenIssuer(secret, []byte(a.cfg.Auth.TokenSalt), a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL.Duration)

	nonces := deps.NonceCache
	if nonces == nil {
		nonces = auth.NewMemoryNonceStore()
	}
	authSvc := auth.NewService(nonces, issuer, a.cfg.Auth.NonceTTL.Duration, a.logger)

	startedAt := time.Now().UTC()

	// WebSocket hub bridges the signal bus to browser clients.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: startedAt})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		admin := handler.NewAdminHandler(svc, a.logger)
		if deps.BlobReader != nil {
			admin = admin.WithBlobReader(deps.BlobReader)
		}
		if deps.Archiver != nil {
			admin = admin.WithArchiveTrigger(func(ctx context.Context) (map[string]int64, error) {
				return a.archiveSweep(ctx, deps.Archiver)
			})
		}

		handlers := server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Status:  handler.NewStatusHandler(svc, a.cfg.Mode, startedAt),
			Auth:    handler.NewAuthHandler(authSvc, a.logger),
			Markets: handler.NewMarketHandler(svc, a.logger),
			Bets:    handler.NewBetHandler(svc, a.logger),
			Events:  handler.NewEventHandler(svc, a.logger),
			Admin:   admin,
		}

		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			AdminAPIKey: a.cfg.Auth.AdminAPIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		}, handlers, hub, issuer, deps.RateLimiter, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	} else {
		a.logger.WarnContext(ctx, "serve mode: http server disabled by config")
	}

	// Periodic archival sweep.
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps.Archiver)
		})
	}

	if deps.Notifier != nil {
		bg := context.WithoutCancel(ctx)
		go func() {
			msg := fmt.Sprintf("mode=%s port=%d", a.cfg.Mode, a.cfg.Server.Port)
			if err := deps.Notifier.NotifyAll(bg, "betledger started", msg); err != nil {
				a.logger.WarnContext(bg, "startup notification failed",
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	return g.Wait()
}

// monitorRefreshInterval is how often a monitor node re-reads the mirror so
// its replica tracks the writer.
const monitorRefreshInterval = 30 * time.Second

// monitorReplayLimit caps how much of the retained event journal a starting
// monitor replays into its log.
const monitorReplayLimit = 200

// MonitorMode runs a read-only replica: the query API and WebSocket surface
// over a ledger rehydrated from the mirror and refreshed on a timer, with all
// live bus traffic logged. It takes no writer lock and mounts no write
// routes; the one writer stays in serve mode.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	svc := service.NewMarketService(ledger.New(), a.logger).
		WithMirror(deps.MarketStore, deps.BetStore, deps.EventStore, deps.AuditStore)
	if deps.MarketCache != nil {
		svc = svc.WithCache(deps.MarketCache)
	}
	if err := svc.Rehydrate(ctx); err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}
	g.Go(func() error {
		return a.refreshLedger(ctx, svc)
	})

	// Token verification is optional on a replica. Without a secret the
	// public reads still work; session reads answer 401.
	var tokens middleware.TokenVerifier
	var authH *handler.AuthHandler
	if a.cfg.Auth.TokenSecret != "" || a.cfg.Auth.EncryptedSecretPath != "" {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			RawSecret:           a.cfg.Auth.TokenSecret,
			EncryptedSecretPath: a.cfg.Auth.EncryptedSecretPath,
			Passphrase:          a.cfg.Auth.SecretPassphrase,
		})
		if err != nil {
			return fmt.Errorf("monitor mode: load token secret: %w", err)
		}
		issuer := auth.NewTokenIssuer(secret, []byte(a.cfg.Auth.TokenSalt), a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL.Duration)
		tokens = issuer

		nonces := deps.NonceCache
		if nonces == nil {
			nonces = auth.NewMemoryNonceStore()
		}
		authH = handler.NewAuthHandler(auth.NewService(nonces, issuer, a.cfg.Auth.NonceTTL.Duration, a.logger), a.logger)
	}

	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: startedAt})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		handlers := server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Status:  handler.NewStatusHandler(svc, a.cfg.Mode, startedAt),
			Auth:    authH,
			Markets: handler.NewMarketHandler(svc, a.logger),
			Bets:    handler.NewBetHandler(svc, a.logger),
			Events:  handler.NewEventHandler(svc, a.logger),
			Admin:   handler.NewAdminHandler(svc, a.logger),
		}

		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			AdminAPIKey: a.cfg.Auth.AdminAPIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
			ReadOnly:    true,
		}, handlers, hub, tokens, deps.RateLimiter, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	} else {
		a.logger.WarnContext(ctx, "monitor mode: http server disabled by config")
	}

	// Show recent history, then follow the live channels.
	a.replayJournal(ctx, deps)

	channels := []string{
		domain.ChannelMarketUpdates,
		domain.ChannelBetUpdates,
		domain.ChannelPoolUpdates,
	}
	for _, channel := range channels {
		g.Go(func() error {
			return a.tailChannel(ctx, deps, channel)
		})
	}

	return g.Wait()
}

// refreshLedger re-rehydrates the replica on a timer. A failed refresh keeps
// the previous state serving and retries on the next tick.
func (a *App) refreshLedger(ctx context.Context, svc *service.MarketService) error {
	ticker := time.NewTicker(monitorRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := svc.Rehydrate(ctx); err != nil {
				a.logger.WarnContext(ctx, "monitor: refresh failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// replayJournal logs the retained event journal from the Redis stream so a
// fresh monitor shows what led up to now before the live feed takes over.
func (a *App) replayJournal(ctx context.Context, deps *Dependencies) {
	lastID := "0"
	replayed := 0
	for replayed < monitorReplayLimit {
		batch := monitorReplayLimit - replayed
		if batch > 100 {
			batch = 100
		}
		msgs, err := deps.SignalBus.StreamRead(ctx, domain.EventStream, lastID, batch)
		if err != nil {
			a.logger.WarnContext(ctx, "monitor: journal replay failed",
				slog.String("error", err.Error()),
			)
			return
		}
		if len(msgs) == 0 {
			break
		}
		for _, msg := range msgs {
			a.logBusMessage(ctx, deps, "journal", msg.Payload)
			lastID = msg.ID
		}
		replayed += len(msgs)
	}

	if replayed > 0 {
		a.logger.InfoContext(ctx, "monitor: journal replay complete",
			slog.Int("events", replayed),
		)
	}
}

// tailChannel subscribes to one bus channel and logs each message until the
// context ends.
func (a *App) tailChannel(ctx context.Context, deps *Dependencies, channel string) error {
	ch, err := deps.SignalBus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("monitor mode: subscribe %s: %w", channel, err)
	}
	a.logger.InfoContext(ctx, "monitor: subscribed", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			a.logBusMessage(ctx, deps, channel, payload)
		}
	}
}

// logBusMessage decodes and logs one bus payload. Market events are enriched
// with the cached market question when the cache has it.
func (a *App) logBusMessage(ctx context.Context, deps *Dependencies, channel string, payload []byte) {
	if channel == domain.ChannelPoolUpdates {
		var snap domain.PoolSnapshot
		if err := json.Unmarshal(payload, &snap); err == nil {
			a.logger.InfoContext(ctx, "monitor: pool update",
				slog.Uint64("market_id", snap.MarketID),
				slog.Uint64("total_pool", snap.TotalPool),
			)
			return
		}
	}

	var evt domain.Event
	if err := json.Unmarshal(payload, &evt); err != nil || evt.Type == "" {
		a.logger.InfoContext(ctx, "monitor: message",
			slog.String("channel", channel),
			slog.Int("bytes", len(payload)),
		)
		return
	}

	attrs := []any{
		slog.String("type", string(evt.Type)),
		slog.Uint64("market_id", evt.MarketID),
	}
	if evt.User != "" {
		attrs = append(attrs, slog.String("user", evt.User.String()))
	}
	if evt.Amount > 0 {
		attrs = append(attrs, slog.Uint64("amount", evt.Amount))
	}
	if evt.Answer != "" {
		attrs = append(attrs, slog.String("correct_answer", evt.Answer))
	}
	if deps.MarketCache != nil {
		if m, err := deps.MarketCache.Get(ctx, evt.MarketID); err == nil {
			attrs = append(attrs, slog.String("question", m.Question))
		}
	}

	a.logger.InfoContext(ctx, "monitor: event", attrs...)
}

// ArchiveMode runs exactly one archival sweep and exits. Meant for cron.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver not configured (requires s3 and the mirror)")
	}
	_, err := a.archiveSweep(ctx, deps.Archiver)
	return err
}

// archiveSweep exports everything older than the retention window and
// reports how much of each kind was exported.
func (a *App) archiveSweep(ctx context.Context, arch domain.Archiver) (map[string]int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

	markets, err := arch.ArchiveMarkets(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("archive sweep: markets: %w", err)
	}
	bets, err := arch.ArchiveBets(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("archive sweep: bets: %w", err)
	}
	events, err := arch.ArchiveEvents(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("archive sweep: events: %w", err)
	}

	a.logger.InfoContext(ctx, "archive sweep complete",
		slog.String("cutoff", cutoff.Format(time.RFC3339)),
		slog.Int64("markets", markets),
		slog.Int64("bets", bets),
		slog.Int64("events", events),
	)
	return map[string]int64{"markets": markets, "bets": bets, "events": events}, nil
}

// runArchiveLoop sweeps on a fixed interval until the context ends. Sweep
// failures are logged and retried on the next tick.
func (a *App) runArchiveLoop(ctx context.Context, arch domain.Archiver) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "archive loop started",
		slog.Duration("interval", a.cfg.Archive.Interval.Duration),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.archiveSweep(ctx, arch); err != nil {
				a.logger.WarnContext(ctx, "archive sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
