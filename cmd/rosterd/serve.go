package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	coresys "github.com/l1jgo/roster/internal/core/system"
	"github.com/l1jgo/roster/internal/data"
	"github.com/l1jgo/roster/internal/handler"
	gonet "github.com/l1jgo/roster/internal/net"
	"github.com/l1jgo/roster/internal/net/packet"
	"github.com/l1jgo/roster/internal/persist"
	"github.com/l1jgo/roster/internal/roster"
	"github.com/l1jgo/roster/internal/scripting"
	"github.com/l1jgo/roster/internal/system"
	"github.com/l1jgo/roster/internal/world"
	"go.uber.org/zap"
)

func runServe(parent context.Context) error {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if cfg.Diagnostics.Gops {
		if err := agent.Listen(agent.Options{Addr: cfg.Diagnostics.GopsAddr}); err != nil {
			log.Warn("gops agent failed to start", zap.Error(err))
		} else {
			defer agent.Close()
		}
	}

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Connect to PostgreSQL and run migrations
	printSection("Database")

	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, cfg.Server.Name, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL connected")

	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("migrations applied")

	accountRepo := persist.NewAccountRepo(db)
	charRepo := persist.NewCharacterRepo(db)
	auditRepo := persist.NewAuditRepo(db)

	// Accounts left online by a crash.
	if n, err := accountRepo.ResetOnline(ctx); err != nil {
		return fmt.Errorf("reset online flags: %w", err)
	} else if n > 0 {
		printStat("stale online accounts reset", int(n))
	}
	fmt.Println()

	// 4. Scripts and data
	printSection("Data")

	luaEngine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer luaEngine.Close()
	printOK("Lua scripts loaded")

	announces, err := loadAnnouncements(cfg.Data.AnnounceList, log)
	if err != nil {
		return err
	}
	printStat("announcements", len(announces))
	fmt.Println()

	// 5. Roster and its coordinator
	queue := coresys.NewQueue(log)
	ros := world.NewRoster(log)
	coord, err := roster.New[*world.Player, *world.Character](ros,
		roster.WithExecutor(queue),
		roster.WithWaitTimeout(cfg.Roster.WaitTimeout),
		roster.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("roster coordinator: %w", err)
	}
	defer coord.Close()

	persistSys := system.NewPersistenceSystem(ros, auditRepo, charRepo, log,
		cfg.Roster.AuditFlushTicks, cfg.Roster.SaveTicks, cfg.Roster.AuditBufferMax)
	lifecycle := system.NewLifecycle(coord, persistSys, luaEngine, queue, cfg.Roster.WelcomeMessage, log)
	if err := lifecycle.Start(); err != nil {
		return fmt.Errorf("roster lifecycle: %w", err)
	}

	announcer := system.NewAnnouncer(ros, queue, log)
	announcer.Reload(announces)

	// 6. Packet handlers
	clientVersion, err := handler.ParseClientConstraint(cfg.Server.MinClientVersion)
	if err != nil {
		return fmt.Errorf("server.min_client_version: %w", err)
	}
	pktReg := packet.NewRegistry(log)
	deps := &handler.Deps{
		Accounts:      accountRepo,
		Characters:    charRepo,
		Config:        cfg,
		Log:           log,
		Roster:        ros,
		Coord:         coord,
		Exec:          queue,
		ClientVersion: clientVersion,
	}
	handler.RegisterAll(pktReg, deps)

	// 7. Create network server
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, cfg.Network.MaxClients, gonet.SessionOptions{
		InQueueSize:      cfg.Network.InQueueSize,
		OutQueueSize:     cfg.Network.OutQueueSize,
		PacketsPerSecond: cfg.RateLimit.PacketsPerSecond,
		WriteTimeout:     cfg.Network.WriteTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	// 8. Create systems and register with runner
	store := gonet.NewSessionStore()
	runner := coresys.NewRunner(log)
	runner.Register(system.NewInputSystem(netServer, pktReg, store, ros, cfg.Network.MaxPacketsPerTick, log))
	runner.Register(coresys.NewQueueSystem(queue))
	runner.Register(system.NewOutputSystem(store))
	runner.Register(persistSys)

	// 9. Start game loop
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("Ready")
	printReady(fmt.Sprintf("listening on %s", netServer.Addr().String()))
	printReady(fmt.Sprintf("game loop running (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)

		case <-parent.Done():
			log.Info("context cancelled, shutting down")
			return shutdown(netServer, store, ros, announcer, lifecycle, persistSys, log)

		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloadAnnouncements(cfg.Data.AnnounceList, announcer, log)
				continue
			}
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			return shutdown(netServer, store, ros, announcer, lifecycle, persistSys, log)
		}
	}
}

// shutdown tells clients, saves positions while characters are still in
// world, empties the roster so every cleanup runs, then flushes the audit.
func shutdown(
	netServer *gonet.Server,
	store *gonet.SessionStore,
	ros *world.Roster,
	announcer *system.Announcer,
	lifecycle *system.Lifecycle,
	persistSys *system.PersistenceSystem,
	log *zap.Logger,
) error {
	netServer.Shutdown()
	if err := announcer.Stop(); err != nil {
		log.Warn("stop announcements failed", zap.Error(err))
	}

	store.ForEach(func(sess *gonet.Session) {
		handler.SendDisconnect(sess, handler.DisconnectShutdown)
		sess.Disconnect()
	})
	persistSys.FlushAll()

	var ids []uint64
	ros.AllPlayers(func(p *world.Player) { ids = append(ids, p.SessionID) })
	for _, id := range ids {
		ros.RemovePlayer(id)
	}
	if err := lifecycle.Stop(); err != nil {
		log.Warn("roster lifecycle cleanup failed", zap.Error(err))
	}
	persistSys.FlushAll()

	// Give writers a moment to send S_DISCONNECT.
	time.Sleep(200 * time.Millisecond)
	store.CloseAll()
	st := netServer.Stats()
	log.Info("server stopped",
		zap.Int("players", len(ids)),
		zap.Uint64("accepted", st.Accepted),
		zap.Uint64("rejected", st.Rejected),
	)
	return nil
}

// loadAnnouncements reads the announce list. A missing file means no
// announcements.
func loadAnnouncements(path string, log *zap.Logger) ([]*data.AnnounceEntry, error) {
	if path == "" {
		return nil, nil
	}
	table, err := data.LoadAnnounceTable(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info("no announce list", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load announce list: %w", err)
	}
	return table.All(), nil
}

// reloadAnnouncements re-reads the announce list on SIGHUP. A broken file
// keeps the running set.
func reloadAnnouncements(path string, announcer *system.Announcer, log *zap.Logger) {
	entries, err := loadAnnouncements(path, log)
	if err != nil {
		log.Error("reload announcements failed", zap.Error(err))
		return
	}
	announcer.Reload(entries)
}
