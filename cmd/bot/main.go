package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"animebot/internal/broadcast"
	"animebot/internal/config"
	"animebot/internal/digest"
	"animebot/internal/gate"
	"animebot/internal/inline"
	"animebot/internal/logging"
	"animebot/internal/router"
	"animebot/internal/storage"
	"animebot/internal/texts"
	"animebot/internal/transport"
	"animebot/internal/transport/telegram"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")
	flag.Parse()

	// .env is optional; real env always wins.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath, zerolog.Nop())
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.Log)
	mgr.SetLogger(log.With().Str("comp", "config").Logger())

	txt := texts.NewManager(cfg.TextsPath)
	if err := txt.Load(); err != nil {
		log.Warn().Str("path", cfg.TextsPath).Err(err).Msg("texts load failed; using defaults")
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: busyTimeout,
	}, log.With().Str("comp", "storage").Logger())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With().Str("comp", "telegram").Logger())
	if err != nil {
		return fmt.Errorf("telegram adapter: %w", err)
	}

	pool := broadcast.New(broadcast.Config{
		Workers:    cfg.Broadcast.Workers,
		RatePerSec: cfg.Broadcast.RatePerSec,
	}, log.With().Str("comp", "broadcast").Logger())

	// The gate notifies the router about first-time users; the router is
	// built right after, so the hook closes over the variable.
	var rt *router.Router
	g := gate.New(gate.Deps{
		Store:     store,
		Oracle:    gate.NewChatOracle(adapter, adapter.BotID()),
		Messenger: adapter,
		Config:    mgr.Snapshot,
		Texts:     txt.Snapshot,
		Alerted:   gate.NewAlertOnce(),
		Log:       log.With().Str("comp", "gate").Logger(),
		OnNewUser: func(ctx context.Context, u *storage.User) {
			if rt != nil {
				rt.NotifyNewUser(ctx, u)
			}
		},
	})

	rt = router.New(router.Deps{
		Adapter: adapter,
		Store:   store,
		Gate:    g,
		Pool:    pool,
		Images:  inline.NewClient(log.With().Str("comp", "inline").Logger()),
		Config:  mgr.Snapshot,
		Texts:   txt.Snapshot,
		Log:     log.With().Str("comp", "router").Logger(),
	})

	dig := digest.New(store, adapter, mgr.Snapshot, txt.Snapshot, log.With().Str("comp", "digest").Logger())
	if err := dig.Start(ctx); err != nil {
		return err
	}
	defer dig.Stop()

	go func() {
		if err := mgr.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("config watch stopped")
		}
	}()

	// Re-read the strings file whenever a config reload lands, so a
	// changed texts_path or edited texts take effect without a restart.
	go func() {
		sub := mgr.Subscribe(1)
		defer mgr.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-sub:
				if !ok {
					return
				}
				txt.SetPath(c.TextsPath)
				if err := txt.Load(); err != nil {
					log.Warn().Str("path", c.TextsPath).Err(err).Msg("texts reload failed; keeping previous strings")
				}
			}
		}
	}()

	updates := make(chan transport.Update, 256)
	if err := adapter.Start(ctx, updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}
	defer adapter.Stop(context.Background())

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info().Str("version", cfg.Version).Msg("bot started")

	rt.Run(ctx, updates)
	return nil
}
