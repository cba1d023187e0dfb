// Package digest sends owners a periodic stats summary (the same numbers
// the admin status panel shows), on a cron schedule.
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"animebot/internal/config"
	"animebot/internal/storage"
	"animebot/internal/texts"
	"animebot/internal/transport"
	"animebot/pkg/tgui"
)

type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Service struct {
	store  storage.Store
	sender Sender
	cfg    func() *config.Config
	txt    func() *texts.Texts
	log    zerolog.Logger

	cron *cron.Cron
}

func New(store storage.Store, sender Sender, cfg func() *config.Config, txt func() *texts.Texts, log zerolog.Logger) *Service {
	return &Service{store: store, sender: sender, cfg: cfg, txt: txt, log: log}
}

// Start schedules the digest if enabled. Safe to call with digest disabled.
func (s *Service) Start(ctx context.Context) error {
	dc := s.cfg().Digest
	if !dc.Enabled {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(dc.Spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("digest schedule %q: %w", dc.Spec, err)
	}
	s.cron = c
	c.Start()
	s.log.Info().Str("spec", dc.Spec).Msg("digest scheduled")
	return nil
}

func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Service) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	total, err := s.store.CountUsers(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("digest count failed")
		return
	}
	banned, err := s.store.CountBanned(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("digest count failed")
		return
	}
	midnight := tgui.StartOfDay(time.Now())
	active, err := s.store.CountActiveSince(ctx, midnight.Unix())
	if err != nil {
		s.log.Warn().Err(err).Msg("digest count failed")
		return
	}

	text := texts.Render(s.txt().Admin.DigestText,
		"total_users", fmt.Sprintf("%d", total),
		"banned_users", fmt.Sprintf("%d", banned),
		"today_active", fmt.Sprintf("%d", active),
	)
	opt := &transport.SendOptions{ParseMode: "HTML"}
	for _, owner := range s.cfg().Owners {
		if _, err := s.sender.SendText(ctx, transport.ChatTarget{ChatID: owner}, text, opt); err != nil {
			s.log.Warn().Int64("owner_id", owner).Err(err).Msg("digest send failed")
		}
	}
}
