// Package notify delivers operator-facing task outcome messages to a
// Telegram chat. Delivery is best-effort: a failed send is logged, never
// surfaced to the scheduler.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	logx "courtcast/pkg/logx"
)

type Config struct {
	// Token is the bot token. Empty disables notifications.
	Token string
	// ChatID is the destination chat. Zero disables notifications.
	ChatID int64
	// RatePerSec caps outgoing sends (default 1/s, Telegram is strict here).
	RatePerSec int
}

// sender is the bot surface used, kept narrow so tests can stub it.
type sender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

type Service struct {
	cfg Config
	log logx.Logger

	bot sender
	lim *rate.Limiter
}

// New builds the service. With no token or chat configured it returns a
// disabled service whose Notify is a no-op; that is not an error.
func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	s := &Service{cfg: cfg, log: log}
	if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		log.Info("notifications disabled (no token or chat configured)")
		return s, nil
	}

	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	s.bot = b
	s.lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	return s, nil
}

func (s *Service) Enabled() bool { return s.bot != nil }

// Notify sends msg to the configured chat. It blocks only for rate limiting
// and the send call itself; errors are logged and swallowed.
func (s *Service) Notify(ctx context.Context, msg string) {
	if s == nil || s.bot == nil || strings.TrimSpace(msg) == "" {
		return
	}
	if err := s.lim.Wait(ctx); err != nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(tele.ChatID(s.cfg.ChatID), msg)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("notification send failed", logx.Err(err))
		}
	case <-callCtx.Done():
		s.log.Warn("notification send timed out")
	}
}
