package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kormohq/kormo/internal/config"
	"github.com/kormohq/kormo/internal/notification/domain"
	"github.com/kormohq/kormo/internal/providers/email"
	"github.com/kormohq/kormo/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Slack  slack.Provider
	Email  email.Provider
}

type Service struct {
	cfg   config.Config
	log   *zap.Logger
	slack slack.Provider
	email email.Provider
}

func NewService(p Params) domain.Service {
	return &Service{
		cfg:   p.Config,
		log:   p.Log.Named("notification.service"),
		slack: p.Slack,
		email: p.Email,
	}
}

// Dispatch fans the notice out to every configured sink. Sink failures are
// logged and swallowed; a notification must never block or fail the workflow
// that raised it.
func (s *Service) Dispatch(ctx context.Context, req domain.Request) error {
	if req.Kind == "" || req.BookingID == 0 {
		return domain.ErrInvalidRequest
	}

	message := s.format(req)
	s.log.Info("booking notice",
		zap.String("kind", req.Kind),
		zap.String("booking_id", req.BookingID.String()),
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("professional_id", req.ProfessionalID.String()),
		zap.String("status", req.Status),
	)

	if err := s.slack.PostMessage(ctx, s.cfg.SlackChannel, message); err != nil {
		s.log.Warn("slack notice failed",
			zap.String("kind", req.Kind),
			zap.Error(err),
		)
	}

	if s.cfg.OpsNotifyEmail != "" && isOpsNotice(req.Kind) {
		subject := fmt.Sprintf("[kormo] %s booking %s", req.Kind, req.BookingID)
		if err := s.email.Send(ctx, []string{s.cfg.OpsNotifyEmail}, subject, message); err != nil {
			s.log.Warn("email notice failed",
				zap.String("kind", req.Kind),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Service) format(req domain.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: booking %s (customer %s, professional %s)",
		req.Kind, req.BookingID, req.CustomerID, req.ProfessionalID)
	if req.Status != "" {
		fmt.Fprintf(&b, " status=%s", req.Status)
	}
	if req.Amount != "" {
		fmt.Fprintf(&b, " amount=%s %s", req.Amount, s.cfg.DefaultCurrency)
	}
	if req.Reason != "" {
		fmt.Fprintf(&b, " reason=%q", req.Reason)
	}
	return b.String()
}

// rejections and cancellations get an operator's eyes; routine progress does
// not.
func isOpsNotice(kind string) bool {
	switch kind {
	case "booking.rejected", "booking.cancelled", "refund.opened", "payout.generated":
		return true
	default:
		return false
	}
}
