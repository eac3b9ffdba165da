package provider

import (
	"context"
	"strings"

	"github.com/smallbiznis/aquabill/internal/notification/domain"
	"go.uber.org/zap"
)

// SandboxSMS logs messages instead of handing them to a carrier.
type SandboxSMS struct {
	log *zap.Logger
}

func NewSandboxSMS(log *zap.Logger) *SandboxSMS {
	s := &SandboxSMS{log: log.Named("sms.sandbox")}
	s.log.Info("sms provider running in sandbox mode")
	return s
}

func (s *SandboxSMS) Send(ctx context.Context, phone, message string) error {
	if strings.TrimSpace(phone) == "" {
		return domain.ErrInvalidPhone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("sms sent",
		zap.String("phone", phone),
		zap.String("message", message),
	)
	return nil
}

// NoOpSMS drops every message.
type NoOpSMS struct{}

func (NoOpSMS) Send(ctx context.Context, phone, message string) error {
	return nil
}
