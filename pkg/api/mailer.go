package api

import (
	"context"

	"github.com/lukewarren/shelfd/pkg/observability"
)

// Mailer delivers magic-link tokens. The auth core never sends mail; this
// is the seam where a real provider plugs in.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, token string) error
}

// LogMailer writes the delivery to the log instead of sending mail. It is
// the default in development; the token itself is not logged.
type LogMailer struct {
	logger *observability.Logger
}

// NewLogMailer creates a log-backed mailer.
func NewLogMailer(logger *observability.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendMagicLink(_ context.Context, email, _ string) error {
	m.logger.Info("magic link ready for delivery", "email", email)
	return nil
}
