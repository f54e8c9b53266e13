// Package notify delivers OTP messages to phone numbers.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/signalix/phoneauth/internal/logging"
)

// Gateway sends a text to a phone number. Any failure, including a timeout,
// is reported as false; callers never see transport detail.
type Gateway interface {
	Notify(ctx context.Context, phone, text string) bool
}

// OTPMessage renders the verification text sent to the user.
func OTPMessage(name, code string) string {
	if name == "" {
		name = "Client"
	}
	return fmt.Sprintf("Hello %s, your verification code is %s. Valid for 5 minutes.", name, code)
}

// LogGateway is a development gateway: it logs the masked recipient and
// reports success without sending anything.
type LogGateway struct {
	logger *zap.Logger
}

// NewLogGateway creates a LogGateway.
func NewLogGateway(logger *zap.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Notify(ctx context.Context, phone, text string) bool {
	g.logger.Info("notification suppressed (log backend)",
		logging.Phone(phone),
		zap.Int("length", len(text)),
	)
	return true
}
