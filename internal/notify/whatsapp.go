package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/signalix/phoneauth/internal/logging"
)

const defaultTimeout = 10 * time.Second

// WhatsAppGateway posts messages to a WhatsApp HTTP bridge.
type WhatsAppGateway struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
	logger     *zap.Logger
}

// NewWhatsAppGateway returns a gateway for the bridge endpoint at url.
func NewWhatsAppGateway(url string, timeout time.Duration, logger *zap.Logger) *WhatsAppGateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WhatsAppGateway{
		URL:        url,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type whatsAppRequest struct {
	ChatID      string `json:"chatId"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type whatsAppResponse struct {
	Success bool `json:"success"`
}

// chatID turns +15551234567 into 15551234567@c.us.
func chatID(phone string) string {
	return strings.ReplaceAll(phone, "+", "") + "@c.us"
}

// Notify returns true only for HTTP 200 with {"success": true}.
func (g *WhatsAppGateway) Notify(ctx context.Context, phone, text string) bool {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	log := g.logger.With(logging.Phone(phone))
	start := time.Now()

	raw, err := json.Marshal(whatsAppRequest{
		ChatID:      chatID(phone),
		ContentType: "string",
		Content:     text,
	})
	if err != nil {
		log.Error("whatsapp: encode request", zap.Error(err))
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(raw))
	if err != nil {
		log.Error("whatsapp: build request", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		log.Warn("whatsapp: send failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		log.Warn("whatsapp: provider rejected message",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return false
	}
	var out whatsAppResponse
	if err := json.Unmarshal(body, &out); err != nil || !out.Success {
		log.Warn("whatsapp: provider reported failure", zap.ByteString("body", body))
		return false
	}

	log.Info("whatsapp: message sent", zap.Duration("duration", time.Since(start)))
	return true
}
