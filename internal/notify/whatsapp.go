// Package notify delivers outbound WhatsApp messages through each tenant's
// HTTP gateway.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"agendazap/internal/config"
	"agendazap/internal/metrics"
	"agendazap/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const tokenHeader = "Client-Token"

var ErrNoGateway = errors.New("tenant has no whatsapp gateway configured")

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// WhatsAppNotifier posts {phone, message} to the tenant's gateway URL.
// Sends are throttled per tenant.
type WhatsAppNotifier struct {
	httpClient *http.Client
	rps        rate.Limit
	burst      int
	logger     *zerolog.Logger

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

func NewWhatsAppNotifier(cfg config.WhatsAppConfig, logger *zerolog.Logger) *WhatsAppNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		rps = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &WhatsAppNotifier{
		httpClient: &http.Client{Timeout: timeout},
		rps:        rps,
		burst:      burst,
		logger:     logger,
		limiters:   make(map[int64]*rate.Limiter),
	}
}

func (n *WhatsAppNotifier) limiter(tenantID int64) *rate.Limiter {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(n.rps, n.burst)
		n.limiters[tenantID] = l
	}
	return l
}

// Notify blocks until the tenant's limiter admits the send or ctx ends.
func (n *WhatsAppNotifier) Notify(ctx context.Context, tenant *models.Tenant, phone, text string) error {
	if tenant == nil || strings.TrimSpace(tenant.NotifyURL) == "" {
		return ErrNoGateway
	}
	if err := n.limiter(tenant.ID).Wait(ctx); err != nil {
		return fmt.Errorf("notify: rate limiter: %w", err)
	}

	body, err := json.Marshal(sendTextRequest{Phone: phone, Message: text})
	if err != nil {
		return fmt.Errorf("notify: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tenant.NotifyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if tenant.NotifyToken != "" {
		req.Header.Set(tokenHeader, tenant.NotifyToken)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	metrics.IncMessage(models.DirectionOut)
	n.logger.Debug().Int64("tenant_id", tenant.ID).Msg("WhatsApp message sent")
	return nil
}
