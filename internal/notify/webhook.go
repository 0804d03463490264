package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Webhook posts provisioning lifecycle events to an operator-configured URL.
// Best-effort: failures are logged and never surfaced.
type Webhook struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

func NewWebhook(url string, logger *zap.Logger) *Webhook {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(2)
	return &Webhook{client: client, url: url, logger: logger}
}

// TenantEvent 租户生命周期事件
type TenantEvent struct {
	Event    string `json:"event"` // tenant.provisioned | tenant.provision_failed
	TenantID string `json:"tenant_id"`
	OrgName  string `json:"org_name"`
	Message  string `json:"message,omitempty"`
}

func (w *Webhook) Send(ctx context.Context, event TenantEvent) {
	if w == nil || w.url == "" {
		return
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		Post(w.url)
	if err != nil {
		w.logger.Warn("webhook delivery failed",
			zap.String("event", event.Event), zap.String("tenant_id", event.TenantID), zap.Error(err))
		return
	}
	if resp.IsError() {
		w.logger.Warn("webhook rejected",
			zap.String("event", event.Event), zap.Int("status", resp.StatusCode()))
	}
}
